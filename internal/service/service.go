package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"ticketdesk/internal/dto"
	"ticketdesk/internal/model"
	"ticketdesk/internal/repo"
	"ticketdesk/internal/search"
	"ticketdesk/pkg/qr"
	"ticketdesk/pkg/validator"
)

// Publisher is the slice of the RabbitMQ client the service needs; it keeps
// the queue out of handler tests.
type Publisher interface {
	Publish(message []byte, delaySeconds int) error
}

type Service interface {
	ListTickets(ctx *ginext.Context)
	SearchTickets(ctx *ginext.Context)
	TicketsForCustomer(ctx *ginext.Context)
	GetTicket(ctx *ginext.Context)
	TicketQRCode(ctx *ginext.Context)
	DeleteTicket(ctx *ginext.Context)
	ValidateTicket(ctx *ginext.Context)

	ListPending(ctx *ginext.Context)
	CreatePending(ctx *ginext.Context)
	ApprovePending(ctx *ginext.Context)
	RejectPending(ctx *ginext.Context)
	ClearPaymentProof(ctx *ginext.Context)

	Stats(ctx *ginext.Context)
}

type service struct {
	store repo.Store
	log   *zerolog.Logger
	pub   Publisher
}

func NewService(store repo.Store, logger *zerolog.Logger, pub Publisher) Service {
	return &service{
		store: store,
		log:   logger,
		pub:   pub,
	}
}

func (s *service) ListTickets(ctx *ginext.Context) {
	tickets, err := s.store.GetAllTickets(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list tickets")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, ticketList(tickets))
}

func (s *service) SearchTickets(ctx *ginext.Context) {
	term := ctx.Query("q")

	tickets, err := s.store.GetAllTickets(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list tickets for search")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, ticketList(search.Filter(tickets, term)))
}

func (s *service) TicketsForCustomer(ctx *ginext.Context) {
	email := ctx.Param("email")
	if email == "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Customer email is required")
		return
	}

	tickets, err := s.store.GetUserTickets(ctx.Request.Context(), email)
	if err != nil {
		s.log.Error().Err(err).Str("email", email).Msg("failed to get customer tickets")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, ticketList(tickets))
}

func (s *service) GetTicket(ctx *ginext.Context) {
	id := ctx.Param("id")

	ticket, err := s.store.GetTicket(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrTicketNotFound) {
			dto.TicketNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("ticket_id", id).Msg("failed to get ticket")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.NewTicketResponse(*ticket))
}

func (s *service) TicketQRCode(ctx *ginext.Context) {
	id := ctx.Param("id")

	ticket, err := s.store.GetTicket(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrTicketNotFound) {
			dto.TicketNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("ticket_id", id).Msg("failed to get ticket for QR code")
		dto.InternalServerError(ctx)
		return
	}

	png, err := qr.Encode(ticket.ID, 256)
	if err != nil {
		s.log.Error().Err(err).Str("ticket_id", id).Msg("failed to encode QR code")
		dto.InternalServerError(ctx)
		return
	}

	ctx.Data(200, "image/png", png)
}

func (s *service) DeleteTicket(ctx *ginext.Context) {
	id := ctx.Param("id")

	deleted, err := s.store.DeleteTicket(ctx.Request.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("ticket_id", id).Msg("failed to delete ticket")
		dto.InternalServerError(ctx)
		return
	}

	if deleted {
		s.log.Info().Str("ticket_id", id).Msg("ticket deleted")
	}

	dto.SuccessResponse(ctx, dto.DeleteTicketResponse{ID: id, Deleted: deleted})
}

func (s *service) ValidateTicket(ctx *ginext.Context) {
	id := ctx.Param("id")

	ticket, err := s.store.ValidateTicketTx(ctx.Request.Context(), id)
	switch {
	case err == nil:
		s.log.Info().Str("ticket_id", ticket.ID).Msg("ticket validated")
		resp := dto.NewTicketResponse(*ticket)
		dto.SuccessResponse(ctx, dto.ValidationResponse{
			Valid:   true,
			Result:  dto.ValidationOK,
			Message: "Ticket validated successfully",
			Ticket:  &resp,
		})
	case errors.Is(err, repo.ErrTicketUsed):
		resp := dto.NewTicketResponse(*ticket)
		dto.SuccessResponse(ctx, dto.ValidationResponse{
			Valid:   false,
			Result:  dto.ValidationAlreadyUsed,
			Message: "Ticket already used",
			Ticket:  &resp,
		})
	case errors.Is(err, repo.ErrTicketNotFound):
		dto.SuccessResponse(ctx, dto.ValidationResponse{
			Valid:   false,
			Result:  dto.ValidationNotFound,
			Message: "Ticket not found",
		})
	default:
		s.log.Error().Err(err).Str("ticket_id", id).Msg("failed to validate ticket")
		dto.InternalServerError(ctx)
	}
}

func (s *service) ListPending(ctx *ginext.Context) {
	pending, err := s.store.GetPendingTickets(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list pending tickets")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.PendingTicketResponse, 0, len(pending))
	for _, p := range pending {
		resp = append(resp, dto.NewPendingTicketResponse(p))
	}

	dto.SuccessResponse(ctx, resp)
}

func (s *service) CreatePending(ctx *ginext.Context) {
	var req dto.CreatePendingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create pending request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	pending := &model.PendingTicket{
		EventName:     req.EventName,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Quantity:      req.Quantity,
		PaymentProof:  req.PaymentProof,
	}

	if err := s.store.CreatePendingTicket(ctx.Request.Context(), pending); err != nil {
		s.log.Error().Err(err).Msg("failed to create pending ticket")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("pending_id", pending.ID).
		Int("quantity", pending.Quantity).
		Msg("pending ticket created")

	dto.SuccessCreatedResponse(ctx, dto.NewPendingTicketResponse(*pending))
}

func (s *service) ApprovePending(ctx *ginext.Context) {
	pendingID := ctx.Param("id")

	tickets, err := s.store.ApprovePendingTx(ctx.Request.Context(), pendingID)
	if err != nil {
		if errors.Is(err, repo.ErrPendingNotFound) {
			dto.PendingNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("pending_id", pendingID).Msg("failed to approve pending ticket")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("pending_id", pendingID).
		Int("tickets", len(tickets)).
		Msg("pending ticket approved")

	s.publishIssued(pendingID, tickets)

	resp := make([]dto.TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		resp = append(resp, dto.NewTicketResponse(t))
	}

	dto.SuccessCreatedResponse(ctx, resp)
}

func (s *service) RejectPending(ctx *ginext.Context) {
	pendingID := ctx.Param("id")

	if err := s.store.DeletePending(ctx.Request.Context(), pendingID); err != nil {
		if errors.Is(err, repo.ErrPendingNotFound) {
			dto.PendingNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("pending_id", pendingID).Msg("failed to reject pending ticket")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("pending_id", pendingID).Msg("pending ticket rejected")
	dto.SuccessResponse(ctx, nil)
}

func (s *service) ClearPaymentProof(ctx *ginext.Context) {
	pendingID := ctx.Param("id")

	if err := s.store.ClearPaymentProof(ctx.Request.Context(), pendingID); err != nil {
		if errors.Is(err, repo.ErrPendingNotFound) {
			dto.PendingNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("pending_id", pendingID).Msg("failed to clear payment proof")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("pending_id", pendingID).Msg("payment proof cleared")
	dto.SuccessResponse(ctx, nil)
}

func (s *service) Stats(ctx *ginext.Context) {
	tickets, err := s.store.GetAllTickets(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list tickets for stats")
		dto.InternalServerError(ctx)
		return
	}

	pending, err := s.store.GetPendingTickets(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list pending tickets for stats")
		dto.InternalServerError(ctx)
		return
	}

	used, unused := search.CountByStatus(tickets)
	dto.SuccessResponse(ctx, dto.StatsResponse{
		TotalTickets:  len(tickets),
		UsedTickets:   used,
		UnusedTickets: unused,
		PendingCount:  len(pending),
	})
}

// publishIssued hands the freshly minted tickets to the delivery worker. A
// publish failure is logged but does not undo the approval.
func (s *service) publishIssued(pendingID string, tickets []model.Ticket) {
	if len(tickets) == 0 {
		return
	}

	ids := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}

	msg := dto.TicketIssuedMessage{
		PendingID:     pendingID,
		EventName:     tickets[0].EventName,
		CustomerEmail: tickets[0].CustomerEmail,
		TicketIDs:     ids,
		IssuedAt:      time.Now(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal ticket issued message")
		return
	}

	if err := s.pub.Publish(payload, 0); err != nil {
		s.log.Error().Err(err).Str("pending_id", pendingID).Msg("failed to publish ticket issued message")
	}
}

func ticketList(tickets []model.Ticket) dto.TicketListResponse {
	used, unused := search.CountByStatus(tickets)

	resp := dto.TicketListResponse{
		Tickets: make([]dto.TicketResponse, 0, len(tickets)),
		Total:   len(tickets),
		Used:    used,
		Unused:  unused,
	}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, dto.NewTicketResponse(t))
	}

	return resp
}
