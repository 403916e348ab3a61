package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"ticketdesk/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	TicketNotFound  = "TICKET_NOT_FOUND"
	PendingNotFound = "PENDING_NOT_FOUND"
)

// Validation outcome kinds. "not valid" is a normal business result, so all
// three are delivered with HTTP 200 and callers branch on Result, not on the
// message text.
const (
	ValidationOK          = "valid"
	ValidationAlreadyUsed = "already_used"
	ValidationNotFound    = "not_found"
)

type CreatePendingRequest struct {
	EventName     string  `json:"event_name" validate:"required,max=255"`
	CustomerName  string  `json:"customer_name" validate:"required,min=3,max=255"`
	CustomerEmail string  `json:"customer_email" validate:"required,email"`
	Quantity      int     `json:"quantity" validate:"required,positive"`
	PaymentProof  *string `json:"payment_proof,omitempty"`
}

type TicketResponse struct {
	ID            string     `json:"id"`
	EventName     string     `json:"event_name"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	PurchaseDate  time.Time  `json:"purchase_date"`
	Used          bool       `json:"used"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
}

type TicketListResponse struct {
	Tickets []TicketResponse `json:"tickets"`
	Total   int              `json:"total"`
	Used    int              `json:"used"`
	Unused  int              `json:"unused"`
}

type PendingTicketResponse struct {
	ID            string    `json:"id"`
	EventName     string    `json:"event_name"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	Quantity      int       `json:"quantity"`
	PaymentProof  *string   `json:"payment_proof,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type ValidationResponse struct {
	Valid   bool            `json:"valid"`
	Result  string          `json:"result"`
	Message string          `json:"message"`
	Ticket  *TicketResponse `json:"ticket,omitempty"`
}

type DeleteTicketResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

type StatsResponse struct {
	TotalTickets  int `json:"total_tickets"`
	UsedTickets   int `json:"used_tickets"`
	UnusedTickets int `json:"unused_tickets"`
	PendingCount  int `json:"pending_count"`
}

// TicketIssuedMessage is published to RabbitMQ after an approval so the
// worker can deliver the freshly minted tickets to the customer.
type TicketIssuedMessage struct {
	PendingID     string    `json:"pending_id"`
	EventName     string    `json:"event_name"`
	CustomerEmail string    `json:"customer_email"`
	TicketIDs     []string  `json:"ticket_ids"`
	IssuedAt      time.Time `json:"issued_at"`
}

func NewTicketResponse(t model.Ticket) TicketResponse {
	return TicketResponse{
		ID:            t.ID,
		EventName:     t.EventName,
		CustomerName:  t.CustomerName,
		CustomerEmail: t.CustomerEmail,
		PurchaseDate:  t.PurchaseDate,
		Used:          t.Used,
		UsedAt:        t.UsedAt,
	}
}

func NewPendingTicketResponse(p model.PendingTicket) PendingTicketResponse {
	return PendingTicketResponse{
		ID:            p.ID,
		EventName:     p.EventName,
		CustomerName:  p.CustomerName,
		CustomerEmail: p.CustomerEmail,
		Quantity:      p.Quantity,
		PaymentProof:  p.PaymentProof,
		Status:        p.Status,
		CreatedAt:     p.CreatedAt,
	}
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func NotFoundError(c *ginext.Context, code, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func TicketNotFoundError(c *ginext.Context) {
	NotFoundError(c, TicketNotFound, "Ticket not found")
}

func PendingNotFoundError(c *ginext.Context) {
	NotFoundError(c, PendingNotFound, "Pending ticket not found")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
