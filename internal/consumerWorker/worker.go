package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wb-go/wbf/zlog"

	"ticketdesk/internal/dto"
	"ticketdesk/internal/mailer"
	"ticketdesk/internal/model"
	"ticketdesk/internal/rabbit"
	"ticketdesk/internal/repo"
)

// Reader consumes ticket-issued messages and emails the customer their
// tickets with QR attachments.
type Reader struct {
	RMQ    *rabbit.Client
	store  repo.Store
	mail   *mailer.Mailer
	done   chan struct{}
	cancel context.CancelFunc
}

func NewReader(rmq *rabbit.Client, store repo.Store, mail *mailer.Mailer) *Reader {
	return &Reader{
		RMQ:   rmq,
		store: store,
		mail:  mail,
		done:  make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Msg("Ticket delivery reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			var msg dto.TicketIssuedMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				zlog.Logger.Error().
					Err(err).
					Msgf("Failed to unmarshal message: %s", string(body))
				return err
			}

			zlog.Logger.Info().
				Str("pending_id", msg.PendingID).
				Str("email", msg.CustomerEmail).
				Int("tickets", len(msg.TicketIDs)).
				Msg("Received ticket issued message")

			tickets := make([]model.Ticket, 0, len(msg.TicketIDs))
			for _, id := range msg.TicketIDs {
				ticket, err := r.store.GetTicket(cctx, id)
				if err != nil {
					if errors.Is(err, repo.ErrTicketNotFound) {
						// Deleted between approval and delivery; skip it.
						zlog.Logger.Warn().
							Str("ticket_id", id).
							Msg("Issued ticket no longer in store, skipping")
						continue
					}
					zlog.Logger.Error().
						Err(err).
						Str("ticket_id", id).
						Msg("Failed to load issued ticket from store")
					return err
				}
				tickets = append(tickets, *ticket)
			}

			if len(tickets) == 0 {
				zlog.Logger.Info().
					Str("pending_id", msg.PendingID).
					Msg("No tickets left to deliver, skipping email")
				return nil
			}

			if err := r.mail.SendTickets(msg.EventName, msg.CustomerEmail, tickets); err != nil {
				zlog.Logger.Warn().
					Err(err).
					Str("email", msg.CustomerEmail).
					Msg("Failed to send ticket delivery email")
			}

			return nil
		}

		if err := r.RMQ.Consume(handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("Ticket delivery reader stopped by context")
	}()
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
