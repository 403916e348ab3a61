package mailer

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"ticketdesk/internal/model"
	"ticketdesk/pkg/qr"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	cfg Config
	log *zerolog.Logger
}

func New(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// SendTickets delivers issued tickets to the customer, one QR code PNG
// attachment per ticket.
func (m *Mailer) SendTickets(eventName, recipient string, tickets []model.Ticket) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", fmt.Sprintf("Your tickets for %s", eventName))
	msg.SetBody("text/plain", m.body(eventName, tickets))

	for _, t := range tickets {
		png, err := qr.Encode(t.ID, 256)
		if err != nil {
			return fmt.Errorf("failed to encode QR for ticket %s: %w", t.ID, err)
		}

		filename := fmt.Sprintf("ticket_%s.png", t.ID)
		msg.Attach(filename, gomail.Rename(filename), gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(png))
			return err
		}))
	}

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		m.log.Warn().Err(err).Str("email", recipient).Msg("failed to send ticket email")
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().
		Str("email", recipient).
		Int("tickets", len(tickets)).
		Msg("ticket email sent")
	return nil
}

func (m *Mailer) body(eventName string, tickets []model.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello!\n\nYour payment for %s was approved. Your tickets:\n\n", eventName)
	for _, t := range tickets {
		fmt.Fprintf(&b, "  %s\n", t.ID)
	}
	b.WriteString("\nEach attached QR code admits one person. See you there!\n")
	return b.String()
}
