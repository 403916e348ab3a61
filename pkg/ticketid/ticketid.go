package ticketid

import "github.com/google/uuid"

// Confirmed tickets and pending requests live in separate id namespaces so a
// pending id can never be presented at the gate as a scannable ticket.
const (
	TicketPrefix  = "TKT-"
	PendingPrefix = "PND-"
)

func NewTicketID() string {
	return TicketPrefix + uuid.New().String()
}

func NewPendingID() string {
	return PendingPrefix + uuid.New().String()
}
