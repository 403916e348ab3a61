package model

import "time"

const (
	PendingStatusPending  = "pending"
	PendingStatusApproved = "approved"
	PendingStatusRejected = "rejected"
)

type Ticket struct {
	ID            string     `db:"id" json:"id"`
	EventName     string     `db:"event_name" json:"event_name"`
	CustomerName  string     `db:"customer_name" json:"customer_name"`
	CustomerEmail string     `db:"customer_email" json:"customer_email"`
	PurchaseDate  time.Time  `db:"purchase_date" json:"purchase_date"`
	Used          bool       `db:"used" json:"used"`
	UsedAt        *time.Time `db:"used_at,omitempty" json:"used_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

type PendingTicket struct {
	ID            string    `db:"id" json:"id"`
	EventName     string    `db:"event_name" json:"event_name"`
	CustomerName  string    `db:"customer_name" json:"customer_name"`
	CustomerEmail string    `db:"customer_email" json:"customer_email"`
	Quantity      int       `db:"quantity" json:"quantity"`
	PaymentProof  *string   `db:"payment_proof,omitempty" json:"payment_proof,omitempty"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
