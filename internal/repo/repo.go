package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"ticketdesk/internal/model"
	"ticketdesk/pkg/ticketid"
)

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrTicketUsed      = errors.New("ticket already used")
	ErrPendingNotFound = errors.New("pending ticket not found")
)

type Store interface {
	GetAllTickets(ctx context.Context) ([]model.Ticket, error)
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	GetUserTickets(ctx context.Context, email string) ([]model.Ticket, error)
	DeleteTicket(ctx context.Context, id string) (bool, error)
	ValidateTicketTx(ctx context.Context, id string) (*model.Ticket, error)

	GetPendingTickets(ctx context.Context) ([]model.PendingTicket, error)
	CreatePendingTicket(ctx context.Context, p *model.PendingTicket) error
	ApprovePendingTx(ctx context.Context, pendingID string) ([]model.Ticket, error)
	DeletePending(ctx context.Context, pendingID string) error
	ClearPaymentProof(ctx context.Context, pendingID string) error

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *repository) GetAllTickets(ctx context.Context) ([]model.Ticket, error) {
	query := `
		SELECT id, event_name, customer_name, customer_email, purchase_date, used, used_at, created_at
		FROM tickets
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(
			&t.ID,
			&t.EventName,
			&t.CustomerName,
			&t.CustomerEmail,
			&t.PurchaseDate,
			&t.Used,
			&t.UsedAt,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}

	return tickets, nil
}

func (r *repository) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	query := `
		SELECT id, event_name, customer_name, customer_email, purchase_date, used, used_at, created_at
		FROM tickets
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var t model.Ticket
	if err := row.Scan(
		&t.ID,
		&t.EventName,
		&t.CustomerName,
		&t.CustomerEmail,
		&t.PurchaseDate,
		&t.Used,
		&t.UsedAt,
		&t.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	return &t, nil
}

// GetUserTickets matches the customer email case-insensitively. The matching
// strategy is contained here so callers never depend on it.
func (r *repository) GetUserTickets(ctx context.Context, email string) ([]model.Ticket, error) {
	query := `
		SELECT id, event_name, customer_name, customer_email, purchase_date, used, used_at, created_at
		FROM tickets
		WHERE LOWER(customer_email) = LOWER($1)
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(
			&t.ID,
			&t.EventName,
			&t.CustomerName,
			&t.CustomerEmail,
			&t.PurchaseDate,
			&t.Used,
			&t.UsedAt,
			&t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}

	return tickets, nil
}

// DeleteTicket reports whether a row was removed. A missing id is a normal
// outcome, not an error.
func (r *repository) DeleteTicket(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete ticket: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	return affected > 0, nil
}

// ValidateTicketTx performs the at-most-once unused→used transition. The row
// is locked FOR UPDATE so two concurrent scans of the same id are serialized:
// exactly one observes used = false. On ErrTicketUsed the ticket is still
// returned so the gate can show who used it and when.
func (r *repository) ValidateTicketTx(ctx context.Context, id string) (*model.Ticket, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var t model.Ticket
	err = tx.QueryRowContext(ctx, `
		SELECT id, event_name, customer_name, customer_email, purchase_date, used, used_at, created_at
		FROM tickets
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&t.ID,
		&t.EventName,
		&t.CustomerName,
		&t.CustomerEmail,
		&t.PurchaseDate,
		&t.Used,
		&t.UsedAt,
		&t.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to select ticket for validation: %w", err)
	}

	if t.Used {
		_ = tx.Rollback()
		return &t, ErrTicketUsed
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE tickets
		SET used = TRUE, used_at = $1
		WHERE id = $2
	`, now, t.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to mark ticket used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit validation: %w", err)
	}

	t.Used = true
	t.UsedAt = &now
	return &t, nil
}

func (r *repository) GetPendingTickets(ctx context.Context) ([]model.PendingTicket, error) {
	query := `
		SELECT id, event_name, customer_name, customer_email, quantity, payment_proof, status, created_at, updated_at
		FROM pending_tickets
		WHERE status = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, model.PendingStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending tickets: %w", err)
	}
	defer rows.Close()

	var pending []model.PendingTicket
	for rows.Next() {
		var p model.PendingTicket
		if err := rows.Scan(
			&p.ID,
			&p.EventName,
			&p.CustomerName,
			&p.CustomerEmail,
			&p.Quantity,
			&p.PaymentProof,
			&p.Status,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending ticket: %w", err)
		}
		pending = append(pending, p)
	}

	return pending, nil
}

func (r *repository) CreatePendingTicket(ctx context.Context, p *model.PendingTicket) error {
	p.ID = ticketid.NewPendingID()
	p.Status = model.PendingStatusPending

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO pending_tickets (id, event_name, customer_name, customer_email, quantity, payment_proof, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at
	`, p.ID, p.EventName, p.CustomerName, p.CustomerEmail, p.Quantity, p.PaymentProof, p.Status).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pending ticket: %w", err)
	}

	return nil
}

// ApprovePendingTx converts a pending request into its confirmed tickets.
// The pending row is locked FOR UPDATE, all quantity tickets are inserted and
// the pending row is deleted inside one transaction, so a failure anywhere
// leaves neither half-minted tickets nor a half-approved request.
func (r *repository) ApprovePendingTx(ctx context.Context, pendingID string) ([]model.Ticket, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var p model.PendingTicket
	err = tx.QueryRowContext(ctx, `
		SELECT id, event_name, customer_name, customer_email, quantity
		FROM pending_tickets
		WHERE id = $1 AND status = $2
		FOR UPDATE
	`, pendingID, model.PendingStatusPending).Scan(
		&p.ID,
		&p.EventName,
		&p.CustomerName,
		&p.CustomerEmail,
		&p.Quantity,
	)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("failed to select pending ticket for approval: %w", err)
	}

	now := time.Now()
	tickets := make([]model.Ticket, 0, p.Quantity)
	for i := 0; i < p.Quantity; i++ {
		t := model.Ticket{
			ID:            ticketid.NewTicketID(),
			EventName:     p.EventName,
			CustomerName:  p.CustomerName,
			CustomerEmail: p.CustomerEmail,
			PurchaseDate:  now,
			Used:          false,
			CreatedAt:     now,
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (id, event_name, customer_name, customer_email, purchase_date, used, created_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		`, t.ID, t.EventName, t.CustomerName, t.CustomerEmail, t.PurchaseDate, t.CreatedAt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to insert generated ticket: %w", err)
		}

		tickets = append(tickets, t)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM pending_tickets WHERE id = $1
	`, p.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to remove approved pending ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	return tickets, nil
}

func (r *repository) DeletePending(ctx context.Context, pendingID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_tickets WHERE id = $1`, pendingID)
	if err != nil {
		return fmt.Errorf("failed to delete pending ticket: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrPendingNotFound
	}

	return nil
}

func (r *repository) ClearPaymentProof(ctx context.Context, pendingID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_tickets
		SET payment_proof = NULL, updated_at = NOW()
		WHERE id = $1
	`, pendingID)
	if err != nil {
		return fmt.Errorf("failed to clear payment proof: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrPendingNotFound
	}

	return nil
}
