package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/api/api"
	"ticketdesk/internal/dto"
	"ticketdesk/internal/model"
	"ticketdesk/internal/repo"
	"ticketdesk/internal/service"
	"ticketdesk/pkg/ticketid"
)

// memStore is an in-memory repo.Store, enough to drive the handlers without
// Postgres. Guarded by one mutex, so the per-id serialization the SQL store
// gets from row locks holds here too.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]model.Ticket
	order   []string
	pending map[string]model.PendingTicket
}

func newMemStore() *memStore {
	return &memStore{
		tickets: make(map[string]model.Ticket),
		pending: make(map[string]model.PendingTicket),
	}
}

func (m *memStore) GetAllTickets(context.Context) ([]model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Ticket, 0, len(m.order))
	for _, id := range m.order {
		if t, ok := m.tickets[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) GetTicket(_ context.Context, id string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, repo.ErrTicketNotFound
	}
	return &t, nil
}

func (m *memStore) GetUserTickets(ctx context.Context, email string) ([]model.Ticket, error) {
	all, _ := m.GetAllTickets(ctx)
	var out []model.Ticket
	for _, t := range all {
		if strings.EqualFold(t.CustomerEmail, email) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) DeleteTicket(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[id]; !ok {
		return false, nil
	}
	delete(m.tickets, id)
	return true, nil
}

func (m *memStore) ValidateTicketTx(_ context.Context, id string) (*model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, repo.ErrTicketNotFound
	}
	if t.Used {
		return &t, repo.ErrTicketUsed
	}
	now := time.Now()
	t.Used = true
	t.UsedAt = &now
	m.tickets[id] = t
	return &t, nil
}

func (m *memStore) GetPendingTickets(context.Context) ([]model.PendingTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PendingTicket
	for _, p := range m.pending {
		if p.Status == model.PendingStatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CreatePendingTicket(_ context.Context, p *model.PendingTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = ticketid.NewPendingID()
	p.Status = model.PendingStatusPending
	p.CreatedAt = time.Now()
	m.pending[p.ID] = *p
	return nil
}

func (m *memStore) ApprovePendingTx(_ context.Context, pendingID string) ([]model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[pendingID]
	if !ok || p.Status != model.PendingStatusPending {
		return nil, repo.ErrPendingNotFound
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
			CreatedAt:     now,
		}
		m.tickets[t.ID] = t
		m.order = append(m.order, t.ID)
		tickets = append(tickets, t)
	}
	delete(m.pending, pendingID)
	return tickets, nil
}

func (m *memStore) DeletePending(_ context.Context, pendingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[pendingID]; !ok {
		return repo.ErrPendingNotFound
	}
	delete(m.pending, pendingID)
	return nil
}

func (m *memStore) ClearPaymentProof(_ context.Context, pendingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[pendingID]
	if !ok {
		return repo.ErrPendingNotFound
	}
	p.PaymentProof = nil
	m.pending[pendingID] = p
	return nil
}

func (m *memStore) MigrateUp(string) error   { return nil }
func (m *memStore) MigrateDown(string) error { return nil }

func (m *memStore) seedPending(p model.PendingTicket) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = ticketid.NewPendingID()
	}
	if p.Status == "" {
		p.Status = model.PendingStatusPending
	}
	m.pending[p.ID] = p
	return p.ID
}

func (m *memStore) seedTicket(t model.Ticket) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = ticketid.NewTicketID()
	}
	m.tickets[t.ID] = t
	m.order = append(m.order, t.ID)
	return t.ID
}

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
}

func (f *fakePublisher) Publish(message []byte, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func setup() (*memStore, *fakePublisher, http.Handler) {
	store := newMemStore()
	pub := &fakePublisher{}
	log := zerolog.Nop()
	svc := service.NewService(store, &log, pub)
	router := api.NewRouters(&api.Routers{Service: svc})
	return store, pub, router
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error *dto.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env.Error.Code
}

func TestApprovePending_GeneratesQuantityTickets(t *testing.T) {
	store, pub, router := setup()
	pendingID := store.seedPending(model.PendingTicket{
		ID:            "P1",
		EventName:     "Magic Night",
		CustomerName:  "Ana Lopez",
		CustomerEmail: "a@x.com",
		Quantity:      2,
	})

	rec := do(t, router, http.MethodPost, "/v1/pending/"+pendingID+"/approve", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var issued []dto.TicketResponse
	decodeData(t, rec, &issued)
	require.Len(t, issued, 2)
	for _, tk := range issued {
		assert.False(t, tk.Used)
		assert.Equal(t, "a@x.com", tk.CustomerEmail)
	}
	assert.NotEqual(t, issued[0].ID, issued[1].ID)

	// The pending record is gone.
	rec = do(t, router, http.MethodGet, "/v1/pending", nil)
	var pending []dto.PendingTicketResponse
	decodeData(t, rec, &pending)
	assert.Empty(t, pending)

	// One issued message went to the delivery queue.
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.messages, 1)
	var msg dto.TicketIssuedMessage
	require.NoError(t, json.Unmarshal(pub.messages[0], &msg))
	assert.Equal(t, pendingID, msg.PendingID)
	assert.Len(t, msg.TicketIDs, 2)
}

func TestApprovePending_NotFound(t *testing.T) {
	_, pub, router := setup()

	rec := do(t, router, http.MethodPost, "/v1/pending/PND-missing/approve", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dto.PendingNotFound, decodeErrorCode(t, rec))
	assert.Empty(t, pub.messages)
}

func TestValidateTicket_AtMostOnce(t *testing.T) {
	store, _, router := setup()
	id := store.seedTicket(model.Ticket{ID: "T1", EventName: "Magic Night", CustomerEmail: "a@x.com"})

	rec := do(t, router, http.MethodPost, "/v1/tickets/"+id+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var first dto.ValidationResponse
	decodeData(t, rec, &first)
	assert.True(t, first.Valid)
	assert.Equal(t, dto.ValidationOK, first.Result)
	require.NotNil(t, first.Ticket)
	assert.True(t, first.Ticket.Used)

	// Every later attempt reports already used and still shows the ticket.
	for i := 0; i < 3; i++ {
		rec = do(t, router, http.MethodPost, "/v1/tickets/"+id+"/validate", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var again dto.ValidationResponse
		decodeData(t, rec, &again)
		assert.False(t, again.Valid)
		assert.Equal(t, dto.ValidationAlreadyUsed, again.Result)
		require.NotNil(t, again.Ticket)
		assert.NotNil(t, again.Ticket.UsedAt)
	}
}

func TestValidateTicket_NotFoundIsDataNotError(t *testing.T) {
	store, _, router := setup()
	store.seedTicket(model.Ticket{ID: "T1"})

	rec := do(t, router, http.MethodPost, "/v1/tickets/does-not-exist/validate", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.ValidationResponse
	decodeData(t, rec, &resp)
	assert.False(t, resp.Valid)
	assert.Equal(t, dto.ValidationNotFound, resp.Result)
	assert.Nil(t, resp.Ticket)

	// No mutation happened.
	ticket, err := store.GetTicket(context.Background(), "T1")
	require.NoError(t, err)
	assert.False(t, ticket.Used)
}

func TestDeleteTicket_IdempotentReporting(t *testing.T) {
	store, _, router := setup()
	id := store.seedTicket(model.Ticket{ID: "T1"})

	rec := do(t, router, http.MethodDelete, "/v1/tickets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var del dto.DeleteTicketResponse
	decodeData(t, rec, &del)
	assert.True(t, del.Deleted)

	rec = do(t, router, http.MethodGet, "/v1/tickets", nil)
	var list dto.TicketListResponse
	decodeData(t, rec, &list)
	assert.Zero(t, list.Total)

	rec = do(t, router, http.MethodDelete, "/v1/tickets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &del)
	assert.False(t, del.Deleted)
}

func TestSearchTickets(t *testing.T) {
	store, _, router := setup()
	store.seedTicket(model.Ticket{ID: "TKT-aaa", EventName: "Magic Night", CustomerName: "Ana", CustomerEmail: "ana@x.com"})
	store.seedTicket(model.Ticket{ID: "TKT-bbb", EventName: "Summer Gala", CustomerName: "Bruno", CustomerEmail: "bruno@x.com"})

	rec := do(t, router, http.MethodGet, "/v1/tickets/search?q=magic", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list dto.TicketListResponse
	decodeData(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "TKT-aaa", list.Tickets[0].ID)

	rec = do(t, router, http.MethodGet, "/v1/tickets/search", nil)
	decodeData(t, rec, &list)
	assert.Equal(t, 2, list.Total)

	rec = do(t, router, http.MethodGet, "/v1/tickets/search?q=nothing-here", nil)
	decodeData(t, rec, &list)
	assert.Zero(t, list.Total)
}

func TestTicketsForCustomer_CaseInsensitive(t *testing.T) {
	store, _, router := setup()
	store.seedTicket(model.Ticket{ID: "TKT-aaa", CustomerEmail: "Ana@X.com"})
	store.seedTicket(model.Ticket{ID: "TKT-bbb", CustomerEmail: "bruno@x.com"})

	rec := do(t, router, http.MethodGet, "/v1/tickets/customer/ana@x.com", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var list dto.TicketListResponse
	decodeData(t, rec, &list)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "TKT-aaa", list.Tickets[0].ID)
}

func TestCreatePending_Validation(t *testing.T) {
	_, _, router := setup()

	rec := do(t, router, http.MethodPost, "/v1/pending", dto.CreatePendingRequest{
		EventName:     "Magic Night",
		CustomerName:  "Ana Lopez",
		CustomerEmail: "a@x.com",
		Quantity:      2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created dto.PendingTicketResponse
	decodeData(t, rec, &created)
	assert.Contains(t, created.ID, "PND-")
	assert.Equal(t, model.PendingStatusPending, created.Status)

	rec = do(t, router, http.MethodPost, "/v1/pending", dto.CreatePendingRequest{
		EventName:     "Magic Night",
		CustomerName:  "Ana Lopez",
		CustomerEmail: "not-an-email",
		Quantity:      2,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearPaymentProof(t *testing.T) {
	store, _, router := setup()
	proof := "uploads/proof-1.png"
	pendingID := store.seedPending(model.PendingTicket{
		ID:           "P1",
		EventName:    "Magic Night",
		Quantity:     1,
		PaymentProof: &proof,
	})

	rec := do(t, router, http.MethodDelete, "/v1/pending/"+pendingID+"/payment-proof", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	pending, err := store.GetPendingTickets(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].PaymentProof)

	rec = do(t, router, http.MethodDelete, "/v1/pending/PND-missing/payment-proof", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dto.PendingNotFound, decodeErrorCode(t, rec))
}

func TestRejectPending_LeavesTicketsAlone(t *testing.T) {
	store, _, router := setup()
	ticketID := store.seedTicket(model.Ticket{ID: "T1", CustomerEmail: "a@x.com"})
	pendingID := store.seedPending(model.PendingTicket{ID: "P1", CustomerEmail: "a@x.com", Quantity: 3})

	rec := do(t, router, http.MethodPost, "/v1/pending/"+pendingID+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	pending, err := store.GetPendingTickets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = store.GetTicket(context.Background(), ticketID)
	assert.NoError(t, err)
}

func TestStats_DerivedCounts(t *testing.T) {
	store, _, router := setup()
	now := time.Now()
	store.seedTicket(model.Ticket{ID: "T1", Used: true, UsedAt: &now})
	store.seedTicket(model.Ticket{ID: "T2"})
	store.seedTicket(model.Ticket{ID: "T3"})
	store.seedPending(model.PendingTicket{ID: "P1", Quantity: 4})

	rec := do(t, router, http.MethodGet, "/v1/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var stats dto.StatsResponse
	decodeData(t, rec, &stats)
	assert.Equal(t, 3, stats.TotalTickets)
	assert.Equal(t, 1, stats.UsedTickets)
	assert.Equal(t, 2, stats.UnusedTickets)
	assert.Equal(t, 1, stats.PendingCount)
}
