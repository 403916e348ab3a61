package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/model"
)

func sampleTickets() []model.Ticket {
	return []model.Ticket{
		{ID: "TKT-aaa", EventName: "Magic Night", CustomerName: "Ana Lopez", CustomerEmail: "ana@example.com", Used: true},
		{ID: "TKT-bbb", EventName: "Magic Night", CustomerName: "Bruno Diaz", CustomerEmail: "bruno@example.com"},
		{ID: "TKT-ccc", EventName: "Summer Gala", CustomerName: "Carla Ruiz", CustomerEmail: "carla@mail.org"},
	}
}

func TestFilter_EmptyTermMatchesEverything(t *testing.T) {
	tickets := sampleTickets()

	got := Filter(tickets, "")

	assert.Len(t, got, len(tickets))
}

func TestFilter_MatchesAllSearchableFields(t *testing.T) {
	tickets := sampleTickets()

	byID := Filter(tickets, "tkt-bbb")
	require.Len(t, byID, 1)
	assert.Equal(t, "TKT-bbb", byID[0].ID)

	byName := Filter(tickets, "carla")
	require.Len(t, byName, 1)
	assert.Equal(t, "TKT-ccc", byName[0].ID)

	byEmail := Filter(tickets, "ANA@EXAMPLE")
	require.Len(t, byEmail, 1)
	assert.Equal(t, "TKT-aaa", byEmail[0].ID)

	byEvent := Filter(tickets, "magic")
	assert.Len(t, byEvent, 2)
}

func TestFilter_NoMatchReturnsEmpty(t *testing.T) {
	got := Filter(sampleTickets(), "does-not-exist")

	assert.Empty(t, got)
}

func TestCountByStatus(t *testing.T) {
	used, unused := CountByStatus(sampleTickets())

	assert.Equal(t, 1, used)
	assert.Equal(t, 2, unused)

	used, unused = CountByStatus(nil)
	assert.Zero(t, used)
	assert.Zero(t, unused)
}
