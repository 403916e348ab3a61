package search

import (
	"strings"

	"ticketdesk/internal/model"
)

// Filter returns the tickets whose id, customer name, customer email or event
// name contains term, case-insensitively. An empty term matches everything.
func Filter(tickets []model.Ticket, term string) []model.Ticket {
	if term == "" {
		return tickets
	}

	needle := strings.ToLower(term)
	matched := make([]model.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if strings.Contains(strings.ToLower(t.ID), needle) ||
			strings.Contains(strings.ToLower(t.CustomerName), needle) ||
			strings.Contains(strings.ToLower(t.CustomerEmail), needle) ||
			strings.Contains(strings.ToLower(t.EventName), needle) {
			matched = append(matched, t)
		}
	}

	return matched
}

// CountByStatus tallies used vs unused tickets. Counts are always derived
// from the collection itself, never stored, so they cannot drift.
func CountByStatus(tickets []model.Ticket) (used, unused int) {
	for _, t := range tickets {
		if t.Used {
			used++
		} else {
			unused++
		}
	}
	return used, unused
}
