package api

import (
	"context"
	"net/http"

	"github.com/xraph/mirror"
)

// Stats is the aggregate view returned by GET /stats.
type Stats struct {
	Users         int64  `json:"users"`
	LedgerEntries int64  `json:"ledger_entries"`
	PendingTasks  int64  `json:"pending_tasks"`
	DLQSize       int64  `json:"dlq_size"`
	Cursor        string `json:"cursor"`
}

func collectStats(ctx context.Context, m *mirror.Mirror) (*Stats, error) {
	s := m.Store()

	users, err := s.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.CountEntries(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	dlqSize, err := s.CountDLQ(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := m.Cursor(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Users:         users,
		LedgerEntries: entries,
		PendingTasks:  pending,
		DLQSize:       dlqSize,
		Cursor:        cursor,
	}, nil
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := collectStats(r.Context(), h.mirror)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
