package api

import (
	"net/http"
	"time"

	"github.com/xraph/mirror/ledger"
)

type cursorResponse struct {
	Cursor string `json:"cursor"`
	// Resume and ResumeSince report where the next catch-up starts.
	Resume      string     `json:"resume"`
	ResumeSince *time.Time `json:"resume_since,omitempty"`
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	opts := ledger.ListOpts{
		Offset:    queryInt(r, "offset", 0),
		Limit:     queryInt(r, "limit", defaultLimit),
		EventType: queryParam(r, "event_type"),
	}

	entries, err := h.mirror.Ledger().List(r.Context(), opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getCursor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cursor, err := h.mirror.Cursor(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	rp, err := h.mirror.Ledger().Resume(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cursorResponse{Cursor: cursor, Resume: rp.Cursor, ResumeSince: rp.Since})
}
