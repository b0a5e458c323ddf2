package api

import (
	"net/http"

	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/queue"
)

func (h *Handler) listDLQ(w http.ResponseWriter, r *http.Request) {
	opts := dlq.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", defaultLimit),
		Kind:   queue.Kind(queryParam(r, "kind")),
	}

	entries, err := h.mirror.DLQ().List(r.Context(), opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) replayDLQ(w http.ResponseWriter, r *http.Request) {
	dlqID, err := id.ParseDLQID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid DLQ ID")
		return
	}

	t, err := h.mirror.DLQ().Replay(r.Context(), dlqID, h.mirror.Engine())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, t)
}

func (h *Handler) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	before, ok, err := queryTime(r, "before")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid 'before' time format (use RFC3339)")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "before query parameter is required")
		return
	}

	n, err := h.mirror.DLQ().Purge(r.Context(), before)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}
