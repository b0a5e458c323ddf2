package api

import (
	"net/http"

	"github.com/xraph/mirror/queue"
)

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	opts := queue.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", defaultLimit),
		Kind:   queue.Kind(queryParam(r, "kind")),
	}
	if s := queryParam(r, "state"); s != "" {
		state := queue.State(s)
		opts.State = &state
	}

	tasks, err := h.mirror.Engine().List(r.Context(), opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	t, err := h.mirror.Resync(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, t)
}
