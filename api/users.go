package api

import (
	"net/http"

	"github.com/xraph/mirror/user"
)

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	opts := user.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", defaultLimit),
		Email:  queryParam(r, "email"),
	}

	users, err := h.mirror.ListUsers(r.Context(), opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.mirror.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}
