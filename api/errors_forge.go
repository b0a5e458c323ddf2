package api

import (
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/user"
)

// mapError converts mirror sentinel errors to Forge HTTP errors.
func mapError(err error) error {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, queue.ErrTaskNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, dlq.ErrNotFound):
		return forge.NotFound(err.Error())
	case errors.Is(err, mirror.ErrStoreClosed):
		return forge.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, mirror.ErrMigrationFailed):
		return forge.InternalError(err)
	default:
		return forge.InternalError(err)
	}
}
