package mirror

import (
	"errors"

	"github.com/xraph/mirror/action"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/signature"
	"github.com/xraph/mirror/user"
)

// Sentinel errors returned by Mirror operations. Errors owned by a
// subpackage are re-exported here so callers can match them without
// importing it.
var (
	// ErrNoStore is returned when a Mirror is created without a store.
	ErrNoStore = errors.New("mirror: store is required")

	// ErrNoProvider is returned when a Mirror has neither a provider nor an
	// API key to build one from.
	ErrNoProvider = errors.New("mirror: provider is required")

	// ErrMissingConfig is returned when required settings are absent. The
	// wrapping error names every missing variable.
	ErrMissingConfig = errors.New("mirror: missing configuration")

	// ErrStoreClosed is returned when a store operation is attempted after
	// the store is closed.
	ErrStoreClosed = errors.New("mirror: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("mirror: migration failed")

	// ErrActionsDisabled is returned for action requests when no action
	// secret or no action handler is configured.
	ErrActionsDisabled = errors.New("mirror: actions are not enabled")

	ErrSignatureMissing = signature.ErrMissing
	ErrSignatureInvalid = signature.ErrInvalid
	ErrMalformedPayload = signature.ErrMalformedPayload
	ErrMalformedAction  = action.ErrMalformed

	ErrUserNotFound        = user.ErrNotFound
	ErrLedgerEntryNotFound = ledger.ErrNotFound
	ErrDuplicateEvent      = ledger.ErrDuplicate
	ErrTaskFailed          = queue.ErrTaskFailed
	ErrTaskNotFound        = queue.ErrTaskNotFound
	ErrDLQNotFound         = dlq.ErrNotFound
)
