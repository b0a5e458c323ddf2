// Package store defines the composite Store interface for mirror persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so one backend serves the ledger, the user mirror, the
// admission queue and the dead letter queue.
package store

import (
	"context"

	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/user"
)

// Store is the aggregate persistence interface.
type Store interface {
	ledger.Store
	user.Store
	queue.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
