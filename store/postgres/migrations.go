package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the mirror store.
// It can be registered with the grove extension for orchestrated migration
// management.
var Migrations = migrate.NewGroup("mirror")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_mirror_ledger",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mirror_ledger (
    id                TEXT PRIMARY KEY,
    seq               BIGSERIAL NOT NULL UNIQUE,
    event_id          TEXT NOT NULL UNIQUE,
    event_type        TEXT NOT NULL DEFAULT '',
    cursor_updated_at TIMESTAMPTZ,
    event_created_at  TIMESTAMPTZ,
    state             TEXT NOT NULL DEFAULT 'applied',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_mirror_ledger_state_seq ON mirror_ledger (state, seq DESC);
CREATE INDEX IF NOT EXISTS idx_mirror_ledger_event_type ON mirror_ledger (event_type);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS mirror_ledger`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_mirror_users",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mirror_users (
    id                  TEXT PRIMARY KEY,
    email               TEXT NOT NULL DEFAULT '',
    first_name          TEXT NOT NULL DEFAULT '',
    last_name           TEXT NOT NULL DEFAULT '',
    email_verified      BOOLEAN NOT NULL DEFAULT FALSE,
    profile_picture_url TEXT NOT NULL DEFAULT '',
    external_id         TEXT NOT NULL DEFAULT '',
    last_sign_in_at     TIMESTAMPTZ,
    metadata            JSONB,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mirror_users_email ON mirror_users (LOWER(email));
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS mirror_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_mirror_tasks",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mirror_tasks (
    id              TEXT PRIMARY KEY,
    seq             BIGSERIAL NOT NULL UNIQUE,
    kind            TEXT NOT NULL,
    payload         JSONB NOT NULL DEFAULT '{}',
    state           TEXT NOT NULL DEFAULT 'pending',
    attempt_count   INT NOT NULL DEFAULT 0,
    max_attempts    INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_error      TEXT NOT NULL DEFAULT '',
    completed_at    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_mirror_tasks_open ON mirror_tasks (seq)
    WHERE state IN ('pending', 'running');
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS mirror_tasks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_mirror_dlq",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS mirror_dlq (
    id            TEXT PRIMARY KEY,
    task_id       TEXT NOT NULL,
    kind          TEXT NOT NULL,
    payload       JSONB NOT NULL DEFAULT '{}',
    error         TEXT NOT NULL DEFAULT '',
    attempt_count INT NOT NULL DEFAULT 0,
    failed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_mirror_dlq_failed_at ON mirror_dlq (failed_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS mirror_dlq`)
				return err
			},
		},
	)
}
