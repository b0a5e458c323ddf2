package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	mirrorstore "github.com/xraph/mirror/store"
	"github.com/xraph/mirror/user"
)

// compile-time interface check
var _ mirrorstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("mirror/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("mirror/postgres: %w: %w", mirror.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Ledger Store ====================

func (s *Store) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	// ON CONFLICT keeps the check-and-insert atomic across processes.
	var models []ledgerEntryModel
	err := s.pg.NewRaw(`
		INSERT INTO mirror_ledger (id, event_id, event_type, cursor_updated_at, event_created_at, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING *
	`, e.ID.String(), e.EventID, e.EventType, e.CursorUpdatedAt, e.EventCreatedAt, string(e.State), e.CreatedAt, e.UpdatedAt).
		Scan(ctx, &models)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return ledger.ErrDuplicate
	}
	e.Seq = models[0].Seq
	return nil
}

func (s *Store) GetEntry(ctx context.Context, eventID string) (*ledger.Entry, error) {
	m := new(ledgerEntryModel)
	err := s.pg.NewSelect(m).
		Where("event_id = $1", eventID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	return fromLedgerEntryModel(m)
}

func (s *Store) LatestEntry(ctx context.Context, state ledger.State) (*ledger.Entry, error) {
	return s.edgeEntry(ctx, state, "seq DESC")
}

func (s *Store) OldestEntry(ctx context.Context, state ledger.State) (*ledger.Entry, error) {
	return s.edgeEntry(ctx, state, "seq ASC")
}

func (s *Store) edgeEntry(ctx context.Context, state ledger.State, order string) (*ledger.Entry, error) {
	m := new(ledgerEntryModel)
	q := s.pg.NewSelect(m)
	if state != "" {
		q = q.Where("state = $1", string(state))
	}
	err := q.OrderExpr(order).Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, ledger.ErrNotFound
		}
		return nil, err
	}
	return fromLedgerEntryModel(m)
}

func (s *Store) SetEntryState(ctx context.Context, eventID string, state ledger.State) error {
	res, err := s.pg.NewUpdate((*ledgerEntryModel)(nil)).
		Set("state = $1", string(state)).
		Set("updated_at = $2", time.Now().UTC()).
		Where("event_id = $3", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	var models []ledgerEntryModel
	q := s.pg.NewSelect(&models)
	if opts.EventType != "" {
		q = q.Where("event_type = $1", opts.EventType)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*ledger.Entry, len(models))
	for i := range models {
		e, err := fromLedgerEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) CountEntries(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*ledgerEntryModel)(nil)).Count(ctx)
}

// ==================== User Store ====================

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	res, err := s.pg.NewInsert(toUserModel(u)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return user.ErrExists
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, subjectID string) (*user.User, error) {
	m := new(userModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subjectID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return fromUserModel(m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *user.User) error {
	res, err := s.pg.NewUpdate(toUserModel(u)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, subjectID string) error {
	res, err := s.pg.NewDelete((*userModel)(nil)).
		Where("id = $1", subjectID).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, opts user.ListOpts) ([]*user.User, error) {
	var models []userModel
	q := s.pg.NewSelect(&models)
	if opts.Email != "" {
		q = q.Where("LOWER(email) = LOWER($1)", opts.Email)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*user.User, len(models))
	for i := range models {
		result[i] = fromUserModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*userModel)(nil)).Count(ctx)
}

// ==================== Queue Store ====================

func (s *Store) EnqueueTask(ctx context.Context, t *queue.Task) error {
	m, err := toTaskModel(t)
	if err != nil {
		return err
	}
	var models []taskModel
	err = s.pg.NewRaw(`
		INSERT INTO mirror_tasks (id, kind, payload, state, attempt_count, max_attempts,
			next_attempt_at, last_error, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING *
	`, m.ID, m.Kind, m.Payload, m.State, m.AttemptCount, m.MaxAttempts,
		m.NextAttemptAt, m.LastError, m.CompletedAt, m.CreatedAt, m.UpdatedAt).
		Scan(ctx, &models)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return fmt.Errorf("mirror/postgres: enqueue task %s: no row returned", m.ID)
	}
	t.Seq = models[0].Seq
	return nil
}

func (s *Store) NextTask(ctx context.Context) (*queue.Task, error) {
	m := new(taskModel)
	err := s.pg.NewSelect(m).
		Where("state IN ($1, $2)", string(queue.StatePending), string(queue.StateRunning)).
		OrderExpr("seq ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, queue.ErrEmpty
		}
		return nil, err
	}
	return fromTaskModel(m)
}

func (s *Store) UpdateTask(ctx context.Context, t *queue.Task) error {
	m, err := toTaskModel(t)
	if err != nil {
		return err
	}
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return queue.ErrTaskNotFound
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID id.ID) (*queue.Task, error) {
	m := new(taskModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", taskID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, queue.ErrTaskNotFound
		}
		return nil, err
	}
	return fromTaskModel(m)
}

func (s *Store) ListTasks(ctx context.Context, opts queue.ListOpts) ([]*queue.Task, error) {
	var models []taskModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.State != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(*opts.State))
	}
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("seq DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*queue.Task, len(models))
	for i := range models {
		t, err := fromTaskModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*taskModel)(nil)).
		Where("state IN ($1, $2)", string(queue.StatePending), string(queue.StateRunning)).
		Count(ctx)
}

// ==================== DLQ Store ====================

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m, err := toDLQEntryModel(entry)
	if err != nil {
		return err
	}
	_, err = s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []dlqEntryModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("failed_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("failed_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("failed_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*dlq.Entry, len(models))
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = entry
	}
	return result, nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	m := new(dlqEntryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", dlqID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dlq.ErrNotFound
		}
		return nil, err
	}
	return fromDLQEntryModel(m)
}

func (s *Store) DeleteDLQ(ctx context.Context, dlqID id.ID) error {
	res, err := s.pg.NewDelete((*dlqEntryModel)(nil)).
		Where("id = $1", dlqID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return dlq.ErrNotFound
	}
	return nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*dlqEntryModel)(nil)).
		Where("failed_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*dlqEntryModel)(nil)).Count(ctx)
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
