// Package memory provides an in-memory Store for tests and single-process
// deployments that can afford to lose state on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	mirrorstore "github.com/xraph/mirror/store"
	"github.com/xraph/mirror/user"
)

// compile-time interface check.
var _ mirrorstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Records are copied
// on the way in and out, so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	entries    map[string]*ledger.Entry // keyed by provider event id
	ledgerSeq  int64
	users      map[string]*user.User // keyed by subject id
	tasks      map[string]*queue.Task
	taskSeq    int64
	dlqEntries map[string]*dlq.Entry

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entries:    make(map[string]*ledger.Entry),
		users:      make(map[string]*user.User),
		tasks:      make(map[string]*queue.Task),
		dlqEntries: make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return mirror.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// ledger.Store
// ──────────────────────────────────────────────────

// AppendEntry inserts e and assigns the next sequence number.
func (s *Store) AppendEntry(_ context.Context, e *ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.EventID]; ok {
		return ledger.ErrDuplicate
	}
	s.ledgerSeq++
	e.Seq = s.ledgerSeq
	cp := *e
	s.entries[e.EventID] = &cp
	return nil
}

// GetEntry returns the entry for eventID.
func (s *Store) GetEntry(_ context.Context, eventID string) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[eventID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// LatestEntry returns the entry with the highest sequence number, optionally
// restricted to state.
func (s *Store) LatestEntry(_ context.Context, state ledger.State) (*ledger.Entry, error) {
	return s.edgeEntry(state, func(a, b int64) bool { return a > b })
}

// OldestEntry returns the entry with the lowest sequence number, optionally
// restricted to state.
func (s *Store) OldestEntry(_ context.Context, state ledger.State) (*ledger.Entry, error) {
	return s.edgeEntry(state, func(a, b int64) bool { return a < b })
}

func (s *Store) edgeEntry(state ledger.State, better func(a, b int64) bool) (*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *ledger.Entry
	for _, e := range s.entries {
		if state != "" && e.State != state {
			continue
		}
		if found == nil || better(e.Seq, found.Seq) {
			found = e
		}
	}
	if found == nil {
		return nil, ledger.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

// SetEntryState moves an entry to state.
func (s *Store) SetEntryState(_ context.Context, eventID string, state ledger.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[eventID]
	if !ok {
		return ledger.ErrNotFound
	}
	e.State = state
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// ListEntries returns entries newest first.
func (s *Store) ListEntries(_ context.Context, opts ledger.ListOpts) ([]*ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ledger.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if opts.EventType != "" && e.EventType != opts.EventType {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq > result[j].Seq })
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountEntries returns the number of entries.
func (s *Store) CountEntries(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// ──────────────────────────────────────────────────
// user.Store
// ──────────────────────────────────────────────────

// CreateUser inserts u.
func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return user.ErrExists
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

// GetUser returns the user with subjectID.
func (s *Store) GetUser(_ context.Context, subjectID string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[subjectID]
	if !ok {
		return nil, user.ErrNotFound
	}
	return copyUser(u), nil
}

// UpdateUser replaces a stored user.
func (s *Store) UpdateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return user.ErrNotFound
	}
	s.users[u.ID] = copyUser(u)
	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[subjectID]; !ok {
		return user.ErrNotFound
	}
	delete(s.users, subjectID)
	return nil
}

// ListUsers returns users ordered by subject id.
func (s *Store) ListUsers(_ context.Context, opts user.ListOpts) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*user.User, 0, len(s.users))
	for _, u := range s.users {
		if opts.Email != "" && !strings.EqualFold(u.Email, opts.Email) {
			continue
		}
		result = append(result, copyUser(u))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func copyUser(u *user.User) *user.User {
	cp := *u
	if u.Metadata != nil {
		cp.Metadata = make(map[string]string, len(u.Metadata))
		for k, v := range u.Metadata {
			cp.Metadata[k] = v
		}
	}
	if u.LastSignInAt != nil {
		t := *u.LastSignInAt
		cp.LastSignInAt = &t
	}
	return &cp
}

// ──────────────────────────────────────────────────
// queue.Store
// ──────────────────────────────────────────────────

// EnqueueTask records t and assigns the next sequence number.
func (s *Store) EnqueueTask(_ context.Context, t *queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.taskSeq++
	t.Seq = s.taskSeq
	cp := *t
	s.tasks[t.ID.String()] = &cp
	return nil
}

// NextTask returns the open task with the lowest sequence number.
func (s *Store) NextTask(_ context.Context) (*queue.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var head *queue.Task
	for _, t := range s.tasks {
		if !t.Open() {
			continue
		}
		if head == nil || t.Seq < head.Seq {
			head = t
		}
	}
	if head == nil {
		return nil, queue.ErrEmpty
	}
	cp := *head
	return &cp, nil
}

// UpdateTask replaces a stored task.
func (s *Store) UpdateTask(_ context.Context, t *queue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.ID.String()
	if _, ok := s.tasks[key]; !ok {
		return queue.ErrTaskNotFound
	}
	cp := *t
	cp.UpdatedAt = time.Now().UTC()
	s.tasks[key] = &cp
	return nil
}

// GetTask returns a task by ID.
func (s *Store) GetTask(_ context.Context, taskID id.ID) (*queue.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID.String()]
	if !ok {
		return nil, queue.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTasks returns tasks newest first.
func (s *Store) ListTasks(_ context.Context, opts queue.ListOpts) ([]*queue.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*queue.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if opts.State != nil && t.State != *opts.State {
			continue
		}
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq > result[j].Seq })
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountPending returns the number of open tasks.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.tasks {
		if t.Open() {
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// Push records a dead-lettered task.
func (s *Store) Push(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.dlqEntries[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns entries, newest failure first.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		if opts.From != nil && e.FailedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.FailedAt.After(*opts.To) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FailedAt.After(result[j].FailedAt) })
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// GetDLQ returns an entry by ID.
func (s *Store) GetDLQ(_ context.Context, dlqID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[dlqID.String()]
	if !ok {
		return nil, dlq.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// DeleteDLQ removes an entry.
func (s *Store) DeleteDLQ(_ context.Context, dlqID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dlqID.String()
	if _, ok := s.dlqEntries[key]; !ok {
		return dlq.ErrNotFound
	}
	delete(s.dlqEntries, key)
	return nil
}

// Purge deletes entries that failed before the threshold.
func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, e := range s.dlqEntries {
		if e.FailedAt.Before(before) {
			delete(s.dlqEntries, key)
			n++
		}
	}
	return n, nil
}

// CountDLQ returns the number of entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.dlqEntries)), nil
}

// applyPagination applies offset and limit to a sorted slice.
func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset >= len(items) {
		return []*T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
