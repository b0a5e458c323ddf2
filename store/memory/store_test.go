package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/user"
)

func ctx() context.Context { return context.Background() }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, mirror.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// ledger.Store
// ──────────────────────────────────────────────────

func newEntry(eventID string) *ledger.Entry {
	return &ledger.Entry{
		Entity:    entity.New(),
		ID:        id.NewLedgerEntryID(),
		EventID:   eventID,
		EventType: "user.created",
		State:     ledger.StateApplied,
	}
}

func TestLedgerAppendAssignsSeq(t *testing.T) {
	s := New()

	a, b := newEntry("event_a"), newEntry("event_b")
	if err := s.AppendEntry(ctx(), a); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendEntry(ctx(), b); err != nil {
		t.Fatal(err)
	}
	if a.Seq != 1 || b.Seq != 2 {
		t.Fatalf("seq = %d, %d; want 1, 2", a.Seq, b.Seq)
	}

	if err := s.AppendEntry(ctx(), newEntry("event_a")); !errors.Is(err, ledger.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	latest, err := s.LatestEntry(ctx(), "")
	if err != nil {
		t.Fatal(err)
	}
	if latest.EventID != "event_b" {
		t.Fatalf("latest = %q, want event_b", latest.EventID)
	}

	n, err := s.CountEntries(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestLedgerStateAndList(t *testing.T) {
	s := New()

	if _, err := s.LatestEntry(ctx(), ""); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty ledger, got %v", err)
	}

	for _, evtID := range []string{"event_1", "event_2", "event_3"} {
		if err := s.AppendEntry(ctx(), newEntry(evtID)); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SetEntryState(ctx(), "event_2", ledger.StateDispatched); err != nil {
		t.Fatal(err)
	}
	dispatched, err := s.LatestEntry(ctx(), ledger.StateDispatched)
	if err != nil {
		t.Fatal(err)
	}
	if dispatched.EventID != "event_2" {
		t.Fatalf("latest dispatched = %q, want event_2", dispatched.EventID)
	}
	oldest, err := s.OldestEntry(ctx(), ledger.StateApplied)
	if err != nil {
		t.Fatal(err)
	}
	if oldest.EventID != "event_1" {
		t.Fatalf("oldest applied = %q, want event_1", oldest.EventID)
	}
	if _, err := s.OldestEntry(ctx(), "bogus"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := s.GetEntry(ctx(), "event_2")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != ledger.StateDispatched {
		t.Fatalf("state = %q, want dispatched", got.State)
	}

	if err := s.SetEntryState(ctx(), "missing", ledger.StateDispatched); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := s.ListEntries(ctx(), ledger.ListOpts{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].EventID != "event_3" || list[1].EventID != "event_2" {
		t.Fatalf("unexpected page: %+v", list)
	}

	list, err = s.ListEntries(ctx(), ledger.ListOpts{Offset: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty page, got %d", len(list))
	}
}

// ──────────────────────────────────────────────────
// user.Store
// ──────────────────────────────────────────────────

func TestUserCRUD(t *testing.T) {
	s := New()

	u := &user.User{ID: "user_1", Email: "ada@example.com", Metadata: map[string]string{"team": "core"}}
	if err := s.CreateUser(ctx(), u); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateUser(ctx(), u); !errors.Is(err, user.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	u.Metadata["team"] = "changed"

	got, err := s.GetUser(ctx(), "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Metadata["team"] != "core" {
		t.Fatalf("metadata aliased: %v", got.Metadata)
	}

	got.FirstName = "Ada"
	if err := s.UpdateUser(ctx(), got); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetUser(ctx(), "user_1")
	if got.FirstName != "Ada" {
		t.Fatalf("first name = %q", got.FirstName)
	}

	if err := s.UpdateUser(ctx(), &user.User{ID: "user_x"}); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.DeleteUser(ctx(), "user_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetUser(ctx(), "user_1"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteUser(ctx(), "user_1"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListUsers(t *testing.T) {
	s := New()

	for _, u := range []*user.User{
		{ID: "user_c", Email: "c@example.com"},
		{ID: "user_a", Email: "a@example.com"},
		{ID: "user_b", Email: "B@example.com"},
	} {
		if err := s.CreateUser(ctx(), u); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListUsers(ctx(), user.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "user_a" || all[2].ID != "user_c" {
		t.Fatalf("unexpected order: %v", all)
	}

	byEmail, err := s.ListUsers(ctx(), user.ListOpts{Email: "b@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byEmail) != 1 || byEmail[0].ID != "user_b" {
		t.Fatalf("email filter returned %v", byEmail)
	}

	n, err := s.CountUsers(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

// ──────────────────────────────────────────────────
// queue.Store
// ──────────────────────────────────────────────────

func newTask(kind queue.Kind) *queue.Task {
	return &queue.Task{
		Entity:        entity.New(),
		ID:            id.NewTaskID(),
		Kind:          kind,
		State:         queue.StatePending,
		MaxAttempts:   3,
		NextAttemptAt: time.Now().UTC(),
	}
}

func TestNextTaskIsFIFO(t *testing.T) {
	s := New()

	if _, err := s.NextTask(ctx()); !errors.Is(err, queue.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	first, second := newTask(queue.KindCheck), newTask(queue.KindCatchUp)
	if err := s.EnqueueTask(ctx(), first); err != nil {
		t.Fatal(err)
	}
	if err := s.EnqueueTask(ctx(), second); err != nil {
		t.Fatal(err)
	}

	head, err := s.NextTask(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if head.ID != first.ID {
		t.Fatalf("head = %s, want %s", head.ID, first.ID)
	}

	// A running head keeps its place.
	head.State = queue.StateRunning
	if err := s.UpdateTask(ctx(), head); err != nil {
		t.Fatal(err)
	}
	head, _ = s.NextTask(ctx())
	if head.ID != first.ID {
		t.Fatalf("running head lost its place to %s", head.ID)
	}

	head.State = queue.StateDone
	if err := s.UpdateTask(ctx(), head); err != nil {
		t.Fatal(err)
	}
	head, _ = s.NextTask(ctx())
	if head.ID != second.ID {
		t.Fatalf("head = %s, want %s", head.ID, second.ID)
	}

	pending, err := s.CountPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 {
		t.Fatalf("pending = %d, want 1", pending)
	}
}

func TestListTasksFilters(t *testing.T) {
	s := New()

	check := newTask(queue.KindCheck)
	catchUp := newTask(queue.KindCatchUp)
	_ = s.EnqueueTask(ctx(), check)
	_ = s.EnqueueTask(ctx(), catchUp)

	byKind, err := s.ListTasks(ctx(), queue.ListOpts{Kind: queue.KindCatchUp})
	if err != nil {
		t.Fatal(err)
	}
	if len(byKind) != 1 || byKind[0].ID != catchUp.ID {
		t.Fatalf("kind filter returned %v", byKind)
	}

	done := queue.StateDone
	byState, err := s.ListTasks(ctx(), queue.ListOpts{State: &done})
	if err != nil {
		t.Fatal(err)
	}
	if len(byState) != 0 {
		t.Fatalf("expected no done tasks, got %d", len(byState))
	}

	if _, err := s.GetTask(ctx(), id.NewTaskID()); !errors.Is(err, queue.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if err := s.UpdateTask(ctx(), newTask(queue.KindCheck)); !errors.Is(err, queue.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

func TestDLQ(t *testing.T) {
	s := New()

	old := &dlq.Entry{
		Entity:   entity.New(),
		ID:       id.NewDLQID(),
		TaskID:   id.NewTaskID(),
		Kind:     queue.KindCheck,
		Error:    "boom",
		FailedAt: time.Now().Add(-2 * time.Hour).UTC(),
	}
	recent := &dlq.Entry{
		Entity:   entity.New(),
		ID:       id.NewDLQID(),
		TaskID:   id.NewTaskID(),
		Kind:     queue.KindCatchUp,
		Error:    "provider unavailable",
		FailedAt: time.Now().UTC(),
	}
	for _, e := range []*dlq.Entry{old, recent} {
		if err := s.Push(ctx(), e); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListDLQ(ctx(), dlq.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != recent.ID {
		t.Fatalf("expected newest first, got %v", list)
	}

	from := time.Now().Add(-time.Hour)
	list, _ = s.ListDLQ(ctx(), dlq.ListOpts{From: &from})
	if len(list) != 1 || list[0].ID != recent.ID {
		t.Fatalf("from filter returned %v", list)
	}

	purged, err := s.Purge(ctx(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	if err := s.DeleteDLQ(ctx(), recent.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetDLQ(ctx(), recent.ID); !errors.Is(err, dlq.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	n, _ := s.CountDLQ(ctx())
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}
