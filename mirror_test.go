package mirror_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/event"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/observability"
	"github.com/xraph/mirror/provider"
	"github.com/xraph/mirror/provider/providertest"
	"github.com/xraph/mirror/signature"
	"github.com/xraph/mirror/store"
	"github.com/xraph/mirror/store/memory"
	"github.com/xraph/mirror/user"
)

const testSecret = "whsec_test_secret"

func ctx() context.Context { return context.Background() }

// hookRecorder collects downstream hook calls.
type hookRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (h *hookRecorder) handle(_ context.Context, eventType string, data map[string]any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, _ := data["id"].(string)
	h.calls = append(h.calls, eventType+":"+id)
	return nil
}

func (h *hookRecorder) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func setupWith(t *testing.T, s store.Store, opts ...mirror.Option) (*mirror.Mirror, *providertest.Fake, *hookRecorder) {
	t.Helper()
	fake := providertest.New()
	base := []mirror.Option{
		mirror.WithStore(s),
		mirror.WithProvider(fake),
		mirror.WithClientID("client_123"),
		mirror.WithWebhookSecret(testSecret),
		mirror.WithMaxAttempts(3),
		mirror.WithRetrySchedule([]time.Duration{time.Millisecond}),
		mirror.WithPollInterval(10 * time.Millisecond),
	}
	m, err := mirror.New(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	rec := &hookRecorder{}
	m.OnEvent(rec.handle)
	return m, fake, rec
}

func setup(t *testing.T, opts ...mirror.Option) (*mirror.Mirror, *memory.Store, *providertest.Fake, *hookRecorder) {
	t.Helper()
	s := memory.New()
	m, fake, rec := setupWith(t, s, opts...)
	return m, s, fake, rec
}

func userCreated(evtID, userID, updatedAt string) *event.Event {
	return &event.Event{ID: evtID, Type: event.TypeUserCreated, Data: map[string]any{
		"object":     "user",
		"id":         userID,
		"email":      userID + "@example.com",
		"first_name": "Initial",
		"created_at": updatedAt,
		"updated_at": updatedAt,
	}}
}

func userUpdated(evtID, userID, firstName, updatedAt string) *event.Event {
	return &event.Event{ID: evtID, Type: event.TypeUserUpdated, Data: map[string]any{
		"object":     "user",
		"id":         userID,
		"first_name": firstName,
		"updated_at": updatedAt,
	}}
}

func userDeleted(evtID, userID string) *event.Event {
	return &event.Event{ID: evtID, Type: event.TypeUserDeleted, Data: map[string]any{"id": userID}}
}

func signedBody(t *testing.T, evt *event.Event) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(evt)
	if err != nil {
		t.Fatal(err)
	}
	return body, signature.Header(body, testSecret, time.Now())
}

// deliver posts a signed webhook for evt without running the queue.
func deliver(t *testing.T, m *mirror.Mirror, evt *event.Event) {
	t.Helper()
	body, header := signedBody(t, evt)
	if err := m.HandleWebhook(ctx(), body, header); err != nil {
		t.Fatalf("webhook %s: %v", evt.ID, err)
	}
}

func drain(t *testing.T, m *mirror.Mirror) {
	t.Helper()
	c, cancel := context.WithTimeout(ctx(), 5*time.Second)
	defer cancel()
	if err := m.Engine().Drain(c); err != nil {
		t.Fatal(err)
	}
}

func assertCalls(t *testing.T, rec *hookRecorder, want ...string) {
	t.Helper()
	got := rec.snapshot()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("hook calls = %v, want %v", got, want)
	}
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNewRequiresStore(t *testing.T) {
	if _, err := mirror.New(); !errors.Is(err, mirror.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNewListsMissingConfig(t *testing.T) {
	t.Setenv(mirror.EnvClientID, "")
	t.Setenv(mirror.EnvAPIKey, "")
	t.Setenv(mirror.EnvWebhookSecret, "")

	_, err := mirror.New(mirror.WithStore(memory.New()))
	if !errors.Is(err, mirror.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
	for _, name := range []string{"WORKOS_CLIENT_ID", "WORKOS_API_KEY", "WORKOS_WEBHOOK_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error %q does not name %s", err, name)
		}
	}
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv(mirror.EnvClientID, "client_env")
	t.Setenv(mirror.EnvAPIKey, "sk_env")
	t.Setenv(mirror.EnvWebhookSecret, "secret_env")
	t.Setenv(mirror.EnvActionSecret, "action_env")

	m, err := mirror.New(mirror.WithStore(memory.New()), mirror.WithActionSecret("action_opt"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := m.Config()
	if cfg.ClientID != "client_env" || cfg.APIKey != "sk_env" || cfg.WebhookSecret != "secret_env" {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.WebhookPath != mirror.DefaultWebhookPath || cfg.ActionPath != mirror.DefaultActionPath {
		t.Fatalf("paths = %q %q", cfg.WebhookPath, cfg.ActionPath)
	}
	// An explicit secret wins over the environment.
	if cfg.ActionSecret != "action_opt" {
		t.Fatalf("action secret = %q", cfg.ActionSecret)
	}
}

func TestAuthProviders(t *testing.T) {
	m, _, _, _ := setup(t)

	providers := m.AuthProviders()
	if len(providers) != 2 {
		t.Fatalf("got %d providers", len(providers))
	}
	if providers[0].Issuer != "https://api.workos.com/" || providers[0].ApplicationID != "client_123" {
		t.Fatalf("sso provider = %+v", providers[0])
	}
	if providers[1].Issuer != "https://api.workos.com/user_management/client_123" {
		t.Fatalf("user management issuer = %q", providers[1].Issuer)
	}
	for _, p := range providers {
		if p.JWKS != "https://api.workos.com/sso/jwks/client_123" || p.Algorithm != "RS256" {
			t.Fatalf("provider = %+v", p)
		}
	}
}

// ──────────────────────────────────────────────────
// Pipeline
// ──────────────────────────────────────────────────

func TestWebhookAppliesThroughCatchUp(t *testing.T) {
	m, _, fake, rec := setup(t)
	evt := userCreated("event_1", "user_1", "2024-01-01T10:00:00.000Z")
	fake.Add(evt)

	deliver(t, m, evt)
	drain(t, m)

	u, err := m.GetUser(ctx(), "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "user_1@example.com" {
		t.Fatalf("user = %+v", u)
	}

	cursor, _ := m.Cursor(ctx())
	if cursor != "event_1" {
		t.Fatalf("cursor = %q", cursor)
	}
	assertCalls(t, rec, "user.created:user_1")
}

func TestWebhookBodyIsNotApplied(t *testing.T) {
	m, s, fake, _ := setup(t)
	fake.Add(userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))

	// The webhook body claims a different email; the provider's copy wins.
	forged := userCreated("event_1", "user_1", "2024-01-01T10:00:00Z")
	forged.Data["email"] = "forged@example.com"
	deliver(t, m, forged)

	// Nothing changes before the queue runs.
	if n, _ := s.CountUsers(ctx()); n != 0 {
		t.Fatalf("webhook mutated state directly: %d users", n)
	}

	drain(t, m)
	u, _ := m.GetUser(ctx(), "user_1")
	if u.Email != "user_1@example.com" {
		t.Fatalf("email = %q", u.Email)
	}
}

func TestIdempotency(t *testing.T) {
	m, _, fake, rec := setup(t)
	evt := userCreated("event_1", "user_1", "2024-01-01T10:00:00Z")
	fake.Add(evt)

	for range 3 {
		deliver(t, m, evt)
	}
	drain(t, m)
	deliver(t, m, evt)
	drain(t, m)

	assertCalls(t, rec, "user.created:user_1")
	n, _ := m.Ledger().Count(ctx())
	if n != 1 {
		t.Fatalf("ledger entries = %d, want 1", n)
	}
}

func TestGapClosure(t *testing.T) {
	m, _, fake, rec := setup(t)
	fake.Add(
		userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"),
		userCreated("event_2", "user_2", "2024-01-01T10:00:01Z"),
		userUpdated("event_3", "user_1", "Renamed", "2024-01-01T10:00:02Z"),
	)

	// Only the last webhook arrives.
	deliver(t, m, userUpdated("event_3", "user_1", "Renamed", "2024-01-01T10:00:02Z"))
	drain(t, m)

	assertCalls(t, rec, "user.created:user_1", "user.created:user_2", "user.updated:user_1")
	u, _ := m.GetUser(ctx(), "user_1")
	if u.FirstName != "Renamed" {
		t.Fatalf("first name = %q", u.FirstName)
	}

	// Later events are picked up from the cursor, not the horizon.
	fake.Add(userDeleted("event_4", "user_2"))
	deliver(t, m, userDeleted("event_4", "user_2"))
	drain(t, m)

	if _, err := m.GetUser(ctx(), "user_2"); !errors.Is(err, mirror.ErrUserNotFound) {
		t.Fatalf("expected user_2 deleted, got %v", err)
	}
	cursor, _ := m.Ledger().Cursor(ctx())
	if cursor != "event_4" {
		t.Fatalf("cursor = %q", cursor)
	}
}

func TestOutOfOrderCreateAndUpdate(t *testing.T) {
	m, _, fake, rec := setup(t)
	e1 := userCreated("event_1", "user_1", "2024-01-01T10:00:00Z")
	e2 := userUpdated("event_2", "user_1", "Updated", "2024-01-01T11:00:00Z")
	fake.Add(e1, e2)

	deliver(t, m, e2)
	deliver(t, m, e1)
	drain(t, m)

	u, err := m.GetUser(ctx(), "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if u.FirstName != "Updated" {
		t.Fatalf("first name = %q, want Updated", u.FirstName)
	}
	assertCalls(t, rec, "user.created:user_1", "user.updated:user_1")
}

func TestMonotonicUpdates(t *testing.T) {
	m, _, fake, _ := setup(t)
	fake.Add(
		userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"),
		userUpdated("event_2", "user_1", "Newest", "2024-01-01T12:00:00Z"),
		userUpdated("event_3", "user_1", "Older", "2024-01-01T11:00:00Z"),
		userUpdated("event_4", "user_1", "Tie", "2024-01-01T12:00:00Z"),
	)

	deliver(t, m, userUpdated("event_4", "user_1", "Tie", "2024-01-01T12:00:00Z"))
	drain(t, m)

	u, _ := m.GetUser(ctx(), "user_1")
	if u.FirstName != "Newest" {
		t.Fatalf("first name = %q, want Newest", u.FirstName)
	}
}

func TestDeleteUnknownUserIsNoOp(t *testing.T) {
	m, _, fake, rec := setup(t)
	fake.Add(userDeleted("event_1", "user_ghost"))

	deliver(t, m, userDeleted("event_1", "user_ghost"))
	drain(t, m)

	entry, err := m.Ledger().Get(ctx(), "event_1")
	if err != nil {
		t.Fatal(err)
	}
	if entry.State != ledger.StateDispatched {
		t.Fatalf("state = %s", entry.State)
	}
	assertCalls(t, rec, "user.deleted:user_ghost")

	n, _ := m.DLQ().Count(ctx())
	if n != 0 {
		t.Fatalf("dlq = %d, want 0", n)
	}
}

func TestColdStartHorizon(t *testing.T) {
	m, _, fake, rec := setup(t)

	old := userCreated("event_old", "user_old", "2024-01-01T10:00:00Z")
	old.CreatedAt = time.Now().Add(-time.Hour)
	fresh := userCreated("event_new", "user_new", "2024-01-01T10:00:00Z")
	fake.Add(old, fresh)

	deliver(t, m, fresh)
	drain(t, m)

	assertCalls(t, rec, "user.created:user_new")
	if _, err := m.GetUser(ctx(), "user_old"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("event older than the horizon was applied: %v", err)
	}
}

func TestAdditionalTypesPassThrough(t *testing.T) {
	m, s, fake, rec := setup(t, mirror.WithAdditionalEventTypes("organization.created"))
	org := &event.Event{ID: "event_1", Type: "organization.created", Data: map[string]any{"id": "org_1"}}
	fake.Add(org)

	deliver(t, m, org)
	drain(t, m)

	assertCalls(t, rec, "organization.created:org_1")
	if n, _ := s.CountUsers(ctx()); n != 0 {
		t.Fatalf("users = %d", n)
	}
}

func TestOnEventPatterns(t *testing.T) {
	m, _, fake, _ := setup(t)
	rec := &hookRecorder{}
	m.OnEvent(rec.handle, "user.deleted")

	fake.Add(userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"), userDeleted("event_2", "user_1"))
	deliver(t, m, userDeleted("event_2", "user_1"))
	drain(t, m)

	assertCalls(t, rec, "user.deleted:user_1")
}

// ──────────────────────────────────────────────────
// Failures
// ──────────────────────────────────────────────────

func TestTransientProviderErrorIsRetried(t *testing.T) {
	m, _, fake, rec := setup(t)
	fake.Add(userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))
	fake.FailNext(&provider.APIError{StatusCode: http.StatusServiceUnavailable})

	deliver(t, m, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))
	drain(t, m)

	assertCalls(t, rec, "user.created:user_1")
	if n, _ := m.DLQ().Count(ctx()); n != 0 {
		t.Fatalf("dlq = %d, want 0", n)
	}
}

func TestPermanentProviderErrorIsDeadLettered(t *testing.T) {
	m, _, fake, rec := setup(t)
	fake.Add(userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))
	fake.FailNext(&provider.APIError{StatusCode: http.StatusUnauthorized})

	deliver(t, m, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))
	drain(t, m)

	assertCalls(t, rec)
	entries, err := m.DLQ().List(ctx(), dlq.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].AttemptCount != 1 {
		t.Fatalf("dlq entries = %+v", entries)
	}

	// Replaying after the credentials are fixed applies the event.
	if _, err := m.DLQ().Replay(ctx(), entries[0].ID, m.Engine()); err != nil {
		t.Fatal(err)
	}
	drain(t, m)
	assertCalls(t, rec, "user.created:user_1")
}

func TestHookFailureIsRetriedWithoutReapplying(t *testing.T) {
	m, s, fake, _ := setup(t)
	fake.Add(userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))

	var calls atomic.Int32
	m.OnEvent(func(context.Context, string, map[string]any) error {
		if calls.Add(1) == 1 {
			return errors.New("downstream unavailable")
		}
		return nil
	})

	deliver(t, m, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))
	drain(t, m)

	if calls.Load() != 2 {
		t.Fatalf("hook calls = %d, want 2", calls.Load())
	}
	if n, _ := s.CountUsers(ctx()); n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}
	entry, _ := m.Ledger().Get(ctx(), "event_1")
	if entry.State != ledger.StateDispatched {
		t.Fatalf("state = %s", entry.State)
	}
}

func TestDeadLetteredHookIsRedispatchedByLaterCatchUp(t *testing.T) {
	m, _, fake, rec := setup(t)
	fake.Add(userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))

	var down atomic.Bool
	down.Store(true)
	m.OnEvent(func(c context.Context, eventType string, data map[string]any) error {
		if down.Load() {
			return errors.New("downstream unavailable")
		}
		return rec.handle(c, eventType, data)
	})

	deliver(t, m, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))
	drain(t, m)

	if n, _ := m.DLQ().Count(ctx()); n != 1 {
		t.Fatalf("dlq = %d, want 1", n)
	}
	entry, _ := m.Ledger().Get(ctx(), "event_1")
	if entry.State != ledger.StateApplied {
		t.Fatalf("state = %s, want applied", entry.State)
	}

	down.Store(false)
	fake.Add(userCreated("event_2", "user_2", "2024-01-01T11:00:00Z"))
	deliver(t, m, userCreated("event_2", "user_2", "2024-01-01T11:00:00Z"))
	drain(t, m)

	assertCalls(t, rec, "user.created:user_1", "user.created:user_2")
	for _, evtID := range []string{"event_1", "event_2"} {
		entry, err := m.Ledger().Get(ctx(), evtID)
		if err != nil {
			t.Fatal(err)
		}
		if entry.State != ledger.StateDispatched {
			t.Fatalf("%s state = %s, want dispatched", evtID, entry.State)
		}
	}
}

func TestResync(t *testing.T) {
	m, _, fake, rec := setup(t)
	fake.Add(userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))

	if _, err := m.Resync(ctx()); err != nil {
		t.Fatal(err)
	}
	drain(t, m)
	assertCalls(t, rec, "user.created:user_1")
}

// ──────────────────────────────────────────────────
// Concurrency
// ──────────────────────────────────────────────────

// countingStore flags overlapping writes to users or the ledger.
type countingStore struct {
	*memory.Store
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (c *countingStore) enter() func() {
	cur := c.inFlight.Add(1)
	for {
		prev := c.maxSeen.Load()
		if cur <= prev || c.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { c.inFlight.Add(-1) }
}

func (c *countingStore) CreateUser(ctx context.Context, u *user.User) error {
	defer c.enter()()
	return c.Store.CreateUser(ctx, u)
}

func (c *countingStore) UpdateUser(ctx context.Context, u *user.User) error {
	defer c.enter()()
	return c.Store.UpdateUser(ctx, u)
}

func (c *countingStore) DeleteUser(ctx context.Context, subjectID string) error {
	defer c.enter()()
	return c.Store.DeleteUser(ctx, subjectID)
}

func (c *countingStore) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	defer c.enter()()
	return c.Store.AppendEntry(ctx, e)
}

func TestNoConcurrentMutations(t *testing.T) {
	cs := &countingStore{Store: memory.New()}
	m, fake, _ := setupWith(t, cs)

	const n = 20
	events := make([]*event.Event, n)
	for i := range events {
		id := string(rune('a' + i))
		events[i] = userCreated("event_"+id, "user_"+id, "2024-01-01T10:00:00Z")
	}
	fake.Add(events...)

	m.Start(ctx())
	defer m.Stop(ctx())

	bodies := make([][]byte, n)
	headers := make([]string, n)
	for i, evt := range events {
		bodies[i], headers[i] = signedBody(t, evt)
	}

	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.HandleWebhook(ctx(), bodies[i], headers[i]); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for {
		pending, _ := m.Engine().Pending(ctx())
		users, _ := cs.CountUsers(ctx())
		if pending == 0 && users == n {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out: pending=%d users=%d", pending, users)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if cs.maxSeen.Load() != 1 {
		t.Fatalf("max concurrent mutations = %d, want 1", cs.maxSeen.Load())
	}
	if entries, _ := m.Ledger().Count(ctx()); entries != n {
		t.Fatalf("ledger entries = %d, want %d", entries, n)
	}
}

// ──────────────────────────────────────────────────
// Instrumentation
// ──────────────────────────────────────────────────

func TestMetricsFollowWebhookThroughCatchUp(t *testing.T) {
	metrics := observability.NewMetrics(gu.NewMetricsCollector("mirror-test"))
	m, _, fake, rec := setup(t,
		mirror.WithMetrics(metrics),
		mirror.WithTracer(observability.NewTracer()),
	)
	fake.Add(userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))

	deliver(t, m, userCreated("event_1", "user_1", "2024-01-01T10:00:00Z"))
	if v := metrics.PendingTasks.Value(); v != 1 {
		t.Fatalf("pending before drain = %v, want 1", v)
	}

	if err := m.HandleWebhook(ctx(), []byte(`{}`), "t=1,v1=bad"); err == nil {
		t.Fatal("expected forged webhook to be rejected")
	}
	drain(t, m)
	assertCalls(t, rec, "user.created:user_1")

	if v := metrics.WebhooksReceived.Value(); v != 2 {
		t.Fatalf("webhooks received = %v, want 2", v)
	}
	// One check task plus the catch-up it scheduled.
	if n := metrics.TaskLatency.Count(); n != 2 {
		t.Fatalf("task latency observations = %d, want 2", n)
	}
	if v := metrics.PendingTasks.Value(); v != 0 {
		t.Fatalf("pending after drain = %v, want 0", v)
	}
	if v := metrics.CatchUpPages.Value(); v != 1 {
		t.Fatalf("catch-up pages = %v, want 1", v)
	}
	if v := metrics.DLQSize.Value(); v != 0 {
		t.Fatalf("dlq size = %v, want 0", v)
	}
}
