package catchup_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/mirror/apply"
	"github.com/xraph/mirror/catalog"
	"github.com/xraph/mirror/catchup"
	"github.com/xraph/mirror/event"
	"github.com/xraph/mirror/provider/providertest"
)

type recordingApplier struct {
	applied []string
	failOn  string
}

func (r *recordingApplier) Apply(_ context.Context, evt *event.Event) (apply.Outcome, error) {
	if evt.ID == r.failOn {
		return "", errors.New("store unavailable")
	}
	r.applied = append(r.applied, evt.ID)
	return apply.PassedThrough, nil
}

func userEvents(n int, createdAt time.Time) []*event.Event {
	out := make([]*event.Event, n)
	for i := range out {
		out[i] = &event.Event{
			ID:        fmt.Sprintf("event_%02d", i+1),
			Type:      event.TypeUserCreated,
			CreatedAt: createdAt,
			Data:      map[string]any{"id": fmt.Sprintf("user_%02d", i+1)},
		}
	}
	return out
}

func TestRunPaginatesFromCursor(t *testing.T) {
	fake := providertest.New()
	fake.SetPageSize(2)
	fake.Add(userEvents(5, time.Now())...)

	app := &recordingApplier{}
	syncer := catchup.New(fake, app, catalog.New(), catchup.Config{}, nil)

	res, err := syncer.Run(context.Background(), "event_01")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"event_02", "event_03", "event_04", "event_05"}
	if fmt.Sprint(app.applied) != fmt.Sprint(want) {
		t.Fatalf("applied %v, want %v", app.applied, want)
	}
	if res.Pages != 2 || res.Events != 4 || res.Cursor != "event_05" {
		t.Fatalf("result = %+v", res)
	}

	calls := fake.Calls()
	if calls[0].After != "event_01" || calls[0].RangeStart != nil {
		t.Fatalf("first call = %+v", calls[0])
	}
	if calls[1].After != "event_03" {
		t.Fatalf("second call after = %q", calls[1].After)
	}
	if len(calls[0].Types) != 3 {
		t.Fatalf("types = %v", calls[0].Types)
	}
}

func TestColdStartUsesHorizon(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	fake := providertest.New()
	fake.SetPageSize(1)
	old := userEvents(1, now.Add(-time.Hour))
	old[0].ID = "event_old"
	fake.Add(old...)
	fake.Add(userEvents(2, now.Add(-time.Minute))...)

	app := &recordingApplier{}
	syncer := catchup.New(fake, app, catalog.New(), catchup.Config{Now: func() time.Time { return now }}, nil)

	if _, err := syncer.Run(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	if fmt.Sprint(app.applied) != "[event_01 event_02]" {
		t.Fatalf("applied %v", app.applied)
	}

	calls := fake.Calls()
	if calls[0].RangeStart == nil || !calls[0].RangeStart.Equal(now.Add(-5*time.Minute)) {
		t.Fatalf("first call range start = %v", calls[0].RangeStart)
	}
	for _, c := range calls[1:] {
		if c.RangeStart != nil {
			t.Fatalf("range start sent on a later page: %+v", c)
		}
	}
}

func TestRunSinceStartsAtCreationTime(t *testing.T) {
	since := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	fake := providertest.New()
	fake.SetPageSize(2)
	old := userEvents(1, since.Add(-time.Minute))
	old[0].ID = "event_old"
	fake.Add(old...)
	fake.Add(userEvents(3, since)...)

	app := &recordingApplier{}
	syncer := catchup.New(fake, app, catalog.New(), catchup.Config{}, nil)

	res, err := syncer.RunSince(context.Background(), since)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(app.applied) != "[event_01 event_02 event_03]" {
		t.Fatalf("applied %v", app.applied)
	}
	if res.Cursor != "event_03" {
		t.Fatalf("cursor = %q", res.Cursor)
	}

	calls := fake.Calls()
	if calls[0].After != "" || calls[0].RangeStart == nil || !calls[0].RangeStart.Equal(since) {
		t.Fatalf("first call = %+v", calls[0])
	}
	if len(calls) < 2 || calls[1].After != "event_02" || calls[1].RangeStart != nil {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestRunRequestsAdditionalTypes(t *testing.T) {
	fake := providertest.New()
	fake.Add(&event.Event{ID: "event_org", Type: "organization.created", Data: map[string]any{"id": "org_1"}})
	fake.Add(&event.Event{ID: "event_dir", Type: "dsync.user.created", Data: map[string]any{"id": "dsu_1"}})

	app := &recordingApplier{}
	syncer := catchup.New(fake, app, catalog.New("organization.created"), catchup.Config{}, nil)

	if _, err := syncer.Run(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(app.applied) != "[event_org]" {
		t.Fatalf("applied %v", app.applied)
	}
}

func TestProviderErrorAborts(t *testing.T) {
	fake := providertest.New()
	fake.SetPageSize(2)
	fake.Add(userEvents(4, time.Now())...)

	app := &recordingApplier{}
	syncer := catchup.New(fake, app, catalog.New(), catchup.Config{}, nil)

	fake.FailNext(errors.New("provider unavailable"))
	res, err := syncer.Run(context.Background(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Cursor != "" || res.Events != 0 {
		t.Fatalf("result after failed first page = %+v", res)
	}

	app2 := &recordingApplier{failOn: "event_03"}
	syncer = catchup.New(fake, app2, catalog.New(), catchup.Config{}, nil)
	res, err = syncer.Run(context.Background(), "")
	if err == nil {
		t.Fatal("expected apply error")
	}
	if res.Cursor != "event_02" || fmt.Sprint(app2.applied) != "[event_01 event_02]" {
		t.Fatalf("result = %+v applied = %v", res, app2.applied)
	}
}

func TestEmptyProvider(t *testing.T) {
	fake := providertest.New()
	syncer := catchup.New(fake, &recordingApplier{}, catalog.New(), catchup.Config{}, nil)

	res, err := syncer.Run(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pages != 1 || res.Events != 0 {
		t.Fatalf("result = %+v", res)
	}
}
