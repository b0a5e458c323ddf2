package event_test

import (
	"testing"
	"time"

	"github.com/xraph/mirror/event"
)

func TestDecode(t *testing.T) {
	raw := []byte(`{
		"id": "event_01",
		"event": "user.updated",
		"data": {"object": "user", "id": "user_01", "updated_at": "2024-05-01T10:00:00.123Z"},
		"created_at": "2024-05-01T10:00:01.000Z"
	}`)

	evt, err := event.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if evt.ID != "event_01" || evt.Type != event.TypeUserUpdated {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.SubjectID() != "user_01" {
		t.Fatalf("SubjectID = %q", evt.SubjectID())
	}

	got, ok := evt.UpdatedAt()
	if !ok {
		t.Fatal("UpdatedAt should be present")
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 123_000_000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("UpdatedAt = %v, want %v", got, want)
	}
}

func TestDecodeRejectsIncompleteEvents(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"event": "user.created", "data": {}}`,
		`{"id": "event_01", "data": {}}`,
	} {
		if _, err := event.Decode([]byte(raw)); err == nil {
			t.Errorf("Decode(%s) should fail", raw)
		}
	}
}

func TestUpdatedAtAbsentOrInvalid(t *testing.T) {
	evt := &event.Event{Data: map[string]any{"id": "user_01"}}
	if _, ok := evt.UpdatedAt(); ok {
		t.Fatal("absent updated_at should report false")
	}

	evt.Data["updated_at"] = "yesterday"
	if _, ok := evt.UpdatedAt(); ok {
		t.Fatal("unparseable updated_at should report false")
	}
}

func TestIsUserType(t *testing.T) {
	for _, typ := range event.DefaultTypes() {
		if !event.IsUserType(typ) {
			t.Errorf("%s should be a user type", typ)
		}
	}
	if event.IsUserType("organization.created") {
		t.Error("organization.created is not a user type")
	}
}
