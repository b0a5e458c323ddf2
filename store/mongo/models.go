package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/internal/entity"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/user"
)

// --- Ledger models ---

type ledgerEntryModel struct {
	grove.BaseModel `grove:"table:mirror_ledger"`

	ID              string     `grove:"id,pk"             bson:"_id"`
	Seq             int64      `grove:"seq"               bson:"seq"`
	EventID         string     `grove:"event_id,unique"   bson:"event_id"`
	EventType       string     `grove:"event_type"        bson:"event_type"`
	CursorUpdatedAt *time.Time `grove:"cursor_updated_at" bson:"cursor_updated_at,omitempty"`
	EventCreatedAt  *time.Time `grove:"event_created_at"  bson:"event_created_at,omitempty"`
	State           string     `grove:"state"             bson:"state"`
	CreatedAt       time.Time  `grove:"created_at"        bson:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"        bson:"updated_at"`
}

func toLedgerEntryModel(e *ledger.Entry) *ledgerEntryModel {
	return &ledgerEntryModel{
		ID:              e.ID.String(),
		Seq:             e.Seq,
		EventID:         e.EventID,
		EventType:       e.EventType,
		CursorUpdatedAt: e.CursorUpdatedAt,
		EventCreatedAt:  e.EventCreatedAt,
		State:           string(e.State),
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func fromLedgerEntryModel(m *ledgerEntryModel) (*ledger.Entry, error) {
	entryID, err := id.ParseLedgerEntryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse ledger entry ID %q: %w", m.ID, err)
	}
	return &ledger.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:              entryID,
		Seq:             m.Seq,
		EventID:         m.EventID,
		EventType:       m.EventType,
		CursorUpdatedAt: m.CursorUpdatedAt,
		EventCreatedAt:  m.EventCreatedAt,
		State:           ledger.State(m.State),
	}, nil
}

// --- User models ---

type userModel struct {
	grove.BaseModel `grove:"table:mirror_users"`

	ID                string            `grove:"id,pk"               bson:"_id"`
	Email             string            `grove:"email"               bson:"email"`
	FirstName         string            `grove:"first_name"          bson:"first_name"`
	LastName          string            `grove:"last_name"           bson:"last_name"`
	EmailVerified     bool              `grove:"email_verified"      bson:"email_verified"`
	ProfilePictureURL string            `grove:"profile_picture_url" bson:"profile_picture_url"`
	ExternalID        string            `grove:"external_id"         bson:"external_id"`
	LastSignInAt      *time.Time        `grove:"last_sign_in_at"     bson:"last_sign_in_at,omitempty"`
	Metadata          map[string]string `grove:"metadata"            bson:"metadata,omitempty"`
	CreatedAt         time.Time         `grove:"created_at"          bson:"created_at"`
	UpdatedAt         time.Time         `grove:"updated_at"          bson:"updated_at"`
}

func toUserModel(u *user.User) *userModel {
	return &userModel{
		ID:                u.ID,
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		EmailVerified:     u.EmailVerified,
		ProfilePictureURL: u.ProfilePictureURL,
		ExternalID:        u.ExternalID,
		LastSignInAt:      u.LastSignInAt,
		Metadata:          u.Metadata,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func fromUserModel(m *userModel) *user.User {
	return &user.User{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                m.ID,
		Email:             m.Email,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		EmailVerified:     m.EmailVerified,
		ProfilePictureURL: m.ProfilePictureURL,
		ExternalID:        m.ExternalID,
		LastSignInAt:      m.LastSignInAt,
		Metadata:          m.Metadata,
	}
}

// --- Task models ---

// payloadModel is the embedded document form of queue.Payload.
type payloadModel struct {
	EventID   string     `bson:"event_id,omitempty"`
	UpdatedAt *time.Time `bson:"updated_at,omitempty"`
	Cursor    string     `bson:"cursor,omitempty"`
}

func toPayloadModel(p queue.Payload) payloadModel {
	return payloadModel{EventID: p.EventID, UpdatedAt: p.UpdatedAt, Cursor: p.Cursor}
}

func (p payloadModel) payload() queue.Payload {
	return queue.Payload{EventID: p.EventID, UpdatedAt: p.UpdatedAt, Cursor: p.Cursor}
}

type taskModel struct {
	grove.BaseModel `grove:"table:mirror_tasks"`

	ID            string       `grove:"id,pk"           bson:"_id"`
	Seq           int64        `grove:"seq"             bson:"seq"`
	Kind          string       `grove:"kind"            bson:"kind"`
	Payload       payloadModel `grove:"payload"         bson:"payload"`
	State         string       `grove:"state"           bson:"state"`
	AttemptCount  int          `grove:"attempt_count"   bson:"attempt_count"`
	MaxAttempts   int          `grove:"max_attempts"    bson:"max_attempts"`
	NextAttemptAt time.Time    `grove:"next_attempt_at" bson:"next_attempt_at"`
	LastError     string       `grove:"last_error"      bson:"last_error"`
	CompletedAt   *time.Time   `grove:"completed_at"    bson:"completed_at,omitempty"`
	CreatedAt     time.Time    `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time    `grove:"updated_at"      bson:"updated_at"`
}

func toTaskModel(t *queue.Task) *taskModel {
	return &taskModel{
		ID:            t.ID.String(),
		Seq:           t.Seq,
		Kind:          string(t.Kind),
		Payload:       toPayloadModel(t.Payload),
		State:         string(t.State),
		AttemptCount:  t.AttemptCount,
		MaxAttempts:   t.MaxAttempts,
		NextAttemptAt: t.NextAttemptAt,
		LastError:     t.LastError,
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func fromTaskModel(m *taskModel) (*queue.Task, error) {
	taskID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse task ID %q: %w", m.ID, err)
	}
	return &queue.Task{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            taskID,
		Seq:           m.Seq,
		Kind:          queue.Kind(m.Kind),
		Payload:       m.Payload.payload(),
		State:         queue.State(m.State),
		AttemptCount:  m.AttemptCount,
		MaxAttempts:   m.MaxAttempts,
		NextAttemptAt: m.NextAttemptAt,
		LastError:     m.LastError,
		CompletedAt:   m.CompletedAt,
	}, nil
}

// --- DLQ models ---

type dlqEntryModel struct {
	grove.BaseModel `grove:"table:mirror_dlq"`

	ID           string       `grove:"id,pk"         bson:"_id"`
	TaskID       string       `grove:"task_id"       bson:"task_id"`
	Kind         string       `grove:"kind"          bson:"kind"`
	Payload      payloadModel `grove:"payload"       bson:"payload"`
	Error        string       `grove:"error"         bson:"error"`
	AttemptCount int          `grove:"attempt_count" bson:"attempt_count"`
	FailedAt     time.Time    `grove:"failed_at"     bson:"failed_at"`
	CreatedAt    time.Time    `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time    `grove:"updated_at"    bson:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:           e.ID.String(),
		TaskID:       e.TaskID.String(),
		Kind:         string(e.Kind),
		Payload:      toPayloadModel(e.Payload),
		Error:        e.Error,
		AttemptCount: e.AttemptCount,
		FailedAt:     e.FailedAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	taskID, err := id.ParseTaskID(m.TaskID)
	if err != nil {
		return nil, fmt.Errorf("parse task ID %q: %w", m.TaskID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           dlqID,
		TaskID:       taskID,
		Kind:         queue.Kind(m.Kind),
		Payload:      m.Payload.payload(),
		Error:        m.Error,
		AttemptCount: m.AttemptCount,
		FailedAt:     m.FailedAt,
	}, nil
}
