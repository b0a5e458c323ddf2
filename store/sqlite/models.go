package sqlite

import (
	"encoding/json"
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

	Seq             int64      `grove:"seq,pk"`
	ID              string     `grove:"id,unique"`
	EventID         string     `grove:"event_id,unique"`
	EventType       string     `grove:"event_type"`
	CursorUpdatedAt *time.Time `grove:"cursor_updated_at"`
	EventCreatedAt  *time.Time `grove:"event_created_at"`
	State           string     `grove:"state"`
	CreatedAt       time.Time  `grove:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"`
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

	ID                string     `grove:"id,pk"`
	Email             string     `grove:"email"`
	FirstName         string     `grove:"first_name"`
	LastName          string     `grove:"last_name"`
	EmailVerified     bool       `grove:"email_verified"`
	ProfilePictureURL string     `grove:"profile_picture_url"`
	ExternalID        string     `grove:"external_id"`
	LastSignInAt      *time.Time `grove:"last_sign_in_at"`
	Metadata          string     `grove:"metadata"` // JSON object
	CreatedAt         time.Time  `grove:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"`
}

func toUserModel(u *user.User) (*userModel, error) {
	metadata := ""
	if u.Metadata != nil {
		raw, err := json.Marshal(u.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode user metadata: %w", err)
		}
		metadata = string(raw)
	}
	return &userModel{
		ID:                u.ID,
		Email:             u.Email,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		EmailVerified:     u.EmailVerified,
		ProfilePictureURL: u.ProfilePictureURL,
		ExternalID:        u.ExternalID,
		LastSignInAt:      u.LastSignInAt,
		Metadata:          metadata,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}, nil
}

func fromUserModel(m *userModel) (*user.User, error) {
	var metadata map[string]string
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("decode user %s metadata: %w", m.ID, err)
		}
	}
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
		Metadata:          metadata,
	}, nil
}

// --- Task models ---

type taskModel struct {
	grove.BaseModel `grove:"table:mirror_tasks"`

	Seq           int64      `grove:"seq,pk"`
	ID            string     `grove:"id,unique"`
	Kind          string     `grove:"kind"`
	Payload       string     `grove:"payload"` // JSON object
	State         string     `grove:"state"`
	AttemptCount  int        `grove:"attempt_count"`
	MaxAttempts   int        `grove:"max_attempts"`
	NextAttemptAt time.Time  `grove:"next_attempt_at"`
	LastError     string     `grove:"last_error"`
	CompletedAt   *time.Time `grove:"completed_at"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toTaskModel(t *queue.Task) (*taskModel, error) {
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode task payload: %w", err)
	}
	return &taskModel{
		Seq:           t.Seq,
		ID:            t.ID.String(),
		Kind:          string(t.Kind),
		Payload:       string(payload),
		State:         string(t.State),
		AttemptCount:  t.AttemptCount,
		MaxAttempts:   t.MaxAttempts,
		NextAttemptAt: t.NextAttemptAt,
		LastError:     t.LastError,
		CompletedAt:   t.CompletedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}, nil
}

func fromTaskModel(m *taskModel) (*queue.Task, error) {
	taskID, err := id.ParseTaskID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse task ID %q: %w", m.ID, err)
	}
	var payload queue.Payload
	if m.Payload != "" {
		if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
			return nil, fmt.Errorf("decode task %s payload: %w", m.ID, err)
		}
	}
	return &queue.Task{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            taskID,
		Seq:           m.Seq,
		Kind:          queue.Kind(m.Kind),
		Payload:       payload,
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

	ID           string    `grove:"id,pk"`
	TaskID       string    `grove:"task_id"`
	Kind         string    `grove:"kind"`
	Payload      string    `grove:"payload"` // JSON object
	Error        string    `grove:"error"`
	AttemptCount int       `grove:"attempt_count"`
	FailedAt     time.Time `grove:"failed_at"`
	CreatedAt    time.Time `grove:"created_at"`
	UpdatedAt    time.Time `grove:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) (*dlqEntryModel, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode DLQ payload: %w", err)
	}
	return &dlqEntryModel{
		ID:           e.ID.String(),
		TaskID:       e.TaskID.String(),
		Kind:         string(e.Kind),
		Payload:      string(payload),
		Error:        e.Error,
		AttemptCount: e.AttemptCount,
		FailedAt:     e.FailedAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}, nil
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
	var payload queue.Payload
	if m.Payload != "" {
		if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
			return nil, fmt.Errorf("decode DLQ %s payload: %w", m.ID, err)
		}
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:           dlqID,
		TaskID:       taskID,
		Kind:         queue.Kind(m.Kind),
		Payload:      payload,
		Error:        m.Error,
		AttemptCount: m.AttemptCount,
		FailedAt:     m.FailedAt,
	}, nil
}
