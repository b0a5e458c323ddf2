package api

import "time"

// ---------------------------------------------------------------------------
// User requests
// ---------------------------------------------------------------------------

// ListUsersForgeRequest binds query parameters for GET /users.
type ListUsersForgeRequest struct {
	Email  string `description:"Filter by email (case-insensitive)" query:"email"`
	Offset int    `description:"Pagination offset"                  query:"offset"`
	Limit  int    `description:"Page size (default 50)"             query:"limit"`
}

// GetUserForgeRequest binds the path for GET /users/:userId.
type GetUserForgeRequest struct {
	UserID string `description:"Provider subject id" path:"userId"`
}

// ---------------------------------------------------------------------------
// Ledger requests
// ---------------------------------------------------------------------------

// ListLedgerForgeRequest binds query parameters for GET /ledger.
type ListLedgerForgeRequest struct {
	EventType string `description:"Filter by event type"   query:"event_type"`
	Offset    int    `description:"Pagination offset"      query:"offset"`
	Limit     int    `description:"Page size (default 50)" query:"limit"`
}

// CursorForgeRequest is empty; GET /ledger/cursor has no parameters.
type CursorForgeRequest struct{}

// CursorForgeResponse is the response for GET /ledger/cursor.
type CursorForgeResponse struct {
	Cursor      string     `description:"Newest recorded event id"                        json:"cursor"`
	Resume      string     `description:"Event id the next catch-up resumes after"        json:"resume"`
	ResumeSince *time.Time `description:"Creation time of the oldest undispatched event" json:"resume_since,omitempty"`
}

// ---------------------------------------------------------------------------
// Queue requests
// ---------------------------------------------------------------------------

// ListTasksForgeRequest binds query parameters for GET /tasks.
type ListTasksForgeRequest struct {
	State  string `description:"Filter by state (pending, running, done, failed)" query:"state"`
	Kind   string `description:"Filter by kind (check, catchup)"                  query:"kind"`
	Offset int    `description:"Pagination offset"                               query:"offset"`
	Limit  int    `description:"Page size (default 50)"                          query:"limit"`
}

// ResyncForgeRequest is empty; POST /resync has no parameters.
type ResyncForgeRequest struct{}

// ---------------------------------------------------------------------------
// DLQ requests
// ---------------------------------------------------------------------------

// ListDLQForgeRequest binds query parameters for GET /dlq.
type ListDLQForgeRequest struct {
	Kind   string `description:"Filter by task kind"    query:"kind"`
	Offset int    `description:"Pagination offset"      query:"offset"`
	Limit  int    `description:"Page size (default 50)" query:"limit"`
}

// ReplayDLQForgeRequest binds the path for POST /dlq/:dlqId/replay.
type ReplayDLQForgeRequest struct {
	DLQID string `description:"DLQ entry identifier" path:"dlqId"`
}

// PurgeDLQForgeRequest binds query parameters for DELETE /dlq.
type PurgeDLQForgeRequest struct {
	Before string `description:"Delete entries that failed before this time (RFC3339)" query:"before"`
}

// PurgeDLQForgeResponse is the response for DELETE /dlq.
type PurgeDLQForgeResponse struct {
	Purged int64 `json:"purged"`
}

// ---------------------------------------------------------------------------
// Stats requests
// ---------------------------------------------------------------------------

// StatsForgeRequest is empty; GET /stats has no parameters.
type StatsForgeRequest struct{}
