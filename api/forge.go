package api

import (
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/mirror"
	"github.com/xraph/mirror/dlq"
	"github.com/xraph/mirror/id"
	"github.com/xraph/mirror/ledger"
	"github.com/xraph/mirror/queue"
	"github.com/xraph/mirror/user"
)

// ForgeAPI wires all Forge-style HTTP handlers together.
type ForgeAPI struct {
	mirror *mirror.Mirror
	log    forge.Logger
}

// NewForgeAPI creates a ForgeAPI over a running Mirror.
func NewForgeAPI(m *mirror.Mirror, log forge.Logger) *ForgeAPI {
	return &ForgeAPI{
		mirror: m,
		log:    log,
	}
}

// RegisterRoutes registers all mirror admin API routes into the given Forge
// router with full OpenAPI metadata.
func (a *ForgeAPI) RegisterRoutes(router forge.Router) {
	a.registerUserRoutes(router)
	a.registerLedgerRoutes(router)
	a.registerQueueRoutes(router)
	a.registerDLQRoutes(router)
	a.registerStatsRoutes(router)
}

func pageLimit(limit int) int {
	if limit == 0 {
		return defaultLimit
	}
	return limit
}

// ---------------------------------------------------------------------------
// User routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerUserRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("users"))

	if err := g.GET("/users", a.listUsers,
		forge.WithSummary("List users"),
		forge.WithDescription("Returns mirrored users ordered by subject id."),
		forge.WithOperationID("listUsers"),
		forge.WithRequestSchema(ListUsersForgeRequest{}),
		forge.WithListResponse(user.User{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listUsers route", forge.Error(err))
	}

	if err := g.GET("/users/:userId", a.getUser,
		forge.WithSummary("Get user"),
		forge.WithDescription("Returns the mirrored copy of a provider user."),
		forge.WithOperationID("getUser"),
		forge.WithResponseSchema(http.StatusOK, "User details", user.User{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getUser route", forge.Error(err))
	}
}

func (a *ForgeAPI) listUsers(ctx forge.Context, req *ListUsersForgeRequest) ([]*user.User, error) {
	users, err := a.mirror.ListUsers(ctx.Context(), user.ListOpts{
		Offset: req.Offset,
		Limit:  pageLimit(req.Limit),
		Email:  req.Email,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return users, nil
}

func (a *ForgeAPI) getUser(ctx forge.Context, req *GetUserForgeRequest) (*user.User, error) {
	u, err := a.mirror.GetUser(ctx.Context(), req.UserID)
	if err != nil {
		return nil, mapError(err)
	}

	return u, nil
}

// ---------------------------------------------------------------------------
// Ledger routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerLedgerRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("ledger"))

	if err := g.GET("/ledger", a.listLedger,
		forge.WithSummary("List ledger entries"),
		forge.WithDescription("Returns considered events, newest first."),
		forge.WithOperationID("listLedger"),
		forge.WithRequestSchema(ListLedgerForgeRequest{}),
		forge.WithListResponse(ledger.Entry{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listLedger route", forge.Error(err))
	}

	if err := g.GET("/ledger/cursor", a.getCursor,
		forge.WithSummary("Get cursor"),
		forge.WithDescription("Returns the newest recorded event id and the catch-up resume point."),
		forge.WithOperationID("getCursor"),
		forge.WithResponseSchema(http.StatusOK, "Cursor", CursorForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getCursor route", forge.Error(err))
	}
}

func (a *ForgeAPI) listLedger(ctx forge.Context, req *ListLedgerForgeRequest) ([]*ledger.Entry, error) {
	entries, err := a.mirror.Ledger().List(ctx.Context(), ledger.ListOpts{
		Offset:    req.Offset,
		Limit:     pageLimit(req.Limit),
		EventType: req.EventType,
	})
	if err != nil {
		return nil, mapError(err)
	}

	return entries, nil
}

func (a *ForgeAPI) getCursor(ctx forge.Context, _ *CursorForgeRequest) (*CursorForgeResponse, error) {
	cursor, err := a.mirror.Cursor(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}

	rp, err := a.mirror.Ledger().Resume(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}

	return &CursorForgeResponse{Cursor: cursor, Resume: rp.Cursor, ResumeSince: rp.Since}, nil
}

// ---------------------------------------------------------------------------
// Queue routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerQueueRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("queue"))

	if err := g.GET("/tasks", a.listTasks,
		forge.WithSummary("List tasks"),
		forge.WithDescription("Returns admission queue tasks, newest first."),
		forge.WithOperationID("listTasks"),
		forge.WithRequestSchema(ListTasksForgeRequest{}),
		forge.WithListResponse(queue.Task{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listTasks route", forge.Error(err))
	}

	if err := g.POST("/resync", a.resync,
		forge.WithSummary("Resync"),
		forge.WithDescription("Enqueues a catch-up from the current cursor."),
		forge.WithOperationID("resync"),
		forge.WithResponseSchema(http.StatusAccepted, "Enqueued catch-up task", queue.Task{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register resync route", forge.Error(err))
	}
}

func (a *ForgeAPI) listTasks(ctx forge.Context, req *ListTasksForgeRequest) ([]*queue.Task, error) {
	opts := queue.ListOpts{
		Offset: req.Offset,
		Limit:  pageLimit(req.Limit),
		Kind:   queue.Kind(req.Kind),
	}
	if req.State != "" {
		state := queue.State(req.State)
		opts.State = &state
	}

	tasks, err := a.mirror.Engine().List(ctx.Context(), opts)
	if err != nil {
		return nil, mapError(err)
	}

	return tasks, nil
}

func (a *ForgeAPI) resync(ctx forge.Context, _ *ResyncForgeRequest) (*queue.Task, error) {
	t, err := a.mirror.Resync(ctx.Context())
	if err != nil {
		return nil, mapError(err)
	}

	if err := ctx.JSON(http.StatusAccepted, t); err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

// ---------------------------------------------------------------------------
// DLQ routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerDLQRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("dlq"))

	if err := g.GET("/dlq", a.listDLQ,
		forge.WithSummary("List DLQ entries"),
		forge.WithDescription("Returns dead-lettered tasks, newest failure first."),
		forge.WithOperationID("listDLQ"),
		forge.WithRequestSchema(ListDLQForgeRequest{}),
		forge.WithListResponse(dlq.Entry{}, http.StatusOK),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register listDLQ route", forge.Error(err))
	}

	if err := g.POST("/dlq/:dlqId/replay", a.replayDLQ,
		forge.WithSummary("Replay DLQ entry"),
		forge.WithDescription("Re-admits a dead-lettered task at the tail of the queue."),
		forge.WithOperationID("replayDLQ"),
		forge.WithResponseSchema(http.StatusAccepted, "Re-enqueued task", queue.Task{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register replayDLQ route", forge.Error(err))
	}

	if err := g.DELETE("/dlq", a.purgeDLQ,
		forge.WithSummary("Purge DLQ"),
		forge.WithDescription("Deletes DLQ entries that failed before the given time."),
		forge.WithOperationID("purgeDLQ"),
		forge.WithRequestSchema(PurgeDLQForgeRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Purge result", PurgeDLQForgeResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register purgeDLQ route", forge.Error(err))
	}
}

func (a *ForgeAPI) listDLQ(ctx forge.Context, req *ListDLQForgeRequest) ([]*dlq.Entry, error) {
	entries, err := a.mirror.DLQ().List(ctx.Context(), dlq.ListOpts{
		Offset: req.Offset,
		Limit:  pageLimit(req.Limit),
		Kind:   queue.Kind(req.Kind),
	})
	if err != nil {
		return nil, mapError(err)
	}

	return entries, nil
}

func (a *ForgeAPI) replayDLQ(ctx forge.Context, req *ReplayDLQForgeRequest) (*queue.Task, error) {
	dlqID, err := id.ParseDLQID(req.DLQID)
	if err != nil {
		return nil, forge.BadRequest("invalid DLQ ID")
	}

	t, err := a.mirror.DLQ().Replay(ctx.Context(), dlqID, a.mirror.Engine())
	if err != nil {
		return nil, mapError(err)
	}

	if err := ctx.JSON(http.StatusAccepted, t); err != nil {
		return nil, mapError(err)
	}

	//nolint:nilnil // response already written via ctx.JSON.
	return nil, nil
}

func (a *ForgeAPI) purgeDLQ(ctx forge.Context, req *PurgeDLQForgeRequest) (*PurgeDLQForgeResponse, error) {
	if req.Before == "" {
		return nil, forge.BadRequest("before query parameter is required")
	}
	before, err := time.Parse(time.RFC3339, req.Before)
	if err != nil {
		return nil, forge.BadRequest("invalid 'before' time format (use RFC3339)")
	}

	n, err := a.mirror.DLQ().Purge(ctx.Context(), before)
	if err != nil {
		return nil, mapError(err)
	}

	return &PurgeDLQForgeResponse{Purged: n}, nil
}

// ---------------------------------------------------------------------------
// Stats routes
// ---------------------------------------------------------------------------

func (a *ForgeAPI) registerStatsRoutes(router forge.Router) {
	g := router.Group("", forge.WithGroupTags("stats"))

	if err := g.GET("/stats", a.getStats,
		forge.WithSummary("System statistics"),
		forge.WithDescription("Returns counts of users, ledger entries, open tasks and DLQ entries, plus the cursor."),
		forge.WithOperationID("getStats"),
		forge.WithResponseSchema(http.StatusOK, "System statistics", Stats{}),
		forge.WithErrorResponses(),
	); err != nil {
		a.log.Error("Failed to register getStats route", forge.Error(err))
	}
}

func (a *ForgeAPI) getStats(ctx forge.Context, _ *StatsForgeRequest) (*Stats, error) {
	stats, err := collectStats(ctx.Context(), a.mirror)
	if err != nil {
		return nil, mapError(err)
	}

	return stats, nil
}
