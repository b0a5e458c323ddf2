// Package mirror keeps an exactly-once local copy of identity provider
// users, driven by the provider's webhooks.
//
// Webhooks are treated as hints, not data. Each verified webhook admits a
// dedup check onto a durable single-worker queue; an event the ledger has not
// seen schedules a catch-up that pages the provider's event list from the
// ledger cursor and applies every event in provider order. Missed, duplicate
// and reordered webhooks therefore all converge on the same state.
//
// Key features:
//   - Ledger-backed deduplication and a monotonic catch-up cursor
//   - Serialized mutations through one persistent FIFO worker
//   - Stale-write guard on user updates (strictly newer updated_at wins)
//   - Retries with backoff and a dead letter queue for failed tasks
//   - A downstream hook called once per considered event
//   - Composable stores (Postgres, SQLite, MongoDB, Redis, memory)
//
// Quick start:
//
//	m, err := mirror.New(
//	    mirror.WithStore(memory.New()),
//	    mirror.WithClientID("client_..."),
//	    mirror.WithAPIKey("sk_..."),
//	    mirror.WithWebhookSecret("..."),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	m.OnEvent(func(ctx context.Context, eventType string, data map[string]any) error {
//	    log.Printf("%s %v", eventType, data["id"])
//	    return nil
//	}, "user.*")
//
//	m.Start(ctx)
//	http.Handle(m.Config().WebhookPath, m.WebhookHandler())
//
// With an action secret set, OnAction gates sign-ins and sign-ups:
//
//	m.OnAction(func(ctx context.Context, a *action.Context) (action.Response, error) {
//	    return a.Allow(), nil
//	})
//	http.Handle(m.Config().ActionPath, m.ActionHandler())
package mirror
