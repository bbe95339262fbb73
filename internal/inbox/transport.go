package inbox

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"storefront/internal/model"
)

// Router decides, per outgoing draft, between the live connection and the
// synchronous fallback. Both paths converge on the store's Ingest, so the
// id dedup there is the single safety net against double-application.
type Router struct {
	manager *Manager
	api     *APIClient
	store   *Store
}

// NewRouter wires a router over one session's manager, API client and store.
func NewRouter(manager *Manager, api *APIClient, store *Store) *Router {
	return &Router{manager: manager, api: api, store: store}
}

// Send delivers a draft. With the connection open it writes the frame and
// immediately ingests a provisional record so the sender's own view updates
// without waiting for a round trip. Otherwise it posts the draft
// synchronously and ingests the confirmed record from the response; on
// failure nothing is ingested and the error is surfaced to the caller.
func (r *Router) Send(ctx context.Context, draft model.Draft) error {
	if r.manager.State() == Open {
		frame := model.OutboundFrame{
			Message:   draft.Body,
			Recipient: draft.Recipient,
			Subject:   draft.Subject,
		}
		if err := r.manager.Send(frame); err == nil {
			r.store.Ingest(provisional(draft, r.store.Identity()))
			return nil
		}
		// The write failure already put the manager on its reconnect
		// path; deliver this draft over the fallback instead.
		log.Printf("[Send] live connection unavailable, using fallback")
	}

	confirmed, err := r.api.SendMessage(ctx, draft)
	if err != nil {
		return fmt.Errorf("send to %s: %w", draft.Recipient, err)
	}
	r.store.Ingest(confirmed)
	return nil
}

// provisional builds the optimistic local record for a live-connection send.
func provisional(draft model.Draft, identity string) model.Message {
	now := time.Now().UTC()
	return model.Message{
		ID:        strconv.FormatInt(now.UnixNano(), 10),
		Sender:    identity,
		Recipient: draft.Recipient,
		Subject:   draft.Subject,
		Body:      draft.Body,
		Timestamp: now,
		State:     model.StatePending,
	}
}
