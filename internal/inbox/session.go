package inbox

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"storefront/internal/config"
	"storefront/internal/model"
)

// Session is one authenticated user's live inbox: identity, message store,
// conversation index, relay connection and transport router, wired together
// for the lifetime of the session. Construct a fresh one per login; Close
// tears everything down so nothing leaks into the next session.
type Session struct {
	identity string
	api      *APIClient
	store    *Store
	manager  *Manager
	router   *Router
	alerts   *AlertCenter
}

// OpenSession resolves the session identity, loads the message history, and
// opens the live connection. An identity resolution failure leaves the
// subsystem inert: nothing is constructed and no connection is attempted.
// alerts may be nil.
func OpenSession(ctx context.Context, cfg config.Config, credential string, alerts *AlertCenter) (*Session, error) {
	api := NewAPIClient(cfg.RelayHTTPURL, credential)

	identity, err := api.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	var notifier Notifier
	if alerts != nil {
		notifier = alerts
	}
	store := NewStore(identity, notifier)

	// Bulk load before going live. A failure here degrades to an empty,
	// live-only inbox rather than blocking the session.
	history, err := api.Inbox(ctx)
	if err != nil {
		log.Printf("[Inbox] initial load failed: %v", err)
	}
	for _, msg := range history {
		store.Ingest(msg)
	}

	manager := NewManager(cfg.RelayWSURL, cfg.ReconnectDelay)
	manager.OnFrame(func(frame model.Frame) {
		handleFrame(store, frame)
	})
	if alerts != nil {
		manager.OnTrouble(func(err error) {
			log.Printf("[WebSocket] %v", err)
			alerts.System("message relay unreachable, retrying")
		})
	}

	// Dial failures are recovered internally via the reconnect path; the
	// session stays usable read-only plus fallback sends in the meantime.
	if err := manager.Connect(identity, credential); err != nil {
		log.Printf("[Inbox] live connection deferred: %v", err)
	}

	return &Session{
		identity: identity,
		api:      api,
		store:    store,
		manager:  manager,
		router:   NewRouter(manager, api, store),
		alerts:   alerts,
	}, nil
}

// handleFrame applies one validated inbound frame to the store.
func handleFrame(store *Store, frame model.Frame) {
	switch frame.Kind {
	case model.FrameChatMessage:
		store.Ingest(frameMessage(frame, store.Identity()))
	case model.FrameAck:
		log.Printf("[WebSocket] ack: %s", frame.Detail)
	case model.FrameError:
		log.Printf("[WebSocket] relay error: %s", frame.Detail)
	}
}

// frameMessage converts a chat frame into a confirmed message record for
// the given identity. A frame without a server id gets a synthesized one,
// and one without a recipient is addressed to the identity itself.
func frameMessage(frame model.Frame, identity string) model.Message {
	id := frame.ID
	if id == "" {
		id = strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	recipient := frame.Recipient
	if recipient == "" {
		recipient = identity
	}
	subject := frame.Subject
	if subject == "" {
		subject = "New message"
	}
	return model.Message{
		ID:        id,
		Sender:    frame.Sender,
		Recipient: recipient,
		Subject:   subject,
		Body:      frame.Message,
		Timestamp: frame.Timestamp,
		State:     model.StateConfirmed,
	}
}

// Identity returns the resolved session identity.
func (s *Session) Identity() string {
	return s.identity
}

// Send delivers a draft over the best available transport.
func (s *Session) Send(ctx context.Context, draft model.Draft) error {
	return s.router.Send(ctx, draft)
}

// Store exposes the session's message store.
func (s *Session) Store() *Store {
	return s.store
}

// Messages returns the message log in arrival order.
func (s *Session) Messages() []model.Message {
	return s.store.Messages()
}

// Conversations returns the current conversation index.
func (s *Session) Conversations() map[string][]model.Message {
	return s.store.Conversations()
}

// ConnectionState reports the live connection's lifecycle state.
func (s *Session) ConnectionState() ConnState {
	return s.manager.State()
}

// Close tears the session down: the connection and any pending reconnect
// are cancelled and the store is cleared.
func (s *Session) Close() {
	s.manager.Disconnect()
	s.store.Clear()
}
