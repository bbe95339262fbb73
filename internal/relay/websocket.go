package relay

import (
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"storefront/internal/model"
)

// inboundFrame is what a connected client writes for an outgoing message.
type inboundFrame struct {
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
}

// chatFrame is what the relay pushes to a recipient's live connection.
type chatFrame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Timestamp string `json:"timestamp"`
	ID        int64  `json:"id"`
}

// client is one user's live connection. gorilla/websocket allows a single
// concurrent writer, and both the user's own read loop (acks, errors) and
// deliveries from other users write to it, so writes go through a mutex.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// createUpgrader creates a WebSocket upgrader with the given allowed origins
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin header.
				return true
			}
			return allowedMap[origin]
		},
	}
}

// HandleChat handles GET /ws/chat/{username}/
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	token := r.URL.Query().Get("token")
	if token == "" || token != username {
		log.Printf("[WebSocket] ❌ Rejected connection for %s: bad token", username)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] upgrade error: %v", err)
		return
	}

	cl := &client{conn: conn}

	h.ConnMu.Lock()
	if previous, ok := h.Conns[username]; ok {
		previous.conn.Close()
	}
	h.Conns[username] = cl
	total := len(h.Conns)
	h.ConnMu.Unlock()

	log.Printf("[WebSocket] %s connected. Total clients: %d", username, total)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}

		if frame.Message == "" || frame.Recipient == "" {
			cl.writeJSON(map[string]string{
				"type":  "error",
				"error": "recipient and message are required",
			})
			continue
		}

		rec, err := h.Store.Append(model.InboxRecord{
			SenderUsername:    username,
			RecipientUsername: frame.Recipient,
			Subject:           frame.Subject,
			Body:              frame.Message,
			Timestamp:         time.Now().UTC(),
		})
		if err != nil {
			log.Printf("[WebSocket] ❌ Store error: %v", err)
			cl.writeJSON(map[string]string{
				"type":  "error",
				"error": "failed to store message",
			})
			continue
		}

		log.Printf("[WebSocket] 📨 %s -> %s (ID=%d)", username, frame.Recipient, rec.ID)

		// Acknowledge to the sender with the assigned id. The frame is not
		// echoed back whole; the sender already inserted its own record.
		cl.writeJSON(map[string]string{
			"type":   "ack",
			"detail": strconv.FormatInt(rec.ID, 10),
		})

		h.deliver(rec)
	}

	h.ConnMu.Lock()
	if h.Conns[username] == cl {
		delete(h.Conns, username)
	}
	remaining := len(h.Conns)
	h.ConnMu.Unlock()
	conn.Close()

	log.Printf("[WebSocket] %s disconnected. Total clients: %d", username, remaining)
}

// deliver pushes a stored record to the recipient's live connection, if any.
func (h *Handler) deliver(rec model.InboxRecord) {
	h.ConnMu.RLock()
	cl, ok := h.Conns[rec.RecipientUsername]
	h.ConnMu.RUnlock()
	if !ok {
		return
	}

	frame := chatFrame{
		Type:      model.FrameChatMessage,
		Message:   rec.Body,
		Sender:    rec.SenderUsername,
		Recipient: rec.RecipientUsername,
		Subject:   rec.Subject,
		Timestamp: rec.Timestamp.Format(time.RFC3339),
		ID:        rec.ID,
	}

	if err := cl.writeJSON(frame); err != nil {
		cl.conn.Close()
		h.ConnMu.Lock()
		if h.Conns[rec.RecipientUsername] == cl {
			delete(h.Conns, rec.RecipientUsername)
		}
		h.ConnMu.Unlock()
	}
}
