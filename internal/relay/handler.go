package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"storefront/internal/config"
	"storefront/internal/model"
)

// Handler holds the development relay's dependencies. It implements the
// external interface the inbox subsystem consumes: identity bootstrap, bulk
// load, synchronous send, and the per-user chat socket.
//
// Dev-mode authentication: the bearer credential IS the username. Real
// deployments sit behind the storefront's auth service instead.
type Handler struct {
	Store  Store
	Config config.Config

	// One live connection per username. A new connection replaces the
	// previous one.
	Conns  map[string]*client
	ConnMu sync.RWMutex
}

// New creates a new Handler with the given dependencies
func New(store Store, cfg config.Config) *Handler {
	return &Handler{
		Store:  store,
		Config: cfg,
		Conns:  make(map[string]*client),
	}
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// REST API
	r.HandleFunc("/auth/me/", h.Me).Methods("GET")
	r.HandleFunc("/inbox/", h.GetInbox).Methods("GET")
	r.HandleFunc("/inbox/send_message/", h.SendMessage).Methods("POST")

	// WebSocket
	r.HandleFunc("/ws/chat/{username}/", h.HandleChat).Methods("GET")

	return r
}

// bearerUsername resolves the caller from the Authorization header.
func bearerUsername(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// Me handles GET /auth/me/
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	username := bearerUsername(r)
	if username == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Missing or invalid credential"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"username": username})
}

// GetInbox handles GET /inbox/
func (h *Handler) GetInbox(w http.ResponseWriter, r *http.Request) {
	log.Printf("[GET /inbox/] Request received from %s", r.RemoteAddr)

	username := bearerUsername(r)
	if username == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Missing or invalid credential"})
		return
	}

	records, err := h.Store.ListFor(username)
	if err != nil {
		log.Printf("[GET /inbox/] ❌ Store error: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to load messages"})
		return
	}

	log.Printf("[GET /inbox/] ✅ Returned %d messages for %s", len(records), username)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// SendMessage handles POST /inbox/send_message/
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	log.Printf("[POST /inbox/send_message/] Request received from %s", r.RemoteAddr)

	username := bearerUsername(r)
	if username == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "Missing or invalid credential"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var draft model.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		log.Printf("[POST /inbox/send_message/] ❌ Bad Request: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid request body"})
		return
	}

	if draft.Recipient == "" || draft.Body == "" {
		log.Printf("[POST /inbox/send_message/] ❌ Bad Request: missing recipient or body")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "recipient and body are required"})
		return
	}

	rec, err := h.Store.Append(model.InboxRecord{
		SenderUsername:    username,
		RecipientUsername: draft.Recipient,
		Subject:           draft.Subject,
		Body:              draft.Body,
		Timestamp:         time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[POST /inbox/send_message/] ❌ Store error: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to store message"})
		return
	}

	log.Printf("[POST /inbox/send_message/] ✅ Stored message: ID=%d, %s -> %s", rec.ID, username, draft.Recipient)

	// Live delivery to the recipient, if connected.
	h.deliver(rec)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rec)
}
