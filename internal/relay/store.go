package relay

import (
	"database/sql"
	"fmt"
	"sync"

	"storefront/internal/model"
)

// Store is the relay's append-only message log. Append assigns the id.
type Store interface {
	Append(rec model.InboxRecord) (model.InboxRecord, error)
	ListFor(username string) ([]model.InboxRecord, error)
}

// MemoryStore keeps the log in memory. Default for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records []model.InboxRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Append stores the record and assigns the next id.
func (s *MemoryStore) Append(rec model.InboxRecord) (model.InboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	return rec, nil
}

// ListFor returns every record the user sent or received, in append order.
func (s *MemoryStore) ListFor(username string) ([]model.InboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.InboxRecord{}
	for _, rec := range s.records {
		if rec.SenderUsername == username || rec.RecipientUsername == username {
			out = append(out, rec)
		}
	}
	return out, nil
}

// MySQLStore persists the log in MariaDB.
type MySQLStore struct {
	DB *sql.DB
}

// NewMySQLStore wraps an open database connection.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{DB: db}
}

// Append inserts the record with an AUTO_INCREMENT id.
func (s *MySQLStore) Append(rec model.InboxRecord) (model.InboxRecord, error) {
	result, err := s.DB.Exec(
		"INSERT INTO inbox_messages (sender, recipient, subject, body, timestamp) VALUES (?, ?, ?, ?, ?)",
		rec.SenderUsername, rec.RecipientUsername, rec.Subject, rec.Body, rec.Timestamp,
	)
	if err != nil {
		return model.InboxRecord{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.InboxRecord{}, fmt.Errorf("retrieve message id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// ListFor returns every record the user sent or received, oldest first.
func (s *MySQLStore) ListFor(username string) ([]model.InboxRecord, error) {
	rows, err := s.DB.Query(
		"SELECT id, sender, recipient, subject, body, timestamp FROM inbox_messages WHERE sender = ? OR recipient = ? ORDER BY timestamp ASC, id ASC",
		username, username,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []model.InboxRecord{}
	for rows.Next() {
		var rec model.InboxRecord
		if err := rows.Scan(&rec.ID, &rec.SenderUsername, &rec.RecipientUsername,
			&rec.Subject, &rec.Body, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
