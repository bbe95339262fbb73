package inbox

import (
	"sort"
	"sync"

	"storefront/internal/model"
)

// previewLength is how many runes of the last message a conversation list
// entry shows before truncation.
const previewLength = 30

// Notifier receives every ingested message that was not authored by the
// current identity.
type Notifier interface {
	Emit(msg model.Message)
}

// Store is the append-only, deduplicated message log for one session.
// It is the single source of truth: both the live connection and the
// synchronous fallback converge on Ingest, so id-based dedup happens in
// exactly one place. The conversation index is rebuilt on every mutation
// and never outlives the store.
type Store struct {
	mu       sync.RWMutex
	identity string
	messages []model.Message
	seen     map[string]struct{}
	index    map[string][]model.Message
	notifier Notifier
}

// NewStore creates an empty store owned by the given identity.
// notifier may be nil.
func NewStore(identity string, notifier Notifier) *Store {
	return &Store{
		identity: identity,
		seen:     make(map[string]struct{}),
		index:    make(map[string][]model.Message),
		notifier: notifier,
	}
}

// Identity returns the session identity the store was built for.
func (s *Store) Identity() string {
	return s.identity
}

// Ingest appends a message unless its id is already present. It reports
// whether the message was applied. Every applied message triggers an index
// rebuild, and a notification when the message is not self-authored.
func (s *Store) Ingest(msg model.Message) bool {
	s.mu.Lock()
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	s.index = Rebuild(s.messages, s.identity)
	notifier := s.notifier
	s.mu.Unlock()

	if notifier != nil && msg.Sender != s.identity {
		notifier.Emit(msg)
	}
	return true
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages returns a copy of the log in arrival order.
func (s *Store) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Conversation returns a copy of the partition for one counterpart,
// sorted ascending by timestamp.
func (s *Store) Conversation(counterpart string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.index[counterpart]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Conversations returns a copy of the full conversation index.
func (s *Store) Conversations() map[string][]model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]model.Message, len(s.index))
	for counterpart, msgs := range s.index {
		cp := make([]model.Message, len(msgs))
		copy(cp, msgs)
		out[counterpart] = cp
	}
	return out
}

// Counterparts returns the conversation keys in lexical order.
func (s *Store) Counterparts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.index))
	for counterpart := range s.index {
		out = append(out, counterpart)
	}
	sort.Strings(out)
	return out
}

// Preview returns the truncated body of the newest message in a
// conversation, for list previews. Empty when the conversation is unknown.
func (s *Store) Preview(counterpart string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.index[counterpart]
	if len(msgs) == 0 {
		return ""
	}
	return Truncate(msgs[len(msgs)-1].Body, previewLength)
}

// Clear discards everything. Called on session teardown so stale identity
// and provisional records never leak into the next session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.seen = make(map[string]struct{})
	s.index = make(map[string][]model.Message)
}

// Rebuild partitions messages by counterpart and sorts each partition
// ascending by timestamp. Messages addressed entirely to the identity
// itself have no counterpart and are left out of the index.
func Rebuild(messages []model.Message, identity string) map[string][]model.Message {
	index := make(map[string][]model.Message)
	for _, msg := range messages {
		counterpart := msg.Counterpart(identity)
		if counterpart == "" {
			continue
		}
		index[counterpart] = append(index[counterpart], msg)
	}
	for _, msgs := range index {
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		})
	}
	return index
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
