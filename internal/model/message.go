package model

import (
	"strconv"
	"time"
)

// DeliveryState tracks how far a message has travelled.
type DeliveryState string

const (
	// StatePending marks a record inserted optimistically before the relay
	// has acknowledged it.
	StatePending DeliveryState = "pending"
	// StateConfirmed marks a record acknowledged by the relay or returned
	// by the send endpoint.
	StateConfirmed DeliveryState = "confirmed"
)

// Message represents one chat utterance between two parties.
// Content fields never change after the message is stored; only State
// may move from pending to confirmed.
type Message struct {
	ID        string        `json:"id"`
	Sender    string        `json:"sender_username"`
	Recipient string        `json:"recipient_username"`
	Subject   string        `json:"subject"`
	Body      string        `json:"body"`
	Timestamp time.Time     `json:"timestamp"`
	State     DeliveryState `json:"delivery_state,omitempty"`
}

// Counterpart returns the identity on the message that is not the given
// one, or "" when the message is entirely self-addressed.
func (m Message) Counterpart(identity string) string {
	if m.Sender != identity {
		return m.Sender
	}
	if m.Recipient != identity {
		return m.Recipient
	}
	return ""
}

// Draft is an outgoing message before any transport has touched it.
type Draft struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// InboxRecord is the REST wire shape of a stored message, as returned by
// GET /inbox/ and POST /inbox/send_message/.
type InboxRecord struct {
	ID                int64     `json:"id"`
	SenderUsername    string    `json:"sender_username"`
	RecipientUsername string    `json:"recipient_username"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	Timestamp         time.Time `json:"timestamp"`
}

// Message converts a wire record into a confirmed message.
func (r InboxRecord) Message() Message {
	return Message{
		ID:        strconv.FormatInt(r.ID, 10),
		Sender:    r.SenderUsername,
		Recipient: r.RecipientUsername,
		Subject:   r.Subject,
		Body:      r.Body,
		Timestamp: r.Timestamp,
		State:     StateConfirmed,
	}
}

// Record converts a message back into its REST wire shape. Messages with
// non-numeric (client-synthesized) ids get id 0.
func (m Message) Record() InboxRecord {
	id, _ := strconv.ParseInt(m.ID, 10, 64)
	return InboxRecord{
		ID:                id,
		SenderUsername:    m.Sender,
		RecipientUsername: m.Recipient,
		Subject:           m.Subject,
		Body:              m.Body,
		Timestamp:         m.Timestamp,
	}
}
