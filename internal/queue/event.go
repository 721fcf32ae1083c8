// Package queue defines the auth events exchanged over the message broker
// and the background consumer that records them.
package queue

// Event types published on the auth.events queue.
const (
	EventUserRegistered  = "user.registered"
	EventPasswordChanged = "password.changed"
)

// Event is an auth audit record. It carries enough for downstream consumers
// to log or notify without querying the credential store. Passwords and
// reset codes never appear here.
type Event struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id,omitempty"`
	Email      string `json:"email"`
	Role       string `json:"role,omitempty"`
	OccurredAt string `json:"occurred_at"` // RFC 3339, UTC
}
