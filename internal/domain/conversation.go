package domain

import "time"

// Turn is a single persisted query/response exchange for a policy.
// Turns are append-only; nothing edits or deletes them once written.
type Turn struct {
	ID           string
	PolicyNumber string
	Query        string
	Response     string
	CreatedAt    time.Time
}

// ConversationContext is the working state for one in-flight turn. It is
// built per request and never shared.
type ConversationContext struct {
	PolicyNumber string
	Query        string
	PolicyData   string
	History      []string
}
