package models

// Role identifies the author side of a message.
type Role string

const (
	RoleContractor Role = "contractor"
	// RoleCandidate is persisted as "worker".
	RoleCandidate Role = "worker"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known author role.
func (r Role) Valid() bool {
	switch r {
	case RoleContractor, RoleCandidate, RoleSystem:
		return true
	}
	return false
}

// Thread is a direct-message conversation tied to one job and one candidate.
// LastMessageText, LastMessageAt, HasReply and UnreadCount are a snapshot kept
// in step with the thread's messages.
type Thread struct {
	ID              string `json:"id"`
	JobID           string `json:"jobId"`
	ApplicationID   string `json:"applicationId,omitempty"`
	CounterpartName string `json:"counterpartName"`
	ContactTel      string `json:"contactTel,omitempty"`
	ContactLineID   string `json:"contactLineId,omitempty"`
	LastMessageText string `json:"lastMessageText"`
	LastMessageAt   int64  `json:"lastMessageAt"`
	HasReply        bool   `json:"hasReply"`
	UnreadCount     int    `json:"unreadCount"`
}

// RecordID satisfies kvstore.Record.
func (t Thread) RecordID() string { return t.ID }

// Contact holds the optional ways to reach a thread's counterpart.
type Contact struct {
	Tel    string `json:"tel,omitempty"`
	LineID string `json:"lineId,omitempty"`
}

// Message is one line of a thread. Messages are never mutated.
type Message struct {
	ID        string `json:"id"`
	ThreadID  string `json:"threadId"`
	JobID     string `json:"jobId"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

// RecordID satisfies kvstore.Record.
func (m Message) RecordID() string { return m.ID }

// ThreadView joins a thread with its ordered messages and job title.
type ThreadView struct {
	Thread   Thread    `json:"thread"`
	JobTitle string    `json:"jobTitle"`
	Messages []Message `json:"messages"`
}
