package models

// CandidateStatus mirrors the roster document status.
type CandidateStatus string

const (
	CandidateActive  CandidateStatus = "active"
	CandidateBlocked CandidateStatus = "blocked"
	CandidatePending CandidateStatus = "pending"
)

// Candidate is a tradesperson on the roster. ID is the messaging-channel
// user id when the candidate came from the channel.
type Candidate struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Trade      string          `json:"trade"`
	Pref       string          `json:"pref"`
	City       string          `json:"city"`
	Status     CandidateStatus `json:"status,omitempty"`
	Source     string          `json:"source,omitempty"`
	LastSeenAt string          `json:"lastSeenAt,omitempty"`
}

// RecordID satisfies kvstore.Record.
func (c Candidate) RecordID() string { return c.ID }
