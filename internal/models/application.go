package models

// ApplicationStatus enumerates the states of a candidate's response.
type ApplicationStatus string

const (
	AppApplied      ApplicationStatus = "APPLIED"
	AppInterviewing ApplicationStatus = "INTERVIEWING"
	AppHired        ApplicationStatus = "HIRED"
	AppRejected     ApplicationStatus = "REJECTED"
)

// Valid reports whether s is one of the known application states.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case AppApplied, AppInterviewing, AppHired, AppRejected:
		return true
	}
	return false
}

// Application is one candidate's response to a Job.
type Application struct {
	ID            string            `json:"id"`
	JobID         string            `json:"jobId"`
	ApplicantName string            `json:"applicantName"`
	Trade         string            `json:"trade,omitempty"`
	Pref          string            `json:"pref,omitempty"`
	City          string            `json:"city,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	LineID        string            `json:"lineId,omitempty"`
	TravelMinutes *int              `json:"travelMinutes,omitempty"`
	Status        ApplicationStatus `json:"status"`
	Note          string            `json:"note,omitempty"`
	CreatedAt     int64             `json:"createdAt"`
}

// RecordID satisfies kvstore.Record.
func (a Application) RecordID() string { return a.ID }

// ApplicationInput carries the caller-supplied fields of a new application.
type ApplicationInput struct {
	JobID         string            `json:"jobId"`
	ApplicantName string            `json:"applicantName"`
	Trade         string            `json:"trade,omitempty"`
	Pref          string            `json:"pref,omitempty"`
	City          string            `json:"city,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	LineID        string            `json:"lineId,omitempty"`
	TravelMinutes *int              `json:"travelMinutes,omitempty"`
	Status        ApplicationStatus `json:"status"`
	Note          string            `json:"note,omitempty"`
}
