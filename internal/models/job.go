package models

import "fmt"

// JobStatus enumerates lifecycle states of a staffing request.
type JobStatus string

const (
	JobOpen       JobStatus = "OPEN"
	JobPaused     JobStatus = "PAUSED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobClosed     JobStatus = "CLOSED"
)

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobOpen, JobPaused, JobInProgress, JobClosed:
		return true
	}
	return false
}

// Job is a staffing request for a trade role at a site.
type Job struct {
	ID              string    `json:"id"`
	Trade           string    `json:"trade"`
	SitePref        string    `json:"sitePref"`
	SiteCity        string    `json:"siteCity"`
	Summary         string    `json:"summary"`
	StartDate       string    `json:"startDate"`
	EndDate         string    `json:"endDate"`
	SalaryBand      string    `json:"salaryBand"`
	SalaryNote      string    `json:"salaryNote,omitempty"`
	Tel             string    `json:"tel,omitempty"`
	HeadcountNeeded int       `json:"headcountNeeded"`
	HeadcountFilled int       `json:"headcountFilled"`
	Status          JobStatus `json:"status"`
	StopPublish     bool      `json:"stopPublish"`
	NotifyCount     int       `json:"notifyCount"`
	CreatedAt       int64     `json:"createdAt"`
	LastUpdatedAt   int64     `json:"lastUpdatedAt"`
}

// RecordID satisfies kvstore.Record.
func (j Job) RecordID() string { return j.ID }

// Location joins prefecture and city the way notices display them.
func (j Job) Location() string {
	return j.SitePref + j.SiteCity
}

// Title is the display title used by threads and notifications.
func (j Job) Title() string {
	if j.Summary != "" {
		return j.Summary
	}
	return fmt.Sprintf("【%s】%s", j.Trade, j.Location())
}

// Salary renders the band with its optional note.
func (j Job) Salary() string {
	if j.SalaryNote == "" {
		return j.SalaryBand
	}
	return fmt.Sprintf("%s (%s)", j.SalaryBand, j.SalaryNote)
}

// Period renders the work period.
func (j Job) Period() string {
	return j.StartDate + " 〜 " + j.EndDate
}

// JobInput carries the caller-supplied fields of a new job.
type JobInput struct {
	Trade           string `json:"trade"`
	SitePref        string `json:"sitePref"`
	SiteCity        string `json:"siteCity"`
	Summary         string `json:"summary"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	SalaryBand      string `json:"salaryBand"`
	SalaryNote      string `json:"salaryNote,omitempty"`
	Tel             string `json:"tel,omitempty"`
	HeadcountNeeded int    `json:"headcountNeeded"`
}

// JobPatch is a partial update; nil fields are left untouched.
type JobPatch struct {
	Trade           *string    `json:"trade,omitempty"`
	SitePref        *string    `json:"sitePref,omitempty"`
	SiteCity        *string    `json:"siteCity,omitempty"`
	Summary         *string    `json:"summary,omitempty"`
	StartDate       *string    `json:"startDate,omitempty"`
	EndDate         *string    `json:"endDate,omitempty"`
	SalaryBand      *string    `json:"salaryBand,omitempty"`
	SalaryNote      *string    `json:"salaryNote,omitempty"`
	Tel             *string    `json:"tel,omitempty"`
	HeadcountNeeded *int       `json:"headcountNeeded,omitempty"`
	HeadcountFilled *int       `json:"headcountFilled,omitempty"`
	Status          *JobStatus `json:"status,omitempty"`
	StopPublish     *bool      `json:"stopPublish,omitempty"`
	NotifyCount     *int       `json:"notifyCount,omitempty"`
}

// Apply merges the patch into j. Headcounts are clamped so the filled count
// stays within [0, needed].
func (p JobPatch) Apply(j Job) Job {
	setString(&j.Trade, p.Trade)
	setString(&j.SitePref, p.SitePref)
	setString(&j.SiteCity, p.SiteCity)
	setString(&j.Summary, p.Summary)
	setString(&j.StartDate, p.StartDate)
	setString(&j.EndDate, p.EndDate)
	setString(&j.SalaryBand, p.SalaryBand)
	setString(&j.SalaryNote, p.SalaryNote)
	setString(&j.Tel, p.Tel)
	if p.HeadcountNeeded != nil {
		j.HeadcountNeeded = *p.HeadcountNeeded
	}
	if p.HeadcountFilled != nil {
		j.HeadcountFilled = *p.HeadcountFilled
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.StopPublish != nil {
		j.StopPublish = *p.StopPublish
	}
	if p.NotifyCount != nil {
		j.NotifyCount = *p.NotifyCount
	}
	j.HeadcountFilled = ClampHeadcount(j.HeadcountFilled, j.HeadcountNeeded)
	return j
}

// ClampHeadcount bounds filled to [0, needed].
func ClampHeadcount(filled, needed int) int {
	if filled > needed {
		filled = needed
	}
	if filled < 0 {
		filled = 0
	}
	return filled
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
