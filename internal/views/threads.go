package views

import (
	"sort"

	"staffing-board/internal/models"
)

// ThreadSummary is a thread row in the inbox.
type ThreadSummary struct {
	models.Thread
	JobTitle string `json:"jobTitle"`
}

// ThreadSummaries joins threads with their job titles, most recent first.
func ThreadSummaries(threads []models.Thread, jobs []models.Job) []ThreadSummary {
	titles := make(map[string]string, len(jobs))
	for _, j := range jobs {
		titles[j.ID] = j.Title()
	}
	out := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		out = append(out, ThreadSummary{Thread: t, JobTitle: titles[t.JobID]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastMessageAt > out[j].LastMessageAt })
	return out
}

// TotalUnread sums unread counts across threads.
func TotalUnread(threads []models.Thread) int {
	n := 0
	for _, t := range threads {
		n += t.UnreadCount
	}
	return n
}
