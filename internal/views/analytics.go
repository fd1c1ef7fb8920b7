package views

import (
	"math"
	"sort"

	"staffing-board/internal/models"
)

// FillRate is filled/needed as a percentage rounded to one decimal.
func FillRate(filled, needed int) float64 {
	if needed <= 0 {
		return 0
	}
	return round1(float64(filled) / float64(needed) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CompletedJob is one row of the completed-jobs table.
type CompletedJob struct {
	Job          models.Job `json:"job"`
	FillRate     float64    `json:"fillRate"`
	DurationDays int        `json:"durationDays"`
}

// Analytics summarizes completed jobs.
type Analytics struct {
	TotalJobs       int            `json:"totalJobs"`
	TotalHired      int            `json:"totalHired"`
	AvgFillRate     float64        `json:"avgFillRate"`
	AvgDurationDays int            `json:"avgDurationDays"`
	Jobs            []CompletedJob `json:"jobs"`
}

// Sort keys for CompletedAnalytics rows.
const (
	SortByCompleted = "completedDate"
	SortByDuration  = "duration"
	SortByFilled    = "filled"
)

// CompletedAnalytics summarizes CLOSED jobs. Rows are sorted by sortBy
// (end date when unknown), descending unless asc. Jobs with unreadable
// dates count as zero days.
func CompletedAnalytics(jobs []models.Job, sortBy string, asc bool) Analytics {
	out := Analytics{Jobs: []CompletedJob{}}
	var rateSum float64
	var daySum int
	for _, j := range jobs {
		if j.Status != models.JobClosed {
			continue
		}
		days, _ := DurationDays(j.StartDate, j.EndDate)
		row := CompletedJob{Job: j, FillRate: FillRate(j.HeadcountFilled, j.HeadcountNeeded), DurationDays: days}
		out.Jobs = append(out.Jobs, row)
		out.TotalHired += j.HeadcountFilled
		rateSum += row.FillRate
		daySum += days
	}
	out.TotalJobs = len(out.Jobs)
	if out.TotalJobs > 0 {
		out.AvgFillRate = round1(rateSum / float64(out.TotalJobs))
		out.AvgDurationDays = int(math.Round(float64(daySum) / float64(out.TotalJobs)))
	}

	key := func(r CompletedJob) float64 {
		switch sortBy {
		case SortByDuration:
			return float64(r.DurationDays)
		case SortByFilled:
			return r.FillRate
		}
		end, err := ParseDate(r.Job.EndDate)
		if err != nil {
			return 0
		}
		return float64(end.Unix())
	}
	sort.SliceStable(out.Jobs, func(a, b int) bool {
		if asc {
			return key(out.Jobs[a]) < key(out.Jobs[b])
		}
		return key(out.Jobs[a]) > key(out.Jobs[b])
	})
	return out
}
