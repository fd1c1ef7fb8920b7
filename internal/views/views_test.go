package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffing-board/internal/models"
)

func TestStartDeadline(t *testing.T) {
	d, err := StartDeadline("2026-05-01", 3)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 28, 0, 0, 0, 0, time.UTC), d)
	assert.Equal(t, "2026/4/28", FormatDeadline(d, nil))

	// Month and year boundaries are handled by the calendar, not by the zone.
	d, err = StartDeadline("2026-01-02", 5)
	require.NoError(t, err)
	assert.Equal(t, "2025/12/28", FormatDeadline(d, time.FixedZone("PST", -8*60*60)))

	d, err = StartDeadline("2026-03-10T23:30:00+09:00", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), d)

	_, err = StartDeadline("next monday", 1)
	assert.Error(t, err)
}

func TestFromNow(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{59 * time.Minute, "59 minutes ago"},
		{time.Hour, "1 hour ago"},
		{23 * time.Hour, "23 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{6 * 24 * time.Hour, "6 days ago"},
		{7 * 24 * time.Hour, "2026-04-03"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FromNow(now.Add(-c.ago), now), c.ago.String())
	}
	assert.Equal(t, "2 hours ago", FromNowMillis(now.Add(-2*time.Hour).UnixMilli(), now))
}

func TestLastSeen(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "不明", LastSeen("", now, nil))
	assert.Equal(t, "不明", LastSeen("yesterday", now, nil))
	assert.Equal(t, "1時間以内", LastSeen("2026-04-10T11:30:00Z", now, nil))
	assert.Equal(t, "5時間前", LastSeen("2026-04-10T07:00:00Z", now, nil))
	assert.Equal(t, "3日前", LastSeen("2026-04-07T10:00:00Z", now, nil))
	assert.Equal(t, "3/2", LastSeen("2026-03-01T20:00:00Z", now, nil))
}

func TestDurationDays(t *testing.T) {
	days, err := DurationDays("2026-05-01", "2026-05-20")
	require.NoError(t, err)
	assert.Equal(t, 19, days)

	days, err = DurationDays("2026-05-20", "2026-05-01")
	require.NoError(t, err)
	assert.Equal(t, 19, days)

	_, err = DurationDays("2026-05-01", "")
	assert.Error(t, err)
}

func TestFillRate(t *testing.T) {
	assert.Equal(t, 66.7, FillRate(2, 3))
	assert.Equal(t, 100.0, FillRate(3, 3))
	assert.Equal(t, 0.0, FillRate(1, 0))
}

func TestCompletedAnalytics(t *testing.T) {
	jobs := []models.Job{
		{ID: "a", Status: models.JobClosed, HeadcountFilled: 2, HeadcountNeeded: 2, StartDate: "2026-01-01", EndDate: "2026-01-11"},
		{ID: "b", Status: models.JobClosed, HeadcountFilled: 1, HeadcountNeeded: 4, StartDate: "2026-02-01", EndDate: "2026-02-04"},
		{ID: "c", Status: models.JobOpen, HeadcountFilled: 1, HeadcountNeeded: 1, StartDate: "2026-03-01", EndDate: "2026-03-02"},
	}

	got := CompletedAnalytics(jobs, SortByCompleted, false)
	assert.Equal(t, 2, got.TotalJobs)
	assert.Equal(t, 3, got.TotalHired)
	assert.Equal(t, 62.5, got.AvgFillRate)
	assert.Equal(t, 7, got.AvgDurationDays)
	require.Len(t, got.Jobs, 2)
	assert.Equal(t, "b", got.Jobs[0].Job.ID)

	got = CompletedAnalytics(jobs, SortByDuration, false)
	assert.Equal(t, "a", got.Jobs[0].Job.ID)

	got = CompletedAnalytics(jobs, SortByFilled, true)
	assert.Equal(t, "b", got.Jobs[0].Job.ID)

	empty := CompletedAnalytics(nil, "", false)
	assert.Zero(t, empty.TotalJobs)
	assert.NotNil(t, empty.Jobs)
}

func TestThreadSummaries(t *testing.T) {
	jobs := []models.Job{{ID: "j1", Trade: "鳶", SitePref: "大阪府", SiteCity: "堺市"}}
	threads := []models.Thread{
		{ID: "t1", JobID: "j1", LastMessageAt: 100, UnreadCount: 2},
		{ID: "t2", JobID: "gone", LastMessageAt: 300, UnreadCount: 1},
		{ID: "t3", JobID: "j1", LastMessageAt: 200},
	}

	got := ThreadSummaries(threads, jobs)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"t2", "t3", "t1"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "【鳶】大阪府堺市", got[1].JobTitle)
	assert.Empty(t, got[0].JobTitle)
	assert.Equal(t, 3, TotalUnread(threads))
	assert.Zero(t, TotalUnread(nil))
}
