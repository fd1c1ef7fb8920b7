// Package views derives display values from stored records. Everything here
// is a pure function of its inputs.
package views

import (
	"fmt"
	"math"
	"time"
)

const dateLayout = "2006-01-02"

// DefaultDisplayZone is where dates are shown to contractors.
var DefaultDisplayZone = time.FixedZone("JST", 9*60*60)

// ParseDate reads a calendar date ("2006-01-02") or an RFC 3339 timestamp
// and returns midnight UTC of that calendar day.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// StartDeadline is the last day to confirm workers: startDate minus
// bufferDays, computed on the UTC calendar.
func StartDeadline(startDate string, bufferDays int) (time.Time, error) {
	start, err := ParseDate(startDate)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 0, -bufferDays), nil
}

// FormatDeadline renders a deadline from StartDeadline as a calendar date in loc.
// The calendar day is kept; only the zone label changes.
func FormatDeadline(deadline time.Time, loc *time.Location) string {
	if loc == nil {
		loc = DefaultDisplayZone
	}
	y, m, d := deadline.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Format("2006/1/2")
}

// FromNow renders t relative to now.
func FromNow(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d < 7*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	}
	return t.UTC().Format(dateLayout)
}

// FromNowMillis is FromNow for stored millisecond timestamps.
func FromNowMillis(ms int64, now time.Time) string {
	return FromNow(time.UnixMilli(ms), now)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// LastSeen renders a roster last-seen time the way the candidate list shows it.
func LastSeen(lastSeenAt string, now time.Time, loc *time.Location) string {
	if lastSeenAt == "" {
		return "不明"
	}
	t, err := time.Parse(time.RFC3339, lastSeenAt)
	if err != nil {
		return "不明"
	}
	hours := int(now.Sub(t) / time.Hour)
	switch {
	case hours < 1:
		return "1時間以内"
	case hours < 24:
		return fmt.Sprintf("%d時間前", hours)
	case hours < 7*24:
		return fmt.Sprintf("%d日前", hours/24)
	}
	if loc == nil {
		loc = DefaultDisplayZone
	}
	return t.In(loc).Format("1/2")
}

// DurationDays is the whole number of days between two dates, rounded up.
func DurationDays(startDate, endDate string) (int, error) {
	start, err := ParseDate(startDate)
	if err != nil {
		return 0, err
	}
	end, err := ParseDate(endDate)
	if err != nil {
		return 0, err
	}
	days := math.Abs(end.Sub(start).Hours()) / 24
	return int(math.Ceil(days)), nil
}
