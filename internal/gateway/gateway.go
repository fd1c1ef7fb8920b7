// Package gateway pushes job notices to candidates over a messaging channel.
package gateway

import (
	"context"
	"errors"

	"staffing-board/internal/models"
)

// ErrNoRecipient is returned when a push has no destination.
var ErrNoRecipient = errors.New("gateway: no recipient")

// Notice carries the display fields of a job notice.
type Notice struct {
	JobID    string
	Title    string
	Trade    string
	Location string
	Start    string
	End      string
	Salary   string
	Summary  string
	Tel      string
}

// NoticeFromJob copies a job's display fields.
func NoticeFromJob(j models.Job) Notice {
	return Notice{
		JobID:    j.ID,
		Title:    j.Title(),
		Trade:    j.Trade,
		Location: j.Location(),
		Start:    j.StartDate,
		End:      j.EndDate,
		Salary:   j.Salary(),
		Summary:  j.Summary,
		Tel:      j.Tel,
	}
}

// Gateway sends notices and plain text to one recipient.
type Gateway interface {
	Push(ctx context.Context, to string, n Notice) error
	PushText(ctx context.Context, to, text string) error
}

// NeedsRecipient reports whether pushes through g must name a recipient.
// Gateways with a configured default destination report false.
func NeedsRecipient(g Gateway) bool {
	d, ok := g.(interface{ HasDefaultRecipient() bool })
	return !ok || !d.HasDefaultRecipient()
}
