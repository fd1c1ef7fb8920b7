// Package notify pushes job notices to candidates and records each push on
// the job.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"staffing-board/internal/gateway"
	"staffing-board/internal/ratelimit"
	"staffing-board/internal/repo"
	"staffing-board/internal/telemetry"
)

var (
	// ErrRateLimited is returned when the job has been pushed too often.
	ErrRateLimited = errors.New("notify: rate limited")
	// ErrPushFailed wraps gateway errors.
	ErrPushFailed = errors.New("notify: push failed")
)

// Limiter admits or rejects a push for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Service sends job notices through a gateway.
type Service struct {
	repo    *repo.Repository
	gateway gateway.Gateway
	limiter Limiter
	logger  *slog.Logger
}

// New returns a Service. limiter may be nil to disable throttling.
func New(r *repo.Repository, gw gateway.Gateway, limiter Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Service{repo: r, gateway: gw, limiter: limiter, logger: logger}
}

// NotifyJob pushes the job's notice to the recipient and, once the gateway
// accepts it, records the notification. A failed push records nothing and is
// not retried. A blank recipient is rejected before the limiter is consulted
// unless the gateway has a default one.
func (s *Service) NotifyJob(ctx context.Context, jobID, to string) (int, error) {
	job, ok := s.repo.Jobs.Get(ctx, jobID)
	if !ok {
		return 0, fmt.Errorf("notify job %s: %w", jobID, repo.ErrNotFound)
	}
	to = strings.TrimSpace(to)
	if to == "" && gateway.NeedsRecipient(s.gateway) {
		return job.NotifyCount, fmt.Errorf("notify job %s: recipient required: %w", jobID, repo.ErrInvalidInput)
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(ctx, ratelimit.NotifyKey(jobID))
		if err != nil {
			// An unreachable limiter does not block pushes.
			s.logger.Warn("rate limiter unavailable", "job", jobID, "err", err)
		} else if !allowed {
			telemetry.RateLimitRejects.Inc()
			return job.NotifyCount, fmt.Errorf("notify job %s: %w", jobID, ErrRateLimited)
		}
	}

	if err := s.gateway.Push(ctx, to, gateway.NoticeFromJob(job)); err != nil {
		if errors.Is(err, gateway.ErrNoRecipient) {
			return job.NotifyCount, fmt.Errorf("notify job %s: %w: %w", jobID, repo.ErrInvalidInput, err)
		}
		telemetry.NotifyFailures.Inc()
		s.logger.Error("push failed", "job", jobID, "err", err)
		return job.NotifyCount, fmt.Errorf("notify job %s: %w: %w", jobID, ErrPushFailed, err)
	}
	telemetry.NotifySent.Inc()

	updated, ok, err := s.repo.Jobs.RecordNotification(ctx, jobID)
	if err != nil {
		return job.NotifyCount, fmt.Errorf("notify job %s: %w", jobID, err)
	}
	if !ok {
		// Deleted while the push was in flight.
		return job.NotifyCount, fmt.Errorf("notify job %s: %w", jobID, repo.ErrNotFound)
	}
	s.logger.Info("job notified", "job", jobID, "count", updated.NotifyCount)
	return updated.NotifyCount, nil
}
