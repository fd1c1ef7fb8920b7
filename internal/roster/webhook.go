package roster

import (
	"context"
	"fmt"
	"time"

	"staffing-board/internal/gateway"
	"staffing-board/internal/models"
	"staffing-board/internal/telemetry"
)

// WelcomeText is pushed to every new follower.
const WelcomeText = "職人募集アプリにご登録いただきありがとうございます！\n\n今後、あなたのスキルに合った求人情報をお送りいたします。"

// Defaults for candidates created by a follow event, until they fill in
// their profile.
const (
	defaultTrade = "大工"
	defaultPref  = "東京"
	defaultCity  = "品川区"
)

// WebhookBody is the payload of a LINE webhook call.
type WebhookBody struct {
	Events []WebhookEvent `json:"events"`
}

// WebhookEvent is one LINE webhook event.
type WebhookEvent struct {
	Type   string `json:"type"`
	Source struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	} `json:"source"`
	Message *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message,omitempty"`
	Timestamp int64 `json:"timestamp"`
}

// Text returns the message text of a text message event.
func (e WebhookEvent) Text() string {
	if e.Message == nil || e.Message.Type != "text" {
		return ""
	}
	return e.Message.Text
}

// HandleEvents applies follow, message and unfollow events to the roster.
// Events without a user id and other event types are ignored.
func (r *Roster) HandleEvents(ctx context.Context, events []WebhookEvent) error {
	for _, ev := range events {
		userID := ev.Source.UserID
		if userID == "" {
			continue
		}
		var err error
		switch ev.Type {
		case "follow":
			err = r.follow(ctx, userID)
		case "message":
			err = r.message(ctx, userID, ev.Text())
		case "unfollow":
			err = r.block(ctx, userID)
		default:
			r.logger.Debug("ignoring webhook event", "type", ev.Type)
		}
		if err != nil {
			return fmt.Errorf("handle %s event: %w", ev.Type, err)
		}
	}
	return nil
}

func (r *Roster) follow(ctx context.Context, userID string) error {
	seen := r.now().UTC().Format(time.RFC3339)
	r.mu.Lock()
	c, exists := r.workers.Find(ctx, userID)
	if exists {
		c.Status = models.CandidateActive
		c.LastSeenAt = seen
	} else {
		c = models.Candidate{
			ID:         userID,
			Name:       "候補者" + prefix(userID, 8),
			Trade:      defaultTrade,
			Pref:       defaultPref,
			City:       defaultCity,
			Status:     models.CandidateActive,
			Source:     "line",
			LastSeenAt: seen,
		}
	}
	_, err := r.upsertLocked(ctx, c)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.logger.Info("candidate followed", "candidate", MaskUserID(userID), "new", !exists)

	if r.gateway != nil {
		if err := r.gateway.PushText(ctx, userID, WelcomeText); err != nil {
			r.logger.Warn("welcome message failed", "candidate", MaskUserID(userID), "err", err)
		}
	}
	return nil
}

// message refreshes a known candidate's lastSeenAt and counts replies that
// carry the apply button text.
func (r *Roster) message(ctx context.Context, userID, text string) error {
	known, err := r.touch(ctx, userID)
	if err != nil || !known {
		return err
	}
	if gateway.IsApplyReply(text) {
		telemetry.ApplyReplies.Inc()
		r.logger.Info("apply reply received", "candidate", MaskUserID(userID))
	}
	return nil
}

func (r *Roster) touch(ctx context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.workers.Find(ctx, userID)
	if !ok {
		return false, nil
	}
	c.LastSeenAt = r.now().UTC().Format(time.RFC3339)
	_, err := r.upsertLocked(ctx, c)
	return true, err
}

func (r *Roster) block(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.workers.Find(ctx, userID)
	if !ok {
		return nil
	}
	c.Status = models.CandidateBlocked
	_, err := r.upsertLocked(ctx, c)
	if err == nil {
		r.logger.Info("candidate unfollowed", "candidate", MaskUserID(userID))
	}
	return err
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) < n {
		return s
	}
	return string(runes[:n])
}
