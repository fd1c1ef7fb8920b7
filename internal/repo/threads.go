package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"staffing-board/internal/bus"
	"staffing-board/internal/models"
)

// Threads manages direct-message conversations and their messages.
type Threads struct {
	*core
}

// Create opens an empty thread with counterpart on the job.
func (r *Threads) Create(ctx context.Context, jobID, counterpart string, contact models.Contact) (models.Thread, error) {
	if strings.TrimSpace(counterpart) == "" {
		return models.Thread{}, fmt.Errorf("create thread: counterpart required: %w", ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.findJob(ctx, jobID); !ok {
		return models.Thread{}, fmt.Errorf("create thread: job %s: %w", jobID, ErrNotFound)
	}
	return r.createThreadLocked(ctx, jobID, "", counterpart, contact)
}

func (c *core) createThreadLocked(ctx context.Context, jobID, applicationID, counterpart string, contact models.Contact) (models.Thread, error) {
	t := models.Thread{
		ID:              c.newID(),
		JobID:           jobID,
		ApplicationID:   applicationID,
		CounterpartName: counterpart,
		ContactTel:      contact.Tel,
		ContactLineID:   contact.LineID,
		LastMessageAt:   c.nowMillis(),
	}
	if err := put(ctx, c.threads, append(c.threads.GetAll(ctx), t)); err != nil {
		return models.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return t, nil
}

// AppendMessage adds a message to the thread and updates the thread's
// snapshot. It emits DM_SENT for contractor messages and DM_REPLY otherwise.
// It reports false when the thread does not exist.
func (r *Threads) AppendMessage(ctx context.Context, threadID string, role models.Role, text string) (models.Message, bool, error) {
	if !role.Valid() {
		return models.Message{}, false, fmt.Errorf("append message: %q: %w", role, ErrInvalidRole)
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, false, fmt.Errorf("append message: text required: %w", ErrInvalidInput)
	}

	r.mu.Lock()
	msg, thread, err := r.appendLocked(ctx, threadID, role, text)
	var title string
	if err == nil && msg.ID != "" {
		title = r.jobTitle(ctx, thread.JobID)
	}
	r.mu.Unlock()
	if err != nil {
		return models.Message{}, false, err
	}
	if msg.ID == "" {
		return models.Message{}, false, nil
	}

	typ := bus.DMReply
	if role == models.RoleContractor {
		typ = bus.DMSent
	}
	r.emit(ctx, pendingEvent{typ, map[string]any{
		"threadId":        thread.ID,
		"messageId":       msg.ID,
		"jobId":           thread.JobID,
		"jobTitle":        title,
		"counterpartName": thread.CounterpartName,
		"role":            string(role),
		"text":            text,
		"unreadCount":     thread.UnreadCount,
	}})
	return msg, true, nil
}

// appendLocked writes the message and the thread snapshot. A zero message
// with a nil error means the thread does not exist.
func (c *core) appendLocked(ctx context.Context, threadID string, role models.Role, text string) (models.Message, models.Thread, error) {
	threads := c.threads.GetAll(ctx)
	i := indexOf(threads, threadID)
	if i < 0 {
		return models.Message{}, models.Thread{}, nil
	}
	t := threads[i]

	created := c.nowMillis()
	// Keep messages ordered even if the clock steps back.
	if created < t.LastMessageAt {
		created = t.LastMessageAt
	}
	msg := models.Message{
		ID:        c.newID(),
		ThreadID:  t.ID,
		JobID:     t.JobID,
		Role:      role,
		Text:      text,
		CreatedAt: created,
	}
	if err := put(ctx, c.messages, append(c.messages.GetAll(ctx), msg)); err != nil {
		return models.Message{}, models.Thread{}, fmt.Errorf("append message: %w", err)
	}

	t.LastMessageText = text
	t.LastMessageAt = created
	t.HasReply = t.HasReply || role == models.RoleContractor
	if role == models.RoleCandidate {
		t.UnreadCount++
	}
	threads[i] = t
	if err := put(ctx, c.threads, threads); err != nil {
		return models.Message{}, models.Thread{}, fmt.Errorf("update thread %s: %w", t.ID, err)
	}
	return msg, t, nil
}

// MarkRead clears the unread counter. It reports false for unknown threads.
func (r *Threads) MarkRead(ctx context.Context, threadID string) (models.Thread, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	threads := r.threads.GetAll(ctx)
	i := indexOf(threads, threadID)
	if i < 0 {
		return models.Thread{}, false, nil
	}
	if threads[i].UnreadCount == 0 {
		return threads[i], true, nil
	}
	threads[i].UnreadCount = 0
	if err := put(ctx, r.threads, threads); err != nil {
		return models.Thread{}, false, fmt.Errorf("mark thread %s read: %w", threadID, err)
	}
	return threads[i], true, nil
}

// Get returns the thread with id.
func (r *Threads) Get(ctx context.Context, id string) (models.Thread, bool) {
	return r.threads.Find(ctx, id)
}

// List returns threads in stored order.
func (r *Threads) List(ctx context.Context) []models.Thread {
	return r.threads.GetAll(ctx)
}

// ListByRecency returns threads with the most recent message first.
func (r *Threads) ListByRecency(ctx context.Context) []models.Thread {
	threads := r.threads.GetAll(ctx)
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastMessageAt > threads[j].LastMessageAt
	})
	return threads
}

// ForJob returns the job's threads in stored order.
func (r *Threads) ForJob(ctx context.Context, jobID string) []models.Thread {
	return filter(r.threads.GetAll(ctx), func(t models.Thread) bool { return t.JobID == jobID })
}

// Messages returns the thread's messages, oldest first.
func (r *Threads) Messages(ctx context.Context, threadID string) []models.Message {
	msgs := filter(r.messages.GetAll(ctx), func(m models.Message) bool { return m.ThreadID == threadID })
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })
	return msgs
}

// AllMessages returns every message in stored order.
func (r *Threads) AllMessages(ctx context.Context) []models.Message {
	return r.messages.GetAll(ctx)
}

// GetWithMessages joins the thread with its ordered messages and job title.
func (r *Threads) GetWithMessages(ctx context.Context, id string) (models.ThreadView, bool) {
	t, ok := r.threads.Find(ctx, id)
	if !ok {
		return models.ThreadView{}, false
	}
	return models.ThreadView{
		Thread:   t,
		JobTitle: r.jobTitle(ctx, t.JobID),
		Messages: r.Messages(ctx, id),
	}, true
}
