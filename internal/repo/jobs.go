package repo

import (
	"context"
	"fmt"

	"staffing-board/internal/bus"
	"staffing-board/internal/models"
)

// Jobs manages staffing requests.
type Jobs struct {
	*core
}

// Create stores a new OPEN job and emits JOB_PUBLISHED.
func (r *Jobs) Create(ctx context.Context, in models.JobInput) (models.Job, error) {
	if in.Trade == "" {
		return models.Job{}, fmt.Errorf("create job: trade required: %w", ErrInvalidInput)
	}
	if in.HeadcountNeeded < 1 {
		return models.Job{}, fmt.Errorf("create job: headcount must be at least 1: %w", ErrInvalidInput)
	}

	r.mu.Lock()
	now := r.nowMillis()
	job := models.Job{
		ID:              r.newID(),
		Trade:           in.Trade,
		SitePref:        in.SitePref,
		SiteCity:        in.SiteCity,
		Summary:         in.Summary,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		SalaryBand:      in.SalaryBand,
		SalaryNote:      in.SalaryNote,
		Tel:             in.Tel,
		HeadcountNeeded: in.HeadcountNeeded,
		Status:          models.JobOpen,
		CreatedAt:       now,
		LastUpdatedAt:   now,
	}
	err := put(ctx, r.jobs, append(r.jobs.GetAll(ctx), job))
	r.mu.Unlock()
	if err != nil {
		return models.Job{}, fmt.Errorf("create job: %w", err)
	}

	r.logger.Info("job created", "job", job.ID, "trade", job.Trade)
	r.emit(ctx, pendingEvent{bus.JobPublished, jobPublishedData(job)})
	return job, nil
}

func jobPublishedData(job models.Job) map[string]any {
	return map[string]any{
		"id":       job.ID,
		"title":    job.Title(),
		"summary":  job.Summary,
		"trade":    job.Trade,
		"location": job.Location(),
		"salary":   job.Salary(),
		"period":   job.Period(),
	}
}

// Update merges patch into the job and refreshes lastUpdatedAt. It emits no
// event; callers announce domain changes themselves.
func (r *Jobs) Update(ctx context.Context, id string, patch models.JobPatch) (models.Job, bool, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return models.Job{}, false, fmt.Errorf("update job %s: %q: %w", id, *patch.Status, ErrInvalidStatus)
	}
	if patch.HeadcountNeeded != nil && *patch.HeadcountNeeded < 1 {
		return models.Job{}, false, fmt.Errorf("update job %s: headcount must be at least 1: %w", id, ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := r.jobs.GetAll(ctx)
	i := indexOf(jobs, id)
	if i < 0 {
		return models.Job{}, false, nil
	}
	updated := patch.Apply(jobs[i])
	updated.LastUpdatedAt = r.nowMillis()
	jobs[i] = updated
	if err := put(ctx, r.jobs, jobs); err != nil {
		return models.Job{}, false, fmt.Errorf("update job %s: %w", id, err)
	}
	return updated, true, nil
}

// Delete removes the job with its applications, threads and messages.
// It reports false when no job had the id.
func (r *Jobs) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := r.jobs.GetAll(ctx)
	i := indexOf(jobs, id)
	if i < 0 {
		return false, nil
	}
	if err := put(ctx, r.jobs, append(jobs[:i], jobs[i+1:]...)); err != nil {
		return false, fmt.Errorf("delete job %s: %w", id, err)
	}

	apps := filter(r.apps.GetAll(ctx), func(a models.Application) bool { return a.JobID != id })
	threads := filter(r.threads.GetAll(ctx), func(t models.Thread) bool { return t.JobID != id })
	messages := filter(r.messages.GetAll(ctx), func(m models.Message) bool { return m.JobID != id })
	if err := put(ctx, r.apps, apps); err != nil {
		return true, fmt.Errorf("delete job %s: %w", id, err)
	}
	if err := put(ctx, r.threads, threads); err != nil {
		return true, fmt.Errorf("delete job %s: %w", id, err)
	}
	if err := put(ctx, r.messages, messages); err != nil {
		return true, fmt.Errorf("delete job %s: %w", id, err)
	}
	r.logger.Info("job deleted", "job", id)
	return true, nil
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := items[:0]
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Get returns the job with id.
func (r *Jobs) Get(ctx context.Context, id string) (models.Job, bool) {
	return r.findJob(ctx, id)
}

// List returns every job in stored order.
func (r *Jobs) List(ctx context.Context) []models.Job {
	return r.jobs.GetAll(ctx)
}

// RecordNotification counts a successful push for the job, logs it on every
// thread of the job and emits JOB_NOTIFIED.
func (r *Jobs) RecordNotification(ctx context.Context, id string) (models.Job, bool, error) {
	r.mu.Lock()
	jobs := r.jobs.GetAll(ctx)
	i := indexOf(jobs, id)
	if i < 0 {
		r.mu.Unlock()
		return models.Job{}, false, nil
	}
	job := jobs[i]
	job.NotifyCount++
	job.LastUpdatedAt = r.nowMillis()
	jobs[i] = job
	if err := put(ctx, r.jobs, jobs); err != nil {
		r.mu.Unlock()
		return models.Job{}, false, fmt.Errorf("record notification %s: %w", id, err)
	}

	text := fmt.Sprintf("募集通知を送信（%d回目）", job.NotifyCount)
	logged := 0
	for _, t := range r.threads.GetAll(ctx) {
		if t.JobID != id {
			continue
		}
		if _, _, err := r.appendLocked(ctx, t.ID, models.RoleSystem, text); err != nil {
			r.mu.Unlock()
			return job, true, fmt.Errorf("record notification %s: %w", id, err)
		}
		logged++
	}
	r.mu.Unlock()

	r.emit(ctx, pendingEvent{bus.JobNotified, map[string]any{
		"id":          job.ID,
		"title":       job.Title(),
		"trade":       job.Trade,
		"location":    job.Location(),
		"notifyCount": job.NotifyCount,
		"threads":     logged,
	}})
	return job, true, nil
}
