package repo

import (
	"context"
	"fmt"
	"strings"

	"staffing-board/internal/bus"
	"staffing-board/internal/models"
)

// TestApplicantNames are the names used for simulated applications.
var TestApplicantNames = []string{"田中太郎", "佐藤花子", "鈴木一郎", "山田美香", "高橋健太"}

const (
	testApplicantPhone = "090-1234-5678"
	testApplicantNote  = "テスト応募です"
)

// Applications manages candidates' responses to jobs.
type Applications struct {
	*core
}

// Create stores the application. An APPLIED application also opens a thread
// with the applicant, seeded with a system message. APPLICATION_ADDED is
// emitted for every new application.
func (r *Applications) Create(ctx context.Context, in models.ApplicationInput) (models.Application, error) {
	if strings.TrimSpace(in.ApplicantName) == "" {
		return models.Application{}, fmt.Errorf("create application: applicant name required: %w", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = models.AppApplied
	}
	if !in.Status.Valid() {
		return models.Application{}, fmt.Errorf("create application: %q: %w", in.Status, ErrInvalidStatus)
	}
	if in.TravelMinutes != nil && *in.TravelMinutes < 0 {
		return models.Application{}, fmt.Errorf("create application: negative travel time: %w", ErrInvalidInput)
	}

	r.mu.Lock()
	job, ok := r.findJob(ctx, in.JobID)
	if !ok {
		r.mu.Unlock()
		return models.Application{}, fmt.Errorf("create application: job %s: %w", in.JobID, ErrNotFound)
	}
	app := models.Application{
		ID:            r.newID(),
		JobID:         in.JobID,
		ApplicantName: in.ApplicantName,
		Trade:         in.Trade,
		Pref:          in.Pref,
		City:          in.City,
		Phone:         in.Phone,
		LineID:        in.LineID,
		TravelMinutes: in.TravelMinutes,
		Status:        in.Status,
		Note:          in.Note,
		CreatedAt:     r.nowMillis(),
	}
	if err := put(ctx, r.apps, append(r.apps.GetAll(ctx), app)); err != nil {
		r.mu.Unlock()
		return models.Application{}, fmt.Errorf("create application: %w", err)
	}

	var threadID string
	if app.Status == models.AppApplied {
		t, err := r.createThreadLocked(ctx, job.ID, app.ID, app.ApplicantName, models.Contact{Tel: app.Phone, LineID: app.LineID})
		if err != nil {
			r.mu.Unlock()
			return app, err
		}
		if _, _, err := r.appendLocked(ctx, t.ID, models.RoleSystem, applicationSeedText(app, job)); err != nil {
			r.mu.Unlock()
			return app, err
		}
		threadID = t.ID
	}
	r.mu.Unlock()

	r.logger.Info("application created", "application", app.ID, "job", job.ID, "status", app.Status)
	data := map[string]any{
		"applicationId": app.ID,
		"jobId":         job.ID,
		"jobTitle":      job.Title(),
		"applicantName": app.ApplicantName,
		"status":        string(app.Status),
	}
	if threadID != "" {
		data["threadId"] = threadID
	}
	r.emit(ctx, pendingEvent{bus.ApplicationAdded, data})
	return app, nil
}

func applicationSeedText(app models.Application, job models.Job) string {
	text := fmt.Sprintf("%sさんが「%s」に応募しました", app.ApplicantName, job.Title())
	if app.Note != "" {
		text += "\n" + app.Note
	}
	return text
}

// UpdateStatus moves the application to status and keeps the job's headcount
// in step: entering HIRED fills one seat and marks the job IN_PROGRESS,
// leaving HIRED frees one. Setting the current status again changes nothing.
// It reports false when the application does not exist.
func (r *Applications) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) (models.Application, bool, error) {
	if !status.Valid() {
		return models.Application{}, false, fmt.Errorf("update application %s: %q: %w", id, status, ErrInvalidStatus)
	}

	r.mu.Lock()
	apps := r.apps.GetAll(ctx)
	i := indexOf(apps, id)
	if i < 0 {
		r.mu.Unlock()
		return models.Application{}, false, nil
	}
	app := apps[i]
	old := app.Status
	if old == status {
		r.mu.Unlock()
		return app, true, nil
	}
	app.Status = status
	apps[i] = app
	if err := put(ctx, r.apps, apps); err != nil {
		r.mu.Unlock()
		return models.Application{}, false, fmt.Errorf("update application %s: %w", id, err)
	}

	filled := -1
	if old == models.AppHired || status == models.AppHired {
		job, err := r.adjustHeadcountLocked(ctx, app.JobID, status == models.AppHired)
		if err != nil {
			r.mu.Unlock()
			return app, true, fmt.Errorf("update application %s: %w", id, err)
		}
		if job != nil {
			filled = job.HeadcountFilled
		}
	}
	r.mu.Unlock()

	data := map[string]any{
		"applicationId": app.ID,
		"jobId":         app.JobID,
		"applicantName": app.ApplicantName,
		"oldStatus":     string(old),
		"newStatus":     string(status),
	}
	if filled >= 0 {
		data["headcountFilled"] = filled
	}
	r.emit(ctx, pendingEvent{bus.AppStatusChanged, data})
	return app, true, nil
}

// adjustHeadcountLocked fills or frees one seat. A missing job is skipped.
func (c *core) adjustHeadcountLocked(ctx context.Context, jobID string, hire bool) (*models.Job, error) {
	jobs := c.jobs.GetAll(ctx)
	i := indexOf(jobs, jobID)
	if i < 0 {
		c.logger.Warn("application refers to missing job", "job", jobID)
		return nil, nil
	}
	job := jobs[i]
	if hire {
		job.HeadcountFilled = models.ClampHeadcount(job.HeadcountFilled+1, job.HeadcountNeeded)
		// IN_PROGRESS is not reverted when seats are freed later.
		if job.HeadcountFilled > 0 {
			job.Status = models.JobInProgress
		}
	} else {
		job.HeadcountFilled = models.ClampHeadcount(job.HeadcountFilled-1, job.HeadcountNeeded)
	}
	job.LastUpdatedAt = c.nowMillis()
	jobs[i] = job
	if err := put(ctx, c.jobs, jobs); err != nil {
		return nil, err
	}
	return &job, nil
}

// RecordResponse records a candidate's answer to a job notice: applying
// creates an APPLIED application, declining a REJECTED one.
func (r *Applications) RecordResponse(ctx context.Context, jobID, applicantName string, apply bool) (models.Application, error) {
	status := models.AppRejected
	if apply {
		status = models.AppApplied
	}
	return r.Create(ctx, models.ApplicationInput{
		JobID:         jobID,
		ApplicantName: applicantName,
		Status:        status,
	})
}

// CreateTestApplication simulates an applicant for the job.
func (r *Applications) CreateTestApplication(ctx context.Context, jobID string) (models.Application, error) {
	name := TestApplicantNames[r.pick(len(TestApplicantNames))]
	return r.Create(ctx, models.ApplicationInput{
		JobID:         jobID,
		ApplicantName: name,
		Phone:         testApplicantPhone,
		LineID:        "line_" + string([]rune(name)[:2]),
		Note:          testApplicantNote,
		Status:        models.AppApplied,
	})
}

// Get returns the application with id.
func (r *Applications) Get(ctx context.Context, id string) (models.Application, bool) {
	return r.apps.Find(ctx, id)
}

// List returns every application in stored order.
func (r *Applications) List(ctx context.Context) []models.Application {
	return r.apps.GetAll(ctx)
}

// ForJob returns the job's applications in stored order.
func (r *Applications) ForJob(ctx context.Context, jobID string) []models.Application {
	return filter(r.apps.GetAll(ctx), func(a models.Application) bool { return a.JobID == jobID })
}
