// Package repo owns the staffing board records: jobs, applications, and the
// threads and messages exchanged with candidates. Every mutation is persisted
// before its event is emitted on the bus.
package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"staffing-board/internal/bus"
	"staffing-board/internal/kvstore"
	"staffing-board/internal/models"
	"staffing-board/internal/telemetry"
)

// Collection names, stored under the store's key prefix.
const (
	JobsCollection         = "jobs"
	ApplicationsCollection = "applications"
	ThreadsCollection      = "threads"
	MessagesCollection     = "messages"
)

var (
	// ErrNotFound is returned when a create refers to a parent that does not exist.
	// Lookups and updates of unknown ids report false instead.
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidRole   = errors.New("invalid role")
)

// Options configures a Repository.
type Options struct {
	Bus    *bus.Bus
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
	// Pick returns a value in [0, n); used to choose test applicant names.
	Pick func(n int) int
}

// Repository groups the record repositories over one store. They share a
// mutex so cross-record side effects apply as one step within the process.
type Repository struct {
	Jobs         *Jobs
	Applications *Applications
	Threads      *Threads

	core *core
}

type core struct {
	mu sync.Mutex

	jobs     *kvstore.Collection[models.Job]
	apps     *kvstore.Collection[models.Application]
	threads  *kvstore.Collection[models.Thread]
	messages *kvstore.Collection[models.Message]

	bus    *bus.Bus
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	pick   func(n int) int
}

// New binds the repositories to store. A nil Options.Bus gets a local bus.
func New(store *kvstore.Store, opts Options) *Repository {
	c := &core{
		jobs:     kvstore.NewCollection[models.Job](store, JobsCollection),
		apps:     kvstore.NewCollection[models.Application](store, ApplicationsCollection),
		threads:  kvstore.NewCollection[models.Thread](store, ThreadsCollection),
		messages: kvstore.NewCollection[models.Message](store, MessagesCollection),
		bus:      opts.Bus,
		logger:   opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		pick:     opts.Pick,
	}
	if c.logger == nil {
		c.logger = telemetry.Discard()
	}
	if c.bus == nil {
		c.bus = bus.New(bus.Options{Logger: c.logger})
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.pick == nil {
		c.pick = rand.Intn
	}
	return &Repository{
		Jobs:         &Jobs{core: c},
		Applications: &Applications{core: c},
		Threads:      &Threads{core: c},
		core:         c,
	}
}

// Bus returns the bus mutations are announced on.
func (r *Repository) Bus() *bus.Bus { return r.core.bus }

func (c *core) nowMillis() int64 { return c.now().UnixMilli() }

// pendingEvent is emitted once the mutex is released so listeners may read back.
type pendingEvent struct {
	typ  bus.EventType
	data map[string]any
}

func (c *core) emit(ctx context.Context, events ...pendingEvent) {
	for _, ev := range events {
		c.bus.Emit(ctx, ev.typ, ev.data)
	}
}

func put[T kvstore.Record](ctx context.Context, coll *kvstore.Collection[T], items []T) error {
	if err := coll.Put(ctx, items); err != nil {
		return fmt.Errorf("save %s: %w", coll.Name(), err)
	}
	return nil
}

func indexOf[T kvstore.Record](items []T, id string) int {
	for i := range items {
		if items[i].RecordID() == id {
			return i
		}
	}
	return -1
}

func (c *core) findJob(ctx context.Context, id string) (models.Job, bool) {
	return c.jobs.Find(ctx, id)
}

// jobTitle resolves a display title, empty when the job is gone.
func (c *core) jobTitle(ctx context.Context, jobID string) string {
	if job, ok := c.findJob(ctx, jobID); ok {
		return job.Title()
	}
	return ""
}
