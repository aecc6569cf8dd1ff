// Package jobs holds the two scheduling primitives used for background work:
// a debouncer that collapses bursts of triggers, and a single-slot coalescing
// runner that never queues more than one follow-up pass.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/DeuxFois/papervault/internal/logging"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Snapshot records one execution.
type Snapshot struct {
	ID          string
	Name        string
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Err         string
}

// Task is the unit of work run by a Coalescer.
type Task func(ctx context.Context) error

// Coalescer runs a task with at most one execution in flight. A Run call made
// while the task is running marks one pending pass and returns at once; the
// running caller then executes exactly one more pass under the context of the
// latest requester. Any number of requests during an execution therefore
// collapse into a single follow-up.
type Coalescer struct {
	name   string
	task   Task
	logger *log.Logger

	// OnFinish, when set, observes every completed execution.
	OnFinish func(Snapshot)

	counter int64

	mu         sync.Mutex
	running    bool
	pending    bool
	pendingCtx context.Context
	last       Snapshot
}

// NewCoalescer wraps task under name (used for execution ids and logs).
func NewCoalescer(name string, task Task, logger *log.Logger) *Coalescer {
	return &Coalescer{
		name:   name,
		task:   task,
		logger: logging.OrDiscard(logger).With("component", "jobs"),
	}
}

// Run executes the task or, if it is already running, requests one more
// pass. It returns the error of the last pass this caller executed; callers
// that only registered a pending pass get nil. A follow-up pass is skipped
// only when its requester's context is done.
func (c *Coalescer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.pending = true
		c.pendingCtx = ctx
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	for {
		err := c.execute(ctx)

		c.mu.Lock()
		next := c.pendingCtx
		pending := c.pending
		c.pending = false
		c.pendingCtx = nil
		if !pending || next.Err() != nil {
			c.running = false
			c.mu.Unlock()
			if pending {
				c.logger.Info("follow-up pass dropped", "name", c.name, "err", next.Err())
			}
			return err
		}
		c.mu.Unlock()
		ctx = next
	}
}

// Busy reports whether an execution is in flight.
func (c *Coalescer) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Last returns the most recent completed execution.
func (c *Coalescer) Last() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Coalescer) execute(ctx context.Context) error {
	id := fmt.Sprintf("%s-%d", c.name, atomic.AddInt64(&c.counter, 1))
	started := time.Now()
	c.logger.Debug("job started", "id", id)

	err := c.task(ctx)

	snapshot := Snapshot{
		ID:          id,
		Name:        c.name,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}
	switch {
	case err == nil:
		snapshot.Status = StatusSucceeded
	case errors.Is(err, context.Canceled):
		snapshot.Status = StatusCanceled
		snapshot.Err = err.Error()
	default:
		snapshot.Status = StatusFailed
		snapshot.Err = err.Error()
	}
	snapshot.Duration = snapshot.CompletedAt.Sub(started)

	if snapshot.Status == StatusFailed {
		c.logger.Error("job finished", "id", id, "status", snapshot.Status, "duration", snapshot.Duration, "err", err)
	} else {
		c.logger.Info("job finished", "id", id, "status", snapshot.Status, "duration", snapshot.Duration)
	}

	c.mu.Lock()
	c.last = snapshot
	c.mu.Unlock()
	if c.OnFinish != nil {
		c.OnFinish(snapshot)
	}
	return err
}
