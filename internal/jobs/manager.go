// Package jobs tracks asynchronous work spawned on a shared scheduler so a
// later TerminateAll can drain exactly the work registered before it.
package jobs

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job is a handle on one tracked unit of work.
type Job struct {
	id   uint64
	done chan struct{}
}

// Done is closed once the work returned, panicked or was skipped.
func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) Wait() { <-j.done }

// Manager launches work on a Scheduler and remembers it until it finishes.
type Manager struct {
	sched  Scheduler
	logger zerolog.Logger

	mu         sync.Mutex
	terminated bool
	nextID     uint64
	jobs       map[uint64]*Job
}

func NewManager(name string, sched Scheduler) *Manager {
	if sched == nil {
		sched = GoScheduler{}
	}
	return &Manager{
		sched:  sched,
		logger: log.With().Str("module", "jobs").Str("manager", name).Logger(),
		jobs:   make(map[uint64]*Job),
	}
}

// Launch schedules work and returns its handle, or nil once TerminateAll has
// begun. The job is registered before Launch returns, so a concurrent
// TerminateAll either rejects it or waits for it.
func (m *Manager) Launch(ctx context.Context, work func(ctx context.Context)) *Job {
	m.mu.Lock()
	if m.terminated {
		m.mu.Unlock()
		m.logger.Debug().Msg("launch rejected, manager terminated")
		return nil
	}
	m.nextID++
	j := &Job{id: m.nextID, done: make(chan struct{})}
	m.jobs[j.id] = j
	m.mu.Unlock()

	jobCtx := withJob(ctx, j)
	m.sched.Go(func() {
		defer m.finish(j)
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Uint64("job", j.id).
					Msg("job panicked")
			}
		}()
		work(jobCtx)
	})
	return j
}

func (m *Manager) finish(j *Job) {
	m.mu.Lock()
	delete(m.jobs, j.id)
	m.mu.Unlock()
	close(j.done)
}

// TerminateAll rejects further launches and blocks until every job tracked
// at that moment has finished. Running work is not interrupted. When called
// from inside one of this manager's jobs, that job is not waited on.
// It returns ctx.Err() if ctx ends before the drain completes.
func (m *Manager) TerminateAll(ctx context.Context) error {
	m.mu.Lock()
	m.terminated = true
	pending := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if runningIn(ctx, j) {
			continue
		}
		pending = append(pending, j)
	}
	m.mu.Unlock()

	m.logger.Debug().Int("pending", len(pending)).Msg("draining jobs")
	for _, j := range pending {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	clear(m.jobs)
	m.mu.Unlock()
	return nil
}

// Terminated reports whether TerminateAll has begun.
func (m *Manager) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

type jobKey struct{}

// jobChain records every job a context is running inside, innermost first.
type jobChain struct {
	job    *Job
	parent *jobChain
}

func withJob(ctx context.Context, j *Job) context.Context {
	parent, _ := ctx.Value(jobKey{}).(*jobChain)
	return context.WithValue(ctx, jobKey{}, &jobChain{job: j, parent: parent})
}

func runningIn(ctx context.Context, j *Job) bool {
	for c, _ := ctx.Value(jobKey{}).(*jobChain); c != nil; c = c.parent {
		if c.job == j {
			return true
		}
	}
	return false
}
