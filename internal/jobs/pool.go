package jobs

import (
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Scheduler runs work on some goroutine other than the caller's.
type Scheduler interface {
	Go(func())
}

// Pool is the shared multi-worker scheduler. Go never blocks the caller:
// work waits for a free worker on its own goroutine. Submission order is
// not kept; callers that need ordering queue the work themselves.
type Pool struct {
	p *pool.Pool

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

var _ Scheduler = (*Pool)(nil)

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{p: pool.New().WithMaxGoroutines(workers)}
}

func (p *Pool) Go(f func()) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		// Late work still runs so a tracked job can never be stranded.
		go f()
		return
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.p.Go(f)
	}()
}

// Close waits for the workers to drain. Every Manager using the pool must
// be terminated first.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait()
	p.p.Wait()
}

// GoScheduler starts a bare goroutine per unit of work.
type GoScheduler struct{}

func (GoScheduler) Go(f func()) { go f() }
