package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Notifier receives every event the orchestrator produces.
type Notifier interface {
	Notify(ev domain.Event)
}

type watcher struct {
	id    uint64
	sid   domain.SessionID
	sink  core.EventSink
	queue chan domain.Event

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (w *watcher) pump() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case ev := <-w.queue:
			w.sink(ev)
		}
	}
}

func (w *watcher) halt() { w.stopOnce.Do(func() { close(w.stop) }) }

// Registry fans events out to the watchers of each session. Every watcher
// has its own queue and goroutine, so sinks always run on a goroutine they
// do not own and a slow sink only affects itself.
type Registry struct {
	buffer int
	policy Policy
	nextID atomic.Uint64

	mu       sync.RWMutex
	watchers map[domain.SessionID]map[uint64]*watcher
}

func NewRegistry(buffer int, policy Policy) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Registry{
		buffer:   buffer,
		policy:   policy,
		watchers: make(map[domain.SessionID]map[uint64]*watcher),
	}
}

// Watch registers sink for the session's events. unwatch is idempotent and
// does not wait for an in-flight sink call.
func (r *Registry) Watch(sid domain.SessionID, sink core.EventSink) (unwatch func()) {
	w := &watcher{
		id:    r.nextID.Add(1),
		sid:   sid,
		sink:  sink,
		queue: make(chan domain.Event, r.buffer),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	r.mu.Lock()
	set, ok := r.watchers[sid]
	if !ok {
		set = make(map[uint64]*watcher)
		r.watchers[sid] = set
	}
	set[w.id] = w
	r.mu.Unlock()

	go w.pump()
	log.Debug().Str("module", "app.registry").Str("session", string(sid)).Uint64("watcher", w.id).Msg("watch")
	return func() { r.remove(w) }
}

func (r *Registry) Notify(ev domain.Event) {
	var slow []*watcher

	r.mu.RLock()
	for _, w := range r.watchers[ev.SessionID] {
		select {
		case w.queue <- ev:
		default:
			slow = append(slow, w)
		}
	}
	r.mu.RUnlock()

	for _, w := range slow {
		switch r.policy.OnBackPressure(ev.SessionID, ev) {
		case Unwatch:
			log.Warn().
				Str("module", "app.registry").
				Str("session", string(ev.SessionID)).
				Uint64("watcher", w.id).
				Msg("watcher too slow, detached")
			r.remove(w)
		case DropEvent:
			log.Warn().
				Str("module", "app.registry").
				Str("session", string(ev.SessionID)).
				Uint64("watcher", w.id).
				Str("event", string(ev.Type)).
				Msg("watcher queue full, event dropped")
		}
	}
}

// Watchers returns how many watchers the session has.
func (r *Registry) Watchers(sid domain.SessionID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watchers[sid])
}

// Forget detaches every watcher of a session.
func (r *Registry) Forget(sid domain.SessionID) {
	r.mu.Lock()
	set := r.watchers[sid]
	delete(r.watchers, sid)
	r.mu.Unlock()
	for _, w := range set {
		w.halt()
	}
}

// Close detaches all watchers and waits for their pumps to return.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	all := r.watchers
	r.watchers = make(map[domain.SessionID]map[uint64]*watcher)
	r.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, set := range all {
		for _, w := range set {
			w.halt()
			g.Go(func() error {
				select {
				case <-w.done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		}
	}
	return g.Wait()
}

func (r *Registry) remove(w *watcher) {
	r.mu.Lock()
	if set, ok := r.watchers[w.sid]; ok {
		delete(set, w.id)
		if len(set) == 0 {
			delete(r.watchers, w.sid)
		}
	}
	r.mu.Unlock()
	w.halt()
}
