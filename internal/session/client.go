// Package session is the client SDK: a live object graph of sessions,
// members, publications and subscriptions that stays in sync with a remote
// directory.
//
// Mutating verbs return nil or false on failure; the cause is logged and
// remote failures are also reported to the session's OnError handler.
// Event handlers run on the client's worker pool, never on the goroutine
// that delivered the event.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/jobs"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// Workers bounds the goroutines that run event handlers across all
	// sessions of the client. Zero means GOMAXPROCS.
	Workers int
}

// Client owns what sessions share: the directory, the media engine and the
// worker pool.
type Client struct {
	dir    core.Directory
	engine core.MediaEngine
	pool   *jobs.Pool

	setup atomic.Bool

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// Setup returns a ready client. engine may be nil for clients that only
// deal with metadata.
func Setup(dir core.Directory, engine core.MediaEngine, opts Options) *Client {
	c := &Client{
		dir:      dir,
		engine:   engine,
		pool:     jobs.NewPool(opts.Workers),
		sessions: make(map[*Session]struct{}),
	}
	c.setup.Store(true)
	log.Info().Str("module", "session").Int("workers", opts.Workers).Msg("client set up")
	return c
}

func (c *Client) IsSetup() bool { return c != nil && c.setup.Load() }

// Dispose disposes every open session, waits for their handlers and stops
// the pool. It must not be called from inside an event handler.
func (c *Client) Dispose() {
	if !c.setup.Swap(false) {
		return
	}
	c.mu.Lock()
	open := make([]*Session, 0, len(c.sessions))
	for s := range c.sessions {
		open = append(open, s)
	}
	c.mu.Unlock()

	for _, s := range open {
		<-s.Dispose()
	}
	c.pool.Close()
	log.Info().Str("module", "session").Int("sessions", len(open)).Msg("client disposed")
}

func (c *Client) Create(ctx context.Context, name, metadata string) *Session {
	if !c.guard("create") {
		return nil
	}
	if name != "" {
		if err := domain.ValidateName(name); err != nil {
			log.Warn().Str("module", "session").Err(err).Msg("create: invalid name")
			return nil
		}
	}
	if err := domain.ValidateMetadata(metadata); err != nil {
		log.Warn().Str("module", "session").Err(err).Msg("create: invalid metadata")
		return nil
	}
	d, err := c.dir.Create(ctx, name, metadata)
	if err != nil {
		log.Error().Str("module", "session").Err(err).Str("name", name).Msg("create failed")
		return nil
	}
	return c.open(d)
}

func (c *Client) Find(ctx context.Context, q domain.SessionQuery) *Session {
	if !c.guard("find") {
		return nil
	}
	if q.IsZero() {
		log.Warn().Str("module", "session").Msg("find: empty query")
		return nil
	}
	d, err := c.dir.Find(ctx, q)
	if err != nil {
		ev := log.Error()
		if domain.CodeOf(err) == domain.CodeNotFound {
			ev = log.Debug()
		}
		ev.Str("module", "session").Err(err).Str("id", string(q.ID)).Str("name", q.Name).Msg("find failed")
		return nil
	}
	return c.open(d)
}

func (c *Client) FindOrCreate(ctx context.Context, name, metadata string) *Session {
	if !c.guard("find_or_create") {
		return nil
	}
	if err := domain.ValidateMemberName(name, true); err != nil {
		log.Warn().Str("module", "session").Err(err).Msg("find_or_create: invalid name")
		return nil
	}
	d, err := c.dir.FindOrCreate(ctx, name, metadata)
	if err != nil {
		log.Error().Str("module", "session").Err(err).Str("name", name).Msg("find_or_create failed")
		return nil
	}
	return c.open(d)
}

// open builds a session object from a snapshot and starts watching it.
// Every call yields an independent object with its own cache.
func (c *Client) open(d *domain.SessionDescriptor) *Session {
	s := newSession(c, d)
	if err := s.watch(); err != nil {
		log.Error().Str("module", "session").Err(err).Str("session", string(d.ID)).Msg("watch failed")
		<-s.Dispose()
		return nil
	}
	c.mu.Lock()
	c.sessions[s] = struct{}{}
	c.mu.Unlock()
	return s
}

func (c *Client) forget(s *Session) {
	c.mu.Lock()
	delete(c.sessions, s)
	c.mu.Unlock()
}

func (c *Client) guard(op string) bool {
	if c.IsSetup() {
		return true
	}
	log.Warn().Str("module", "session").Str("op", op).Err(domain.ErrNotSetup).Msg("client is not set up")
	return false
}
