// Package wsdir is a core.Directory that talks to a remote directory over
// the signal websocket protocol.
package wsdir

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicesync/internal/adapters/signal"
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Transport transport.Options
	// WatchTimeout bounds the watch request, which has no caller context.
	WatchTimeout time.Duration
}

type reply struct {
	env signal.Envelope
	err error
}

// watchSet is every local sink of one session. ready closes once the
// server answered the watch request; err is its outcome.
type watchSet struct {
	sinks map[uint64]core.EventSink
	ready chan struct{}
	err   error
}

type Directory struct {
	client *transport.Client
	opts   Options
	logger zerolog.Logger

	mu        sync.Mutex
	closed    bool
	pending   map[string]chan reply
	watchers  map[domain.SessionID]*watchSet
	nextWatch uint64
}

var _ core.Directory = (*Directory)(nil)

func Dial(ctx context.Context, url string, opts Options) (*Directory, error) {
	if opts.WatchTimeout <= 0 {
		opts.WatchTimeout = 10 * time.Second
	}
	d := &Directory{
		opts:     opts,
		logger:   log.With().Str("module", "wsdir").Str("url", url).Logger(),
		pending:  make(map[string]chan reply),
		watchers: make(map[domain.SessionID]*watchSet),
	}
	c, err := transport.Dial(ctx, url, transport.Listener{
		OnMessage: d.onMessage,
		OnClose:   d.onClose,
		OnError: func(_ context.Context, err error) {
			d.logger.Error().Err(err).Msg("transport error")
		},
	}, opts.Transport)
	if err != nil {
		return nil, err
	}
	d.client = c
	return d, nil
}

// Shutdown fails pending requests and tears the connection down after the
// message being handled, if any, is done.
func (d *Directory) Shutdown(ctx context.Context) error {
	d.failPending(transport.ErrClosed)
	return d.client.Close(ctx, transport.CloseTeardown)
}

func (d *Directory) request(ctx context.Context, method string, params *signal.Params, out any) error {
	id := uuid.NewString()
	ch := make(chan reply, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("%s: %w", method, transport.ErrClosed)
	}
	d.pending[id] = ch
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	if err := d.client.SendJSON(signal.Envelope{Type: signal.TypeRequest, ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("%s: %w", method, r.err)
		}
		if !r.env.OK {
			if r.env.Error == nil {
				return &domain.RemoteError{Code: domain.CodeInternal, Message: method + " failed"}
			}
			return r.env.Error
		}
		if out != nil && len(r.env.Result) > 0 {
			if err := json.Unmarshal(r.env.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	}
}

func (d *Directory) onMessage(_ context.Context, data []byte) {
	var env signal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		d.logger.Error().Err(err).Msg("bad json")
		return
	}
	switch env.Type {
	case signal.TypeResponse:
		d.mu.Lock()
		ch, ok := d.pending[env.ID]
		delete(d.pending, env.ID)
		d.mu.Unlock()
		if !ok {
			d.logger.Debug().Str("id", env.ID).Msg("response without a waiter")
			return
		}
		ch <- reply{env: env}
	case signal.TypeEvent:
		if env.Event == nil {
			return
		}
		for _, sink := range d.sinks(env.Event.SessionID) {
			sink(*env.Event)
		}
	case signal.TypePong:
	default:
		d.logger.Warn().Str("type", env.Type).Msg("unknown frame")
	}
}

func (d *Directory) onClose(_ context.Context, code int, text string) {
	d.logger.Info().Int("code", code).Str("text", text).Msg("connection closed")
	d.failPending(transport.ErrClosed)
}

func (d *Directory) failPending(err error) {
	d.mu.Lock()
	d.closed = true
	pending := d.pending
	d.pending = make(map[string]chan reply)
	d.mu.Unlock()
	for _, ch := range pending {
		ch <- reply{err: err}
	}
}

func (d *Directory) sinks(sid domain.SessionID) []core.EventSink {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.watchers[sid]
	if set == nil {
		return nil
	}
	out := make([]core.EventSink, 0, len(set.sinks))
	for _, s := range set.sinks {
		out = append(out, s)
	}
	return out
}

// Watch asks the server for the session's events once, however many local
// sinks watch it. Callers that arrive while that request is in flight wait
// for its answer and share its failure. Sinks run on the connection's
// callback goroutine and must not block.
func (d *Directory) Watch(sid domain.SessionID, sink core.EventSink) (func(), error) {
	d.mu.Lock()
	set := d.watchers[sid]
	first := set == nil
	if first {
		set = &watchSet{sinks: make(map[uint64]core.EventSink), ready: make(chan struct{})}
		d.watchers[sid] = set
	}
	d.nextWatch++
	id := d.nextWatch
	set.sinks[id] = sink
	d.mu.Unlock()

	if first {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.WatchTimeout)
		err := d.request(ctx, signal.MethodWatch, &signal.Params{SessionID: sid}, nil)
		cancel()
		d.mu.Lock()
		set.err = err
		if err != nil && d.watchers[sid] == set {
			delete(d.watchers, sid)
		}
		d.mu.Unlock()
		close(set.ready)
	} else {
		<-set.ready
	}
	if set.err != nil {
		return nil, set.err
	}

	var once sync.Once
	return func() { once.Do(func() { d.unwatch(sid, id) }) }, nil
}

// unwatch does not wait for the server, so it is safe from event handlers.
func (d *Directory) unwatch(sid domain.SessionID, id uint64) {
	d.mu.Lock()
	set := d.watchers[sid]
	if set == nil {
		d.mu.Unlock()
		return
	}
	delete(set.sinks, id)
	last := len(set.sinks) == 0
	if last {
		delete(d.watchers, sid)
	}
	closed := d.closed
	d.mu.Unlock()

	if !last || closed {
		return
	}
	env := signal.Envelope{Type: signal.TypeRequest, ID: uuid.NewString(), Method: signal.MethodUnwatch, Params: &signal.Params{SessionID: sid}}
	if err := d.client.SendJSON(env); err != nil {
		d.logger.Debug().Err(err).Str("session", string(sid)).Msg("unwatch not sent")
	}
}
