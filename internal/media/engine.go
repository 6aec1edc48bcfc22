package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Engine relays streams published through it to the subscriptions made
// through it. Subscribing to a publication the engine has not seen yet
// parks the out track until the publication arrives.
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	g      *errgroup.Group

	mu      sync.Mutex
	closed  bool
	relays  map[domain.PublicationID]*Relay
	subs    map[domain.SubscriptionID]subRef
	waiting map[domain.PublicationID][]*OutTrack
}

type subRef struct {
	pid domain.PublicationID
	ot  *OutTrack
}

var _ core.MediaEngine = (*Engine)(nil)

func NewEngine() *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	return &Engine{
		ctx:     ctx,
		cancel:  cancel,
		g:       g,
		relays:  make(map[domain.PublicationID]*Relay),
		subs:    make(map[domain.SubscriptionID]subRef),
		waiting: make(map[domain.PublicationID][]*OutTrack),
	}
}

// Publish starts relaying stream, which must come from NewStream.
func (e *Engine) Publish(pid domain.PublicationID, stream domain.Stream, _ []domain.Encoding) error {
	src, ok := stream.(*Stream)
	if !ok {
		return fmt.Errorf("publish %s: %T is not a media stream: %w", pid, stream, domain.ErrInvalid)
	}
	logger := log.With().Str("module", "media.relay").Str("publication", string(pid)).Logger()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("publish %s: %w", pid, domain.ErrClosed)
	}
	if _, dup := e.relays[pid]; dup {
		e.mu.Unlock()
		return fmt.Errorf("publish %s: %w", pid, domain.ErrDuplicate)
	}
	relayCtx, cancel := context.WithCancel(e.ctx)
	relay := NewRelay(pid, src, cancel, logger)
	for _, ot := range e.waiting[pid] {
		relay.AddOutTrack(ot)
	}
	delete(e.waiting, pid)
	e.relays[pid] = relay
	e.mu.Unlock()

	logger.Info().Msg("starting relay loop")
	e.g.Go(func() error {
		relay.loop(relayCtx)
		return nil
	})
	return nil
}

func (e *Engine) Subscribe(subID domain.SubscriptionID, pid domain.PublicationID, kind domain.ContentType) (domain.Stream, error) {
	s, err := NewStream(string(subID), kind)
	if err != nil {
		return nil, err
	}
	ot := NewOutTrack(subID, s)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("subscribe %s: %w", subID, domain.ErrClosed)
	}
	if _, dup := e.subs[subID]; dup {
		return nil, fmt.Errorf("subscribe %s: %w", subID, domain.ErrDuplicate)
	}
	e.subs[subID] = subRef{pid: pid, ot: ot}
	if relay, ok := e.relays[pid]; ok {
		relay.AddOutTrack(ot)
	} else {
		e.waiting[pid] = append(e.waiting[pid], ot)
	}
	log.Debug().Str("module", "media").Str("subscription", string(subID)).Str("publication", string(pid)).Msg("subscribed")
	return s, nil
}

func (e *Engine) Enable(handle string) error  { return e.setMuted(handle, false) }
func (e *Engine) Disable(handle string) error { return e.setMuted(handle, true) }

func (e *Engine) setMuted(handle string, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if relay, ok := e.relays[domain.PublicationID(handle)]; ok {
		relay.muted.Store(muted)
		return nil
	}
	if ref, ok := e.subs[domain.SubscriptionID(handle)]; ok {
		if muted {
			ref.ot.MarkMuted()
		} else {
			ref.ot.MarkOk()
		}
		return nil
	}
	return fmt.Errorf("handle %s: %w", handle, domain.ErrNotFound)
}

// Cancel stops a relay or detaches a subscriber. Unknown handles are fine:
// a relay that stopped on its own already forgot its tracks.
func (e *Engine) Cancel(handle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if relay, ok := e.relays[domain.PublicationID(handle)]; ok {
		delete(e.relays, domain.PublicationID(handle))
		relay.stop()
		return nil
	}
	if ref, ok := e.subs[domain.SubscriptionID(handle)]; ok {
		delete(e.subs, domain.SubscriptionID(handle))
		ref.ot.MarkDelete()
		if parked := e.waiting[ref.pid]; len(parked) > 0 {
			e.waiting[ref.pid] = removeTrack(parked, ref.ot)
			ref.ot.Stream.Close()
		}
	}
	return nil
}

func (e *Engine) ChangeEncoding(subID domain.SubscriptionID, encodingID string) error {
	e.mu.Lock()
	ref, ok := e.subs[subID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("subscription %s: %w", subID, domain.ErrNotFound)
	}
	ref.ot.setEncoding(encodingID)
	return nil
}

// OutTrack returns the subscriber side of a subscription.
func (e *Engine) OutTrack(subID domain.SubscriptionID) (*OutTrack, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ref, ok := e.subs[subID]
	return ref.ot, ok
}

// PumpRemote copies a track received from a peer into dst until the track
// ends or ctx is done.
func PumpRemote(ctx context.Context, remote *webrtc.TrackRemote, dst *Stream) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return fmt.Errorf("read remote %s: %w", remote.ID(), err)
		}
		if err := dst.WriteRTP(pkt); err != nil {
			if errors.Is(err, ErrStreamClosed) {
				return nil
			}
			return err
		}
	}
}

// Close stops every relay and waits for their loops.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, parked := range e.waiting {
		for _, ot := range parked {
			ot.Stream.Close()
		}
	}
	clear(e.waiting)
	e.mu.Unlock()

	e.cancel()
	done := make(chan error, 1)
	go func() { done <- e.g.Wait() }()
	select {
	case err := <-done:
		log.Info().Str("module", "media").Msg("engine closed")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func removeTrack(list []*OutTrack, ot *OutTrack) []*OutTrack {
	out := list[:0]
	for _, o := range list {
		if o != ot {
			out = append(out, o)
		}
	}
	return out
}
