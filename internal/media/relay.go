package media

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Relay copies a published stream into its out tracks.
type Relay struct {
	pid    domain.PublicationID
	Src    *Stream
	muted  atomic.Bool
	logger zerolog.Logger

	mu        sync.RWMutex
	outTracks map[domain.SubscriptionID]*OutTrack

	cancel context.CancelFunc
}

func NewRelay(pid domain.PublicationID, src *Stream, cancel context.CancelFunc, logger zerolog.Logger) *Relay {
	return &Relay{
		pid:       pid,
		Src:       src,
		logger:    logger,
		outTracks: make(map[domain.SubscriptionID]*OutTrack),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the source stream and forwards them to all
// out tracks until ctx ends or the source closes.
func (r *Relay) loop(ctx context.Context) {
	for {
		pkt, err := r.Src.ReadRTP(ctx)
		if err != nil {
			if errors.Is(err, ErrStreamClosed) || errors.Is(err, context.Canceled) {
				r.logger.Info().Msg("relay stopped, marking all out tracks for delete")
			} else {
				r.logger.Error().Err(err).Msg("relay read RTP error, stopping")
			}
			r.markAllDelete()
			return
		}
		if r.muted.Load() {
			continue
		}
		r.forward(pkt)
	}
}

func (r *Relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	var dirty []domain.SubscriptionID
	for subID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, subID)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Stream.WriteRTP(pkt); err != nil {
				r.logger.Error().
					Err(err).
					Str("subscription", string(subID)).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, subID)
			}
		}
	}

	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []domain.SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, subID := range dirty {
		if ot, ok := r.outTracks[subID]; ok {
			ot.Stream.Close()
			delete(r.outTracks, subID)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for subID, ot := range r.outTracks {
		ot.MarkDelete()
		ot.Stream.Close()
		delete(r.outTracks, subID)
	}
}

func (r *Relay) AddOutTrack(ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outTracks[ot.subID] = ot
}

func (r *Relay) stop() {
	r.cancel()
}
