// Package media is the reference native engine. Streams carry RTP packets;
// a published stream feeds a relay that copies every packet into the
// streams of the publication's subscribers.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var ErrStreamClosed = errors.New("stream closed")

// MimeTypeData labels tracks of data publications.
const MimeTypeData = "application/x-voicesync-data"

func codecFor(kind domain.ContentType) webrtc.RTPCodecCapability {
	switch kind {
	case domain.ContentVideo:
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	case domain.ContentData:
		return webrtc.RTPCodecCapability{MimeType: MimeTypeData, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

// Stream is a local track plus a packet queue readers can drain. Writing
// never blocks: when nobody reads, packets past the queue size are counted
// and dropped.
type Stream struct {
	id    string
	kind  domain.ContentType
	track *webrtc.TrackLocalStaticRTP

	packets chan *rtp.Packet
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

var _ domain.Stream = (*Stream)(nil)

func NewStream(id string, kind domain.ContentType) (*Stream, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(codecFor(kind), id, "voicesync")
	if err != nil {
		return nil, fmt.Errorf("new track %s: %w", id, err)
	}
	return &Stream{
		id:      id,
		kind:    kind,
		track:   track,
		packets: make(chan *rtp.Packet, 256),
	}, nil
}

func (s *Stream) ID() string                      { return s.id }
func (s *Stream) ContentType() domain.ContentType { return s.kind }

// Track is what a peer connection would add to send this stream.
func (s *Stream) Track() *webrtc.TrackLocalStaticRTP { return s.track }

// Dropped counts packets nobody read in time.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

func (s *Stream) WriteRTP(pkt *rtp.Packet) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.track.WriteRTP(pkt); err != nil {
		return err
	}
	select {
	case s.packets <- pkt:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// ReadRTP blocks for the next packet. It fails with ErrStreamClosed once the
// stream is closed and drained, or with ctx.Err().
func (s *Stream) ReadRTP(ctx context.Context) (*rtp.Packet, error) {
	select {
	case pkt, ok := <-s.packets:
		if !ok {
			return nil, ErrStreamClosed
		}
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.packets)
}
