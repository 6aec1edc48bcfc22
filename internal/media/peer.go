package media

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Peer bridges one WebRTC peer connection and the engine's streams: local
// streams are sent as tracks, received tracks become streams.
type Peer struct {
	pc     *webrtc.PeerConnection
	id     string
	logger zerolog.Logger
	cancel context.CancelFunc

	mu       sync.Mutex
	onStream func(*Stream)
	onICE    func(webrtc.ICECandidateInit)
	onClosed func()
	closed   bool
}

func NewPeer(cfg webrtc.Configuration, id string) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &Peer{
		pc:     pc,
		id:     id,
		logger: log.With().Str("module", "media.peer").Str("peer", id).Logger(),
	}, nil
}

// OnStream is called with a stream for every received track. The stream is
// closed when the track ends.
func (p *Peer) OnStream(fn func(*Stream)) {
	p.mu.Lock()
	p.onStream = fn
	p.mu.Unlock()
}

func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *Peer) OnClosed(fn func()) {
	p.mu.Lock()
	p.onClosed = fn
	p.mu.Unlock()
}

func (p *Peer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		p.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	p.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.fireClosed()
		}
	})

	p.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		p.mu.Lock()
		fn := p.onICE
		p.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})

	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")

		s, err := NewStream(track.ID(), kindOf(track.Codec().MimeType))
		if err != nil {
			p.logger.Error().Err(err).Msg("stream for remote track")
			return
		}
		p.mu.Lock()
		fn := p.onStream
		p.mu.Unlock()
		if fn != nil {
			fn(s)
		}
		go func() {
			defer s.Close()
			if err := PumpRemote(ctx, track, s); err != nil {
				p.logger.Debug().Err(err).Str("track_id", track.ID()).Msg("remote track ended")
			}
		}()
	})
}

// AddStream sends s to the remote side. Call before negotiating.
func (p *Peer) AddStream(s *Stream) error {
	if _, err := p.pc.AddTrack(s.Track()); err != nil {
		return fmt.Errorf("add track %s: %w", s.ID(), err)
	}
	return nil
}

// CreateOffer returns a complete offer with gathered candidates.
func (p *Peer) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gatherComplete
	return p.pc.LocalDescription(), nil
}

func (p *Peer) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return p.pc.LocalDescription(), nil
}

func (p *Peer) ApplyAnswer(answer webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(answer)
}

func (p *Peer) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(ci)
}

func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if err := p.pc.Close(); err != nil {
		p.logger.Error().Err(err).Msg("close error")
	} else {
		p.logger.Info().Msg("closed")
	}
	p.fireClosed()
}

func (p *Peer) fireClosed() {
	p.mu.Lock()
	fn := p.onClosed
	p.onClosed = nil
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func kindOf(mime string) domain.ContentType {
	switch {
	case strings.HasPrefix(mime, "video/"):
		return domain.ContentVideo
	case strings.HasPrefix(mime, "audio/"):
		return domain.ContentAudio
	}
	return domain.ContentData
}
