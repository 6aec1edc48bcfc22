package media

import (
	"sync/atomic"

	"github.com/dkeye/voicesync/internal/domain"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is one subscriber's copy of a publication.
type OutTrack struct {
	subID    domain.SubscriptionID
	Stream   *Stream
	state    atomic.Int32
	encoding atomic.Pointer[string]
}

func NewOutTrack(subID domain.SubscriptionID, s *Stream) *OutTrack {
	return &OutTrack{subID: subID, Stream: s}
}

func (ot *OutTrack) GetState() TrackState { return TrackState(ot.state.Load()) }
func (ot *OutTrack) MarkOk()              { ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk)) }
func (ot *OutTrack) MarkMuted()           { ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted)) }

// MarkDelete is final; the relay drops the track on its next packet.
func (ot *OutTrack) MarkDelete() { ot.state.Store(int32(TrackStateDelete)) }

func (ot *OutTrack) Encoding() string {
	if p := ot.encoding.Load(); p != nil {
		return *p
	}
	return ""
}

func (ot *OutTrack) setEncoding(id string) { ot.encoding.Store(&id) }
