package orch

import (
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) CreateSession(name, metadata string) (domain.SessionDescriptor, error) {
	room, err := o.Rooms.Create(name, metadata)
	if err != nil {
		return domain.SessionDescriptor{}, err
	}
	return room.Snapshot(), nil
}

func (o *Orchestrator) FindSession(q domain.SessionQuery) (domain.SessionDescriptor, error) {
	room, ok := o.Rooms.Find(q)
	if !ok {
		return domain.SessionDescriptor{}, domain.ErrNotFound
	}
	return room.Snapshot(), nil
}

func (o *Orchestrator) FindOrCreateSession(name, metadata string) (domain.SessionDescriptor, error) {
	room, err := o.Rooms.FindOrCreate(name, metadata)
	if err != nil {
		return domain.SessionDescriptor{}, err
	}
	return room.Snapshot(), nil
}

func (o *Orchestrator) ListSessions() []core.RoomInfo { return o.Rooms.List() }

func (o *Orchestrator) UpdateSessionMetadata(sid domain.SessionID, metadata string) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	if err := room.UpdateMetadata(metadata); err != nil {
		return err
	}
	o.emit(domain.Event{Type: domain.EventMetadataUpdated, SessionID: sid, Metadata: metadata})
	return nil
}

// CloseSession closes the room for everyone and forgets it.
func (o *Orchestrator) CloseSession(sid domain.SessionID) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	if err := room.Close(); err != nil {
		return err
	}
	o.emit(domain.Event{Type: domain.EventClosed, SessionID: sid})
	o.Rooms.StopRoom(sid)
	log.Info().Str("module", "app.orch").Str("session", string(sid)).Msg("session closed")
	return nil
}

func (o *Orchestrator) Join(sid domain.SessionID, init domain.MemberInit) (domain.MemberDescriptor, error) {
	room, err := o.room(sid)
	if err != nil {
		return domain.MemberDescriptor{}, err
	}
	m, err := room.AddMember(init)
	if err != nil {
		return domain.MemberDescriptor{}, err
	}
	o.emit(memberEvent(domain.EventMemberJoined, sid, m))
	log.Info().Str("module", "app.orch").Str("session", string(sid)).Str("member", string(m.ID)).Str("name", m.Name).Msg("member joined")
	return m, nil
}

// Leave removes the member. What it published and subscribed goes with it,
// announced before the member_left event.
func (o *Orchestrator) Leave(sid domain.SessionID, mid domain.MemberID) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	exit, err := room.RemoveMember(mid)
	if err != nil {
		return err
	}
	for _, s := range exit.Unsubscribed {
		o.emit(subscriptionEvent(domain.EventPublicationUnsubscribed, sid, s))
	}
	for _, p := range exit.Unpublished {
		o.emit(publicationEvent(domain.EventStreamUnpublished, sid, p))
	}
	o.emit(memberEvent(domain.EventMemberLeft, sid, exit.Member))
	log.Info().Str("module", "app.orch").Str("session", string(sid)).Str("member", string(mid)).Msg("member left")
	return nil
}

func (o *Orchestrator) UpdateMemberMetadata(sid domain.SessionID, mid domain.MemberID, metadata string) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	m, err := room.UpdateMemberMetadata(mid, metadata)
	if err != nil {
		return err
	}
	o.emit(memberEvent(domain.EventMemberMetadataUpdated, sid, m))
	return nil
}

// EvictSession makes every member leave, then closes the session.
func (o *Orchestrator) EvictSession(sid domain.SessionID) error {
	room, err := o.room(sid)
	if err != nil {
		return err
	}
	for _, m := range room.MembersSnapshot() {
		if err := o.Leave(sid, m.ID); err != nil {
			log.Warn().Str("module", "app.orch").Err(err).Str("member", string(m.ID)).Msg("evict: leave failed")
		}
	}
	return o.CloseSession(sid)
}
