// Package orch applies directory verbs to rooms and announces every change
// as an event.
package orch

import (
	"fmt"

	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
)

type Orchestrator struct {
	Rooms    core.RoomManager
	Notifier app.Notifier
}

func New(rooms core.RoomManager, notifier app.Notifier) *Orchestrator {
	return &Orchestrator{Rooms: rooms, Notifier: notifier}
}

func (o *Orchestrator) room(sid domain.SessionID) (core.RoomService, error) {
	room, ok := o.Rooms.Find(domain.SessionQuery{ID: sid})
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sid, domain.ErrNotFound)
	}
	return room, nil
}

func (o *Orchestrator) emit(ev domain.Event) {
	if o.Notifier != nil {
		o.Notifier.Notify(ev)
	}
}

func memberEvent(t domain.EventType, sid domain.SessionID, m domain.MemberDescriptor) domain.Event {
	return domain.Event{Type: t, SessionID: sid, Member: &m, MemberID: m.ID, Metadata: m.Metadata}
}

func publicationEvent(t domain.EventType, sid domain.SessionID, p domain.PublicationDescriptor) domain.Event {
	return domain.Event{Type: t, SessionID: sid, Publication: &p, PublicationID: p.ID, Metadata: p.Metadata}
}

func subscriptionEvent(t domain.EventType, sid domain.SessionID, s domain.SubscriptionDescriptor) domain.Event {
	return domain.Event{
		Type:           t,
		SessionID:      sid,
		Subscription:   &s,
		SubscriptionID: s.ID,
		PublicationID:  s.PublicationID,
		EncodingID:     s.PreferredEncodingID,
	}
}
