package session

import (
	"context"

	"github.com/dkeye/voicesync/internal/domain"
)

// HandleEvent is the directory sink. It may run on any goroutine and never
// touches the graph itself: the event is queued and applied by a job on
// the session's manager. Events of one session are applied in arrival
// order.
func (s *Session) HandleEvent(ev domain.Event) {
	if ev.SessionID != "" && ev.SessionID != s.id {
		s.logger.Warn().Str("event", string(ev.Type)).Str("target", string(ev.SessionID)).Msg("event for another session, dropped")
		return
	}
	s.enqueue(func(context.Context) { s.dispatch(ev) })
}

func (s *Session) enqueue(task func(context.Context)) {
	if s.disposed.Load() {
		return
	}
	s.evMu.Lock()
	s.queue = append(s.queue, task)
	if s.draining {
		s.evMu.Unlock()
		return
	}
	s.draining = true
	s.evMu.Unlock()

	if s.jobs.Launch(context.Background(), s.drain) == nil {
		s.evMu.Lock()
		s.draining = false
		s.queue = nil
		s.evMu.Unlock()
	}
}

func (s *Session) drain(ctx context.Context) {
	for {
		s.evMu.Lock()
		if len(s.queue) == 0 || s.disposed.Load() {
			s.queue = nil
			s.draining = false
			s.evMu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.evMu.Unlock()

		task(ctx)
	}
}

func (s *Session) dispatch(ev domain.Event) {
	switch ev.Type {
	case domain.EventMemberJoined:
		if m := s.resolveMember(ev); m != nil {
			s.onMemberJoined.fire(m)
		}

	case domain.EventMemberLeft:
		m := s.resolveMember(ev)
		if m == nil {
			return
		}
		m.markLeft()
		s.onMemberLeft.fire(m)
		m.onLeft.fire()

	case domain.EventMetadataUpdated:
		s.setMetadata(ev.Metadata)
		s.onMetadataUpdated.fire(ev.Metadata)

	case domain.EventMemberMetadataUpdated:
		m := s.resolveMember(ev)
		if m == nil {
			return
		}
		m.setMetadata(ev.Metadata)
		s.onMemberMetadataUpdated.fire(m)
		m.onMetadataUpdated.fire(ev.Metadata)

	case domain.EventStreamPublished:
		p := s.resolvePublication(ev)
		if p == nil {
			return
		}
		s.onStreamPublished.fire(p)
		s.onPublicationListChanged.fire()
		if m := p.Publisher(); m != nil {
			m.onPublicationListChanged.fire()
		}

	case domain.EventStreamUnpublished:
		p := s.resolvePublication(ev)
		if p == nil {
			return
		}
		p.transition(domain.StateCanceled)
		s.onStreamUnpublished.fire(p)
		s.onPublicationListChanged.fire()
		if m := p.Publisher(); m != nil {
			m.onPublicationListChanged.fire()
		}
		p.onUnpublished.fire()

	case domain.EventPublicationEnabled, domain.EventPublicationDisabled:
		p := s.resolvePublication(ev)
		if p == nil {
			return
		}
		if ev.Type == domain.EventPublicationEnabled {
			p.transition(domain.StateEnabled)
			s.onPublicationEnabled.fire(p)
			p.onEnabled.fire()
		} else {
			p.transition(domain.StateDisabled)
			s.onPublicationDisabled.fire(p)
			p.onDisabled.fire()
		}

	case domain.EventPublicationMetadataUpdated:
		p := s.resolvePublication(ev)
		if p == nil {
			return
		}
		p.setMetadata(ev.Metadata)
		s.onPublicationMetadataUpdated.fire(p)
		p.onMetadataUpdated.fire(ev.Metadata)

	case domain.EventPublicationSubscribed:
		sub := s.resolveSubscription(ev)
		if sub == nil {
			return
		}
		s.onPublicationSubscribed.fire(sub)
		s.onSubscriptionListChanged.fire()
		if p := sub.Publication(); p != nil {
			p.onSubscribed.fire(sub)
			p.onSubscriptionListChanged.fire()
		}
		if m := sub.Subscriber(); m != nil {
			m.onSubscriptionListChanged.fire()
		}

	case domain.EventPublicationUnsubscribed:
		sub := s.resolveSubscription(ev)
		if sub == nil {
			return
		}
		sub.transition(domain.StateCanceled)
		s.onPublicationUnsubscribed.fire(sub)
		s.onSubscriptionListChanged.fire()
		if p := sub.Publication(); p != nil {
			p.onUnsubscribed.fire(sub)
			p.onSubscriptionListChanged.fire()
		}
		if m := sub.Subscriber(); m != nil {
			m.onSubscriptionListChanged.fire()
		}
		sub.onCanceled.fire()

	case domain.EventSubscriptionEnabled, domain.EventSubscriptionDisabled:
		sub := s.resolveSubscription(ev)
		if sub == nil {
			return
		}
		if ev.Type == domain.EventSubscriptionEnabled {
			sub.transition(domain.StateEnabled)
			sub.onEnabled.fire()
		} else {
			sub.transition(domain.StateDisabled)
			sub.onDisabled.fire()
		}

	case domain.EventSubscriptionEncodingChanged:
		sub := s.resolveSubscription(ev)
		if sub == nil {
			return
		}
		sub.setPreferredEncoding(ev.EncodingID)
		sub.onEncodingChanged.fire(ev.EncodingID)

	case domain.EventClosed:
		s.markClosed()
		s.onClosed.fire()

	case domain.EventError:
		s.onError.fire(&domain.RemoteError{Code: domain.CodeInternal, Message: ev.Error})

	default:
		s.logger.Warn().Str("event", string(ev.Type)).Msg("unknown event type, dropped")
	}
}

// resolveMember returns the cached member, creating it from the attached
// descriptor on first mention. Unknown ids without a descriptor are
// dropped.
func (s *Session) resolveMember(ev domain.Event) *Member {
	if ev.Member != nil {
		return s.cache.addMember(*ev.Member)
	}
	if m, ok := s.cache.member(ev.MemberID); ok {
		return m
	}
	s.drop(ev, "member", string(ev.MemberID))
	return nil
}

func (s *Session) resolvePublication(ev domain.Event) *Publication {
	if ev.Publication != nil {
		return s.cache.addPublication(*ev.Publication)
	}
	if p, ok := s.cache.publication(ev.PublicationID); ok {
		return p
	}
	s.drop(ev, "publication", string(ev.PublicationID))
	return nil
}

func (s *Session) resolveSubscription(ev domain.Event) *Subscription {
	if ev.Subscription != nil {
		d := *ev.Subscription
		if d.Publication == nil && ev.Publication != nil {
			d.Publication = ev.Publication
		}
		sub, err := s.cache.addSubscription(d)
		if err == nil {
			return sub
		}
		s.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("unresolvable subscription, dropped")
		return nil
	}
	if sub, ok := s.cache.subscription(ev.SubscriptionID); ok {
		return sub
	}
	s.drop(ev, "subscription", string(ev.SubscriptionID))
	return nil
}

func (s *Session) drop(ev domain.Event, kind, id string) {
	s.logger.Warn().
		Str("event", string(ev.Type)).
		Str("kind", kind).
		Str("id", id).
		Msg("event references unknown id, dropped")
}
