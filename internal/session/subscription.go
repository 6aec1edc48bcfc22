package session

import (
	"context"
	"sync"

	"github.com/dkeye/voicesync/internal/domain"
)

type Subscription struct {
	session       *Session
	id            domain.SubscriptionID
	subscriberID  domain.MemberID
	publicationID domain.PublicationID
	contentType   domain.ContentType

	mu                  sync.RWMutex
	state               domain.State
	preferredEncodingID string
	stream              domain.Stream

	onCanceled        notice
	onEnabled         notice
	onDisabled        notice
	onEncodingChanged slot[string]
}

func newSubscription(s *Session, d domain.SubscriptionDescriptor) *Subscription {
	return &Subscription{
		session:             s,
		id:                  d.ID,
		subscriberID:        d.SubscriberID,
		publicationID:       d.PublicationID,
		contentType:         d.ContentType,
		state:               d.State,
		preferredEncodingID: d.PreferredEncodingID,
		stream:              d.Stream,
	}
}

func (s *Subscription) ID() domain.SubscriptionID           { return s.id }
func (s *Subscription) ContentType() domain.ContentType     { return s.contentType }
func (s *Subscription) PublicationID() domain.PublicationID { return s.publicationID }
func (s *Subscription) String() string                      { return string(s.id) }

// Publication is always resolvable: the cache never holds a subscription
// without its publication.
func (s *Subscription) Publication() *Publication {
	p, _ := s.session.cache.publication(s.publicationID)
	return p
}

func (s *Subscription) Subscriber() *Member {
	m, _ := s.session.cache.member(s.subscriberID)
	return m
}

func (s *Subscription) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Subscription) PreferredEncodingID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preferredEncodingID
}

// Stream is the received stream. It stays nil for subscriptions made by
// other members.
func (s *Subscription) Stream() domain.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

func (s *Subscription) Descriptor() domain.SubscriptionDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.SubscriptionDescriptor{
		ID:                  s.id,
		SubscriberID:        s.subscriberID,
		PublicationID:       s.publicationID,
		ContentType:         s.contentType,
		State:               s.state,
		PreferredEncodingID: s.preferredEncodingID,
	}
}

func (s *Subscription) Enable(ctx context.Context) bool {
	return s.toggle(ctx, domain.StateEnabled)
}

func (s *Subscription) Disable(ctx context.Context) bool {
	return s.toggle(ctx, domain.StateDisabled)
}

func (s *Subscription) toggle(ctx context.Context, next domain.State) bool {
	ss := s.session
	op := "subscription." + next.String()
	if !ss.guard(op) {
		return false
	}
	switch s.State() {
	case domain.StateCanceled:
		return false
	case next:
		return true
	}
	var err error
	if next == domain.StateEnabled {
		err = ss.dir.EnableSubscription(ctx, ss.id, s.id)
	} else {
		err = ss.dir.DisableSubscription(ctx, ss.id, s.id)
	}
	if err != nil {
		ss.fail(op, err)
		return false
	}
	if err := ss.toggleNative(string(s.id), next); err != nil {
		ss.fail(op+".native", err)
		return false
	}
	s.transition(next)
	return s.State() != domain.StateCanceled
}

// Cancel unsubscribes. Only subscriptions of the local member can be
// canceled.
func (s *Subscription) Cancel(ctx context.Context) bool {
	lm := s.session.LocalMember()
	if lm == nil || lm.id != s.subscriberID {
		return false
	}
	return lm.Unsubscribe(ctx, s.id)
}

func (s *Subscription) ChangePreferredEncoding(ctx context.Context, encodingID string) bool {
	ss := s.session
	if !ss.guard("subscription.change_encoding") {
		return false
	}
	if s.State() == domain.StateCanceled {
		return false
	}
	if s.PreferredEncodingID() == encodingID {
		return true
	}
	if err := ss.dir.ChangePreferredEncoding(ctx, ss.id, s.id, encodingID); err != nil {
		ss.fail("subscription.change_encoding", err)
		return false
	}
	if ss.engine != nil && s.Stream() != nil {
		if err := ss.engine.ChangeEncoding(s.id, encodingID); err != nil {
			ss.fail("subscription.change_encoding.native", err)
			return false
		}
	}
	s.setPreferredEncoding(encodingID)
	return true
}

func (s *Subscription) OnCanceled(fn func())              { s.onCanceled.set(fn) }
func (s *Subscription) OnEnabled(fn func())               { s.onEnabled.set(fn) }
func (s *Subscription) OnDisabled(fn func())              { s.onDisabled.set(fn) }
func (s *Subscription) OnEncodingChanged(fn func(string)) { s.onEncodingChanged.set(fn) }

func (s *Subscription) transition(next domain.State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransition(next) || s.state == next {
		return false
	}
	s.state = next
	return true
}

func (s *Subscription) setPreferredEncoding(id string) {
	s.mu.Lock()
	s.preferredEncodingID = id
	s.mu.Unlock()
}

// attachStream never replaces a stream that is already set.
func (s *Subscription) attachStream(st domain.Stream) {
	if st == nil {
		return
	}
	s.mu.Lock()
	if s.stream == nil {
		s.stream = st
	}
	s.mu.Unlock()
}
