package session

import (
	"context"
	"sync"

	"github.com/dkeye/voicesync/internal/domain"
)

type Member struct {
	session *Session
	id      domain.MemberID
	name    string
	typ     domain.MemberType

	mu       sync.RWMutex
	metadata string
	state    domain.MemberState

	onLeft                    notice
	onMetadataUpdated         slot[string]
	onPublicationListChanged  notice
	onSubscriptionListChanged notice
}

func newMember(s *Session, d domain.MemberDescriptor) *Member {
	return &Member{
		session:  s,
		id:       d.ID,
		name:     d.Name,
		typ:      d.Type,
		metadata: d.Metadata,
		state:    d.State,
	}
}

func (m *Member) ID() domain.MemberID     { return m.id }
func (m *Member) Name() string            { return m.name }
func (m *Member) Type() domain.MemberType { return m.typ }
func (m *Member) Session() *Session       { return m.session }
func (m *Member) Side() domain.Side       { return m.session.sideOf(m.id) }
func (m *Member) IsLocal() bool           { return m.Side() == domain.SideLocal }
func (m *Member) String() string          { return string(m.id) }
func (m *Member) Descriptor() domain.MemberDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.MemberDescriptor{ID: m.id, Name: m.name, Metadata: m.metadata, Type: m.typ, State: m.state}
}

func (m *Member) Metadata() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadata
}

func (m *Member) State() domain.MemberState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Publications lists this member's live publications.
func (m *Member) Publications() []*Publication {
	return m.session.cache.publications.Filter(func(p *Publication) bool {
		return p.publisherID == m.id && p.State() != domain.StateCanceled
	})
}

// Subscriptions lists this member's live subscriptions.
func (m *Member) Subscriptions() []*Subscription {
	return m.session.cache.subscriptions.Filter(func(s *Subscription) bool {
		return s.subscriberID == m.id && s.State() != domain.StateCanceled
	})
}

func (m *Member) UpdateMetadata(ctx context.Context, metadata string) bool {
	s := m.session
	if !s.guard("member.update_metadata") {
		return false
	}
	if err := domain.ValidateMetadata(metadata); err != nil {
		s.logger.Warn().Err(err).Str("member", string(m.id)).Msg("reject metadata")
		return false
	}
	if err := s.dir.UpdateMemberMetadata(ctx, s.id, m.id, metadata); err != nil {
		s.fail("member.update_metadata", err)
		return false
	}
	m.setMetadata(metadata)
	return true
}

func (m *Member) Leave(ctx context.Context) bool { return m.session.Leave(ctx, m) }

func (m *Member) OnLeft(fn func())                    { m.onLeft.set(fn) }
func (m *Member) OnMetadataUpdated(fn func(string))   { m.onMetadataUpdated.set(fn) }
func (m *Member) OnPublicationListChanged(fn func())  { m.onPublicationListChanged.set(fn) }
func (m *Member) OnSubscriptionListChanged(fn func()) { m.onSubscriptionListChanged.set(fn) }

func (m *Member) setMetadata(md string) {
	m.mu.Lock()
	m.metadata = md
	m.mu.Unlock()
}

// markLeft reports whether this call moved the member out of JOINED.
func (m *Member) markLeft() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == domain.MemberLeft {
		return false
	}
	m.state = domain.MemberLeft
	return true
}

// LocalMember is the member this client joined as. Publish and Subscribe
// are each serialized per member; the other verbs are not.
type LocalMember struct {
	*Member

	publishMu   sync.Mutex
	subscribeMu sync.Mutex
}

type PublishOptions struct {
	Metadata  string
	Encodings []domain.Encoding
	Codecs    []domain.Codec
	// OriginID makes this a relay of an existing publication. Stream may
	// then be nil.
	OriginID domain.PublicationID
	// ContentType is used only when Stream is nil.
	ContentType domain.ContentType
}

type SubscribeOptions struct {
	PreferredEncodingID string
}

func (lm *LocalMember) Publish(ctx context.Context, stream domain.Stream, opts PublishOptions) *Publication {
	s := lm.session
	if !s.guard("publish") {
		return nil
	}
	if lm.State() != domain.MemberJoined {
		s.logger.Warn().Str("member", string(lm.id)).Msg("publish: member already left")
		return nil
	}
	kind := opts.ContentType
	switch {
	case stream != nil:
		kind = stream.ContentType()
	case opts.OriginID == "":
		s.logger.Warn().Str("member", string(lm.id)).Msg("publish: no stream and no origin")
		return nil
	default:
		if o, ok := s.cache.publication(opts.OriginID); ok {
			kind = o.ContentType()
		}
	}
	if err := domain.ValidateMetadata(opts.Metadata); err != nil {
		s.logger.Warn().Err(err).Msg("publish: reject metadata")
		return nil
	}

	lm.publishMu.Lock()
	defer lm.publishMu.Unlock()

	desc, err := s.dir.Publish(ctx, s.id, domain.PublishRequest{
		PublisherID: lm.id,
		ContentType: kind,
		Metadata:    opts.Metadata,
		OriginID:    opts.OriginID,
		Encodings:   opts.Encodings,
		Codecs:      opts.Codecs,
	})
	if err != nil {
		s.fail("publish", err)
		return nil
	}
	if stream != nil && s.engine != nil {
		if err := s.engine.Publish(desc.ID, stream, desc.Encodings); err != nil {
			if uerr := s.dir.Unpublish(ctx, s.id, desc.ID); uerr != nil {
				s.logger.Warn().Err(uerr).Str("publication", string(desc.ID)).Msg("rollback unpublish failed")
			}
			s.fail("publish.native", err)
			return nil
		}
	}
	desc.Stream = stream
	pub := s.cache.addPublication(*desc)
	s.logger.Debug().Str("publication", string(pub.id)).Str("kind", kind.String()).Msg("published")
	return pub
}

func (lm *LocalMember) Subscribe(ctx context.Context, pid domain.PublicationID, opts SubscribeOptions) *Subscription {
	s := lm.session
	if !s.guard("subscribe") {
		return nil
	}
	if lm.State() != domain.MemberJoined {
		s.logger.Warn().Str("member", string(lm.id)).Msg("subscribe: member already left")
		return nil
	}

	lm.subscribeMu.Lock()
	defer lm.subscribeMu.Unlock()

	pub, ok := s.cache.publication(pid)
	if !ok || pub.State() == domain.StateCanceled {
		s.logger.Warn().Str("publication", string(pid)).Msg("subscribe: publication not available")
		return nil
	}
	desc, err := s.dir.Subscribe(ctx, s.id, domain.SubscribeRequest{
		SubscriberID:        lm.id,
		PublicationID:       pid,
		PreferredEncodingID: opts.PreferredEncodingID,
	})
	if err != nil {
		s.fail("subscribe", err)
		return nil
	}
	if s.engine != nil {
		stream, err := s.engine.Subscribe(desc.ID, pid, desc.ContentType)
		if err != nil {
			if uerr := s.dir.Unsubscribe(ctx, s.id, desc.ID); uerr != nil {
				s.logger.Warn().Err(uerr).Str("subscription", string(desc.ID)).Msg("rollback unsubscribe failed")
			}
			s.fail("subscribe.native", err)
			return nil
		}
		desc.Stream = stream
	}
	sub, err := s.cache.addSubscription(*desc)
	if err != nil {
		s.fail("subscribe", err)
		return nil
	}
	s.logger.Debug().Str("subscription", string(sub.id)).Str("publication", string(pid)).Msg("subscribed")
	return sub
}

func (lm *LocalMember) Unpublish(ctx context.Context, pid domain.PublicationID) bool {
	s := lm.session
	if !s.guard("unpublish") {
		return false
	}
	pub, ok := s.cache.publication(pid)
	if !ok || pub.publisherID != lm.id || pub.ownState() == domain.StateCanceled {
		return false
	}
	if err := s.dir.Unpublish(ctx, s.id, pid); err != nil {
		s.fail("unpublish", err)
		return false
	}
	s.cancelNative(string(pid))
	pub.transition(domain.StateCanceled)
	return true
}

func (lm *LocalMember) Unsubscribe(ctx context.Context, subID domain.SubscriptionID) bool {
	s := lm.session
	if !s.guard("unsubscribe") {
		return false
	}
	sub, ok := s.cache.subscription(subID)
	if !ok || sub.subscriberID != lm.id || sub.State() == domain.StateCanceled {
		return false
	}
	if err := s.dir.Unsubscribe(ctx, s.id, subID); err != nil {
		s.fail("unsubscribe", err)
		return false
	}
	s.cancelNative(string(subID))
	sub.transition(domain.StateCanceled)
	return true
}
