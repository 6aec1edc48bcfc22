package session

import (
	"context"
	"sync"

	"github.com/dkeye/voicesync/internal/domain"
)

type Publication struct {
	session     *Session
	id          domain.PublicationID
	publisherID domain.MemberID
	originID    domain.PublicationID
	contentType domain.ContentType
	encodings   []domain.Encoding
	codecs      []domain.Codec

	mu       sync.RWMutex
	state    domain.State
	metadata string
	stream   domain.Stream

	onUnpublished             notice
	onSubscribed              slot[*Subscription]
	onUnsubscribed            slot[*Subscription]
	onEnabled                 notice
	onDisabled                notice
	onMetadataUpdated         slot[string]
	onSubscriptionListChanged notice
}

func newPublication(s *Session, d domain.PublicationDescriptor) *Publication {
	return &Publication{
		session:     s,
		id:          d.ID,
		publisherID: d.PublisherID,
		originID:    d.OriginID,
		contentType: d.ContentType,
		encodings:   d.Encodings,
		codecs:      d.Codecs,
		state:       d.State,
		metadata:    d.Metadata,
		stream:      d.Stream,
	}
}

func (p *Publication) ID() domain.PublicationID        { return p.id }
func (p *Publication) ContentType() domain.ContentType { return p.contentType }
func (p *Publication) Encodings() []domain.Encoding    { return p.encodings }
func (p *Publication) Codecs() []domain.Codec          { return p.codecs }
func (p *Publication) String() string                  { return string(p.id) }

func (p *Publication) Publisher() *Member {
	m, _ := p.session.cache.member(p.publisherID)
	return m
}

// Origin returns the publication this one relays, or nil.
func (p *Publication) Origin() *Publication {
	if p.originID == "" || p.originID == p.id {
		return nil
	}
	o, _ := p.session.cache.publication(p.originID)
	return o
}

// State of a relay follows its origin until the relay itself is canceled.
func (p *Publication) State() domain.State {
	own := p.ownState()
	if own == domain.StateCanceled {
		return own
	}
	if o := p.Origin(); o != nil {
		return o.State()
	}
	return own
}

func (p *Publication) ownState() domain.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Publication) Metadata() string {
	if o := p.Origin(); o != nil {
		return o.Metadata()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metadata
}

// Stream is the local stream for publications made by this client.
func (p *Publication) Stream() domain.Stream {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stream
}

// Subscriptions lists live subscriptions to this publication.
func (p *Publication) Subscriptions() []*Subscription {
	return p.session.cache.subscriptions.Filter(func(s *Subscription) bool {
		return s.publicationID == p.id && s.State() != domain.StateCanceled
	})
}

func (p *Publication) Descriptor() domain.PublicationDescriptor {
	return domain.PublicationDescriptor{
		ID:          p.id,
		PublisherID: p.publisherID,
		OriginID:    p.originID,
		ContentType: p.contentType,
		Metadata:    p.Metadata(),
		State:       p.State(),
		Encodings:   p.encodings,
		Codecs:      p.codecs,
	}
}

func (p *Publication) Enable(ctx context.Context) bool {
	return p.toggle(ctx, domain.StateEnabled)
}

func (p *Publication) Disable(ctx context.Context) bool {
	return p.toggle(ctx, domain.StateDisabled)
}

// toggle applies enable or disable. Relays forward the verb to their
// origin. Asking for the current state succeeds without a remote call.
func (p *Publication) toggle(ctx context.Context, next domain.State) bool {
	if p.ownState() != domain.StateCanceled {
		if o := p.Origin(); o != nil {
			return o.toggle(ctx, next)
		}
	}
	s := p.session
	op := "publication." + next.String()
	if !s.guard(op) {
		return false
	}
	switch p.ownState() {
	case domain.StateCanceled:
		return false
	case next:
		return true
	}
	var err error
	if next == domain.StateEnabled {
		err = s.dir.EnablePublication(ctx, s.id, p.id)
	} else {
		err = s.dir.DisablePublication(ctx, s.id, p.id)
	}
	if err != nil {
		s.fail(op, err)
		return false
	}
	if err := s.toggleNative(string(p.id), next); err != nil {
		s.fail(op+".native", err)
		return false
	}
	p.transition(next)
	return p.ownState() != domain.StateCanceled
}

// Cancel unpublishes. Only publications of the local member can be
// canceled.
func (p *Publication) Cancel(ctx context.Context) bool {
	lm := p.session.LocalMember()
	if lm == nil || lm.id != p.publisherID {
		return false
	}
	return lm.Unpublish(ctx, p.id)
}

func (p *Publication) UpdateMetadata(ctx context.Context, metadata string) bool {
	if o := p.Origin(); o != nil {
		return o.UpdateMetadata(ctx, metadata)
	}
	s := p.session
	if !s.guard("publication.update_metadata") {
		return false
	}
	if p.ownState() == domain.StateCanceled {
		return false
	}
	if err := domain.ValidateMetadata(metadata); err != nil {
		s.logger.Warn().Err(err).Str("publication", string(p.id)).Msg("reject metadata")
		return false
	}
	if err := s.dir.UpdatePublicationMetadata(ctx, s.id, p.id, metadata); err != nil {
		s.fail("publication.update_metadata", err)
		return false
	}
	p.setMetadata(metadata)
	return true
}

func (p *Publication) OnUnpublished(fn func())               { p.onUnpublished.set(fn) }
func (p *Publication) OnSubscribed(fn func(*Subscription))   { p.onSubscribed.set(fn) }
func (p *Publication) OnUnsubscribed(fn func(*Subscription)) { p.onUnsubscribed.set(fn) }
func (p *Publication) OnEnabled(fn func())                   { p.onEnabled.set(fn) }
func (p *Publication) OnDisabled(fn func())                  { p.onDisabled.set(fn) }
func (p *Publication) OnMetadataUpdated(fn func(string))     { p.onMetadataUpdated.set(fn) }
func (p *Publication) OnSubscriptionListChanged(fn func())   { p.onSubscriptionListChanged.set(fn) }

// transition reports whether the state changed. CANCELED is terminal.
func (p *Publication) transition(next domain.State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.CanTransition(next) || p.state == next {
		return false
	}
	p.state = next
	return true
}

func (p *Publication) setMetadata(md string) {
	p.mu.Lock()
	p.metadata = md
	p.mu.Unlock()
}

func (p *Publication) attachStream(st domain.Stream) {
	if st == nil {
		return
	}
	p.mu.Lock()
	if p.stream == nil {
		p.stream = st
	}
	p.mu.Unlock()
}
