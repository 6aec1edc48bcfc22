package core

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	newID func() string

	mu       sync.RWMutex
	id       domain.SessionID
	name     string
	metadata string
	state    domain.SessionState

	members  map[domain.MemberID]*domain.MemberDescriptor
	memberIx []domain.MemberID
	pubs     map[domain.PublicationID]*domain.PublicationDescriptor
	pubIx    []domain.PublicationID
	subs     map[domain.SubscriptionID]*domain.SubscriptionDescriptor
	subIx    []domain.SubscriptionID
}

// NewRoomService creates an open room. newID must return globally unique
// ids; they are never reused.
func NewRoomService(id domain.SessionID, name, metadata string, newID func() string) RoomService {
	return &roomImpl{
		newID:    newID,
		id:       id,
		name:     name,
		metadata: metadata,
		members:  make(map[domain.MemberID]*domain.MemberDescriptor),
		pubs:     make(map[domain.PublicationID]*domain.PublicationDescriptor),
		subs:     make(map[domain.SubscriptionID]*domain.SubscriptionDescriptor),
	}
}

func (r *roomImpl) ID() domain.SessionID { return r.id }
func (r *roomImpl) Name() string         { return r.name }

func (r *roomImpl) State() domain.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.members {
		if m.State == domain.MemberJoined {
			n++
		}
	}
	return n
}

func (r *roomImpl) MembersSnapshot() []domain.MemberDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MemberDescriptor, 0, len(r.memberIx))
	for _, id := range r.memberIx {
		if m := r.members[id]; m.State == domain.MemberJoined {
			out = append(out, *m)
		}
	}
	return out
}

func (r *roomImpl) Snapshot() domain.SessionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := domain.SessionDescriptor{
		ID:       r.id,
		Name:     r.name,
		Metadata: r.metadata,
		State:    r.state,
	}
	for _, id := range r.memberIx {
		d.Members = append(d.Members, *r.members[id])
	}
	for _, id := range r.pubIx {
		d.Publications = append(d.Publications, clonePublication(r.pubs[id]))
	}
	for _, id := range r.subIx {
		d.Subscriptions = append(d.Subscriptions, *r.subs[id])
	}
	return d
}

func (r *roomImpl) UpdateMetadata(metadata string) error {
	if err := domain.ValidateMetadata(metadata); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.SessionClosed {
		return domain.ErrClosed
	}
	r.metadata = metadata
	return nil
}

// Close marks every member left and every publication and subscription
// canceled.
func (r *roomImpl) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.SessionClosed {
		return domain.ErrClosed
	}
	r.state = domain.SessionClosed
	for _, m := range r.members {
		m.State = domain.MemberLeft
	}
	for _, p := range r.pubs {
		p.State = domain.StateCanceled
	}
	for _, s := range r.subs {
		s.State = domain.StateCanceled
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Msg("room closed")
	return nil
}

func (r *roomImpl) AddMember(init domain.MemberInit) (domain.MemberDescriptor, error) {
	if err := domain.ValidateName(init.Name); err != nil {
		return domain.MemberDescriptor{}, err
	}
	if err := domain.ValidateMetadata(init.Metadata); err != nil {
		return domain.MemberDescriptor{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == domain.SessionClosed {
		return domain.MemberDescriptor{}, domain.ErrClosed
	}
	if init.Name != "" {
		for _, m := range r.members {
			if m.State == domain.MemberJoined && m.Name == init.Name {
				return domain.MemberDescriptor{}, fmt.Errorf("member %q: %w", init.Name, domain.ErrDuplicate)
			}
		}
	}
	m := &domain.MemberDescriptor{
		ID:       domain.MemberID(r.newID()),
		Name:     init.Name,
		Metadata: init.Metadata,
		Type:     init.Type,
		State:    domain.MemberJoined,
	}
	r.members[m.ID] = m
	r.memberIx = append(r.memberIx, m.ID)
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("member", string(m.ID)).Msg("member added")
	return *m, nil
}

func (r *roomImpl) RemoveMember(mid domain.MemberID) (MemberExit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.joinedLocked(mid)
	if err != nil {
		return MemberExit{}, err
	}
	m.State = domain.MemberLeft

	exit := MemberExit{Member: *m}
	for _, id := range r.subIx {
		s := r.subs[id]
		if s.SubscriberID == mid && s.State != domain.StateCanceled {
			s.State = domain.StateCanceled
			exit.Unsubscribed = append(exit.Unsubscribed, *s)
		}
	}
	for _, id := range r.pubIx {
		p := r.pubs[id]
		if p.PublisherID != mid || p.State == domain.StateCanceled {
			continue
		}
		p.State = domain.StateCanceled
		exit.Unsubscribed = append(exit.Unsubscribed, r.cancelSubsOfLocked(p.ID)...)
		exit.Unpublished = append(exit.Unpublished, clonePublication(p))
	}
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("member", string(mid)).Msg("member removed")
	return exit, nil
}

func (r *roomImpl) UpdateMemberMetadata(mid domain.MemberID, metadata string) (domain.MemberDescriptor, error) {
	if err := domain.ValidateMetadata(metadata); err != nil {
		return domain.MemberDescriptor{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.joinedLocked(mid)
	if err != nil {
		return domain.MemberDescriptor{}, err
	}
	m.Metadata = metadata
	return *m, nil
}

func (r *roomImpl) Publish(req domain.PublishRequest) (domain.PublicationDescriptor, error) {
	if err := domain.ValidateMetadata(req.Metadata); err != nil {
		return domain.PublicationDescriptor{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.joinedLocked(req.PublisherID); err != nil {
		return domain.PublicationDescriptor{}, err
	}
	state := domain.StateEnabled
	if req.OriginID != "" {
		origin, ok := r.pubs[req.OriginID]
		if !ok {
			return domain.PublicationDescriptor{}, fmt.Errorf("origin %s: %w", req.OriginID, domain.ErrNotFound)
		}
		if origin.State == domain.StateCanceled {
			return domain.PublicationDescriptor{}, fmt.Errorf("origin %s: %w", req.OriginID, domain.ErrCanceled)
		}
		state = origin.State
	}
	p := &domain.PublicationDescriptor{
		ID:          domain.PublicationID(r.newID()),
		PublisherID: req.PublisherID,
		OriginID:    req.OriginID,
		ContentType: req.ContentType,
		Metadata:    req.Metadata,
		State:       state,
		Encodings:   slices.Clone(req.Encodings),
		Codecs:      slices.Clone(req.Codecs),
	}
	r.pubs[p.ID] = p
	r.pubIx = append(r.pubIx, p.ID)
	return clonePublication(p), nil
}

func (r *roomImpl) Unpublish(pid domain.PublicationID) (Unpublished, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.livePublicationLocked(pid)
	if err != nil {
		return Unpublished{}, err
	}
	p.State = domain.StateCanceled
	return Unpublished{
		Publication:  clonePublication(p),
		Unsubscribed: r.cancelSubsOfLocked(pid),
	}, nil
}

func (r *roomImpl) SetPublicationState(pid domain.PublicationID, state domain.State) (domain.PublicationDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.livePublicationLocked(pid)
	if err != nil {
		return domain.PublicationDescriptor{}, err
	}
	if !p.State.CanTransition(state) || state == domain.StateCanceled {
		return domain.PublicationDescriptor{}, domain.ErrInvalid
	}
	p.State = state
	return clonePublication(p), nil
}

func (r *roomImpl) UpdatePublicationMetadata(pid domain.PublicationID, metadata string) (domain.PublicationDescriptor, error) {
	if err := domain.ValidateMetadata(metadata); err != nil {
		return domain.PublicationDescriptor{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.livePublicationLocked(pid)
	if err != nil {
		return domain.PublicationDescriptor{}, err
	}
	p.Metadata = metadata
	return clonePublication(p), nil
}

func (r *roomImpl) Subscribe(req domain.SubscribeRequest) (domain.SubscriptionDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.joinedLocked(req.SubscriberID); err != nil {
		return domain.SubscriptionDescriptor{}, err
	}
	p, err := r.livePublicationLocked(req.PublicationID)
	if err != nil {
		return domain.SubscriptionDescriptor{}, err
	}
	if p.PublisherID == req.SubscriberID {
		return domain.SubscriptionDescriptor{}, fmt.Errorf("subscribe to own publication: %w", domain.ErrInvalid)
	}
	for _, s := range r.subs {
		if s.SubscriberID == req.SubscriberID && s.PublicationID == req.PublicationID && s.State != domain.StateCanceled {
			return domain.SubscriptionDescriptor{}, fmt.Errorf("publication %s: %w", req.PublicationID, domain.ErrDuplicate)
		}
	}
	s := &domain.SubscriptionDescriptor{
		ID:                  domain.SubscriptionID(r.newID()),
		SubscriberID:        req.SubscriberID,
		PublicationID:       req.PublicationID,
		ContentType:         p.ContentType,
		State:               domain.StateEnabled,
		PreferredEncodingID: req.PreferredEncodingID,
	}
	r.subs[s.ID] = s
	r.subIx = append(r.subIx, s.ID)
	return r.withPublicationLocked(s), nil
}

func (r *roomImpl) Unsubscribe(subID domain.SubscriptionID) (domain.SubscriptionDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.liveSubscriptionLocked(subID)
	if err != nil {
		return domain.SubscriptionDescriptor{}, err
	}
	s.State = domain.StateCanceled
	return r.withPublicationLocked(s), nil
}

func (r *roomImpl) SetSubscriptionState(subID domain.SubscriptionID, state domain.State) (domain.SubscriptionDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.liveSubscriptionLocked(subID)
	if err != nil {
		return domain.SubscriptionDescriptor{}, err
	}
	if !s.State.CanTransition(state) || state == domain.StateCanceled {
		return domain.SubscriptionDescriptor{}, domain.ErrInvalid
	}
	s.State = state
	return r.withPublicationLocked(s), nil
}

func (r *roomImpl) ChangePreferredEncoding(subID domain.SubscriptionID, encodingID string) (domain.SubscriptionDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.liveSubscriptionLocked(subID)
	if err != nil {
		return domain.SubscriptionDescriptor{}, err
	}
	p := r.pubs[s.PublicationID]
	if encodingID != "" && len(p.Encodings) > 0 && !slices.ContainsFunc(p.Encodings, func(e domain.Encoding) bool {
		return e.ID == encodingID
	}) {
		return domain.SubscriptionDescriptor{}, fmt.Errorf("encoding %q: %w", encodingID, domain.ErrNotFound)
	}
	s.PreferredEncodingID = encodingID
	return r.withPublicationLocked(s), nil
}

func (r *roomImpl) joinedLocked(mid domain.MemberID) (*domain.MemberDescriptor, error) {
	if r.state == domain.SessionClosed {
		return nil, domain.ErrClosed
	}
	m, ok := r.members[mid]
	if !ok || m.State != domain.MemberJoined {
		return nil, fmt.Errorf("member %s: %w", mid, domain.ErrNotFound)
	}
	return m, nil
}

func (r *roomImpl) livePublicationLocked(pid domain.PublicationID) (*domain.PublicationDescriptor, error) {
	if r.state == domain.SessionClosed {
		return nil, domain.ErrClosed
	}
	p, ok := r.pubs[pid]
	if !ok {
		return nil, fmt.Errorf("publication %s: %w", pid, domain.ErrNotFound)
	}
	if p.State == domain.StateCanceled {
		return nil, fmt.Errorf("publication %s: %w", pid, domain.ErrCanceled)
	}
	return p, nil
}

func (r *roomImpl) liveSubscriptionLocked(subID domain.SubscriptionID) (*domain.SubscriptionDescriptor, error) {
	if r.state == domain.SessionClosed {
		return nil, domain.ErrClosed
	}
	s, ok := r.subs[subID]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", subID, domain.ErrNotFound)
	}
	if s.State == domain.StateCanceled {
		return nil, fmt.Errorf("subscription %s: %w", subID, domain.ErrCanceled)
	}
	return s, nil
}

func (r *roomImpl) cancelSubsOfLocked(pid domain.PublicationID) []domain.SubscriptionDescriptor {
	var out []domain.SubscriptionDescriptor
	for _, id := range r.subIx {
		s := r.subs[id]
		if s.PublicationID == pid && s.State != domain.StateCanceled {
			s.State = domain.StateCanceled
			out = append(out, *s)
		}
	}
	return out
}

// withPublicationLocked copies s and embeds its publication so receivers
// can create both in one step.
func (r *roomImpl) withPublicationLocked(s *domain.SubscriptionDescriptor) domain.SubscriptionDescriptor {
	out := *s
	if p, ok := r.pubs[s.PublicationID]; ok {
		pc := clonePublication(p)
		out.Publication = &pc
	}
	return out
}

func clonePublication(p *domain.PublicationDescriptor) domain.PublicationDescriptor {
	out := *p
	out.Encodings = slices.Clone(p.Encodings)
	out.Codecs = slices.Clone(p.Codecs)
	return out
}
