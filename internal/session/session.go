package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/dkeye/voicesync/internal/jobs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Session is the client view of one remote session. It mirrors members,
// publications and subscriptions as live objects kept in sync by directory
// events.
type Session struct {
	client *Client
	dir    core.Directory
	engine core.MediaEngine
	id     domain.SessionID
	name   string
	logger zerolog.Logger
	jobs   *jobs.Manager
	cache  *entityCache

	mu       sync.RWMutex
	metadata string
	state    domain.SessionState
	local    *LocalMember
	localIDs map[domain.MemberID]struct{}
	unwatch  func()

	joinMu   sync.Mutex
	disposed atomic.Bool
	drained  chan struct{}

	evMu     sync.Mutex
	queue    []func(context.Context)
	draining bool

	onMemberJoined               slot[*Member]
	onMemberLeft                 slot[*Member]
	onMetadataUpdated            slot[string]
	onMemberMetadataUpdated      slot[*Member]
	onPublicationListChanged     notice
	onStreamPublished            slot[*Publication]
	onStreamUnpublished          slot[*Publication]
	onPublicationEnabled         slot[*Publication]
	onPublicationDisabled        slot[*Publication]
	onPublicationMetadataUpdated slot[*Publication]
	onSubscriptionListChanged    notice
	onPublicationSubscribed      slot[*Subscription]
	onPublicationUnsubscribed    slot[*Subscription]
	onClosed                     notice
	onError                      slot[error]
}

func newSession(c *Client, d *domain.SessionDescriptor) *Session {
	s := &Session{
		client:   c,
		dir:      c.dir,
		engine:   c.engine,
		id:       d.ID,
		name:     d.Name,
		metadata: d.Metadata,
		state:    d.State,
		localIDs: make(map[domain.MemberID]struct{}),
		drained:  make(chan struct{}),
		logger: log.With().
			Str("module", "session").
			Str("session", string(d.ID)).
			Logger(),
	}
	s.jobs = jobs.NewManager("session:"+string(d.ID), c.pool)
	s.cache = newEntityCache(s)
	s.cache.seed(d)
	return s
}

func (s *Session) ID() domain.SessionID { return s.id }
func (s *Session) Name() string         { return s.name }
func (s *Session) String() string       { return string(s.id) }

func (s *Session) Metadata() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Members lists joined members; AllMembers includes those that left.
func (s *Session) Members() []*Member                { return s.cache.members.Available() }
func (s *Session) AllMembers() []*Member             { return s.cache.members.All() }
func (s *Session) Publications() []*Publication      { return s.cache.publications.Available() }
func (s *Session) AllPublications() []*Publication   { return s.cache.publications.All() }
func (s *Session) Subscriptions() []*Subscription    { return s.cache.subscriptions.Available() }
func (s *Session) AllSubscriptions() []*Subscription { return s.cache.subscriptions.All() }

func (s *Session) Member(id domain.MemberID) *Member {
	m, _ := s.cache.member(id)
	return m
}

func (s *Session) Publication(id domain.PublicationID) *Publication {
	p, _ := s.cache.publication(id)
	return p
}

func (s *Session) Subscription(id domain.SubscriptionID) *Subscription {
	sub, _ := s.cache.subscription(id)
	return sub
}

// LocalMember returns the member joined through this session object, or nil.
func (s *Session) LocalMember() *LocalMember {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

func (s *Session) Join(ctx context.Context, init domain.MemberInit) *LocalMember {
	if !s.guard("join") {
		return nil
	}
	if err := domain.ValidateMemberName(init.Name, false); err != nil {
		s.logger.Warn().Err(err).Str("name", init.Name).Msg("join: invalid name")
		return nil
	}
	if err := domain.ValidateMetadata(init.Metadata); err != nil {
		s.logger.Warn().Err(err).Msg("join: invalid metadata")
		return nil
	}

	s.joinMu.Lock()
	defer s.joinMu.Unlock()

	if lm := s.LocalMember(); lm != nil && lm.State() == domain.MemberJoined {
		s.logger.Warn().Str("member", string(lm.id)).Msg("join: a local member is already joined")
		return nil
	}
	desc, err := s.dir.Join(ctx, s.id, init)
	if err != nil {
		s.fail("join", err)
		return nil
	}

	// Register the id before the entity appears in the cache so that an
	// event racing this call already sees it as local.
	s.mu.Lock()
	s.localIDs[desc.ID] = struct{}{}
	s.mu.Unlock()

	lm := &LocalMember{Member: s.cache.addMember(*desc)}
	s.mu.Lock()
	s.local = lm
	s.mu.Unlock()
	s.logger.Info().Str("member", string(desc.ID)).Str("name", desc.Name).Msg("joined")
	return lm
}

func (s *Session) Leave(ctx context.Context, m *Member) bool {
	if !s.guard("leave") {
		return false
	}
	if m == nil || m.session != s || m.State() == domain.MemberLeft {
		return false
	}
	if err := s.dir.Leave(ctx, s.id, m.id); err != nil {
		s.fail("leave", err)
		return false
	}
	if m.IsLocal() {
		for _, p := range m.Publications() {
			s.cancelNative(string(p.id))
			p.transition(domain.StateCanceled)
		}
		for _, sub := range m.Subscriptions() {
			s.cancelNative(string(sub.id))
			sub.transition(domain.StateCanceled)
		}
	}
	m.markLeft()
	s.logger.Info().Str("member", string(m.id)).Msg("left")
	return true
}

func (s *Session) UpdateMetadata(ctx context.Context, metadata string) bool {
	if !s.guard("update_metadata") {
		return false
	}
	if err := domain.ValidateMetadata(metadata); err != nil {
		s.logger.Warn().Err(err).Msg("reject metadata")
		return false
	}
	if err := s.dir.UpdateMetadata(ctx, s.id, metadata); err != nil {
		s.fail("update_metadata", err)
		return false
	}
	s.setMetadata(metadata)
	return true
}

// Close closes the remote session for everyone. The local object stays
// usable for reads until Dispose.
func (s *Session) Close(ctx context.Context) bool {
	if !s.guard("close") {
		return false
	}
	if s.State() == domain.SessionClosed {
		return true
	}
	if err := s.dir.Close(ctx, s.id); err != nil {
		s.fail("close", err)
		return false
	}
	s.markClosed()
	return true
}

// Dispose stops event delivery and releases the session's jobs. It does
// not leave or close anything remotely. The returned channel is closed
// once every in-flight handler has returned; a handler may call Dispose
// but must not wait on the channel.
func (s *Session) Dispose() <-chan struct{} {
	if s.disposed.Swap(true) {
		return s.drained
	}
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
	s.client.forget(s)
	go func() {
		if err := s.jobs.TerminateAll(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("terminate jobs")
		}
		close(s.drained)
	}()
	s.logger.Debug().Msg("disposed")
	return s.drained
}

func (s *Session) IsDisposed() bool { return s.disposed.Load() }

func (s *Session) OnMemberJoined(fn func(*Member))                    { s.onMemberJoined.set(fn) }
func (s *Session) OnMemberLeft(fn func(*Member))                      { s.onMemberLeft.set(fn) }
func (s *Session) OnMetadataUpdated(fn func(string))                  { s.onMetadataUpdated.set(fn) }
func (s *Session) OnMemberMetadataUpdated(fn func(*Member))           { s.onMemberMetadataUpdated.set(fn) }
func (s *Session) OnPublicationListChanged(fn func())                 { s.onPublicationListChanged.set(fn) }
func (s *Session) OnStreamPublished(fn func(*Publication))            { s.onStreamPublished.set(fn) }
func (s *Session) OnStreamUnpublished(fn func(*Publication))          { s.onStreamUnpublished.set(fn) }
func (s *Session) OnPublicationEnabled(fn func(*Publication))         { s.onPublicationEnabled.set(fn) }
func (s *Session) OnPublicationDisabled(fn func(*Publication))        { s.onPublicationDisabled.set(fn) }
func (s *Session) OnPublicationMetadataUpdated(fn func(*Publication)) { s.onPublicationMetadataUpdated.set(fn) }
func (s *Session) OnSubscriptionListChanged(fn func())                { s.onSubscriptionListChanged.set(fn) }
func (s *Session) OnPublicationSubscribed(fn func(*Subscription))     { s.onPublicationSubscribed.set(fn) }
func (s *Session) OnPublicationUnsubscribed(fn func(*Subscription))   { s.onPublicationUnsubscribed.set(fn) }
func (s *Session) OnClosed(fn func())                                 { s.onClosed.set(fn) }
func (s *Session) OnError(fn func(error))                             { s.onError.set(fn) }

// guard is the precondition of every mutating verb.
func (s *Session) guard(op string) bool {
	if !s.client.IsSetup() {
		s.logger.Warn().Str("op", op).Err(domain.ErrNotSetup).Msg("client is not set up")
		return false
	}
	if s.disposed.Load() {
		s.logger.Warn().Str("op", op).Err(domain.ErrClosed).Msg("session is disposed")
		return false
	}
	return true
}

// fail logs a remote or native failure and reports it to OnError.
func (s *Session) fail(op string, err error) {
	ev := s.logger.Error()
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrDuplicate) || errors.Is(err, domain.ErrCanceled) {
		ev = s.logger.Warn()
	}
	ev.Err(err).Str("op", op).Str("code", domain.CodeOf(err)).Msg("operation failed")
	s.enqueue(func(context.Context) { s.onError.fire(err) })
}

func (s *Session) sideOf(id domain.MemberID) domain.Side {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.localIDs[id]; ok {
		return domain.SideLocal
	}
	return domain.SideRemote
}

func (s *Session) setMetadata(md string) {
	s.mu.Lock()
	s.metadata = md
	s.mu.Unlock()
}

func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.SessionClosed {
		return false
	}
	s.state = domain.SessionClosed
	return true
}

func (s *Session) cancelNative(handle string) {
	if s.engine == nil {
		return
	}
	if err := s.engine.Cancel(handle); err != nil {
		s.logger.Warn().Err(err).Str("handle", handle).Msg("native cancel failed")
	}
}

func (s *Session) toggleNative(handle string, next domain.State) error {
	if s.engine == nil {
		return nil
	}
	if next == domain.StateEnabled {
		return s.engine.Enable(handle)
	}
	return s.engine.Disable(handle)
}

func (s *Session) watch() error {
	unwatch, err := s.dir.Watch(s.id, s.HandleEvent)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.unwatch = unwatch
	s.mu.Unlock()
	return nil
}
