package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/voicesync/internal/adapters/local"
	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
)

type fakeStream struct {
	id   string
	kind domain.ContentType
}

func (s fakeStream) ID() string                      { return s.id }
func (s fakeStream) ContentType() domain.ContentType { return s.kind }

type fakeEngine struct {
	calls atomic.Int32
}

func (e *fakeEngine) Publish(domain.PublicationID, domain.Stream, []domain.Encoding) error {
	e.calls.Add(1)
	return nil
}

func (e *fakeEngine) Subscribe(subID domain.SubscriptionID, _ domain.PublicationID, kind domain.ContentType) (domain.Stream, error) {
	e.calls.Add(1)
	return fakeStream{id: "rx-" + string(subID), kind: kind}, nil
}

func (e *fakeEngine) Enable(string) error {
	e.calls.Add(1)
	return nil
}

func (e *fakeEngine) Disable(string) error {
	e.calls.Add(1)
	return nil
}

func (e *fakeEngine) Cancel(string) error {
	e.calls.Add(1)
	return nil
}

func (e *fakeEngine) ChangeEncoding(domain.SubscriptionID, string) error {
	e.calls.Add(1)
	return nil
}

// countingDirectory counts every remote call.
type countingDirectory struct {
	core.Directory
	calls atomic.Int32
}

func (d *countingDirectory) Create(ctx context.Context, name, md string) (*domain.SessionDescriptor, error) {
	d.calls.Add(1)
	return d.Directory.Create(ctx, name, md)
}

func (d *countingDirectory) Find(ctx context.Context, q domain.SessionQuery) (*domain.SessionDescriptor, error) {
	d.calls.Add(1)
	return d.Directory.Find(ctx, q)
}

func (d *countingDirectory) FindOrCreate(ctx context.Context, name, md string) (*domain.SessionDescriptor, error) {
	d.calls.Add(1)
	return d.Directory.FindOrCreate(ctx, name, md)
}

func (d *countingDirectory) Close(ctx context.Context, sid domain.SessionID) error {
	d.calls.Add(1)
	return d.Directory.Close(ctx, sid)
}

func (d *countingDirectory) UpdateMetadata(ctx context.Context, sid domain.SessionID, md string) error {
	d.calls.Add(1)
	return d.Directory.UpdateMetadata(ctx, sid, md)
}

func (d *countingDirectory) Join(ctx context.Context, sid domain.SessionID, init domain.MemberInit) (*domain.MemberDescriptor, error) {
	d.calls.Add(1)
	return d.Directory.Join(ctx, sid, init)
}

func (d *countingDirectory) Leave(ctx context.Context, sid domain.SessionID, mid domain.MemberID) error {
	d.calls.Add(1)
	return d.Directory.Leave(ctx, sid, mid)
}

func (d *countingDirectory) UpdateMemberMetadata(ctx context.Context, sid domain.SessionID, mid domain.MemberID, md string) error {
	d.calls.Add(1)
	return d.Directory.UpdateMemberMetadata(ctx, sid, mid, md)
}

func (d *countingDirectory) Publish(ctx context.Context, sid domain.SessionID, req domain.PublishRequest) (*domain.PublicationDescriptor, error) {
	d.calls.Add(1)
	return d.Directory.Publish(ctx, sid, req)
}

func (d *countingDirectory) Unpublish(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	d.calls.Add(1)
	return d.Directory.Unpublish(ctx, sid, pid)
}

func (d *countingDirectory) EnablePublication(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	d.calls.Add(1)
	return d.Directory.EnablePublication(ctx, sid, pid)
}

func (d *countingDirectory) DisablePublication(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	d.calls.Add(1)
	return d.Directory.DisablePublication(ctx, sid, pid)
}

func (d *countingDirectory) UpdatePublicationMetadata(ctx context.Context, sid domain.SessionID, pid domain.PublicationID, md string) error {
	d.calls.Add(1)
	return d.Directory.UpdatePublicationMetadata(ctx, sid, pid, md)
}

func (d *countingDirectory) Subscribe(ctx context.Context, sid domain.SessionID, req domain.SubscribeRequest) (*domain.SubscriptionDescriptor, error) {
	d.calls.Add(1)
	return d.Directory.Subscribe(ctx, sid, req)
}

func (d *countingDirectory) Unsubscribe(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	d.calls.Add(1)
	return d.Directory.Unsubscribe(ctx, sid, subID)
}

func (d *countingDirectory) EnableSubscription(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	d.calls.Add(1)
	return d.Directory.EnableSubscription(ctx, sid, subID)
}

func (d *countingDirectory) DisableSubscription(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	d.calls.Add(1)
	return d.Directory.DisableSubscription(ctx, sid, subID)
}

func (d *countingDirectory) ChangePreferredEncoding(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID, enc string) error {
	d.calls.Add(1)
	return d.Directory.ChangePreferredEncoding(ctx, sid, subID, enc)
}

type harness struct {
	client *Client
	dir    *countingDirectory
	engine *fakeEngine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := local.NewStandalone(256, app.DropPolicy{})
	h := &harness{
		dir:    &countingDirectory{Directory: backend},
		engine: &fakeEngine{},
	}
	h.client = Setup(h.dir, h.engine, Options{Workers: 4})
	t.Cleanup(func() {
		h.client.Dispose()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = backend.Registry().Close(ctx)
	})
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var video = fakeStream{id: "cam", kind: domain.ContentVideo}

func TestPublish_ConcurrentEventYieldsSameInstance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := h.client.Create(ctx, "room", "")
	if s == nil {
		t.Fatal("Create returned nil")
	}
	seen := make(chan *Publication, 1)
	s.OnStreamPublished(func(p *Publication) { seen <- p })

	a := s.Join(ctx, domain.MemberInit{Name: "a"})
	if a == nil || a.Side() != domain.SideLocal {
		t.Fatalf("Join: %v", a)
	}
	p1 := a.Publish(ctx, video, PublishOptions{})
	if p1 == nil {
		t.Fatal("Publish returned nil")
	}
	if p1.State() != domain.StateEnabled {
		t.Errorf("state = %s, want enabled", p1.State())
	}

	// The directory announces P1 to this very session from its own goroutine.
	select {
	case got := <-seen:
		if got != p1 {
			t.Fatal("event produced a second Publication object")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream_published never dispatched")
	}

	// A redundant event from yet another goroutine changes nothing.
	d := p1.Descriptor()
	go s.HandleEvent(domain.Event{Type: domain.EventStreamPublished, SessionID: s.ID(), Publication: &d})
	select {
	case got := <-seen:
		if got != p1 {
			t.Fatal("redundant event produced a second Publication object")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("redundant event never dispatched")
	}
	if n := len(s.AllPublications()); n != 1 {
		t.Errorf("publications = %d, want 1", n)
	}
	if p1.Stream() != video {
		t.Errorf("stream = %v", p1.Stream())
	}
}

func TestSubscribe_UnsubscribeThenResubscribeGetsFreshID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sa := h.client.Create(ctx, "room", "")
	a := sa.Join(ctx, domain.MemberInit{Name: "a"})
	p1 := a.Publish(ctx, video, PublishOptions{})

	sb := h.client.Find(ctx, domain.SessionQuery{ID: sa.ID()})
	if sb == nil || sb == sa {
		t.Fatal("Find must open an independent session object")
	}
	b := sb.Join(ctx, domain.MemberInit{Name: "b"})
	if b == nil {
		t.Fatal("b failed to join")
	}
	var found bool
	for _, p := range sb.Publications() {
		found = found || p.ID() == p1.ID()
	}
	if !found {
		t.Fatal("b does not see P1")
	}
	if sb.Publication(p1.ID()) == p1 {
		t.Fatal("sessions must not share entity objects")
	}

	sub1 := b.Subscribe(ctx, p1.ID(), SubscribeOptions{})
	if sub1 == nil {
		t.Fatal("Subscribe returned nil")
	}
	if sub1.Publication() == nil || sub1.Publication().ID() != p1.ID() {
		t.Fatal("subscription does not resolve its publication")
	}
	if sub1.Stream() == nil {
		t.Error("local subscription has no stream")
	}
	if !b.Unsubscribe(ctx, sub1.ID()) {
		t.Fatal("Unsubscribe failed")
	}
	if sub1.State() != domain.StateCanceled {
		t.Fatalf("state = %s", sub1.State())
	}
	sub2 := b.Subscribe(ctx, p1.ID(), SubscribeOptions{})
	if sub2 == nil {
		t.Fatal("resubscribe failed")
	}
	if sub2 == sub1 || sub2.ID() == sub1.ID() {
		t.Fatal("resubscribe reused the old subscription")
	}

	// The publisher's session learns about the subscription through events.
	eventually(t, "subscription visible to publisher", func() bool {
		return len(p1.Subscriptions()) == 1 && p1.Subscriptions()[0].ID() == sub2.ID()
	})
}

func TestPublish_ConcurrentCallsFromOneMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.client.Create(ctx, "", "")
	a := s.Join(ctx, domain.MemberInit{})

	const n = 16
	pubs := make([]*Publication, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pubs[i] = a.Publish(ctx, fakeStream{id: "mic", kind: domain.ContentAudio}, PublishOptions{})
		}()
	}
	wg.Wait()

	ids := map[domain.PublicationID]bool{}
	for i, p := range pubs {
		if p == nil {
			t.Fatalf("publish %d returned nil", i)
		}
		ids[p.ID()] = true
	}
	if len(ids) != n {
		t.Fatalf("distinct ids = %d, want %d", len(ids), n)
	}
	eventually(t, "all events applied", func() bool { return len(s.AllPublications()) == n })
	if got := len(a.Publications()); got != n {
		t.Errorf("member publications = %d", got)
	}
}

func TestCanceled_IsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.client.Create(ctx, "room", "")
	a := sa.Join(ctx, domain.MemberInit{Name: "a"})
	p := a.Publish(ctx, video, PublishOptions{Encodings: []domain.Encoding{{ID: "low"}, {ID: "high"}}})

	sb := h.client.Find(ctx, domain.SessionQuery{Name: "room"})
	b := sb.Join(ctx, domain.MemberInit{Name: "b"})
	sub := b.Subscribe(ctx, p.ID(), SubscribeOptions{PreferredEncodingID: "low"})
	if sub == nil {
		t.Fatal("subscribe failed")
	}
	if !sub.ChangePreferredEncoding(ctx, "high") || sub.PreferredEncodingID() != "high" {
		t.Fatal("ChangePreferredEncoding failed")
	}

	if !sub.Cancel(ctx) {
		t.Fatal("Cancel failed")
	}
	if sub.Enable(ctx) || sub.Disable(ctx) || sub.ChangePreferredEncoding(ctx, "low") || sub.Cancel(ctx) {
		t.Error("canceled subscription accepted a verb")
	}

	if !a.Unpublish(ctx, p.ID()) {
		t.Fatal("Unpublish failed")
	}
	if p.Enable(ctx) || p.Disable(ctx) || p.Cancel(ctx) || p.UpdateMetadata(ctx, "x") {
		t.Error("canceled publication accepted a verb")
	}
	if p.State() != domain.StateCanceled || sub.State() != domain.StateCanceled {
		t.Errorf("states = %s / %s", p.State(), sub.State())
	}

	// Remote side converges on the same terminal state.
	eventually(t, "b sees P canceled", func() bool {
		return sb.Publication(p.ID()).State() == domain.StateCanceled
	})
	if sb.Publication(p.ID()).Enable(ctx) {
		t.Error("remote copy of a canceled publication came back")
	}
}

func TestDispose_VerbsIssueNoCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.client.Create(ctx, "room", "")
	a := sa.Join(ctx, domain.MemberInit{Name: "a"})
	p := a.Publish(ctx, video, PublishOptions{})

	sb := h.client.Find(ctx, domain.SessionQuery{ID: sa.ID()})
	b := sb.Join(ctx, domain.MemberInit{Name: "b"})
	sub := b.Subscribe(ctx, p.ID(), SubscribeOptions{})
	if sub == nil {
		t.Fatal("subscribe failed")
	}

	var joined atomic.Int32
	sb.OnMemberJoined(func(*Member) { joined.Add(1) })

	select {
	case <-sb.Dispose():
	case <-time.After(2 * time.Second):
		t.Fatal("dispose did not drain")
	}
	remote, native := h.dir.calls.Load(), h.engine.calls.Load()

	if sb.Join(ctx, domain.MemberInit{Name: "c"}) != nil {
		t.Error("Join after dispose")
	}
	if sb.Leave(ctx, b.Member) || b.Leave(ctx) || sb.UpdateMetadata(ctx, "x") || sb.Close(ctx) {
		t.Error("session verb after dispose")
	}
	if b.Publish(ctx, video, PublishOptions{}) != nil || b.Subscribe(ctx, p.ID(), SubscribeOptions{}) != nil {
		t.Error("publish/subscribe after dispose")
	}
	if b.Unsubscribe(ctx, sub.ID()) || b.UpdateMetadata(ctx, "x") {
		t.Error("member verb after dispose")
	}
	if sub.Enable(ctx) || sub.Disable(ctx) || sub.ChangePreferredEncoding(ctx, "x") || sub.Cancel(ctx) {
		t.Error("subscription verb after dispose")
	}
	rp := sb.Publication(p.ID())
	if rp.Enable(ctx) || rp.Disable(ctx) || rp.UpdateMetadata(ctx, "x") {
		t.Error("publication verb after dispose")
	}
	if got := h.dir.calls.Load(); got != remote {
		t.Errorf("remote calls after dispose: %d", got-remote)
	}
	if got := h.engine.calls.Load(); got != native {
		t.Errorf("native calls after dispose: %d", got-native)
	}

	// Events for the disposed object are no longer delivered.
	if sa.Join(ctx, domain.MemberInit{Name: "c"}) != nil {
		t.Error("second local join on sa must fail")
	}
	sc := h.client.Find(ctx, domain.SessionQuery{ID: sa.ID()})
	sc.Join(ctx, domain.MemberInit{Name: "c"})
	time.Sleep(50 * time.Millisecond)
	if joined.Load() != 0 {
		t.Error("handler ran after dispose")
	}

	// Same contract once the whole client is gone.
	h.client.Dispose()
	remote = h.dir.calls.Load()
	if h.client.IsSetup() || h.client.Create(ctx, "x", "") != nil || sa.UpdateMetadata(ctx, "x") || p.Disable(ctx) {
		t.Error("verb after client dispose")
	}
	if got := h.dir.calls.Load(); got != remote {
		t.Errorf("remote calls after client dispose: %d", got-remote)
	}
}

func TestJoin_OneLocalMemberAndRemoteErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.client.Create(ctx, "room", "")
	if a := sa.Join(ctx, domain.MemberInit{Name: "a"}); a == nil {
		t.Fatal("join failed")
	}
	before := h.dir.calls.Load()
	if sa.Join(ctx, domain.MemberInit{Name: "z"}) != nil {
		t.Fatal("second local member joined")
	}
	if h.dir.calls.Load() != before {
		t.Error("rejected local join reached the directory")
	}

	sb := h.client.Find(ctx, domain.SessionQuery{ID: sa.ID()})
	errs := make(chan error, 1)
	sb.OnError(func(err error) { errs <- err })
	if sb.Join(ctx, domain.MemberInit{Name: "a"}) != nil {
		t.Fatal("duplicate name joined")
	}
	select {
	case err := <-errs:
		if !errors.Is(err, domain.ErrDuplicate) {
			t.Errorf("OnError got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnError not called")
	}

	long := make([]rune, domain.MaxNameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if sb.Join(ctx, domain.MemberInit{Name: string(long)}) != nil {
		t.Error("overlong name accepted")
	}
}

func TestRelay_FollowsOrigin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.client.Create(ctx, "room", "")
	a := s.Join(ctx, domain.MemberInit{Name: "a"})
	origin := a.Publish(ctx, video, PublishOptions{Metadata: "cam"})
	relay := a.Publish(ctx, nil, PublishOptions{OriginID: origin.ID()})
	if relay == nil {
		t.Fatal("relay publish failed")
	}
	if relay.Origin() != origin || relay.ContentType() != domain.ContentVideo {
		t.Fatalf("relay origin=%v kind=%s", relay.Origin(), relay.ContentType())
	}
	if relay.Metadata() != "cam" {
		t.Errorf("relay metadata = %q", relay.Metadata())
	}
	// Directory events replay each transition, so settle on the final state.
	if !origin.Disable(ctx) {
		t.Fatal("disable origin failed")
	}
	eventually(t, "relay disabled", func() bool { return relay.State() == domain.StateDisabled })
	if !relay.Enable(ctx) {
		t.Fatal("enable through relay failed")
	}
	eventually(t, "origin enabled", func() bool { return origin.State() == domain.StateEnabled })
	if !relay.Cancel(ctx) || relay.State() != domain.StateCanceled {
		t.Fatalf("cancel relay: relay=%s", relay.State())
	}
	eventually(t, "origin untouched", func() bool { return origin.State() == domain.StateEnabled })
}

func TestToggle_SameStateIsLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.client.Create(ctx, "room", "")
	a := s.Join(ctx, domain.MemberInit{Name: "a"})
	p := a.Publish(ctx, video, PublishOptions{})
	before := h.dir.calls.Load()
	if !p.Enable(ctx) {
		t.Fatal("enable of enabled publication must succeed")
	}
	if h.dir.calls.Load() != before {
		t.Error("no-op enable reached the directory")
	}
}

func TestLeave_CascadesToRemoteViews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sa := h.client.Create(ctx, "room", "")
	a := sa.Join(ctx, domain.MemberInit{Name: "a"})
	p := a.Publish(ctx, video, PublishOptions{})

	sb := h.client.Find(ctx, domain.SessionQuery{ID: sa.ID()})
	b := sb.Join(ctx, domain.MemberInit{Name: "b"})
	sub := b.Subscribe(ctx, p.ID(), SubscribeOptions{})

	left := make(chan *Member, 1)
	sb.OnMemberLeft(func(m *Member) { left <- m })
	canceled := make(chan struct{})
	sub.OnCanceled(func() { close(canceled) })

	if !a.Leave(ctx) {
		t.Fatal("leave failed")
	}
	if a.State() != domain.MemberLeft || p.State() != domain.StateCanceled {
		t.Fatalf("local view: member=%s pub=%s", a.State(), p.State())
	}
	select {
	case m := <-left:
		if m.ID() != a.ID() || m.Side() != domain.SideRemote {
			t.Errorf("left member = %v side=%s", m, m.Side())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("member_left not delivered")
	}
	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription cancel not delivered")
	}
	if sb.Publication(p.ID()).State() != domain.StateCanceled {
		t.Error("remote publication still live")
	}
	if len(sb.Members()) != 1 || len(sb.AllMembers()) != 2 {
		t.Errorf("members=%d all=%d", len(sb.Members()), len(sb.AllMembers()))
	}

	// A new local member may join after the old one left.
	if sa.Join(ctx, domain.MemberInit{Name: "a"}) == nil {
		t.Error("rejoin after leave failed")
	}
}

func TestDispatch_UnknownIDDroppedAndQueueSurvivesPanics(t *testing.T) {
	h := newHarness(t)
	s := h.client.Create(context.Background(), "room", "")

	var left atomic.Int32
	s.OnMemberLeft(func(*Member) { left.Add(1) })
	s.OnMemberJoined(func(*Member) { panic("boom") })
	got := make(chan string, 1)
	s.OnMetadataUpdated(func(md string) { got <- md })

	s.HandleEvent(domain.Event{Type: domain.EventMemberLeft, SessionID: s.ID(), MemberID: "ghost"})
	s.HandleEvent(domain.Event{
		Type:      domain.EventMemberJoined,
		SessionID: s.ID(),
		Member:    &domain.MemberDescriptor{ID: "m1", State: domain.MemberJoined},
	})
	s.HandleEvent(domain.Event{Type: domain.EventMetadataUpdated, SessionID: s.ID(), Metadata: "after"})

	select {
	case md := <-got:
		if md != "after" || s.Metadata() != "after" {
			t.Errorf("metadata = %q", md)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled")
	}
	if left.Load() != 0 || s.Member("ghost") != nil {
		t.Error("unknown id was materialized")
	}
	if s.Member("m1") == nil {
		t.Error("member from descriptor missing")
	}
}

func TestHandlers_SingleSlotReplaces(t *testing.T) {
	h := newHarness(t)
	s := h.client.Create(context.Background(), "room", "")

	var first, second atomic.Int32
	done := make(chan struct{}, 1)
	s.OnMetadataUpdated(func(string) { first.Add(1) })
	s.OnMetadataUpdated(func(string) { second.Add(1); done <- struct{}{} })

	s.HandleEvent(domain.Event{Type: domain.EventMetadataUpdated, SessionID: s.ID(), Metadata: "x"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	if first.Load() != 0 || second.Load() != 1 {
		t.Errorf("first=%d second=%d", first.Load(), second.Load())
	}

	s.OnMetadataUpdated(nil)
	s.HandleEvent(domain.Event{Type: domain.EventMetadataUpdated, SessionID: s.ID(), Metadata: "y"})
	eventually(t, "metadata applied", func() bool { return s.Metadata() == "y" })
	if second.Load() != 1 {
		t.Error("cleared handler still called")
	}
}

func TestEntityCache_SubscriptionStreamFillOnce(t *testing.T) {
	h := newHarness(t)
	s := h.client.Create(context.Background(), "room", "")

	pub := domain.PublicationDescriptor{ID: "p", PublisherID: "m", State: domain.StateEnabled}
	d := domain.SubscriptionDescriptor{ID: "s", SubscriberID: "n", PublicationID: "p", Publication: &pub}

	sub, err := s.cache.addSubscription(d)
	if err != nil {
		t.Fatalf("addSubscription: %v", err)
	}
	if sub.Stream() != nil {
		t.Fatal("stream set without one in the descriptor")
	}
	first := fakeStream{id: "one"}
	d.Stream = first
	if again, _ := s.cache.addSubscription(d); again != sub || sub.Stream() != first {
		t.Fatal("first stream not attached")
	}
	d.Stream = fakeStream{id: "two"}
	if again, _ := s.cache.addSubscription(d); again != sub || sub.Stream() != first {
		t.Fatal("stream overwritten")
	}

	orphan := domain.SubscriptionDescriptor{ID: "s2", PublicationID: "missing"}
	if _, err := s.cache.addSubscription(orphan); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("orphan subscription: %v", err)
	}
}
