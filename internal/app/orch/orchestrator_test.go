package orch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Notify(ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func newTestOrchestrator() (*Orchestrator, *recorder) {
	var n atomic.Int64
	rec := &recorder{}
	rooms := app.NewRoomManagerWithIDs(func() string { return fmt.Sprintf("id-%d", n.Add(1)) })
	return New(rooms, rec), rec
}

func equalTypes(a, b []domain.EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOrchestrator_EventsCarryDescriptors(t *testing.T) {
	o, rec := newTestOrchestrator()
	s, err := o.CreateSession("room", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	a, _ := o.Join(s.ID, domain.MemberInit{Name: "a"})
	b, _ := o.Join(s.ID, domain.MemberInit{Name: "b"})
	p, err := o.Publish(s.ID, domain.PublishRequest{PublisherID: a.ID, ContentType: domain.ContentAudio})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	sub, err := o.Subscribe(s.ID, domain.SubscribeRequest{SubscriberID: b.ID, PublicationID: p.ID})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	if last.Type != domain.EventPublicationSubscribed || last.Subscription == nil || last.Subscription.ID != sub.ID {
		t.Fatalf("last event = %+v", last)
	}
	if last.Subscription.Publication == nil || last.Subscription.Publication.ID != p.ID {
		t.Error("subscription event must embed the publication")
	}
	if last.SessionID != s.ID {
		t.Errorf("session id = %s", last.SessionID)
	}
}

func TestOrchestrator_LeaveAnnouncesCascadeFirst(t *testing.T) {
	o, rec := newTestOrchestrator()
	s, _ := o.CreateSession("room", "")
	a, _ := o.Join(s.ID, domain.MemberInit{Name: "a"})
	b, _ := o.Join(s.ID, domain.MemberInit{Name: "b"})
	p, _ := o.Publish(s.ID, domain.PublishRequest{PublisherID: a.ID})
	if _, err := o.Subscribe(s.ID, domain.SubscribeRequest{SubscriberID: b.ID, PublicationID: p.ID}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	rec.reset()

	if err := o.Leave(s.ID, a.ID); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	want := []domain.EventType{
		domain.EventPublicationUnsubscribed,
		domain.EventStreamUnpublished,
		domain.EventMemberLeft,
	}
	if got := rec.types(); !equalTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if err := o.Leave(s.ID, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second leave: %v", err)
	}
}

func TestOrchestrator_CloseAndErrors(t *testing.T) {
	o, rec := newTestOrchestrator()
	if _, err := o.Join("nope", domain.MemberInit{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("join unknown session: %v", err)
	}
	s, _ := o.FindOrCreateSession("room", "")
	again, _ := o.FindOrCreateSession("room", "")
	if again.ID != s.ID {
		t.Error("FindOrCreate created twice")
	}
	if _, err := o.Join(s.ID, domain.MemberInit{Name: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Join(s.ID, domain.MemberInit{Name: "a"}); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate: %v", err)
	}
	rec.reset()
	if err := o.EvictSession(s.ID); err != nil {
		t.Fatalf("EvictSession: %v", err)
	}
	want := []domain.EventType{domain.EventMemberLeft, domain.EventClosed}
	if got := rec.types(); !equalTypes(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if _, err := o.FindSession(domain.SessionQuery{ID: s.ID}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("closed session still found: %v", err)
	}
	if len(o.ListSessions()) != 0 {
		t.Error("closed session still listed")
	}
}
