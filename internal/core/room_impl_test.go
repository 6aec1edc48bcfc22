package core

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/dkeye/voicesync/internal/domain"
)

func newTestRoom() RoomService {
	var n atomic.Int64
	return NewRoomService("room-1", "lobby", "", func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	})
}

func mustJoin(t *testing.T, r RoomService, name string) domain.MemberDescriptor {
	t.Helper()
	m, err := r.AddMember(domain.MemberInit{Name: name})
	if err != nil {
		t.Fatalf("AddMember(%q): %v", name, err)
	}
	return m
}

func TestRoom_DuplicateNameRejectedWhileJoined(t *testing.T) {
	r := newTestRoom()
	alice := mustJoin(t, r, "alice")

	if _, err := r.AddMember(domain.MemberInit{Name: "alice"}); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("second alice: got %v, want ErrDuplicate", err)
	}
	if _, err := r.RemoveMember(alice.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	again := mustJoin(t, r, "alice")
	if again.ID == alice.ID {
		t.Error("member id reused after leave")
	}
	// Anonymous members never conflict.
	mustJoin(t, r, "")
	mustJoin(t, r, "")
}

func TestRoom_SubscribeUnsubscribeResubscribe(t *testing.T) {
	r := newTestRoom()
	a := mustJoin(t, r, "a")
	b := mustJoin(t, r, "b")

	p, err := r.Publish(domain.PublishRequest{PublisherID: a.ID, ContentType: domain.ContentVideo})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := r.Subscribe(domain.SubscribeRequest{SubscriberID: a.ID, PublicationID: p.ID}); !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("self subscribe: got %v, want ErrInvalid", err)
	}

	s1, err := r.Subscribe(domain.SubscribeRequest{SubscriberID: b.ID, PublicationID: p.ID})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if s1.Publication == nil || s1.Publication.ID != p.ID {
		t.Fatalf("subscription must embed its publication: %+v", s1.Publication)
	}
	if _, err := r.Subscribe(domain.SubscribeRequest{SubscriberID: b.ID, PublicationID: p.ID}); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("double subscribe: got %v, want ErrDuplicate", err)
	}

	gone, err := r.Unsubscribe(s1.ID)
	if err != nil || gone.State != domain.StateCanceled {
		t.Fatalf("Unsubscribe: %v state=%s", err, gone.State)
	}
	if _, err := r.Unsubscribe(s1.ID); !errors.Is(err, domain.ErrCanceled) {
		t.Errorf("second unsubscribe: got %v, want ErrCanceled", err)
	}
	if _, err := r.SetSubscriptionState(s1.ID, domain.StateEnabled); !errors.Is(err, domain.ErrCanceled) {
		t.Errorf("enable canceled: got %v", err)
	}

	s2, err := r.Subscribe(domain.SubscribeRequest{SubscriberID: b.ID, PublicationID: p.ID})
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if s2.ID == s1.ID {
		t.Error("subscription id reused")
	}
}

func TestRoom_LeaveCascades(t *testing.T) {
	r := newTestRoom()
	a := mustJoin(t, r, "a")
	b := mustJoin(t, r, "b")
	pa, _ := r.Publish(domain.PublishRequest{PublisherID: a.ID})
	pb, _ := r.Publish(domain.PublishRequest{PublisherID: b.ID})
	sb, _ := r.Subscribe(domain.SubscribeRequest{SubscriberID: b.ID, PublicationID: pa.ID})
	sa, _ := r.Subscribe(domain.SubscribeRequest{SubscriberID: a.ID, PublicationID: pb.ID})

	exit, err := r.RemoveMember(a.ID)
	if err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if exit.Member.State != domain.MemberLeft {
		t.Errorf("member state = %s", exit.Member.State)
	}
	if len(exit.Unpublished) != 1 || exit.Unpublished[0].ID != pa.ID {
		t.Errorf("unpublished = %+v", exit.Unpublished)
	}
	ids := map[domain.SubscriptionID]bool{}
	for _, s := range exit.Unsubscribed {
		ids[s.ID] = true
	}
	if !ids[sa.ID] || !ids[sb.ID] || len(ids) != 2 {
		t.Errorf("unsubscribed = %v", ids)
	}
	if r.MemberCount() != 1 {
		t.Errorf("MemberCount = %d", r.MemberCount())
	}
	if _, err := r.RemoveMember(a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second leave: got %v", err)
	}
}

func TestRoom_ClosedRejectsEverything(t *testing.T) {
	r := newTestRoom()
	a := mustJoin(t, r, "a")
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.Close(); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("second close: %v", err)
	}
	if _, err := r.AddMember(domain.MemberInit{}); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("join closed: %v", err)
	}
	if _, err := r.Publish(domain.PublishRequest{PublisherID: a.ID}); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("publish closed: %v", err)
	}
	snap := r.Snapshot()
	if snap.State != domain.SessionClosed || snap.Members[0].State != domain.MemberLeft {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRoom_RelayInheritsOriginState(t *testing.T) {
	r := newTestRoom()
	a := mustJoin(t, r, "a")
	origin, _ := r.Publish(domain.PublishRequest{PublisherID: a.ID})
	if _, err := r.SetPublicationState(origin.ID, domain.StateDisabled); err != nil {
		t.Fatalf("disable: %v", err)
	}
	relay, err := r.Publish(domain.PublishRequest{PublisherID: a.ID, OriginID: origin.ID})
	if err != nil {
		t.Fatalf("relay publish: %v", err)
	}
	if relay.OriginID != origin.ID || relay.State != domain.StateDisabled {
		t.Errorf("relay = %+v", relay)
	}
	if _, err := r.Publish(domain.PublishRequest{PublisherID: a.ID, OriginID: "nope"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown origin: %v", err)
	}
}

func TestRoom_ChangePreferredEncoding(t *testing.T) {
	r := newTestRoom()
	a := mustJoin(t, r, "a")
	b := mustJoin(t, r, "b")
	p, _ := r.Publish(domain.PublishRequest{
		PublisherID: a.ID,
		Encodings:   []domain.Encoding{{ID: "low"}, {ID: "high"}},
	})
	s, _ := r.Subscribe(domain.SubscribeRequest{SubscriberID: b.ID, PublicationID: p.ID})

	got, err := r.ChangePreferredEncoding(s.ID, "high")
	if err != nil || got.PreferredEncodingID != "high" {
		t.Fatalf("change: %v %+v", err, got)
	}
	if _, err := r.ChangePreferredEncoding(s.ID, "ultra"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown encoding: %v", err)
	}
}
