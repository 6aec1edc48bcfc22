package app

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dkeye/voicesync/internal/domain"
)

func seqIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func TestRoomManager_FindOrCreateIsSingleInstance(t *testing.T) {
	m := NewRoomManagerWithIDs(seqIDs())

	const workers = 16
	ids := make([]domain.SessionID, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, err := m.FindOrCreate("lobby", "")
			if err != nil {
				t.Errorf("FindOrCreate: %v", err)
				return
			}
			ids[i] = room.ID()
		}()
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("got two rooms: %s and %s", ids[0], id)
		}
	}
	if n := len(m.List()); n != 1 {
		t.Errorf("List = %d rooms", n)
	}
}

func TestRoomManager_CreateFindStop(t *testing.T) {
	m := NewRoomManagerWithIDs(seqIDs())

	named, err := m.Create("lobby", "md")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create("lobby", ""); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate name: %v", err)
	}
	anon1, _ := m.Create("", "")
	anon2, _ := m.Create("", "")
	if anon1.ID() == anon2.ID() {
		t.Error("anonymous rooms share an id")
	}

	if r, ok := m.Find(domain.SessionQuery{Name: "lobby"}); !ok || r != named {
		t.Error("find by name")
	}
	if r, ok := m.Find(domain.SessionQuery{ID: named.ID()}); !ok || r != named {
		t.Error("find by id")
	}
	if _, ok := m.Find(domain.SessionQuery{ID: named.ID(), Name: "other"}); ok {
		t.Error("id and name must both match")
	}
	if _, ok := m.Find(domain.SessionQuery{}); ok {
		t.Error("empty query matched")
	}
	if _, err := m.FindOrCreate("", ""); !errors.Is(err, domain.ErrNameEmpty) {
		t.Errorf("FindOrCreate without name: %v", err)
	}

	m.StopRoom(named.ID())
	if _, ok := m.Find(domain.SessionQuery{Name: "lobby"}); ok {
		t.Error("stopped room still indexed by name")
	}
	again, err := m.Create("lobby", "")
	if err != nil || again.ID() == named.ID() {
		t.Errorf("recreate: %v", err)
	}
}
