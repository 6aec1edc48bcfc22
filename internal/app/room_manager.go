package app

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl indexes rooms by id and, for named rooms, by name.
type RoomManagerImpl struct {
	newID func() string

	mu     sync.RWMutex
	rooms  map[domain.SessionID]core.RoomService
	byName map[string]domain.SessionID
}

func NewRoomManager() core.RoomManager {
	return NewRoomManagerWithIDs(uuid.NewString)
}

// NewRoomManagerWithIDs lets tests make ids predictable.
func NewRoomManagerWithIDs(newID func() string) core.RoomManager {
	return &RoomManagerImpl{
		newID:  newID,
		rooms:  make(map[domain.SessionID]core.RoomService),
		byName: make(map[string]domain.SessionID),
	}
}

func (f *RoomManagerImpl) Create(name, metadata string) (core.RoomService, error) {
	if err := validateRoom(name, metadata); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if name != "" {
		if _, ok := f.byName[name]; ok {
			return nil, fmt.Errorf("session %q: %w", name, domain.ErrDuplicate)
		}
	}
	return f.createLocked(name, metadata), nil
}

func (f *RoomManagerImpl) Find(q domain.SessionQuery) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.findLocked(q)
}

// FindOrCreate looks the name up under the read lock first and re-checks
// under the write lock before creating.
func (f *RoomManagerImpl) FindOrCreate(name, metadata string) (core.RoomService, error) {
	if err := domain.ValidateMemberName(name, true); err != nil {
		return nil, err
	}
	if err := domain.ValidateMetadata(metadata); err != nil {
		return nil, err
	}
	q := domain.SessionQuery{Name: name}

	f.mu.RLock()
	room, ok := f.findLocked(q)
	f.mu.RUnlock()
	if ok {
		return room, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.findLocked(q); ok {
		return room, nil
	}
	return f.createLocked(name, metadata), nil
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, Name: r.Name(), State: r.State(), MemberCount: r.MemberCount()})
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StopRoom forgets the room. Closing it is the caller's business.
func (f *RoomManagerImpl) StopRoom(sid domain.SessionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[sid]
	if !ok {
		return
	}
	delete(f.rooms, sid)
	if name := room.Name(); name != "" && f.byName[name] == sid {
		delete(f.byName, name)
	}
	log.Info().Str("module", "app.rooms").Str("session", string(sid)).Msg("room stopped")
}

func (f *RoomManagerImpl) findLocked(q domain.SessionQuery) (core.RoomService, bool) {
	if q.ID != "" {
		room, ok := f.rooms[q.ID]
		if ok && q.Name != "" && room.Name() != q.Name {
			return nil, false
		}
		return room, ok
	}
	if q.Name == "" {
		return nil, false
	}
	id, ok := f.byName[q.Name]
	if !ok {
		return nil, false
	}
	return f.rooms[id], true
}

func (f *RoomManagerImpl) createLocked(name, metadata string) core.RoomService {
	sid := domain.SessionID(f.newID())
	room := core.NewRoomService(sid, name, metadata, f.newID)
	f.rooms[sid] = room
	if name != "" {
		f.byName[name] = sid
	}
	log.Info().Str("module", "app.rooms").Str("session", string(sid)).Str("name", name).Msg("room created")
	return room
}

func validateRoom(name, metadata string) error {
	if name != "" {
		if err := domain.ValidateName(name); err != nil {
			return err
		}
	}
	return domain.ValidateMetadata(metadata)
}
