package core

import (
	"github.com/dkeye/voicesync/internal/domain"
)

// MemberExit is what a leave takes down with the member.
type MemberExit struct {
	Member       domain.MemberDescriptor
	Unpublished  []domain.PublicationDescriptor
	Unsubscribed []domain.SubscriptionDescriptor
}

// Unpublished is a canceled publication plus the subscriptions it dropped.
type Unpublished struct {
	Publication  domain.PublicationDescriptor
	Unsubscribed []domain.SubscriptionDescriptor
}

// RoomService is the directory-side state of one session.
// It owns the entity sets but never touches transport resources.
type RoomService interface {
	ID() domain.SessionID
	Name() string
	State() domain.SessionState
	MemberCount() int
	MembersSnapshot() []domain.MemberDescriptor
	Snapshot() domain.SessionDescriptor

	UpdateMetadata(metadata string) error
	Close() error

	AddMember(init domain.MemberInit) (domain.MemberDescriptor, error)
	RemoveMember(mid domain.MemberID) (MemberExit, error)
	UpdateMemberMetadata(mid domain.MemberID, metadata string) (domain.MemberDescriptor, error)

	Publish(req domain.PublishRequest) (domain.PublicationDescriptor, error)
	Unpublish(pid domain.PublicationID) (Unpublished, error)
	SetPublicationState(pid domain.PublicationID, state domain.State) (domain.PublicationDescriptor, error)
	UpdatePublicationMetadata(pid domain.PublicationID, metadata string) (domain.PublicationDescriptor, error)

	Subscribe(req domain.SubscribeRequest) (domain.SubscriptionDescriptor, error)
	Unsubscribe(subID domain.SubscriptionID) (domain.SubscriptionDescriptor, error)
	SetSubscriptionState(subID domain.SubscriptionID, state domain.State) (domain.SubscriptionDescriptor, error)
	ChangePreferredEncoding(subID domain.SubscriptionID, encodingID string) (domain.SubscriptionDescriptor, error)
}

type RoomInfo struct {
	ID          domain.SessionID    `json:"id"`
	Name        string              `json:"name,omitempty"`
	State       domain.SessionState `json:"state"`
	MemberCount int                 `json:"member_count"`
}

type RoomManager interface {
	Create(name, metadata string) (RoomService, error)
	Find(q domain.SessionQuery) (RoomService, bool)
	FindOrCreate(name, metadata string) (RoomService, error)
	List() []RoomInfo
	StopRoom(sid domain.SessionID)
}
