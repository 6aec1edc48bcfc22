package core

import (
	"context"

	"github.com/dkeye/voicesync/internal/domain"
)

// SessionDirectory is the remote registry of sessions.
type SessionDirectory interface {
	Create(ctx context.Context, name, metadata string) (*domain.SessionDescriptor, error)
	Find(ctx context.Context, q domain.SessionQuery) (*domain.SessionDescriptor, error)
	FindOrCreate(ctx context.Context, name, metadata string) (*domain.SessionDescriptor, error)
	Close(ctx context.Context, sid domain.SessionID) error
	UpdateMetadata(ctx context.Context, sid domain.SessionID, metadata string) error
}

type MemberDirectory interface {
	Join(ctx context.Context, sid domain.SessionID, init domain.MemberInit) (*domain.MemberDescriptor, error)
	Leave(ctx context.Context, sid domain.SessionID, mid domain.MemberID) error
	UpdateMemberMetadata(ctx context.Context, sid domain.SessionID, mid domain.MemberID, metadata string) error
}

type PublicationDirectory interface {
	Publish(ctx context.Context, sid domain.SessionID, req domain.PublishRequest) (*domain.PublicationDescriptor, error)
	Unpublish(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error
	EnablePublication(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error
	DisablePublication(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error
	UpdatePublicationMetadata(ctx context.Context, sid domain.SessionID, pid domain.PublicationID, metadata string) error
}

type SubscriptionDirectory interface {
	Subscribe(ctx context.Context, sid domain.SessionID, req domain.SubscribeRequest) (*domain.SubscriptionDescriptor, error)
	Unsubscribe(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error
	EnableSubscription(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error
	DisableSubscription(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error
	ChangePreferredEncoding(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID, encodingID string) error
}

// EventSink receives raw events on a goroutine the receiver does not own.
type EventSink func(domain.Event)

// EventSource pushes events about a session until unwatch is called.
type EventSource interface {
	Watch(sid domain.SessionID, sink EventSink) (unwatch func(), err error)
}

// Directory is everything the session layer needs from the remote side.
type Directory interface {
	SessionDirectory
	MemberDirectory
	PublicationDirectory
	SubscriptionDirectory
	EventSource
}
