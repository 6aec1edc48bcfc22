// Package local serves core.Directory in-process, straight from an
// orchestrator. Events still arrive on registry goroutines, never on the
// caller's.
package local

import (
	"context"

	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/app/orch"
	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
)

type Directory struct {
	orch     *orch.Orchestrator
	registry *app.Registry
}

var _ core.Directory = (*Directory)(nil)

func New(o *orch.Orchestrator, r *app.Registry) *Directory {
	return &Directory{orch: o, registry: r}
}

// NewStandalone wires a fresh room manager, registry and orchestrator.
func NewStandalone(buffer int, policy app.Policy) *Directory {
	reg := app.NewRegistry(buffer, policy)
	return New(orch.New(app.NewRoomManager(), reg), reg)
}

func (d *Directory) Orchestrator() *orch.Orchestrator { return d.orch }
func (d *Directory) Registry() *app.Registry          { return d.registry }

func (d *Directory) Create(ctx context.Context, name, metadata string) (*domain.SessionDescriptor, error) {
	return snapshot(ctx, func() (domain.SessionDescriptor, error) { return d.orch.CreateSession(name, metadata) })
}

func (d *Directory) Find(ctx context.Context, q domain.SessionQuery) (*domain.SessionDescriptor, error) {
	return snapshot(ctx, func() (domain.SessionDescriptor, error) { return d.orch.FindSession(q) })
}

func (d *Directory) FindOrCreate(ctx context.Context, name, metadata string) (*domain.SessionDescriptor, error) {
	return snapshot(ctx, func() (domain.SessionDescriptor, error) { return d.orch.FindOrCreateSession(name, metadata) })
}

func (d *Directory) Close(ctx context.Context, sid domain.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.CloseSession(sid)
}

func (d *Directory) UpdateMetadata(ctx context.Context, sid domain.SessionID, metadata string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.UpdateSessionMetadata(sid, metadata)
}

func (d *Directory) Join(ctx context.Context, sid domain.SessionID, init domain.MemberInit) (*domain.MemberDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := d.orch.Join(sid, init)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *Directory) Leave(ctx context.Context, sid domain.SessionID, mid domain.MemberID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.Leave(sid, mid)
}

func (d *Directory) UpdateMemberMetadata(ctx context.Context, sid domain.SessionID, mid domain.MemberID, metadata string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.UpdateMemberMetadata(sid, mid, metadata)
}

func (d *Directory) Publish(ctx context.Context, sid domain.SessionID, req domain.PublishRequest) (*domain.PublicationDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := d.orch.Publish(sid, req)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *Directory) Unpublish(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.Unpublish(sid, pid)
}

func (d *Directory) EnablePublication(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.SetPublicationState(sid, pid, domain.StateEnabled)
}

func (d *Directory) DisablePublication(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.SetPublicationState(sid, pid, domain.StateDisabled)
}

func (d *Directory) UpdatePublicationMetadata(ctx context.Context, sid domain.SessionID, pid domain.PublicationID, metadata string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.UpdatePublicationMetadata(sid, pid, metadata)
}

func (d *Directory) Subscribe(ctx context.Context, sid domain.SessionID, req domain.SubscribeRequest) (*domain.SubscriptionDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := d.orch.Subscribe(sid, req)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *Directory) Unsubscribe(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.Unsubscribe(sid, subID)
}

func (d *Directory) EnableSubscription(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.SetSubscriptionState(sid, subID, domain.StateEnabled)
}

func (d *Directory) DisableSubscription(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.SetSubscriptionState(sid, subID, domain.StateDisabled)
}

func (d *Directory) ChangePreferredEncoding(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID, encodingID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.orch.ChangePreferredEncoding(sid, subID, encodingID)
}

func (d *Directory) Watch(sid domain.SessionID, sink core.EventSink) (func(), error) {
	if _, err := d.orch.FindSession(domain.SessionQuery{ID: sid}); err != nil {
		return nil, err
	}
	return d.registry.Watch(sid, sink), nil
}

func snapshot(ctx context.Context, fn func() (domain.SessionDescriptor, error)) (*domain.SessionDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := fn()
	if err != nil {
		return nil, err
	}
	return &d, nil
}
