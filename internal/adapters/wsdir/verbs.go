package wsdir

import (
	"context"

	"github.com/dkeye/voicesync/internal/adapters/signal"
	"github.com/dkeye/voicesync/internal/domain"
)

func (d *Directory) Create(ctx context.Context, name, metadata string) (*domain.SessionDescriptor, error) {
	var out domain.SessionDescriptor
	if err := d.request(ctx, signal.MethodCreate, &signal.Params{Name: name, Metadata: metadata}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) Find(ctx context.Context, q domain.SessionQuery) (*domain.SessionDescriptor, error) {
	var out domain.SessionDescriptor
	if err := d.request(ctx, signal.MethodFind, &signal.Params{Query: &q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) FindOrCreate(ctx context.Context, name, metadata string) (*domain.SessionDescriptor, error) {
	var out domain.SessionDescriptor
	if err := d.request(ctx, signal.MethodFindOrCreate, &signal.Params{Name: name, Metadata: metadata}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) Close(ctx context.Context, sid domain.SessionID) error {
	return d.request(ctx, signal.MethodClose, &signal.Params{SessionID: sid}, nil)
}

func (d *Directory) UpdateMetadata(ctx context.Context, sid domain.SessionID, metadata string) error {
	return d.request(ctx, signal.MethodUpdateMetadata, &signal.Params{SessionID: sid, Metadata: metadata}, nil)
}

func (d *Directory) Join(ctx context.Context, sid domain.SessionID, init domain.MemberInit) (*domain.MemberDescriptor, error) {
	var out domain.MemberDescriptor
	if err := d.request(ctx, signal.MethodJoin, &signal.Params{SessionID: sid, Member: &init}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) Leave(ctx context.Context, sid domain.SessionID, mid domain.MemberID) error {
	return d.request(ctx, signal.MethodLeave, &signal.Params{SessionID: sid, MemberID: mid}, nil)
}

func (d *Directory) UpdateMemberMetadata(ctx context.Context, sid domain.SessionID, mid domain.MemberID, metadata string) error {
	return d.request(ctx, signal.MethodUpdateMemberMetadata, &signal.Params{SessionID: sid, MemberID: mid, Metadata: metadata}, nil)
}

func (d *Directory) Publish(ctx context.Context, sid domain.SessionID, req domain.PublishRequest) (*domain.PublicationDescriptor, error) {
	var out domain.PublicationDescriptor
	if err := d.request(ctx, signal.MethodPublish, &signal.Params{SessionID: sid, Publish: &req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) Unpublish(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	return d.request(ctx, signal.MethodUnpublish, &signal.Params{SessionID: sid, PublicationID: pid}, nil)
}

func (d *Directory) EnablePublication(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	return d.request(ctx, signal.MethodEnablePublication, &signal.Params{SessionID: sid, PublicationID: pid}, nil)
}

func (d *Directory) DisablePublication(ctx context.Context, sid domain.SessionID, pid domain.PublicationID) error {
	return d.request(ctx, signal.MethodDisablePublication, &signal.Params{SessionID: sid, PublicationID: pid}, nil)
}

func (d *Directory) UpdatePublicationMetadata(ctx context.Context, sid domain.SessionID, pid domain.PublicationID, metadata string) error {
	return d.request(ctx, signal.MethodUpdatePublicationMeta, &signal.Params{SessionID: sid, PublicationID: pid, Metadata: metadata}, nil)
}

func (d *Directory) Subscribe(ctx context.Context, sid domain.SessionID, req domain.SubscribeRequest) (*domain.SubscriptionDescriptor, error) {
	var out domain.SubscriptionDescriptor
	if err := d.request(ctx, signal.MethodSubscribe, &signal.Params{SessionID: sid, Subscribe: &req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *Directory) Unsubscribe(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	return d.request(ctx, signal.MethodUnsubscribe, &signal.Params{SessionID: sid, SubscriptionID: subID}, nil)
}

func (d *Directory) EnableSubscription(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	return d.request(ctx, signal.MethodEnableSubscription, &signal.Params{SessionID: sid, SubscriptionID: subID}, nil)
}

func (d *Directory) DisableSubscription(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID) error {
	return d.request(ctx, signal.MethodDisableSubscription, &signal.Params{SessionID: sid, SubscriptionID: subID}, nil)
}

func (d *Directory) ChangePreferredEncoding(ctx context.Context, sid domain.SessionID, subID domain.SubscriptionID, encodingID string) error {
	return d.request(ctx, signal.MethodChangePreferredEncoding, &signal.Params{SessionID: sid, SubscriptionID: subID, EncodingID: encodingID}, nil)
}
