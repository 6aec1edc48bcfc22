package signal

import (
	"context"

	"github.com/dkeye/voicesync/internal/domain"
)

func (ctl *SignalWSController) handleMedia(ctx context.Context, method string, in *Params) (any, error) {
	sid := in.SessionID
	switch method {
	case MethodPublish:
		if in.Publish == nil {
			return nil, domain.ErrInvalid
		}
		return ctl.dir.Publish(ctx, sid, *in.Publish)
	case MethodUnpublish:
		return nil, ctl.dir.Unpublish(ctx, sid, in.PublicationID)
	case MethodEnablePublication:
		return nil, ctl.dir.EnablePublication(ctx, sid, in.PublicationID)
	case MethodDisablePublication:
		return nil, ctl.dir.DisablePublication(ctx, sid, in.PublicationID)
	case MethodUpdatePublicationMeta:
		return nil, ctl.dir.UpdatePublicationMetadata(ctx, sid, in.PublicationID, in.Metadata)
	case MethodSubscribe:
		if in.Subscribe == nil {
			return nil, domain.ErrInvalid
		}
		return ctl.dir.Subscribe(ctx, sid, *in.Subscribe)
	case MethodUnsubscribe:
		return nil, ctl.dir.Unsubscribe(ctx, sid, in.SubscriptionID)
	case MethodEnableSubscription:
		return nil, ctl.dir.EnableSubscription(ctx, sid, in.SubscriptionID)
	case MethodDisableSubscription:
		return nil, ctl.dir.DisableSubscription(ctx, sid, in.SubscriptionID)
	case MethodChangePreferredEncoding:
		return nil, ctl.dir.ChangePreferredEncoding(ctx, sid, in.SubscriptionID, in.EncodingID)
	}
	return nil, domain.ErrInvalid
}
