package signal

import (
	"context"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSession(ctx context.Context, p *peer, method string, in *Params) (any, error) {
	switch method {
	case MethodCreate:
		return ctl.dir.Create(ctx, in.Name, in.Metadata)
	case MethodFind:
		if in.Query == nil {
			return nil, domain.ErrInvalid
		}
		return ctl.dir.Find(ctx, *in.Query)
	case MethodFindOrCreate:
		return ctl.dir.FindOrCreate(ctx, in.Name, in.Metadata)
	case MethodClose:
		return nil, ctl.dir.Close(ctx, in.SessionID)
	case MethodUpdateMetadata:
		return nil, ctl.dir.UpdateMetadata(ctx, in.SessionID, in.Metadata)
	case MethodWatch:
		return nil, ctl.watch(p, in.SessionID)
	case MethodUnwatch:
		p.dropWatch(in.SessionID)
		log.Debug().Str("module", "signal").Str("client", p.token).Str("session", string(in.SessionID)).Msg("unwatch")
		return nil, nil
	}
	return nil, domain.ErrInvalid
}

// watch is idempotent per peer and session.
func (ctl *SignalWSController) watch(p *peer, sid domain.SessionID) error {
	if p.watching(sid) {
		return nil
	}
	unwatch, err := ctl.dir.Watch(sid, func(ev domain.Event) { ctl.sendEvent(p, ev) })
	if err != nil {
		return err
	}
	if !p.addWatch(sid, unwatch) {
		unwatch()
	}
	log.Debug().Str("module", "signal").Str("client", p.token).Str("session", string(sid)).Msg("watch")
	return nil
}
