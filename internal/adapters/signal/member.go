package signal

import (
	"context"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleMember(ctx context.Context, p *peer, method string, in *Params) (any, error) {
	switch method {
	case MethodJoin:
		if in.Member == nil {
			return nil, domain.ErrInvalid
		}
		if !ctl.limiter.Allow(p.token) {
			log.Warn().Str("module", "signal").Str("client", p.token).Msg("join rate limited")
			return nil, domain.ErrRateLimited
		}
		m, err := ctl.dir.Join(ctx, in.SessionID, *in.Member)
		if err != nil {
			return nil, err
		}
		p.addMember(in.SessionID, m.ID)
		log.Info().Str("module", "signal").Str("client", p.token).Str("member", string(m.ID)).Msg("joined")
		return m, nil
	case MethodLeave:
		if err := ctl.dir.Leave(ctx, in.SessionID, in.MemberID); err != nil {
			return nil, err
		}
		p.dropMember(in.MemberID)
		return nil, nil
	case MethodUpdateMemberMetadata:
		return nil, ctl.dir.UpdateMemberMetadata(ctx, in.SessionID, in.MemberID, in.Metadata)
	}
	return nil, domain.ErrInvalid
}
