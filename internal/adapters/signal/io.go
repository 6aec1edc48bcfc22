package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/voicesync/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, p *peer) {
	defer func() {
		log.Info().Str("module", "signal").Str("client", p.token).Msg("readPump closing")
		p.conn.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	_ = p.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.conn.SetPongHandler(func(string) error {
		return p.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("client", p.token).Msg("readPump ctx done")
			return
		default:
			_, data, err := p.conn.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("client", p.token).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, p, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, p *peer, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.reply(p.conn, "", nil, domain.ErrInvalid)
		return
	}

	switch env.Type {
	case TypePing:
		ctl.handlePing(p.conn)
	case TypeRequest:
		params := env.Params
		if params == nil {
			params = &Params{}
		}
		result, err := ctl.call(ctx, p, env.Method, params)
		ctl.reply(p.conn, env.ID, result, err)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) call(ctx context.Context, p *peer, method string, in *Params) (any, error) {
	switch method {
	case MethodCreate, MethodFind, MethodFindOrCreate, MethodClose, MethodUpdateMetadata, MethodWatch, MethodUnwatch:
		return ctl.handleSession(ctx, p, method, in)
	case MethodJoin, MethodLeave, MethodUpdateMemberMetadata:
		return ctl.handleMember(ctx, p, method, in)
	case MethodPublish, MethodUnpublish, MethodEnablePublication, MethodDisablePublication, MethodUpdatePublicationMeta,
		MethodSubscribe, MethodUnsubscribe, MethodEnableSubscription, MethodDisableSubscription, MethodChangePreferredEncoding:
		return ctl.handleMedia(ctx, method, in)
	}
	log.Warn().Str("module", "signal").Str("method", method).Msg("unknown method")
	return nil, &domain.RemoteError{Code: domain.CodeInvalid, Message: "unknown method " + method}
}

func (ctl *SignalWSController) reply(c *WsSignalConn, id string, result any, err error) {
	env := Envelope{Type: TypeResponse, ID: id, OK: err == nil}
	if err != nil {
		env.Error = domain.AsRemote(err)
	} else if result != nil {
		b, mErr := json.Marshal(result)
		if mErr != nil {
			log.Error().Err(mErr).Str("module", "signal").Msg("reply marshal")
			env.OK = false
			env.Error = domain.AsRemote(mErr)
		} else {
			env.Result = b
		}
	}
	ctl.sendJSON(c, env)
}

// sendEvent pushes ev to the peer. A peer that cannot keep up is
// disconnected rather than silently missing events.
func (ctl *SignalWSController) sendEvent(p *peer, ev domain.Event) {
	if err := ctl.sendJSON(p.conn, Envelope{Type: TypeEvent, Event: &ev}); errors.Is(err, ErrBackpressure) {
		log.Warn().
			Str("module", "signal").
			Str("client", p.token).
			Str("session", string(ev.SessionID)).
			Msg("client too slow, disconnecting")
		p.conn.Close()
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return err
	}
	return c.TrySend(b)
}
