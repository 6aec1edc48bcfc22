package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicesync/internal/core"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

// SignalWSController serves the directory protocol over websocket.
type SignalWSController struct {
	dir     core.Directory
	limiter *JoinLimiter
	opts    Options
}

func NewSignalWSController(dir core.Directory, limiter *JoinLimiter, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 32768
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &SignalWSController{dir: dir, limiter: limiter, opts: opts}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// peer is one connected client: its socket, the sessions it watches and
// the members it joined, which are left again when the socket drops.
type peer struct {
	token string
	conn  *WsSignalConn

	mu      sync.Mutex
	watches map[domain.SessionID]func()
	joined  map[domain.MemberID]domain.SessionID
}

func (p *peer) watching(sid domain.SessionID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.watches[sid]
	return ok
}

func (p *peer) addWatch(sid domain.SessionID, unwatch func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.watches[sid]; ok {
		return false
	}
	p.watches[sid] = unwatch
	return true
}

func (p *peer) dropWatch(sid domain.SessionID) {
	p.mu.Lock()
	unwatch := p.watches[sid]
	delete(p.watches, sid)
	p.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

func (p *peer) addMember(sid domain.SessionID, mid domain.MemberID) {
	p.mu.Lock()
	p.joined[mid] = sid
	p.mu.Unlock()
}

func (p *peer) dropMember(mid domain.MemberID) {
	p.mu.Lock()
	delete(p.joined, mid)
	p.mu.Unlock()
}

// release detaches every watch and returns the members still joined.
func (p *peer) release() map[domain.MemberID]domain.SessionID {
	p.mu.Lock()
	watches, joined := p.watches, p.joined
	p.watches = map[domain.SessionID]func(){}
	p.joined = map[domain.MemberID]domain.SessionID{}
	p.mu.Unlock()
	for _, unwatch := range watches {
		unwatch()
	}
	return joined
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves it until the socket drops
// or ctx ends. token identifies the client for rate limiting.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, w http.ResponseWriter, r *http.Request, token string) {
	log.Info().Str("module", "signal").Str("client", token).Msg("new WS connection")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	p := &peer{
		token: token,
		conn: &WsSignalConn{
			conn: ws,
			send: make(chan core.Frame, ctl.opts.SendBuffer),
		},
		watches: make(map[domain.SessionID]func()),
		joined:  make(map[domain.MemberID]domain.SessionID),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, p.conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, p)
		ctl.disconnect(p)
	}()
}

// disconnect leaves the members this client joined so the rest of the
// session hears about it.
func (ctl *SignalWSController) disconnect(p *peer) {
	joined := p.release()
	ctl.limiter.Forget()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for mid, sid := range joined {
		if err := ctl.dir.Leave(ctx, sid, mid); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("member", string(mid)).Msg("leave on disconnect")
			continue
		}
		log.Info().Str("module", "signal").Str("client", p.token).Str("member", string(mid)).Msg("left on disconnect")
	}
}
