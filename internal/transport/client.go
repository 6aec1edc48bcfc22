// Package transport keeps one persistent websocket open for signaling.
// Listener callbacks run as jobs so a teardown close can wait for the
// message being handled before the socket goes away.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voicesync/internal/jobs"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type CloseReason int

const (
	// CloseNormal closes the socket right away. Callbacks already running
	// keep running.
	CloseNormal CloseReason = iota
	// CloseTeardown waits for running callbacks, then closes the socket.
	// No callback fires afterwards, OnClose included.
	CloseTeardown
)

func (r CloseReason) String() string {
	if r == CloseTeardown {
		return "teardown"
	}
	return "normal"
}

// Listener callbacks never run on the socket's reader goroutine. OnOpen
// runs before the first OnMessage and messages are handled one at a time
// in arrival order. Nil callbacks are skipped.
type Listener struct {
	OnOpen    func(ctx context.Context)
	OnMessage func(ctx context.Context, data []byte)
	OnClose   func(ctx context.Context, code int, text string)
	OnError   func(ctx context.Context, err error)
}

type Options struct {
	SendBuffer int
	ReadLimit  int64
	// PingPeriod is how often the client pings; the peer has a little more
	// than that to answer before the connection is considered dead.
	PingPeriod time.Duration
	WriteWait  time.Duration
	Header     http.Header
	// Scheduler runs callbacks. Keep it apart from any pool whose work
	// waits on replies read from this connection.
	Scheduler jobs.Scheduler
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.Scheduler == nil {
		o.Scheduler = jobs.GoScheduler{}
	}
}

type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	jobs     *jobs.Manager
	listener Listener
	opts     Options
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closedBy  CloseReason
	closeOnce sync.Once

	writerDone chan struct{}
	readerDone chan struct{}
	pumps      atomic.Int32
	done       chan struct{}
}

// Dial opens the connection and starts its pumps. OnOpen is scheduled
// before Dial returns.
func Dial(ctx context.Context, url string, l Listener, opts Options) (*Client, error) {
	opts.defaults()
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(opts.ReadLimit)

	c := &Client{
		conn:       conn,
		send:       make(chan []byte, opts.SendBuffer),
		jobs:       jobs.NewManager("transport:"+url, opts.Scheduler),
		listener:   l,
		opts:       opts,
		logger:     log.With().Str("module", "transport").Str("url", url).Logger(),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.pumps.Store(2)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	pongWait := opts.PingPeriod * 10 / 9
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var opened *jobs.Job
	if l.OnOpen != nil {
		opened = c.jobs.Launch(c.ctx, l.OnOpen)
	}
	go c.writePump()
	go c.readPump(opened)
	c.logger.Info().Msg("connected")
	return c, nil
}

func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Client) SendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return c.Send(b)
}

// Pending is how many callbacks are scheduled or running.
func (c *Client) Pending() int { return c.jobs.Size() }

// Done is closed once both pumps have returned.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) pumpExited() {
	if c.pumps.Add(-1) == 0 {
		close(c.done)
	}
}

// Close shuts the connection. With CloseTeardown it first drains running
// callbacks and flushes queued frames, both bounded by ctx. It must not be
// called with CloseTeardown from inside a callback of this client.
func (c *Client) Close(ctx context.Context, reason CloseReason) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closedBy = reason
	c.mu.Unlock()

	c.logger.Info().Stringer("reason", reason).Msg("closing")

	var err error
	if reason == CloseTeardown {
		if err = c.jobs.TerminateAll(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("teardown drain interrupted")
		}
		c.closeSend()
		select {
		case <-c.writerDone:
		case <-ctx.Done():
		}
	}
	c.shutdown(websocket.CloseNormalClosure, "bye")
	return err
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

func (c *Client) shutdown(code int, text string) {
	c.closeSend()
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait))
	_ = c.conn.Close()
	c.cancel()
}

func (c *Client) writePump() {
	defer c.pumpExited()
	defer close(c.writerDone)
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Error().Err(err).Msg("writePump set deadline")
				_ = c.conn.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error().Err(err).Msg("writePump write error")
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) readPump(opened *jobs.Job) {
	defer c.pumpExited()
	defer close(c.readerDone)
	if opened != nil {
		opened.Wait()
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readFailed(err)
			return
		}
		if c.listener.OnMessage == nil {
			continue
		}
		j := c.jobs.Launch(c.ctx, func(ctx context.Context) { c.listener.OnMessage(ctx, data) })
		if j == nil {
			return
		}
		j.Wait()
	}
}

func (c *Client) readFailed(err error) {
	c.mu.RLock()
	closing, reason := c.closed, c.closedBy
	c.mu.RUnlock()

	code, text := websocket.CloseAbnormalClosure, err.Error()
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		code, text = ce.Code, ce.Text
	case closing:
		code, text = websocket.CloseNormalClosure, reason.String()
	default:
		c.logger.Error().Err(err).Msg("readPump read error")
		c.fire(func(ctx context.Context) {
			if c.listener.OnError != nil {
				c.listener.OnError(ctx, err)
			}
		})
	}
	c.logger.Info().Int("code", code).Str("text", text).Msg("readPump closing")

	if !closing {
		c.shutdown(websocket.CloseNormalClosure, "")
	}
	c.fire(func(ctx context.Context) {
		if c.listener.OnClose != nil {
			c.listener.OnClose(ctx, code, text)
		}
	})
}

func (c *Client) fire(f func(ctx context.Context)) {
	// A context that outlives shutdown, so OnClose sees a live ctx.
	c.jobs.Launch(context.WithoutCancel(c.ctx), f)
}
