package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/voicesync/internal/adapters/local"
	"github.com/dkeye/voicesync/internal/app"
	"github.com/dkeye/voicesync/internal/domain"
	"github.com/gorilla/websocket"
)

type testServer struct {
	url string
	dir *local.Directory
}

func newTestServer(t *testing.T, limiter *JoinLimiter) *testServer {
	t.Helper()
	dir := local.NewStandalone(64, app.DropPolicy{})
	ctl := NewSignalWSController(dir, limiter, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctl.HandleSignal(ctx, w, r, r.URL.Query().Get("ct"))
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = dir.Registry().Close(context.Background())
	})
	return &testServer{url: "ws" + strings.TrimPrefix(srv.URL, "http"), dir: dir}
}

func (s *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(s.url+"?ct="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func read(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

// call sends a request and returns its response, collecting any events
// that arrive first.
func call(t *testing.T, ws *websocket.Conn, id, method string, p *Params, events *[]domain.Event) Envelope {
	t.Helper()
	if err := ws.WriteJSON(Envelope{Type: TypeRequest, ID: id, Method: method, Params: p}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		env := read(t, ws)
		switch {
		case env.Type == TypeEvent && events != nil:
			*events = append(*events, *env.Event)
		case env.Type == TypeResponse && env.ID == id:
			return env
		}
	}
}

func TestSignal_RequestsAndPushedEvents(t *testing.T) {
	s := newTestServer(t, nil)
	ws := s.dial(t, "a")

	resp := call(t, ws, "1", MethodCreate, &Params{Name: "standup"}, nil)
	if !resp.OK {
		t.Fatalf("create failed: %+v", resp.Error)
	}
	var sd domain.SessionDescriptor
	if err := json.Unmarshal(resp.Result, &sd); err != nil {
		t.Fatal(err)
	}

	if resp := call(t, ws, "2", MethodWatch, &Params{SessionID: sd.ID}, nil); !resp.OK {
		t.Fatalf("watch failed: %+v", resp.Error)
	}

	var events []domain.Event
	resp = call(t, ws, "3", MethodJoin, &Params{SessionID: sd.ID, Member: &domain.MemberInit{Name: "ann"}}, &events)
	if !resp.OK {
		t.Fatalf("join failed: %+v", resp.Error)
	}
	if len(events) == 0 {
		env := read(t, ws)
		if env.Type != TypeEvent {
			t.Fatalf("got %s, want event", env.Type)
		}
		events = append(events, *env.Event)
	}
	if events[0].Type != domain.EventMemberJoined || events[0].Member == nil || events[0].Member.Name != "ann" {
		t.Fatalf("event = %+v", events[0])
	}
}

func TestSignal_ErrorsCarryCodes(t *testing.T) {
	s := newTestServer(t, nil)
	ws := s.dial(t, "a")

	tests := []struct {
		method string
		params *Params
		code   string
	}{
		{MethodFind, &Params{Query: &domain.SessionQuery{Name: "missing"}}, domain.CodeNotFound},
		{MethodJoin, &Params{SessionID: "nope", Member: &domain.MemberInit{Name: "x"}}, domain.CodeNotFound},
		{MethodJoin, &Params{SessionID: "nope"}, domain.CodeInvalid},
		{MethodPublish, &Params{SessionID: "nope"}, domain.CodeInvalid},
		{"teleport", &Params{}, domain.CodeInvalid},
	}
	for i, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := call(t, ws, string(rune('a'+i)), tt.method, tt.params, nil)
			if resp.OK || resp.Error == nil || resp.Error.Code != tt.code {
				t.Fatalf("resp = %+v, want code %s", resp, tt.code)
			}
		})
	}
}

func TestSignal_PingPong(t *testing.T) {
	s := newTestServer(t, nil)
	ws := s.dial(t, "a")
	if err := ws.WriteJSON(Envelope{Type: TypePing}); err != nil {
		t.Fatal(err)
	}
	if env := read(t, ws); env.Type != TypePong {
		t.Fatalf("got %s, want pong", env.Type)
	}
}

func TestSignal_JoinRateLimited(t *testing.T) {
	s := newTestServer(t, NewJoinLimiter(1, time.Minute))
	ws := s.dial(t, "a")

	resp := call(t, ws, "1", MethodCreate, &Params{}, nil)
	var sd domain.SessionDescriptor
	_ = json.Unmarshal(resp.Result, &sd)

	if resp := call(t, ws, "2", MethodJoin, &Params{SessionID: sd.ID, Member: &domain.MemberInit{Name: "a"}}, nil); !resp.OK {
		t.Fatalf("first join failed: %+v", resp.Error)
	}
	resp = call(t, ws, "3", MethodJoin, &Params{SessionID: sd.ID, Member: &domain.MemberInit{Name: "b"}}, nil)
	if resp.OK || resp.Error.Code != domain.CodeRateLimited {
		t.Fatalf("second join = %+v, want rate_limited", resp)
	}

	other := s.dial(t, "b")
	if resp := call(t, other, "1", MethodJoin, &Params{SessionID: sd.ID, Member: &domain.MemberInit{Name: "c"}}, nil); !resp.OK {
		t.Fatalf("other client was limited: %+v", resp.Error)
	}
}

func TestSignal_DisconnectLeavesJoinedMembers(t *testing.T) {
	s := newTestServer(t, nil)
	ws := s.dial(t, "a")

	resp := call(t, ws, "1", MethodCreate, &Params{Name: "room"}, nil)
	var sd domain.SessionDescriptor
	_ = json.Unmarshal(resp.Result, &sd)
	if resp := call(t, ws, "2", MethodJoin, &Params{SessionID: sd.ID, Member: &domain.MemberInit{Name: "ann"}}, nil); !resp.OK {
		t.Fatalf("join failed: %+v", resp.Error)
	}

	count := func() int {
		for _, info := range s.dir.Orchestrator().ListSessions() {
			if info.ID == sd.ID {
				return info.MemberCount
			}
		}
		return -1
	}
	if n := count(); n != 1 {
		t.Fatalf("members = %d, want 1", n)
	}

	_ = ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("member still joined after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJoinLimiter_SlidingWindow(t *testing.T) {
	rl := NewJoinLimiter(2, 10*time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("c") || !rl.Allow("c") {
		t.Fatal("first two attempts should pass")
	}
	if rl.Allow("c") {
		t.Fatal("third attempt inside the window should fail")
	}
	now = now.Add(11 * time.Second)
	if !rl.Allow("c") {
		t.Fatal("attempt after the window should pass")
	}

	now = now.Add(time.Minute)
	rl.Forget()
	if len(rl.history) != 0 {
		t.Fatalf("history = %v, want empty", rl.history)
	}
	var nilLimiter *JoinLimiter
	if !nilLimiter.Allow("c") {
		t.Fatal("nil limiter must allow")
	}
}
