package session

import (
	"runtime/debug"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// slot holds at most one handler. Setting a new one silently replaces the
// previous registration; setting nil clears it.
type slot[T any] struct {
	fn atomic.Pointer[func(T)]
}

func (s *slot[T]) set(fn func(T)) {
	if fn == nil {
		s.fn.Store(nil)
		return
	}
	s.fn.Store(&fn)
}

func (s *slot[T]) fire(v T) {
	p := s.fn.Load()
	if p == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("module", "session.handler").
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("event handler panicked")
		}
	}()
	(*p)(v)
}

// notice is a slot for handlers without an argument.
type notice struct {
	s slot[struct{}]
}

func (n *notice) set(fn func()) {
	if fn == nil {
		n.s.set(nil)
		return
	}
	n.s.set(func(struct{}) { fn() })
}

func (n *notice) fire() { n.s.fire(struct{}{}) }
