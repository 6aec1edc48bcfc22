package app

import "github.com/dkeye/voicesync/internal/domain"

type BackpressureAction int

const (
	// DropEvent loses the event for this watcher only.
	DropEvent BackpressureAction = iota
	// Unwatch detaches the slow watcher. Its session object goes stale
	// and has to be reopened.
	Unwatch
)

// Policy decides what happens when a watcher's queue is full.
type Policy interface {
	OnBackPressure(sid domain.SessionID, ev domain.Event) BackpressureAction
}

// SimplePolicy detaches slow watchers: a watcher that missed an event no
// longer mirrors the session.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.SessionID, domain.Event) BackpressureAction {
	return Unwatch
}

// DropPolicy keeps slow watchers attached and loses events instead.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.SessionID, domain.Event) BackpressureAction {
	return DropEvent
}
