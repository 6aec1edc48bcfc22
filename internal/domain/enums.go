package domain

import "fmt"

type SessionState int

const (
	SessionOpen SessionState = iota
	SessionClosed
)

var sessionStateNames = []string{"open", "closed"}

func (s SessionState) String() string                { return enumName(s, sessionStateNames) }
func (s SessionState) MarshalText() ([]byte, error)  { return marshalEnum(s, sessionStateNames) }
func (s *SessionState) UnmarshalText(b []byte) error { return unmarshalEnum(b, sessionStateNames, s) }

// Side tells whether a member lives in this process or elsewhere.
type Side int

const (
	SideRemote Side = iota
	SideLocal
)

var sideNames = []string{"remote", "local"}

func (s Side) String() string                { return enumName(s, sideNames) }
func (s Side) MarshalText() ([]byte, error)  { return marshalEnum(s, sideNames) }
func (s *Side) UnmarshalText(b []byte) error { return unmarshalEnum(b, sideNames, s) }

type MemberType int

const (
	MemberPerson MemberType = iota
	MemberBot
)

var memberTypeNames = []string{"person", "bot"}

func (t MemberType) String() string                { return enumName(t, memberTypeNames) }
func (t MemberType) MarshalText() ([]byte, error)  { return marshalEnum(t, memberTypeNames) }
func (t *MemberType) UnmarshalText(b []byte) error { return unmarshalEnum(b, memberTypeNames, t) }

type MemberState int

const (
	MemberJoined MemberState = iota
	MemberLeft
)

var memberStateNames = []string{"joined", "left"}

func (s MemberState) String() string                { return enumName(s, memberStateNames) }
func (s MemberState) MarshalText() ([]byte, error)  { return marshalEnum(s, memberStateNames) }
func (s *MemberState) UnmarshalText(b []byte) error { return unmarshalEnum(b, memberStateNames, s) }

type ContentType int

const (
	ContentAudio ContentType = iota
	ContentVideo
	ContentData
)

var contentTypeNames = []string{"audio", "video", "data"}

func (c ContentType) String() string                { return enumName(c, contentTypeNames) }
func (c ContentType) MarshalText() ([]byte, error)  { return marshalEnum(c, contentTypeNames) }
func (c *ContentType) UnmarshalText(b []byte) error { return unmarshalEnum(b, contentTypeNames, c) }

// State is shared by publications and subscriptions.
// Enabled and Disabled flip freely; Canceled is terminal.
type State int

const (
	StateEnabled State = iota
	StateDisabled
	StateCanceled
)

var stateNames = []string{"enabled", "disabled", "canceled"}

func (s State) String() string                { return enumName(s, stateNames) }
func (s State) MarshalText() ([]byte, error)  { return marshalEnum(s, stateNames) }
func (s *State) UnmarshalText(b []byte) error { return unmarshalEnum(b, stateNames, s) }

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	return s != StateCanceled
}

func enumName[T ~int](v T, names []string) string {
	if v < 0 || int(v) >= len(names) {
		return fmt.Sprintf("unknown(%d)", int(v))
	}
	return names[v]
}

func marshalEnum[T ~int](v T, names []string) ([]byte, error) {
	if v < 0 || int(v) >= len(names) {
		return nil, fmt.Errorf("domain: invalid enum value %d", int(v))
	}
	return []byte(names[v]), nil
}

func unmarshalEnum[T ~int](b []byte, names []string, dst *T) error {
	for i, n := range names {
		if n == string(b) {
			*dst = T(i)
			return nil
		}
	}
	return fmt.Errorf("domain: unknown enum value %q", b)
}
