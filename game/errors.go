package game

import (
	"errors"
	"fmt"
)

// Kind classifies session errors.
type Kind int

const (
	// KindProtocol is an error handling a packet. The session continues.
	KindProtocol Kind = iota
	// KindIgnorable is a known fault in the client library that has no
	// effect on the bot. The session continues.
	KindIgnorable
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindIgnorable:
		return "ignorable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is an error reported by a session.
type Error struct {
	Kind Kind
	// Op names what the session was doing, typically a packet name.
	Op  string
	Err error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Ignorable reports whether err is a session error of kind [KindIgnorable].
func Ignorable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindIgnorable
}

var (
	// ErrNotConnected is returned by operations that need a spawned player.
	ErrNotConnected = errors.New("not connected")
	// ErrConnected is returned by Connect when a connection is active.
	ErrConnected = errors.New("already connected")
	// ErrNoWindow is returned by window operations with no window open.
	ErrNoWindow = errors.New("no window open")
	// ErrSlot is returned when clicking a slot outside the open window.
	ErrSlot = errors.New("no such slot")
)
