package net

import (
	"fmt"
	"time"
)

// Status is the connection state of a transport.
type Status uint32

const (
	// Disconnected is the initial state.
	Disconnected Status = iota
	// Connecting means a dial is in progress.
	Connecting
	// Connected means frames are written directly to the socket.
	Connected
)

// String ...
func (s Status) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// StatusEvent is published to status listeners on every transition.
type StatusEvent struct {
	Status Status
	// Attempt is the reconnect attempt number, 0 for user initiated
	// transitions.
	Attempt int
	// Delay is the wait before the next reconnect, if one was scheduled.
	Delay time.Duration
	// Exhausted is set when the reconnect budget is spent and no further
	// attempt will be made.
	Exhausted bool
	// Err is the cause of a disconnection, if any.
	Err error
}

// String ...
func (e StatusEvent) String() string {
	switch {
	case e.Exhausted:
		return fmt.Sprintf("%s (reconnect attempts exhausted after %d)", e.Status, e.Attempt)
	case e.Delay > 0:
		return fmt.Sprintf("%s (reconnect %d in %s)", e.Status, e.Attempt, e.Delay)
	default:
		return e.Status.String()
	}
}

// StatusListener receives status events.
type StatusListener func(StatusEvent)

// MessageListener receives inbound frames.
type MessageListener func([]byte)
