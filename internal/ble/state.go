package ble

import (
	"fmt"
	"time"
)

// State is the Supervisor's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of the connection state.
type Status struct {
	State     State
	Attempts  int       // consecutive failed attempts since the last success
	LastSeen  time.Time // last successful connection; zero if never
	LastError string    // most recent transport error; empty if none
	Since     time.Time // when State was entered
}
