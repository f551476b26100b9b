package ble

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by link operations while no connection is up.
var ErrNotConnected = errors.New("ble: not connected")

// ConnectError reports a failed connection attempt.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ble: connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IOError reports a failed read, write or subscribe on an established link.
type IOError struct {
	Op   string // "read", "write", "subscribe"
	Char string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ble: %s %s: %v", e.Op, e.Char, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
