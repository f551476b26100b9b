package fountain

import (
	"errors"
	"fmt"

	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
)

// ErrInitializationTimeout is returned when bring-up does not complete
// within its bounded wait.
var ErrInitializationTimeout = errors.New("fountain: initialization timed out")

// errReinitRequested signals that the device was re-initialized and the
// link was cycled; bring-up reruns on the next connection.
var errReinitRequested = errors.New("fountain: device re-initialized, waiting for reconnect")

// UnknownFieldError reports a state update with a key that is not part of
// the target projection. Nothing from the update is applied.
type UnknownFieldError struct {
	Projection string // "status", "config" or "info"
	Key        string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("fountain: invalid %s key %q", e.Projection, e.Key)
}

// FieldTypeError reports a state update whose value has the wrong type.
type FieldTypeError struct {
	Projection string
	Key        string
	Want       string
	Got        any
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("fountain: %s key %q wants %s, got %T", e.Projection, e.Key, e.Want, e.Got)
}

// IsFatal reports whether err indicates a protocol mismatch that must stop
// the device rather than be logged and skipped.
func IsFatal(err error) bool {
	var unknown *UnknownFieldError
	var typ *FieldTypeError
	return errors.As(err, &unknown) || errors.As(err, &typ) || errors.Is(err, protocol.ErrUnknownVariant)
}
