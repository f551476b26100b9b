// Package protocol implements the Petkit fountain BLE frame format: frame
// encode/decode, per-command payload parsers, and the derived values the
// vendor app computes from raw telemetry.
package protocol

import (
	"errors"
	"fmt"
)

// Frame type values.
const (
	TypeRequest  byte = 1 // host -> device write
	TypeResponse byte = 2 // device -> host read
)

// EndByte terminates every frame.
const EndByte byte = 0xFB

// Header is the fixed 3-byte frame preamble.
var Header = [3]byte{0xFA, 0xFC, 0xFD}

const (
	// headerLen covers header[3], cmd, type, seq, data_length and data_start.
	headerLen = 8
	// MinFrameLen is an empty-payload frame: header fields plus the end byte.
	MinFrameLen = headerLen + 1
	// MaxPayloadLen is the largest payload a single length byte can describe.
	MaxPayloadLen = 255
)

var (
	// ErrMalformedFrame is returned for frames with a bad header, end byte or length.
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	// ErrPayloadTooLarge is returned when a payload does not fit the length byte.
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
)

// Frame is one decoded wire message.
type Frame struct {
	Cmd  byte
	Type byte
	Seq  byte
	Data []byte
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{cmd=%d, type=%d, seq=%d, len=%d}", f.Cmd, f.Type, f.Seq, len(f.Data))
}

// BuildFrame encodes a frame:
//
//	FA FC FD | cmd | type | seq | len(payload) | 00 | payload... | FB
func BuildFrame(seq, cmd, typ byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, len(payload), MaxPayloadLen)
	}
	buf := make([]byte, 0, MinFrameLen+len(payload))
	buf = append(buf, Header[:]...)
	buf = append(buf, cmd, typ, seq, byte(len(payload)), 0)
	buf = append(buf, payload...)
	buf = append(buf, EndByte)
	return buf, nil
}

// ParseFrame decodes and validates a raw notification. The returned Data is a
// copy and does not alias b.
func ParseFrame(b []byte) (*Frame, error) {
	if len(b) < MinFrameLen {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedFrame, len(b), MinFrameLen)
	}
	if b[0] != Header[0] || b[1] != Header[1] || b[2] != Header[2] {
		return nil, fmt.Errorf("%w: bad header % x", ErrMalformedFrame, b[:3])
	}
	if last := b[len(b)-1]; last != EndByte {
		return nil, fmt.Errorf("%w: bad end byte 0x%02x", ErrMalformedFrame, last)
	}
	declared := int(b[6])
	actual := len(b) - MinFrameLen
	if declared != actual {
		return nil, fmt.Errorf("%w: declared length %d, got %d", ErrMalformedFrame, declared, actual)
	}

	data := make([]byte, actual)
	copy(data, b[headerLen:len(b)-1])
	return &Frame{
		Cmd:  b[3],
		Type: b[4],
		Seq:  b[5],
		Data: data,
	}, nil
}
