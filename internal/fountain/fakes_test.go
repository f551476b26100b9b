package fountain

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQueue records enqueued frames and optionally reacts to them.
type fakeQueue struct {
	mu      sync.Mutex
	frames  [][]byte
	err     error
	onFrame func(f *protocol.Frame)
}

func (q *fakeQueue) Enqueue(_ context.Context, frame []byte) error {
	q.mu.Lock()
	if q.err != nil {
		q.mu.Unlock()
		return q.err
	}
	q.frames = append(q.frames, frame)
	hook := q.onFrame
	q.mu.Unlock()

	if hook != nil {
		if f, err := protocol.ParseFrame(frame); err == nil {
			hook(f)
		}
	}
	return nil
}

// commands returns the command codes enqueued so far.
func (q *fakeQueue) commands() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]byte, 0, len(q.frames))
	for _, raw := range q.frames {
		f, err := protocol.ParseFrame(raw)
		if err != nil {
			continue
		}
		out = append(out, f.Cmd)
	}
	return out
}

func (q *fakeQueue) last(t *testing.T) *protocol.Frame {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		t.Fatal("no frames enqueued")
	}
	f, err := protocol.ParseFrame(q.frames[len(q.frames)-1])
	if err != nil {
		t.Fatalf("enqueued frame does not parse: %v", err)
	}
	return f
}

// response builds a device notification frame.
func response(t *testing.T, cmd byte, data []byte) []byte {
	t.Helper()
	frame, err := protocol.BuildFrame(0, cmd, protocol.TypeResponse, data)
	if err != nil {
		t.Fatalf("BuildFrame(%d) error = %v", cmd, err)
	}
	return frame
}

var testIDBytes = []byte{0x00, 0x00, 0x12, 0x34, 0x56, 0x78}

const testSerial = "ABCDEFGHIJKLMNO"

// detailsPayload is a cmd 213 payload carrying testIDBytes and serial.
func detailsPayload(serial string) []byte {
	data := []byte{0, 0}
	data = append(data, testIDBytes...)
	s := []byte(serial)
	for len(s) < 15 {
		s = append(s, 0)
	}
	return append(data, s[:15]...)
}

// statusPayload is a cmd 230 payload in smart mode 30/60 with the given
// filter percentage and runtimes.
func statusPayload(filterPct byte, runtime, today uint32) []byte {
	data := make([]byte, 29)
	data[0] = protocol.PowerOn
	data[1] = protocol.ModeSmart
	data[6], data[7], data[8], data[9] = byte(runtime>>24), byte(runtime>>16), byte(runtime>>8), byte(runtime)
	data[10] = filterPct
	data[11] = 1
	data[12], data[13], data[14], data[15] = byte(today>>24), byte(today>>16), byte(today>>8), byte(today)
	data[16], data[17] = 30, 60
	return data
}
