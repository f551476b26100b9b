package fountain

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
)

func newTestCommands() (*Commands, *fakeQueue, *State) {
	q := &fakeQueue{}
	state := NewState("AA:BB:CC:DD:EE:FF")
	c := NewCommands(q, &Sequencer{}, state, discardLogger())
	c.now = func() time.Time { return time.Date(2000, 1, 1, 0, 1, 40, 0, time.UTC) }
	return c, q, state
}

func TestCommandFrames(t *testing.T) {
	var cfg [protocol.ConfigLen]byte
	cfg[0], cfg[13] = 30, 1

	tests := []struct {
		name    string
		call    func(c *Commands, ctx context.Context) error
		cmd     byte
		typ     byte
		payload []byte
	}{
		{"GetBattery", (*Commands).GetBattery, 66, 1, []byte{0, 0}},
		{"SetDatetime", (*Commands).SetDatetime, 84, 1, []byte{0, 0, 0, 0, 100, 13}},
		{"GetDeviceSync", (*Commands).GetDeviceSync, 86, 1, []byte{0, 0, 0, 0, 0, 0, 0, 0, 13, 37}},
		{"GetDeviceInfo", (*Commands).GetDeviceInfo, 200, 1, nil},
		{"GetDeviceType", (*Commands).GetDeviceType, 201, 1, nil},
		{"GetDeviceState", (*Commands).GetDeviceState, 210, 1, []byte{0, 0}},
		{"GetDeviceConfig", (*Commands).GetDeviceConfig, 211, 1, []byte{0, 0}},
		{"GetDeviceDetails", (*Commands).GetDeviceDetails, 213, 1, []byte{0, 0}},
		{"SetResetFilter", (*Commands).SetResetFilter, 222, 1, []byte{0}},
		{"GetDeviceUpdate", (*Commands).GetDeviceUpdate, 230, 2, []byte{1}},
		{"SetDeviceMode", func(c *Commands, ctx context.Context) error {
			return c.SetDeviceMode(ctx, protocol.PowerOn, protocol.ModeSmart)
		}, 220, 1, []byte{1, 2}},
		{"SetDeviceConfig", func(c *Commands, ctx context.Context) error {
			return c.SetDeviceConfig(ctx, cfg)
		}, 221, 1, cfg[:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, q, _ := newTestCommands()
			if err := tt.call(c, context.Background()); err != nil {
				t.Fatalf("%s() error = %v", tt.name, err)
			}
			f := q.last(t)
			if f.Cmd != tt.cmd || f.Type != tt.typ {
				t.Errorf("cmd/type = %d/%d, want %d/%d", f.Cmd, f.Type, tt.cmd, tt.typ)
			}
			if !bytes.Equal(f.Data, tt.payload) {
				t.Errorf("payload = %v, want %v", f.Data, tt.payload)
			}
		})
	}
}

func TestCommandSequenceNumbers(t *testing.T) {
	c, q, _ := newTestCommands()
	ctx := context.Background()
	_ = c.GetBattery(ctx)
	_ = c.GetDeviceState(ctx)
	_ = c.GetDeviceConfig(ctx)

	for i, raw := range q.frames {
		f, err := protocol.ParseFrame(raw)
		if err != nil {
			t.Fatal(err)
		}
		if int(f.Seq) != i {
			t.Errorf("frame %d seq = %d, want %d", i, f.Seq, i)
		}
	}
}

func TestInitDeviceDerivesSecret(t *testing.T) {
	c, q, state := newTestCommands()
	if err := state.SetInfo(protocol.Fields{"device_id_bytes": testIDBytes}); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := c.InitDevice(ctx); err != nil {
		t.Fatalf("InitDevice() error = %v", err)
	}

	secret := []byte{0, 0, 0x78, 0x56, 0x34, 0x12, 13, 37}
	want := []byte{0, 0, 0, 0, 0, 0, 0x12, 0x34, 0x56, 0x78}
	want = append(want, secret...)
	f := q.last(t)
	if f.Cmd != protocol.CmdInit {
		t.Fatalf("cmd = %d, want %d", f.Cmd, protocol.CmdInit)
	}
	if !bytes.Equal(f.Data, want) {
		t.Errorf("payload = %v, want %v", f.Data, want)
	}
	if !bytes.Equal(c.Secret(), secret) {
		t.Errorf("Secret() = %v, want %v", c.Secret(), secret)
	}

	_ = c.GetDeviceSync(ctx)
	if got := q.last(t).Data; !bytes.Equal(got, append([]byte{0, 0}, secret...)) {
		t.Errorf("sync payload = %v, want derived secret", got)
	}
}

func TestSetDeviceModeRejectsInvalid(t *testing.T) {
	c, q, _ := newTestCommands()
	ctx := context.Background()
	if err := c.SetDeviceMode(ctx, 2, protocol.ModeNormal); err == nil {
		t.Error("SetDeviceMode(power=2) should fail")
	}
	if err := c.SetDeviceMode(ctx, protocol.PowerOn, 3); err == nil {
		t.Error("SetDeviceMode(mode=3) should fail")
	}
	if len(q.frames) != 0 {
		t.Errorf("invalid commands enqueued %d frames, want 0", len(q.frames))
	}
}

func TestCommandEnqueueError(t *testing.T) {
	c, q, _ := newTestCommands()
	q.err = context.Canceled
	err := c.GetBattery(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetBattery() error = %v, want wrapped context.Canceled", err)
	}
}
