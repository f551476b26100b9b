package fountain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
)

// Enqueuer accepts encoded frames for transmission.
type Enqueuer interface {
	Enqueue(ctx context.Context, frame []byte) error
}

// Commands builds request frames and queues them. Each call enqueues exactly
// one frame and returns once it is queued; responses arrive as state updates.
type Commands struct {
	queue  Enqueuer
	seq    *Sequencer
	state  *State
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	secret []byte
}

// NewCommands creates the command surface for one fountain.
func NewCommands(queue Enqueuer, seq *Sequencer, state *State, logger *slog.Logger) *Commands {
	if seq == nil {
		seq = &Sequencer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{
		queue:  queue,
		seq:    seq,
		state:  state,
		logger: logger,
		now:    time.Now,
		secret: append([]byte(nil), protocol.DefaultSecret...),
	}
}

// Secret returns the secret used for sync requests.
func (c *Commands) Secret() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.secret...)
}

func (c *Commands) send(ctx context.Context, cmd, typ byte, payload []byte) error {
	frame, err := protocol.BuildFrame(c.seq.Next(), cmd, typ, payload)
	if err != nil {
		return fmt.Errorf("fountain: build %s: %w", protocol.CommandName(cmd), err)
	}
	if err := c.queue.Enqueue(ctx, frame); err != nil {
		return fmt.Errorf("fountain: enqueue %s: %w", protocol.CommandName(cmd), err)
	}
	c.logger.Debug("queued command", "cmd", cmd, "name", protocol.CommandName(cmd), "len", len(frame))
	return nil
}

func (c *Commands) GetBattery(ctx context.Context) error {
	return c.send(ctx, protocol.CmdBattery, protocol.TypeRequest, []byte{0, 0})
}

// InitDevice writes the device identity and a secret derived from it. The
// derived secret is used for later sync requests.
func (c *Commands) InitDevice(ctx context.Context) error {
	idBytes := c.state.Info().DeviceIDBytes
	secret := protocol.DeriveSecret(idBytes)

	c.mu.Lock()
	c.secret = secret
	c.mu.Unlock()

	payload := make([]byte, 0, 2+8+len(secret))
	payload = append(payload, 0, 0)
	payload = append(payload, protocol.PadLeft(idBytes, 8)...)
	payload = append(payload, secret...)
	c.logger.Debug("init device", "device_id_bytes", idBytes, "secret", secret)
	return c.send(ctx, protocol.CmdInit, protocol.TypeRequest, payload)
}

func (c *Commands) SetDatetime(ctx context.Context) error {
	return c.send(ctx, protocol.CmdSetDatetime, protocol.TypeRequest, protocol.DatetimePayload(c.now()))
}

func (c *Commands) GetDeviceSync(ctx context.Context) error {
	payload := append([]byte{0, 0}, c.Secret()...)
	return c.send(ctx, protocol.CmdSync, protocol.TypeRequest, payload)
}

// GetDeviceInfo requests the firmware version.
func (c *Commands) GetDeviceInfo(ctx context.Context) error {
	return c.send(ctx, protocol.CmdFirmware, protocol.TypeRequest, nil)
}

func (c *Commands) GetDeviceType(ctx context.Context) error {
	return c.send(ctx, protocol.CmdDeviceType, protocol.TypeRequest, nil)
}

func (c *Commands) GetDeviceState(ctx context.Context) error {
	return c.send(ctx, protocol.CmdState, protocol.TypeRequest, []byte{0, 0})
}

func (c *Commands) GetDeviceConfig(ctx context.Context) error {
	return c.send(ctx, protocol.CmdConfig, protocol.TypeRequest, []byte{0, 0})
}

// GetDeviceDetails requests the identifiers and serial number.
func (c *Commands) GetDeviceDetails(ctx context.Context) error {
	return c.send(ctx, protocol.CmdDetails, protocol.TypeRequest, []byte{0, 0})
}

// SetDeviceMode sets power (PowerOff, PowerOn) and mode (ModeNormal, ModeSmart).
func (c *Commands) SetDeviceMode(ctx context.Context, power, mode byte) error {
	if power != protocol.PowerOff && power != protocol.PowerOn {
		return fmt.Errorf("fountain: power must be 0 or 1, got %d", power)
	}
	if mode != protocol.ModeNormal && mode != protocol.ModeSmart {
		return fmt.Errorf("fountain: mode must be 1 (normal) or 2 (smart), got %d", mode)
	}
	return c.send(ctx, protocol.CmdSetMode, protocol.TypeRequest, []byte{power, mode})
}

// SetDeviceConfig writes the full settings block. Use State.ConfigBytes to
// start from the device's current settings.
func (c *Commands) SetDeviceConfig(ctx context.Context, cfg [protocol.ConfigLen]byte) error {
	return c.send(ctx, protocol.CmdSetConfig, protocol.TypeRequest, cfg[:])
}

func (c *Commands) SetResetFilter(ctx context.Context) error {
	return c.send(ctx, protocol.CmdResetFilter, protocol.TypeRequest, []byte{0})
}

// GetDeviceUpdate requests the full status report.
func (c *Commands) GetDeviceUpdate(ctx context.Context) error {
	return c.send(ctx, protocol.CmdUpdate, protocol.TypeResponse, []byte{1})
}
