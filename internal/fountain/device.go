package fountain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/petkit-ble/internal/ble"
	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
)

// Link is the supervised connection a Device runs over. *ble.Supervisor
// implements it.
type Link interface {
	Enqueuer
	Reconnector
	Run(ctx context.Context) error
	Notifications() <-chan []byte
	Observe(fn func(ble.Status))
	Status() ble.Status
	SetHeartbeat(fn ble.HeartbeatFunc)
}

// Device ties one fountain's state, command surface and bring-up sequence
// to its link.
type Device struct {
	state   *State
	cmds    *Commands
	handler *Handler
	bringup *Initializer
	link    Link
	logger  *slog.Logger

	changed chan struct{}
	ready   atomic.Bool

	mu      sync.Mutex
	initErr error
}

type initResult struct {
	gen int
	err error
}

// NewDevice creates the device for the fountain at mac over link.
func NewDevice(link Link, mac string, opts InitOptions, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("device", mac)
	state := NewState(mac)
	cmds := NewCommands(link, &Sequencer{}, state, logger)
	d := &Device{
		state:   state,
		cmds:    cmds,
		handler: NewHandler(state, logger),
		bringup: NewInitializer(cmds, state, link, opts, logger),
		link:    link,
		logger:  logger,
		changed: make(chan struct{}, 1),
	}
	link.Observe(func(ble.Status) {
		select {
		case d.changed <- struct{}{}:
		default:
		}
	})
	link.SetHeartbeat(d.heartbeat)
	return d
}

// State returns the device state.
func (d *Device) State() *State { return d.state }

// Commands returns the command surface.
func (d *Device) Commands() *Commands { return d.cmds }

// Link returns the underlying connection.
func (d *Device) Link() Link { return d.link }

// OnUpdate registers fn to run after each applied notification.
func (d *Device) OnUpdate(fn func(cmd byte)) { d.handler.OnUpdate(fn) }

// Ready reports whether bring-up completed on the current connection.
func (d *Device) Ready() bool { return d.ready.Load() }

// InitError returns the last bring-up failure, or nil.
func (d *Device) InitError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initErr
}

// Identify applies identity from an advertisement: the hardware variant
// from its service data, and the signal strength.
func (d *Device) Identify(adv ble.Device) error {
	v, err := protocol.VariantFromServiceData(adv.ServiceData)
	if err != nil {
		return fmt.Errorf("fountain: identify %s: %w", adv.MAC, err)
	}
	info := protocol.Fields{
		"name":          v.Name,
		"name_readable": v.ReadableName(),
		"product_name":  v.ProductName,
		"alias":         v.Alias,
		"device_type":   v.DeviceType,
		"type_code":     v.TypeCode,
	}
	if err := d.state.SetInfo(info); err != nil {
		return err
	}
	d.logger.Info("identified fountain", "name", v.Name, "product", v.ProductName, "rssi", adv.RSSI)
	return d.state.SetStatus(protocol.Fields{
		"rssi":          adv.RSSI,
		"name_readable": v.ReadableName(),
	})
}

// Run runs the link and processes notifications until ctx is cancelled or
// the device reports data that does not match the protocol. Bring-up starts
// on every new connection.
func (d *Device) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	linkDone := make(chan error, 1)
	go func() { linkDone <- d.link.Run(ctx) }()

	results := make(chan initResult, 1)
	var (
		gen      int
		session  time.Time
		stopInit context.CancelFunc = func() {}
	)
	defer func() { stopInit() }()

	for {
		select {
		case <-ctx.Done():
			stopInit()
			return <-linkDone

		case err := <-linkDone:
			return err

		case data := <-d.link.Notifications():
			if err := d.handler.Handle(data); err != nil {
				if IsFatal(err) {
					d.logger.Error("protocol mismatch, stopping", "error", err)
					stopInit()
					cancel()
					<-linkDone
					return err
				}
				d.logger.Warn("discarding notification", "error", err)
			}

		case <-d.changed:
			st := d.link.Status()
			if st.State != ble.StateConnected {
				stopInit()
				d.ready.Store(false)
				continue
			}
			if st.LastSeen.Equal(session) {
				continue
			}
			session = st.LastSeen
			stopInit()
			d.ready.Store(false)
			gen++
			ictx, c := context.WithCancel(ctx)
			stopInit = c
			go func(gen int) {
				err := d.bringup.Run(ictx)
				select {
				case results <- initResult{gen: gen, err: err}:
				case <-ctx.Done():
				}
			}(gen)

		case r := <-results:
			if r.gen != gen {
				continue
			}
			d.finishInit(r.err)
		}
	}
}

func (d *Device) finishInit(err error) {
	d.mu.Lock()
	if !errors.Is(err, errReinitRequested) && !isCancel(err) {
		d.initErr = err
	}
	d.mu.Unlock()

	switch {
	case err == nil:
		d.ready.Store(true)
		info := d.state.Info()
		d.logger.Info("device ready", "serial", info.Serial, "firmware", info.Firmware, "alias", info.Alias)
	case errors.Is(err, errReinitRequested):
		d.logger.Info("device re-initialized, bring-up resumes after reconnect")
	case isCancel(err):
	case errors.Is(err, ErrInitializationTimeout):
		d.logger.Error("bring-up failed, cycling link", "error", err)
		d.link.Reconnect("initialization timed out")
	default:
		d.logger.Warn("bring-up interrupted", "error", err)
	}
}

// heartbeat polls battery and full status once bring-up is complete.
func (d *Device) heartbeat(ctx context.Context) error {
	if !d.ready.Load() {
		return nil
	}
	if err := d.cmds.GetBattery(ctx); err != nil {
		return err
	}
	return d.cmds.GetDeviceUpdate(ctx)
}
