package fountain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// InitOptions configures the bring-up sequence.
type InitOptions struct {
	DetailsDelay time.Duration // settle time after a details request
	StepDelay    time.Duration // settle time between other steps
	ReinitDelay  time.Duration // wait after re-initializing before cycling the link
	Timeout      time.Duration // bound on waiting for the serial number
	MaxReinit    int           // re-initializations allowed before giving up
}

// DefaultInitOptions returns the delays the device firmware needs.
func DefaultInitOptions() InitOptions {
	return InitOptions{
		DetailsDelay: 1500 * time.Millisecond,
		StepDelay:    750 * time.Millisecond,
		ReinitDelay:  3 * time.Second,
		Timeout:      30 * time.Second,
		MaxReinit:    3,
	}
}

// Reconnector cycles the link.
type Reconnector interface {
	Reconnect(reason string)
}

// Initializer runs the ordered handshake after each connection.
type Initializer struct {
	cmds   *Commands
	state  *State
	link   Reconnector
	opts   InitOptions
	logger *slog.Logger

	reinits atomic.Int32
}

// NewInitializer creates the bring-up sequence for one fountain.
func NewInitializer(cmds *Commands, state *State, link Reconnector, opts InitOptions, logger *slog.Logger) *Initializer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultInitOptions().Timeout
	}
	return &Initializer{cmds: cmds, state: state, link: link, opts: opts, logger: logger}
}

// Run performs one pass of the handshake. It returns errReinitRequested when
// the device had to be re-initialized and the link was cycled.
func (in *Initializer) Run(ctx context.Context) error {
	if err := in.step(ctx, in.cmds.GetDeviceDetails, in.opts.DetailsDelay); err != nil {
		return err
	}
	if in.state.Info().DeviceInitialized == 0 {
		if err := in.step(ctx, in.cmds.InitDevice, 0); err != nil {
			return err
		}
	}
	if err := in.step(ctx, in.cmds.GetDeviceSync, in.opts.StepDelay); err != nil {
		return err
	}
	if err := in.step(ctx, in.cmds.SetDatetime, in.opts.StepDelay); err != nil {
		return err
	}
	if err := in.awaitSerial(ctx); err != nil {
		return err
	}

	if in.state.Info().DeviceInitialized == 0 {
		n := int(in.reinits.Load())
		if n >= in.opts.MaxReinit {
			return fmt.Errorf("%w: device still uninitialized after %d re-inits", ErrInitializationTimeout, n)
		}
		in.reinits.Add(1)
		in.logger.Info("device reports uninitialized, re-initializing", "attempt", n+1)
		if err := in.step(ctx, in.cmds.InitDevice, in.opts.ReinitDelay); err != nil {
			return err
		}
		in.link.Reconnect("device re-initialized")
		return errReinitRequested
	}
	in.reinits.Store(0)

	steps := []func(context.Context) error{
		in.cmds.GetDeviceInfo,
		in.cmds.GetDeviceType,
		in.cmds.GetBattery,
		in.cmds.GetDeviceState,
		in.cmds.GetDeviceConfig,
	}
	for i, fn := range steps {
		delay := in.opts.StepDelay
		if i == len(steps)-1 {
			delay = 0
		}
		if err := in.step(ctx, fn, delay); err != nil {
			return err
		}
	}
	return nil
}

// awaitSerial re-requests details until the serial is known or Timeout
// elapses.
func (in *Initializer) awaitSerial(ctx context.Context) error {
	deadline := time.Now().Add(in.opts.Timeout)
	for !in.state.Info().HasSerial() {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: no serial after %s", ErrInitializationTimeout, in.opts.Timeout)
		}
		delay := in.opts.DetailsDelay
		if delay <= 0 {
			delay = time.Millisecond
		}
		if err := in.step(ctx, in.cmds.GetDeviceDetails, delay); err != nil {
			return err
		}
	}
	return nil
}

func (in *Initializer) step(ctx context.Context, fn func(context.Context) error, delay time.Duration) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return sleep(ctx, delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isCancel reports whether err came from context cancellation.
func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
