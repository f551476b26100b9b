package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxWriteTries bounds how often one frame is retried across reconnects.
const maxWriteTries = 3

// HeartbeatFunc polls the device. It runs on the heartbeat goroutine while
// the link is up; a returned error forces a reconnect.
type HeartbeatFunc func(ctx context.Context) error

// SupervisorOptions configures connection supervision.
type SupervisorOptions struct {
	MaxAttempts       int           // failures before entering Failed
	Backoff           BackoffPolicy // delay between attempts
	FailedCooldown    time.Duration // wait in Failed before the attempt budget resets
	ConnectTimeout    time.Duration // bound on a single connect + discovery
	IdlePoll          time.Duration // consumer poll interval while disconnected
	WriteInterval     time.Duration // minimum spacing between writes; 0 disables pacing
	HeartbeatInterval time.Duration // 0 disables the heartbeat
	ProbeRead         bool          // also GATT-read the notify characteristic on heartbeat
	QueueSize         int
	NotifyBuffer      int
	Heartbeat         HeartbeatFunc
}

// DefaultSupervisorOptions returns sensible defaults.
func DefaultSupervisorOptions() SupervisorOptions {
	return SupervisorOptions{
		MaxAttempts:       10,
		Backoff:           ExponentialBackoff{Base: time.Second, Max: time.Minute},
		FailedCooldown:    5 * time.Minute,
		ConnectTimeout:    30 * time.Second,
		IdlePoll:          500 * time.Millisecond,
		WriteInterval:     100 * time.Millisecond,
		HeartbeatInterval: time.Minute,
		QueueSize:         DefaultQueueSize,
		NotifyBuffer:      32,
	}
}

// Supervisor owns the BLE link to one fountain. It connects, detects loss,
// reconnects with backoff, and drains the command queue onto the write
// characteristic. Notifications are delivered on Notifications().
type Supervisor struct {
	adapter Adapter
	address string
	opts    SupervisorOptions
	logger  *slog.Logger

	queue         *Queue
	limiter       *rate.Limiter
	notifications chan []byte

	mu         sync.Mutex
	status     Status
	conn       Connection
	writeChar  Characteristic
	readChar   Characteristic
	manual     bool // deliberate disconnect, no auto-reconnect
	lastLogged State
	observers  []func(Status)

	kick chan struct{} // pending reconnect request, capacity 1
}

// NewSupervisor creates a Supervisor for the device at address.
func NewSupervisor(adapter Adapter, address string, opts SupervisorOptions, logger *slog.Logger) (*Supervisor, error) {
	if adapter == nil {
		return nil, errors.New("ble: adapter is nil")
	}
	if address == "" {
		return nil, errors.New("ble: device address is empty")
	}
	def := DefaultSupervisorOptions()
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = def.Backoff
	}
	if opts.FailedCooldown <= 0 {
		opts.FailedCooldown = def.FailedCooldown
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.IdlePoll <= 0 {
		opts.IdlePoll = def.IdlePoll
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.NotifyBuffer <= 0 {
		opts.NotifyBuffer = def.NotifyBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if opts.WriteInterval > 0 {
		limit = rate.Every(opts.WriteInterval)
	}

	now := time.Now()
	return &Supervisor{
		adapter:       adapter,
		address:       address,
		opts:          opts,
		logger:        logger,
		queue:         NewQueue(opts.QueueSize),
		limiter:       rate.NewLimiter(limit, 1),
		notifications: make(chan []byte, opts.NotifyBuffer),
		status:        Status{State: StateDisconnected, Since: now},
		lastLogged:    StateDisconnected,
		kick:          make(chan struct{}, 1),
	}, nil
}

// Address returns the device address this Supervisor connects to.
func (s *Supervisor) Address() string { return s.address }

// Status returns the current connection status.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsConnected reports whether the link is up.
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.State == StateConnected
}

// Observe registers fn to be called with every status transition. fn must
// not block.
func (s *Supervisor) Observe(fn func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// SetHeartbeat replaces the heartbeat hook. A nil fn disables the poll; the
// link checks still run.
func (s *Supervisor) SetHeartbeat(fn HeartbeatFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Heartbeat = fn
}

// Notifications delivers raw frames received on the notify characteristic.
func (s *Supervisor) Notifications() <-chan []byte { return s.notifications }

// Enqueue queues a frame for writing, blocking while the queue is full.
func (s *Supervisor) Enqueue(ctx context.Context, frame []byte) error {
	return s.queue.Enqueue(ctx, frame)
}

// QueueLen returns the number of frames waiting to be written.
func (s *Supervisor) QueueLen() int { return s.queue.Len() }

// Run connects and supervises the link until ctx is cancelled, then stops
// the consumer and heartbeat, disconnects, and returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.consume(ctx)
	}()
	go func() {
		defer wg.Done()
		s.heartbeat(ctx)
	}()

	s.trigger()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			_ = s.Disconnect()
			return ctx.Err()
		case <-s.kick:
			s.reconnectLoop(ctx)
		}
	}
}

// Reconnect drops the current link, if any, and starts a new connection
// cycle. It also lifts a deliberate Disconnect.
func (s *Supervisor) Reconnect(reason string) {
	s.mu.Lock()
	s.manual = false
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		s.handleLoss(conn, errors.New(reason))
		return
	}
	s.trigger()
}

// Disconnect closes the link deliberately. The Supervisor stays
// Disconnected until Reconnect is called.
func (s *Supervisor) Disconnect() error {
	s.mu.Lock()
	s.manual = true
	conn := s.conn
	s.clearLinkLocked()
	s.setStateLocked(StateDisconnected)
	st := s.status
	s.mu.Unlock()

	s.emit(st)
	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}

// Read returns the current value of the notify characteristic.
func (s *Supervisor) Read() ([]byte, error) {
	s.mu.Lock()
	conn, ch := s.conn, s.readChar
	s.mu.Unlock()
	if ch == nil {
		return nil, ErrNotConnected
	}
	data, err := ch.Read()
	if err != nil {
		ioErr := &IOError{Op: "read", Char: ReadCharUUID, Err: err}
		s.handleLoss(conn, ioErr)
		return nil, ioErr
	}
	return data, nil
}

// trigger requests a reconnection loop. Requests made while one is already
// pending are coalesced. A request made while a loop is running stays
// pending, so a loss during the loop's exit is picked up by the next one.
func (s *Supervisor) trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// reconnectLoop attempts to connect with backoff until connected, cancelled
// or deliberately disconnected.
func (s *Supervisor) reconnectLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		st, manual := s.status, s.manual
		s.mu.Unlock()
		if manual || st.State == StateConnected {
			return
		}

		if st.State == StateFailed {
			s.logger.Warn("[BLE] reconnect attempts exhausted, cooling down",
				"mac", s.address, "attempts", st.Attempts, "cooldown", s.opts.FailedCooldown)
			if !sleepCtx(ctx, s.opts.FailedCooldown) {
				return
			}
			s.resetAttempts()
			continue
		}

		// The first attempt is immediate; later ones back off.
		if st.Attempts > 0 {
			delay := s.opts.Backoff.Delay(st.Attempts - 1)
			s.logger.Debug("[BLE] reconnect backoff", "attempt", st.Attempts+1, "delay", delay)
			if !sleepCtx(ctx, delay) {
				return
			}
		}

		if st.State == StateDisconnected {
			s.update(func(*Status) { s.setStateLocked(StateConnecting) })
		}

		err := s.connectOnce(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.recordFailure(err)
	}
}

// connectOnce performs one connect + discovery + subscribe.
func (s *Supervisor) connectOnce(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.adapter.Connect(cctx, s.address)
	if err != nil {
		return &ConnectError{Address: s.address, Err: err}
	}

	fail := func(err error) error {
		_ = conn.Disconnect()
		return &ConnectError{Address: s.address, Err: err}
	}

	writeChar, err := conn.DiscoverCharacteristic(ServiceUUID, WriteCharUUID)
	if err != nil {
		return fail(fmt.Errorf("discover write characteristic: %w", err))
	}
	readChar, err := conn.DiscoverCharacteristic(ServiceUUID, ReadCharUUID)
	if err != nil {
		return fail(fmt.Errorf("discover read characteristic: %w", err))
	}
	if err := readChar.Subscribe(s.deliver); err != nil {
		return fail(&IOError{Op: "subscribe", Char: ReadCharUUID, Err: err})
	}

	conn.OnDisconnect(func() {
		s.handleLoss(conn, errors.New("link lost"))
	})

	if !s.markConnected(conn, writeChar, readChar) {
		_ = conn.Disconnect()
		return nil
	}
	// A drop between OnDisconnect registration and markConnected was
	// ignored as stale.
	if !conn.IsConnected() {
		s.handleLoss(conn, errors.New("link lost during connect"))
	}
	return nil
}

// deliver hands a notification to the processing loop without blocking the
// transport callback.
func (s *Supervisor) deliver(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case s.notifications <- cp:
	default:
		s.logger.Warn("[BLE] notification buffer full, dropping frame", "len", len(cp))
	}
}

func (s *Supervisor) markConnected(conn Connection, writeChar, readChar Characteristic) bool {
	s.mu.Lock()
	if s.manual {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.writeChar = writeChar
	s.readChar = readChar
	s.status.Attempts = 0
	s.status.LastSeen = time.Now()
	s.setStateLocked(StateConnected)
	st := s.status
	s.mu.Unlock()

	s.emit(st)
	return true
}

func (s *Supervisor) recordFailure(err error) {
	s.update(func(st *Status) {
		st.Attempts++
		st.LastError = err.Error()
		if st.Attempts >= s.opts.MaxAttempts {
			s.setStateLocked(StateFailed)
		} else {
			s.setStateLocked(StateReconnecting)
		}
	})
	s.logger.Warn("[BLE] connect failed", "mac", s.address, "error", err, "attempt", s.Status().Attempts)
}

func (s *Supervisor) resetAttempts() {
	s.update(func(st *Status) {
		st.Attempts = 0
		s.setStateLocked(StateReconnecting)
	})
}

// handleLoss tears down conn after a transport failure and schedules a
// reconnect. Stale connections are ignored.
func (s *Supervisor) handleLoss(conn Connection, cause error) {
	s.mu.Lock()
	if conn == nil || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.clearLinkLocked()
	s.status.LastError = cause.Error()
	s.setStateLocked(StateReconnecting)
	st := s.status
	s.mu.Unlock()

	s.logger.Warn("[BLE] disconnected, reconnecting...", "mac", s.address, "cause", cause)
	s.emit(st)
	_ = conn.Disconnect()
	s.trigger()
}

// update applies fn to the status under the lock, then emits the result.
func (s *Supervisor) update(fn func(st *Status)) {
	s.mu.Lock()
	fn(&s.status)
	st := s.status
	s.mu.Unlock()
	s.emit(st)
}

// setStateLocked changes state and stamps Since on an actual change.
// Caller must hold mu.
func (s *Supervisor) setStateLocked(state State) {
	if s.status.State != state {
		s.status.State = state
		s.status.Since = time.Now()
	}
}

// clearLinkLocked drops the connection handles. Caller must hold mu.
func (s *Supervisor) clearLinkLocked() {
	s.conn = nil
	s.writeChar = nil
	s.readChar = nil
}

// emit logs a transition once per state change and informs observers.
func (s *Supervisor) emit(st Status) {
	s.mu.Lock()
	changed := st.State != s.lastLogged
	s.lastLogged = st.State
	observers := make([]func(Status), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	if changed {
		s.logger.Info("[BLE] connection state", "mac", s.address, "state", st.State.String(),
			"attempts", st.Attempts, "last_error", st.LastError)
	} else {
		s.logger.Debug("[BLE] connection state unchanged", "state", st.State.String(), "attempts", st.Attempts)
	}
	for _, fn := range observers {
		fn(st)
	}
}

// consume drains the queue onto the write characteristic in FIFO order. It
// idles while disconnected so frames wait for the next connection.
func (s *Supervisor) consume(ctx context.Context) {
	var pending []byte
	tries := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if !s.IsConnected() {
			if !sleepCtx(ctx, s.opts.IdlePoll) {
				return
			}
			continue
		}
		if pending == nil {
			frame, err := s.queue.Dequeue(ctx)
			if err != nil {
				return
			}
			pending, tries = frame, 0
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.write(pending); err != nil {
			tries++
			if tries >= maxWriteTries {
				s.logger.Error("[BLE] dropping frame after repeated write failures", "error", err, "tries", tries)
				pending = nil
			}
			continue
		}
		pending = nil
	}
}

func (s *Supervisor) write(frame []byte) error {
	s.mu.Lock()
	conn, ch := s.conn, s.writeChar
	s.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}
	if err := ch.Write(frame); err != nil {
		ioErr := &IOError{Op: "write", Char: WriteCharUUID, Err: err}
		s.handleLoss(conn, ioErr)
		return ioErr
	}
	return nil
}

// heartbeat periodically checks link health while connected.
func (s *Supervisor) heartbeat(ctx context.Context) {
	if s.opts.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

func (s *Supervisor) checkHealth(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	connected := s.status.State == StateConnected
	hook := s.opts.Heartbeat
	s.mu.Unlock()
	if !connected || conn == nil {
		return
	}

	if !conn.IsConnected() {
		s.handleLoss(conn, errors.New("heartbeat: link down"))
		return
	}
	if s.opts.ProbeRead {
		if _, err := s.Read(); err != nil {
			return
		}
	}
	if hook != nil {
		hctx, cancel := context.WithTimeout(ctx, s.opts.HeartbeatInterval)
		err := hook(hctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.handleLoss(conn, fmt.Errorf("heartbeat: %w", err))
			return
		}
	}
	if n, c := s.queue.Len(), s.queue.Cap(); n >= c {
		s.handleLoss(conn, fmt.Errorf("heartbeat: queue backlog %d/%d", n, c))
	}
}

// sleepCtx waits for d or until ctx ends. Returns false if ctx ended.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
