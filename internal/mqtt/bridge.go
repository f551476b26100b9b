// Package mqtt forwards fountain state to an MQTT broker and maps command
// topics onto the fountain command surface.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/chaz8081/petkit-ble/internal/ble"
	"github.com/chaz8081/petkit-ble/internal/ble/protocol"
	"github.com/chaz8081/petkit-ble/internal/config"
	"github.com/chaz8081/petkit-ble/internal/fountain"
)

// Topic suffixes under <prefix>/<device>.
const (
	TopicState        = "state"
	TopicConnection   = "connection"
	TopicAvailability = "availability"
	TopicSetPower     = "set/power"
	TopicSetMode      = "set/mode"
	TopicResetFilter  = "reset_filter"
)

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// Client is the subset of paho.Client the bridge uses.
type Client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Device is the fountain side of the bridge. *fountain.Device implements it.
type Device interface {
	State() *fountain.State
	Commands() *fountain.Commands
	OnUpdate(fn func(cmd byte))
}

// LinkObserver reports connection transitions. *ble.Supervisor implements it.
type LinkObserver interface {
	Observe(fn func(ble.Status))
	Status() ble.Status
}

// Options configures a Bridge.
type Options struct {
	TopicPrefix    string
	QoS            byte
	PublishTimeout time.Duration
	CommandTimeout time.Duration
	ConnectWait    time.Duration // how long Run waits for the first connect
}

// DefaultOptions returns the bridge defaults.
func DefaultOptions() Options {
	return Options{
		TopicPrefix:    "petkit",
		PublishTimeout: 5 * time.Second,
		CommandTimeout: 5 * time.Second,
		ConnectWait:    10 * time.Second,
	}
}

// StatePayload is the JSON document published to the state topic.
type StatePayload struct {
	Info   fountain.Info   `json:"info"`
	Status fountain.Status `json:"status"`
	Config fountain.Config `json:"config"`
}

// ConnectionPayload is the JSON document published to the connection topic.
type ConnectionPayload struct {
	State     string    `json:"state"`
	Attempts  int       `json:"attempts"`
	LastSeen  time.Time `json:"last_seen,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since,omitzero"`
}

// Bridge publishes one fountain's state and accepts its commands.
type Bridge struct {
	client Client
	dev    Device
	link   LinkObserver
	opts   Options
	logger *slog.Logger
	base   string

	stateDirty chan struct{}
	connDirty  chan struct{}
}

// NewBridge creates a bridge for dev over client. Call Run to start it.
func NewBridge(client Client, dev Device, link LinkObserver, opts Options, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = def.TopicPrefix
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = def.PublishTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = def.CommandTimeout
	}
	if opts.ConnectWait <= 0 {
		opts.ConnectWait = def.ConnectWait
	}
	b := &Bridge{
		client:     client,
		dev:        dev,
		link:       link,
		opts:       opts,
		logger:     logger.With("component", "mqtt"),
		base:       strings.TrimSuffix(opts.TopicPrefix, "/") + "/" + DeviceSegment(dev.State().Info().MAC),
		stateDirty: make(chan struct{}, 1),
		connDirty:  make(chan struct{}, 1),
	}
	dev.OnUpdate(func(byte) { signal(b.stateDirty) })
	link.Observe(func(ble.Status) { signal(b.connDirty) })
	return b
}

// Dial builds a paho client from cfg and returns a bridge using it. The
// client reconnects on its own and resubscribes on every connect.
func Dial(cfg config.MQTTConfig, dev Device, link LinkObserver, logger *slog.Logger) *Bridge {
	opts := DefaultOptions()
	if cfg.TopicPrefix != "" {
		opts.TopicPrefix = cfg.TopicPrefix
	}
	opts.QoS = cfg.QoS

	b := NewBridge(nil, dev, link, opts, logger)

	co := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(ClientID(cfg.ClientID)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10*time.Second).
		SetWill(b.Topic(TopicAvailability), Offline, cfg.QoS, true).
		SetOnConnectHandler(func(paho.Client) { b.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			b.logger.Warn("broker connection lost", "error", err)
		})
	if cfg.Username != "" {
		co.SetUsername(cfg.Username)
		co.SetPassword(cfg.Password)
	}
	b.client = paho.NewClient(co)
	return b
}

// ClientID returns id, or a fresh petkit-ble-<uuid> when id is empty.
func ClientID(id string) string {
	if id != "" {
		return id
	}
	return "petkit-ble-" + uuid.NewString()
}

// DeviceSegment turns a MAC or platform address into a topic segment.
func DeviceSegment(mac string) string {
	seg := strings.ToLower(mac)
	seg = strings.NewReplacer(":", "", "-", "", "/", "", "+", "", "#", "").Replace(seg)
	if seg == "" {
		return "unknown"
	}
	return seg
}

// Topic returns the full topic for suffix.
func (b *Bridge) Topic(suffix string) string {
	return b.base + "/" + suffix
}

// Run connects to the broker and publishes until ctx is cancelled. On exit
// it marks the device offline and disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	tok := b.client.Connect()
	if tok.WaitTimeout(b.opts.ConnectWait) {
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt: connect: %w", err)
		}
	} else {
		b.logger.Warn("broker not reachable yet, retrying in background")
	}

	for {
		select {
		case <-ctx.Done():
			b.publish(b.Topic(TopicAvailability), true, Offline)
			b.client.Disconnect(250)
			return nil
		case <-b.stateDirty:
			b.publishState()
		case <-b.connDirty:
			b.publishConnection()
		}
	}
}

// onConnect runs in paho's goroutine after each (re)connect.
func (b *Bridge) onConnect() {
	b.logger.Info("connected to broker", "topic", b.base)
	b.publish(b.Topic(TopicAvailability), true, Online)
	for _, suffix := range []string{TopicSetPower, TopicSetMode, TopicResetFilter} {
		topic := b.Topic(suffix)
		tok := b.client.Subscribe(topic, b.opts.QoS, b.handleMessage)
		if !tok.WaitTimeout(b.opts.PublishTimeout) {
			b.logger.Warn("subscribe timed out", "topic", topic)
		} else if err := tok.Error(); err != nil {
			b.logger.Warn("subscribe failed", "topic", topic, "error", err)
		}
	}
	signal(b.stateDirty)
	signal(b.connDirty)
}

func (b *Bridge) publishState() {
	st := b.dev.State()
	b.publishJSON(b.Topic(TopicState), StatePayload{
		Info:   st.Info(),
		Status: st.Status(),
		Config: st.Config(),
	})
}

func (b *Bridge) publishConnection() {
	s := b.link.Status()
	b.publishJSON(b.Topic(TopicConnection), ConnectionPayload{
		State:     s.State.String(),
		Attempts:  s.Attempts,
		LastSeen:  s.LastSeen,
		LastError: s.LastError,
		Since:     s.Since,
	})
}

func (b *Bridge) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("encoding payload", "topic", topic, "error", err)
		return
	}
	b.publish(topic, true, payload)
}

func (b *Bridge) publish(topic string, retained bool, payload any) {
	tok := b.client.Publish(topic, b.opts.QoS, retained, payload)
	if !tok.WaitTimeout(b.opts.PublishTimeout) {
		b.logger.Warn("publish timed out", "topic", topic)
		return
	}
	if err := tok.Error(); err != nil {
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// handleMessage maps a command topic to one command-surface call.
func (b *Bridge) handleMessage(_ paho.Client, msg paho.Message) {
	payload := strings.ToLower(strings.TrimSpace(string(msg.Payload())))
	b.logger.Info("received command", "topic", msg.Topic(), "payload", payload)

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.CommandTimeout)
	defer cancel()

	cmds := b.dev.Commands()
	status := b.dev.State().Status()

	var err error
	switch strings.TrimPrefix(msg.Topic(), b.base+"/") {
	case TopicSetPower:
		var power byte
		power, err = parsePower(payload)
		if err == nil {
			err = b.setMode(ctx, cmds, power, currentMode(status))
		}
	case TopicSetMode:
		var mode byte
		mode, err = parseMode(payload)
		if err == nil {
			err = b.setMode(ctx, cmds, currentPower(status), mode)
		}
	case TopicResetFilter:
		err = cmds.SetResetFilter(ctx)
	default:
		b.logger.Debug("ignoring message", "topic", msg.Topic())
		return
	}
	if err != nil {
		b.logger.Warn("command rejected", "topic", msg.Topic(), "payload", payload, "error", err)
	}
}

// setMode sends the mode change and asks for fresh state so the state topic
// reflects it.
func (b *Bridge) setMode(ctx context.Context, cmds *fountain.Commands, power, mode byte) error {
	if err := cmds.SetDeviceMode(ctx, power, mode); err != nil {
		return err
	}
	return cmds.GetDeviceState(ctx)
}

func parsePower(s string) (byte, error) {
	switch s {
	case "on", "1", "true":
		return protocol.PowerOn, nil
	case "off", "0", "false":
		return protocol.PowerOff, nil
	default:
		return 0, fmt.Errorf("mqtt: power must be on or off, got %q", s)
	}
}

func parseMode(s string) (byte, error) {
	switch s {
	case "normal", "1":
		return protocol.ModeNormal, nil
	case "smart", "2":
		return protocol.ModeSmart, nil
	default:
		return 0, fmt.Errorf("mqtt: mode must be normal or smart, got %q", s)
	}
}

// currentMode falls back to normal before the device has reported a mode.
func currentMode(s fountain.Status) byte {
	if s.Mode == int(protocol.ModeSmart) {
		return protocol.ModeSmart
	}
	return protocol.ModeNormal
}

func currentPower(s fountain.Status) byte {
	if s.PowerStatus == int(protocol.PowerOff) {
		return protocol.PowerOff
	}
	return protocol.PowerOn
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
