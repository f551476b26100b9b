package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	BLE       BLEConfig       `yaml:"ble"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Init      InitConfig      `yaml:"init"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
}

// DeviceConfig selects the fountain.
type DeviceConfig struct {
	Address     string        `yaml:"address"`      // MAC on Linux, CoreBluetooth UUID on macOS
	ScanTimeout time.Duration `yaml:"scan_timeout"` // how long to look for the advertisement
}

// BLEConfig holds link and queue settings.
type BLEConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	QueueSize      int           `yaml:"queue_size"`
	WriteInterval  time.Duration `yaml:"write_interval"`  // minimum spacing between writes
	IdlePoll       time.Duration `yaml:"idle_poll"`
	NotifyBuffer   int           `yaml:"notify_buffer"`
}

// ReconnectConfig holds reconnection backoff settings.
type ReconnectConfig struct {
	Policy         string        `yaml:"policy"`          // "exponential" or "tiered"
	BaseDelay      time.Duration `yaml:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	MaxAttempts    int           `yaml:"max_attempts"`
	FailedCooldown time.Duration `yaml:"failed_cooldown"`
}

// HeartbeatConfig holds link health check settings.
type HeartbeatConfig struct {
	Interval  time.Duration `yaml:"interval"`   // 0 disables
	ProbeRead bool          `yaml:"probe_read"`
}

// InitConfig holds bring-up timing.
type InitConfig struct {
	DetailsDelay time.Duration `yaml:"details_delay"`
	StepDelay    time.Duration `yaml:"step_delay"`
	ReinitDelay  time.Duration `yaml:"reinit_delay"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxReinit    int           `yaml:"max_reinit"`
}

// MQTTConfig holds the optional MQTT bridge settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`       // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id"`    // generated when empty
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "petkit-ble")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ScanTimeout: 10 * time.Second,
		},
		BLE: BLEConfig{
			ConnectTimeout: 30 * time.Second,
			QueueSize:      10,
			WriteInterval:  100 * time.Millisecond,
			IdlePoll:       500 * time.Millisecond,
			NotifyBuffer:   32,
		},
		Reconnect: ReconnectConfig{
			Policy:         "exponential",
			BaseDelay:      time.Second,
			MaxDelay:       time.Minute,
			MaxAttempts:    10,
			FailedCooldown: 5 * time.Minute,
		},
		Heartbeat: HeartbeatConfig{
			Interval: time.Minute,
		},
		Init: InitConfig{
			DetailsDelay: 1500 * time.Millisecond,
			StepDelay:    750 * time.Millisecond,
			ReinitDelay:  3 * time.Second,
			Timeout:      30 * time.Second,
			MaxReinit:    3,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			TopicPrefix: "petkit",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in log.output is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Log.Output = expandTilde(cfg.Log.Output)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there. It returns the path written, or "" if a file was already
// present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	header := "# petkit-ble configuration\n# Set device.address to your fountain's MAC (or CoreBluetooth UUID on macOS).\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.ScanTimeout <= 0 {
		return fmt.Errorf("device.scan_timeout must be > 0")
	}

	if c.BLE.ConnectTimeout <= 0 {
		return fmt.Errorf("ble.connect_timeout must be > 0")
	}
	if c.BLE.QueueSize <= 0 {
		return fmt.Errorf("ble.queue_size must be > 0")
	}
	if c.BLE.WriteInterval < 0 {
		return fmt.Errorf("ble.write_interval must not be negative")
	}

	switch c.Reconnect.Policy {
	case "exponential":
		if c.Reconnect.BaseDelay <= 0 {
			return fmt.Errorf("reconnect.base_delay must be > 0")
		}
		if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
			return fmt.Errorf("reconnect.max_delay must be >= reconnect.base_delay")
		}
	case "tiered":
	default:
		return fmt.Errorf("reconnect.policy must be \"exponential\" or \"tiered\", got %q", c.Reconnect.Policy)
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect.max_attempts must be > 0")
	}
	if c.Reconnect.FailedCooldown <= 0 {
		return fmt.Errorf("reconnect.failed_cooldown must be > 0")
	}

	if c.Heartbeat.Interval < 0 {
		return fmt.Errorf("heartbeat.interval must not be negative")
	}

	if c.Init.Timeout <= 0 {
		return fmt.Errorf("init.timeout must be > 0")
	}
	if c.Init.MaxReinit < 0 {
		return fmt.Errorf("init.max_reinit must not be negative")
	}

	if c.MQTT.Enabled {
		if err := validateBroker(c.MQTT.Broker); err != nil {
			return err
		}
		if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
			return fmt.Errorf("mqtt.topic_prefix must be non-empty and free of wildcards, got %q", c.MQTT.TopicPrefix)
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", c.MQTT.QoS)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}

	return nil
}

// validateBroker checks for a scheme://host:port broker URL.
func validateBroker(broker string) error {
	scheme, hostport, ok := strings.Cut(broker, "://")
	if !ok {
		return fmt.Errorf("mqtt.broker must be scheme://host:port, got %q", broker)
	}
	switch scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("mqtt.broker scheme %q is not supported", scheme)
	}
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		return fmt.Errorf("mqtt.broker %q: %w", broker, err)
	}
	return nil
}

// ParseLogLevel converts a level name to a slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
