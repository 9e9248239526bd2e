package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported actuator drivers.
const (
	// DriverRPIO drives a Raspberry Pi GPIO pin through /dev/gpiomem.
	DriverRPIO = "rpio"

	// DriverNoOp accepts every pulse without touching hardware.
	DriverNoOp = "noop"

	// DriverFake keeps pin levels in memory. Useful for bench testing the API.
	DriverFake = "fake"
)

// Overlap policies for concurrent pulses.
const (
	// OverlapQueue serialises concurrent pulses so holds never overlap.
	OverlapQueue = "queue"

	// OverlapReject fails a pulse that arrives while another is holding.
	OverlapReject = "reject"
)

// maxBCMPin is the highest BCM GPIO number exposed on the 40-pin header.
const maxBCMPin = 27

// Config is the root configuration structure for the garage relay.
// Values come from defaults, then an optional YAML file, then environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	GPIO      GPIOConfig      `yaml:"gpio"`
	Security  SecurityConfig  `yaml:"security"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	// URL is the connection string, normally supplied via DATABASE_URL.
	// Accepted forms: "sqlite:path", "sqlite://path", "file:path" or a bare path.
	URL         string `yaml:"url"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// GPIOConfig describes the relay output line.
type GPIOConfig struct {
	// Driver selects the actuator implementation: "rpio", "noop" or "fake".
	// The default is fixed at build time (see DefaultDriver).
	Driver string `yaml:"driver"`

	// Pin is the BCM GPIO number wired to the relay. Default: 2
	Pin int `yaml:"pin"`

	// HoldMS is how long the line stays active per pulse. Default: 200
	HoldMS int `yaml:"hold_ms"`

	// ActiveLow drives the line low to trigger the relay. Default: true
	ActiveLow bool `yaml:"active_low"`

	// RestoreInactive returns the line to its idle level after the hold.
	// Default: true
	RestoreInactive bool `yaml:"restore_inactive"`

	// AcquireAtStartup claims the line while the process boots so wiring
	// faults stop the service instead of surfacing on the first request.
	AcquireAtStartup bool `yaml:"acquire_at_startup"`

	// Overlap is "queue" (default) or "reject".
	Overlap string `yaml:"overlap"`
}

// Hold returns the configured hold as a Duration.
func (g GPIOConfig) Hold() time.Duration {
	return time.Duration(g.HoldMS) * time.Millisecond
}

// SecurityConfig contains access control settings.
type SecurityConfig struct {
	// RequireRegisteredKey rejects toggles whose key is not in the users table.
	RequireRegisteredKey bool `yaml:"require_registered_key"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load layers defaults, the YAML file at path (skipped when empty) and
// environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		GPIO: GPIOConfig{
			Driver:           DefaultDriver,
			Pin:              2,
			HoldMS:           200,
			ActiveLow:        true,
			RestoreInactive:  true,
			AcquireAtStartup: true,
			Overlap:          OverlapQueue,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "garage-relay",
			},
			QoS:         1,
			TopicPrefix: "garage",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies DATABASE_URL and the GARAGE_* variables.
// Empty or unparseable values leave the setting untouched.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	bindings := []struct {
		key string
		set func(string) error
	}{
		{"DATABASE_URL", setString(&cfg.Database.URL)},
		{"GARAGE_DATABASE_URL", setString(&cfg.Database.URL)},
		{"GARAGE_API_HOST", setString(&cfg.API.Host)},
		{"GARAGE_API_PORT", setInt(&cfg.API.Port)},
		{"GARAGE_GPIO_DRIVER", setString(&cfg.GPIO.Driver)},
		{"GARAGE_GPIO_PIN", setInt(&cfg.GPIO.Pin)},
		{"GARAGE_GPIO_HOLD_MS", setInt(&cfg.GPIO.HoldMS)},
		{"GARAGE_REQUIRE_REGISTERED_KEY", setBool(&cfg.Security.RequireRegisteredKey)},
		{"GARAGE_MQTT_HOST", setString(&cfg.MQTT.Broker.Host)},
		{"GARAGE_MQTT_USERNAME", setString(&cfg.MQTT.Auth.Username)},
		{"GARAGE_MQTT_PASSWORD", setString(&cfg.MQTT.Auth.Password)},
		{"GARAGE_INFLUXDB_TOKEN", setString(&cfg.InfluxDB.Token)},
		{"GARAGE_LOG_LEVEL", setString(&cfg.Logging.Level)},
	}

	for _, b := range bindings {
		if v, ok := lookup(b.key); ok && v != "" {
			_ = b.set(v) //nolint:errcheck // bad values are ignored
		}
	}
}

func setString(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*dst = n
		}
		return err
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst = b
		}
		return err
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Database.URL == "" {
		fail("database.url is required (set DATABASE_URL)")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		fail("api.port %d out of range 1-65535", c.API.Port)
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		fail("api.tls needs cert_file and key_file")
	}

	if !slices.Contains([]string{DriverRPIO, DriverNoOp, DriverFake}, c.GPIO.Driver) {
		fail("gpio.driver %q must be one of rpio, noop, fake", c.GPIO.Driver)
	}
	if c.GPIO.Pin < 0 || c.GPIO.Pin > maxBCMPin {
		fail("gpio.pin %d out of range 0-%d", c.GPIO.Pin, maxBCMPin)
	}
	if c.GPIO.HoldMS < 0 {
		fail("gpio.hold_ms must not be negative")
	}
	if c.GPIO.Overlap != OverlapQueue && c.GPIO.Overlap != OverlapReject {
		fail("gpio.overlap %q must be queue or reject", c.GPIO.Overlap)
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			fail("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS)
		}
		if c.MQTT.TopicPrefix == "" {
			fail("mqtt.topic_prefix is required when mqtt is enabled")
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		fail("influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	return errors.Join(errs...)
}

// ReadDuration returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadDuration() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteDuration returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteDuration() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleDuration returns the keep-alive idle timeout as a Duration.
func (t APITimeoutConfig) IdleDuration() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
