package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
	"github.com/shaunagostinho/sensordash/internal/pacer"
	"github.com/shaunagostinho/sensordash/internal/sensor"
	"github.com/shaunagostinho/sensordash/internal/window"
)

// DefaultConfigPath is used by Save when the config was not loaded from a file.
const DefaultConfigPath = "/etc/sensordash/config.yaml"

// Config holds all dashboard configuration.
type Config struct {
	mu sync.RWMutex

	// Sensor link
	Sensor SensorConfig `yaml:"sensor" json:"sensor"`

	// Per-channel calibration; offsets are operator adjustable at runtime
	Calibration calib.Config `yaml:"calibration" json:"calibration"`

	Window WindowConfig `yaml:"window" json:"window"`

	// Display preferences
	Display DisplayConfig `yaml:"display" json:"display"`

	// Downstream sinks
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	MQTT    MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Console ConsoleConfig `yaml:"console" json:"console"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type SensorConfig struct {
	Type          string `yaml:"type" json:"type"`          // "serial" or "demo"
	PortPath      string `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate      int    `yaml:"baud_rate" json:"baudRate"`
	DataBits      int    `yaml:"data_bits" json:"dataBits"`
	StopBits      int    `yaml:"stop_bits" json:"stopBits"`
	Parity        string `yaml:"parity" json:"parity"` // N, E or O
	ReadTimeoutMs int    `yaml:"read_timeout_ms" json:"readTimeoutMs"`
	RateHz        int    `yaml:"rate_hz" json:"rateHz"` // acquisition ticks per second

	// Demo only: probability of a truncated response
	DemoShortFrameRate float64 `yaml:"demo_short_frame_rate" json:"demoShortFrameRate"`
}

type WindowConfig struct {
	Size int `yaml:"size" json:"size"` // samples per channel
}

// AxisRange is a fixed plot axis.
type AxisRange struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

type DisplayConfig struct {
	RefreshHz int `yaml:"refresh_hz" json:"refreshHz"` // WebSocket push rate

	DistanceAxis AxisRange `yaml:"distance_axis" json:"distanceAxis"`
	YawAxis      AxisRange `yaml:"yaw_axis" json:"yawAxis"`
	PitchAxis    AxisRange `yaml:"pitch_axis" json:"pitchAxis"`
	BankAxis     AxisRange `yaml:"bank_axis" json:"bankAxis"`
}

// Axis returns the configured axis for a scalar channel.
func (d DisplayConfig) Axis(ch calib.Channel) AxisRange {
	switch ch {
	case calib.Yaw:
		return d.YawAxis
	case calib.Pitch:
		return d.PitchAxis
	}
	return d.DistanceAxis
}

type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between log entries
}

type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Server     string `yaml:"server" json:"server"` // e.g. tcp://localhost:1883
	ClientID   string `yaml:"client_id" json:"clientId"`
	Topic      string `yaml:"topic" json:"topic"`
	Username   string `yaml:"username" json:"username"`
	Password   string `yaml:"password" json:"-"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

type ConsoleConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	IntervalMs int  `yaml:"interval_ms" json:"intervalMs"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sensor: SensorConfig{
			Type:          "serial",
			PortPath:      "/dev/ttyUSB0",
			BaudRate:      sensor.DefaultBaudRate,
			DataBits:      8,
			StopBits:      1,
			Parity:        "N",
			ReadTimeoutMs: 1000,
			RateHz:        pacer.DefaultRateHz,
		},
		Calibration: calib.DefaultConfig(),
		Window: WindowConfig{
			Size: window.DefaultSize,
		},
		Display: DisplayConfig{
			RefreshHz:    30,
			DistanceAxis: AxisRange{Min: -1, Max: 24},
			YawAxis:      AxisRange{Min: -24, Max: 24},
			PitchAxis:    AxisRange{Min: -24, Max: 24},
			BankAxis:     AxisRange{Min: 0, Max: 255},
		},
		Logging: LoggingConfig{
			Enabled:  false,
			Path:     "/var/log/sensordash",
			Interval: 100,
		},
		MQTT: MQTTConfig{
			Enabled:    false,
			Server:     "tcp://localhost:1883",
			Topic:      "sensordash/telemetry",
			IntervalMs: 200,
		},
		Console: ConsoleConfig{
			Enabled:    false,
			IntervalMs: 500,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
// Variables already present in the real environment win.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			log.Printf("[config] ignoring %s=%q: %v", key, v, err)
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		} else {
			log.Printf("[config] ignoring %s=%q: %v", key, v, err)
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || v == "true" || v == "yes"
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: SENSOR_TYPE, SENSOR_PORT, SENSOR_BAUD, SENSOR_RATE_HZ,
// SENSOR_READ_TIMEOUT_MS, DIST_OFFSET, YAW_OFFSET, PITCH_OFFSET, WINDOW_SIZE,
// LISTEN_ADDR, LOG_ENABLED, LOG_PATH, LOG_INTERVAL_MS, MQTT_ENABLED,
// MQTT_SERVER, MQTT_TOPIC
func (c *Config) applyEnvOverrides() {
	envString("SENSOR_TYPE", &c.Sensor.Type)
	envString("SENSOR_PORT", &c.Sensor.PortPath)
	envInt("SENSOR_BAUD", &c.Sensor.BaudRate)
	envInt("SENSOR_RATE_HZ", &c.Sensor.RateHz)
	envInt("SENSOR_READ_TIMEOUT_MS", &c.Sensor.ReadTimeoutMs)

	envFloat("DIST_OFFSET", &c.Calibration.Distance.Offset)
	envFloat("YAW_OFFSET", &c.Calibration.Yaw.Offset)
	envFloat("PITCH_OFFSET", &c.Calibration.Pitch.Offset)
	envInt("WINDOW_SIZE", &c.Window.Size)

	envString("LISTEN_ADDR", &c.Server.ListenAddr)

	// Logging
	envBool("LOG_ENABLED", &c.Logging.Enabled)
	envString("LOG_PATH", &c.Logging.Path)
	envInt("LOG_INTERVAL_MS", &c.Logging.Interval)

	// MQTT
	envBool("MQTT_ENABLED", &c.MQTT.Enabled)
	envString("MQTT_SERVER", &c.MQTT.Server)
	envString("MQTT_TOPIC", &c.MQTT.Topic)
}

// Validate checks the settings the acquisition loop depends on.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, err := c.portOptions().Normalize(); err != nil {
		return fmt.Errorf("config: sensor: %w", err)
	}
	if err := c.Calibration.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Sensor.RateHz < 0 || c.Window.Size < 0 {
		return fmt.Errorf("config: rate_hz and window size must not be negative")
	}
	return nil
}

func (c *Config) portOptions() sensor.PortOptions {
	return sensor.PortOptions{
		BaudRate: c.Sensor.BaudRate,
		DataBits: c.Sensor.DataBits,
		StopBits: c.Sensor.StopBits,
		Parity:   c.Sensor.Parity,
	}
}

// TransportConfig returns the settings for sensor.Open.
func (c *Config) TransportConfig() sensor.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sensor.Config{
		Type:               c.Sensor.Type,
		PortPath:           c.Sensor.PortPath,
		Options:            c.portOptions(),
		ReadTimeout:        time.Duration(c.Sensor.ReadTimeoutMs) * time.Millisecond,
		DemoShortFrameRate: c.Sensor.DemoShortFrameRate,
	}
}

// LoopOptions returns the settings for acquire.New.
func (c *Config) LoopOptions() acquire.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return acquire.Options{
		WindowSize:  c.Window.Size,
		Interval:    pacer.IntervalFor(c.Sensor.RateHz),
		ReadTimeout: time.Duration(c.Sensor.ReadTimeoutMs) * time.Millisecond,
		Calibration: c.Calibration,
	}
}

// DisplaySettings returns a copy of the display section.
func (c *Config) DisplaySettings() DisplayConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Display
}

// SetOffset records an operator offset so that Save persists it.
func (c *Config) SetOffset(ch calib.Channel, offset float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calibration.SetOffset(ch, offset)
}

// Offsets returns the configured offsets indexed by channel.
func (c *Config) Offsets() [calib.NumChannels]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out [calib.NumChannels]float64
	for _, ch := range calib.Channels {
		out[ch] = c.Calibration.Channel(ch).Offset
	}
	return out
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.path
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// it into the current config. The config is left unchanged on error.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.merged(data)
	if err != nil {
		return err
	}
	c.assign(next)
	return nil
}

// ErrCalibrationLocked is returned by UpdateLive for calibration changes
// other than offsets.
var ErrCalibrationLocked = errors.New("only calibration offsets can change while running; edit the config file and restart")

// UpdateLive is UpdateFromJSON for a running process. Offsets and display
// settings take effect at once. Other calibration fields are rejected, and
// restart reports that a section only read at startup changed.
func (c *Config) UpdateLive(data []byte) (restart bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.merged(data)
	if err != nil {
		return false, err
	}
	if next.Calibration.WithoutOffsets() != c.Calibration.WithoutOffsets() {
		return false, ErrCalibrationLocked
	}
	restart = next.Sensor != c.Sensor ||
		next.Window != c.Window ||
		next.Logging != c.Logging ||
		next.MQTT != c.MQTT ||
		next.Console != c.Console ||
		next.Server != c.Server
	c.assign(next)
	return restart, nil
}

// merged returns the config that data would produce. Callers hold c.mu.
func (c *Config) merged(data []byte) (*Config, error) {
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return nil, fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("marshal merged config: %w", err)
	}
	next := &Config{}
	next.assign(c)
	if err := json.Unmarshal(merged, next); err != nil {
		return nil, fmt.Errorf("apply merged config: %w", err)
	}
	if err := next.Calibration.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

func (c *Config) assign(o *Config) {
	c.Sensor = o.Sensor
	c.Calibration = o.Calibration
	c.Window = o.Window
	c.Display = o.Display
	c.Logging = o.Logging
	c.MQTT = o.MQTT
	c.Console = o.Console
	c.Server = o.Server
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
