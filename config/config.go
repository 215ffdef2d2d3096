package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/phone"
)

// Platforms a daemon can run
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformLinux   = "linux"
)

// Duration is a time.Duration that reads from JSON as a Go duration string
// ("2s") or a millisecond count
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val) * time.Millisecond)
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("duration must be a string or milliseconds, got %T", v)
	}
	return nil
}

// Config is the daemon configuration
type Config struct {
	Platform         string   `json:"platform"`
	ServiceUUID      string   `json:"service_uuid"`
	ScanDuration     Duration `json:"scan_duration"`
	SettleDelay      Duration `json:"settle_delay"`
	ConnectTimeout   Duration `json:"connect_timeout"`
	ConfigureTimeout Duration `json:"configure_timeout"`
	HTTPAddr         string   `json:"http_addr"`
	LogLevel         string   `json:"log_level"`
	DataDir          string   `json:"data_dir,omitempty"`
	EventLog         bool     `json:"event_log"`
	AdapterPath      string   `json:"adapter_path,omitempty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Platform:         PlatformLinux,
		ServiceUUID:      phone.HotspotServiceUUID,
		ScanDuration:     Duration(phone.DefaultScanDuration),
		SettleDelay:      Duration(phone.DefaultSettleDelay),
		ConnectTimeout:   Duration(phone.DefaultConnectTimeout),
		ConfigureTimeout: Duration(phone.DefaultConfigureTimeout),
		HTTPAddr:         "127.0.0.1:8787",
		LogLevel:         "info",
		EventLog:         true,
	}
}

// Path returns the default config file location
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "hotspot-blue", "config.json")
}

// Load reads defaults, then the JSON file at path (missing is fine), then
// HOTSPOT_* environment overrides. An empty path uses Path().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = Path()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("config", "No config file at %s, using defaults", path)
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	millis := func(key string, dst *Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	str("HOTSPOT_PLATFORM", &c.Platform)
	str("HOTSPOT_SERVICE_UUID", &c.ServiceUUID)
	str("HOTSPOT_HTTP_ADDR", &c.HTTPAddr)
	str("HOTSPOT_LOG_LEVEL", &c.LogLevel)
	str("HOTSPOT_BLUE_DIR", &c.DataDir)
	str("HOTSPOT_ADAPTER", &c.AdapterPath)

	for key, dst := range map[string]*Duration{
		"HOTSPOT_SCAN_MS":              &c.ScanDuration,
		"HOTSPOT_SETTLE_MS":            &c.SettleDelay,
		"HOTSPOT_CONNECT_TIMEOUT_MS":   &c.ConnectTimeout,
		"HOTSPOT_CONFIGURE_TIMEOUT_MS": &c.ConfigureTimeout,
	} {
		if err := millis(key, dst); err != nil {
			return err
		}
	}

	if v := getenv("HOTSPOT_EVENTS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HOTSPOT_EVENTS: %w", err)
		}
		c.EventLog = on
	}
	return nil
}

// Validate checks the configuration and normalizes the service UUID
func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformIOS, PlatformAndroid, PlatformLinux:
	default:
		return fmt.Errorf("unknown platform %q", c.Platform)
	}

	u, err := uuid.Parse(c.ServiceUUID)
	if err != nil {
		return fmt.Errorf("service_uuid: %w", err)
	}
	c.ServiceUUID = u.String()

	if c.ScanDuration <= 0 {
		return fmt.Errorf("scan_duration must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle_delay must not be negative")
	}
	if c.ConnectTimeout <= 0 || c.ConfigureTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// FlowOptions converts the configuration to connection manager options
func (c Config) FlowOptions() phone.Options {
	settle := time.Duration(c.SettleDelay)
	if settle == 0 {
		// Zero means no settle delay here; the manager reads zero as default
		settle = -1
	}
	return phone.Options{
		ServiceUUID:      c.ServiceUUID,
		ScanDuration:     time.Duration(c.ScanDuration),
		SettleDelay:      settle,
		ConnectTimeout:   time.Duration(c.ConnectTimeout),
		ConfigureTimeout: time.Duration(c.ConfigureTimeout),
	}
}
