package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/hotspot-blue/phone"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceUUID != phone.HotspotServiceUUID {
		t.Errorf("Expected default service UUID, got %s", cfg.ServiceUUID)
	}
	if time.Duration(cfg.SettleDelay) != 500*time.Millisecond {
		t.Errorf("Expected 500ms settle delay, got %v", time.Duration(cfg.SettleDelay))
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `{
		"platform": "ios",
		"scan_duration": "3s",
		"settle_delay": 250,
		"http_addr": ":9000"
	}`)
	t.Setenv("HOTSPOT_SETTLE_MS", "100")
	t.Setenv("HOTSPOT_EVENTS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Platform != PlatformIOS {
		t.Errorf("Expected ios from file, got %s", cfg.Platform)
	}
	if time.Duration(cfg.ScanDuration) != 3*time.Second {
		t.Errorf("Expected 3s scan, got %v", time.Duration(cfg.ScanDuration))
	}
	if time.Duration(cfg.SettleDelay) != 100*time.Millisecond {
		t.Errorf("Env should override file settle delay, got %v", time.Duration(cfg.SettleDelay))
	}
	if cfg.EventLog {
		t.Error("HOTSPOT_EVENTS=false should disable the event log")
	}
	t.Logf("✅ file → env precedence holds")
}

func TestLoadRejectsBadInput(t *testing.T) {
	if _, err := Load(writeConfig(t, `{"scan_duration": "soon"}`)); err == nil {
		t.Error("Expected a bad duration to fail")
	}
	if _, err := Load(writeConfig(t, `{`)); err == nil {
		t.Error("Expected malformed JSON to fail")
	}

	t.Setenv("HOTSPOT_SCAN_MS", "abc")
	if _, err := Load(writeConfig(t, `{}`)); err == nil || !strings.Contains(err.Error(), "HOTSPOT_SCAN_MS") {
		t.Errorf("Expected HOTSPOT_SCAN_MS error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.ServiceUUID = "0FDA92B2-44A2-4AF2-84F5-FA682BAA2B8D"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ServiceUUID != phone.HotspotServiceUUID {
		t.Errorf("Expected normalized UUID, got %s", cfg.ServiceUUID)
	}

	bad := []func(*Config){
		func(c *Config) { c.Platform = "symbian" },
		func(c *Config) { c.ServiceUUID = "not-a-uuid" },
		func(c *Config) { c.ScanDuration = 0 },
		func(c *Config) { c.SettleDelay = -1 },
		func(c *Config) { c.ConnectTimeout = 0 },
		func(c *Config) { c.HTTPAddr = "" },
		func(c *Config) { c.LogLevel = "loud" },
	}
	for i, mutate := range bad {
		c := Default()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestFlowOptionsZeroSettle(t *testing.T) {
	cfg := Default()
	cfg.SettleDelay = 0
	if opts := cfg.FlowOptions(); opts.SettleDelay >= 0 {
		t.Errorf("Zero settle delay must map to a negative option, got %v", opts.SettleDelay)
	}
}
