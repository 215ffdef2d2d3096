package main

import (
	"context"
	"errors"
	"testing"

	"github.com/user/hotspot-blue/config"
	"github.com/user/hotspot-blue/phone"
)

func TestNewSimulatedAir(t *testing.T) {
	air, err := newSimulatedAir("Hotspot-A1=HS-00A1, Hotspot-B2=HS-00B2,")
	if err != nil {
		t.Fatalf("newSimulatedAir: %v", err)
	}
	if air == nil {
		t.Fatal("Expected an air")
	}

	if _, err := newSimulatedAir("no-address"); err == nil {
		t.Error("Expected malformed entry to fail")
	}
	if _, err := newSimulatedAir("=HS-1"); err == nil {
		t.Error("Expected empty name to fail")
	}
}

func TestBuildSimulatedPlatforms(t *testing.T) {
	for _, name := range []string{config.PlatformIOS, config.PlatformAndroid} {
		cfg := config.Default()
		cfg.Platform = name
		plat, cleanup, err := buildPlatform(cfg, simOptions{hotspots: defaultSimHotspots})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if plat.Name != name || plat.Radio == nil || plat.Transport == nil {
			t.Errorf("%s: incomplete platform %+v", name, plat)
		}
		if err := cleanup(); err != nil {
			t.Errorf("%s: cleanup: %v", name, err)
		}
	}
}

func TestDeniedAndroidPermissionHaltsFlow(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformAndroid
	plat, _, err := buildPlatform(cfg, simOptions{hotspots: defaultSimHotspots, denyPermission: true})
	if err != nil {
		t.Fatalf("buildPlatform: %v", err)
	}

	m := phone.NewConnectionManager(plat, nil, cfg.FlowOptions())
	defer m.Close()
	if err := m.Start(context.Background()); !errors.Is(err, phone.ErrPermissionDenied) {
		t.Fatalf("Expected permission denied, got %v", err)
	}
	t.Logf("✅ Denied dialog stops the flow before scanning")
}

func TestUnknownPlatform(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = "symbian"
	if _, _, err := buildPlatform(cfg, simOptions{}); err == nil {
		t.Fatal("Expected unknown platform to fail")
	}
}
