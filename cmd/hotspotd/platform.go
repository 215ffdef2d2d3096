package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/user/hotspot-blue/android"
	"github.com/user/hotspot-blue/config"
	"github.com/user/hotspot-blue/iphone"
	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/onboard"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/wire"
)

const defaultSimHotspots = "Hotspot-A1=HS-00A1,Hotspot-B2=HS-00B2"

type simOptions struct {
	hotspots       string
	denyPermission bool
	sessionID      string
}

func buildPlatform(cfg config.Config, sim simOptions) (phone.Platform, func() error, error) {
	switch cfg.Platform {
	case config.PlatformIOS, config.PlatformAndroid:
		air, err := newSimulatedAir(sim.hotspots)
		if err != nil {
			return phone.Platform{}, nil, err
		}
		central := air.NewCentral(cfg.Platform)
		if sim.sessionID != "" {
			central.SetEventLogger(wire.NewLinkEventLogger(sim.sessionID, cfg.Platform, cfg.EventLog))
		}
		if cfg.Platform == config.PlatformIOS {
			return iphone.NewPlatform(central), noCleanup, nil
		}
		adapter := kotlin.NewBluetoothManager(central).GetAdapter()
		perms := kotlin.NewPermissionManager(func(ctx context.Context, permission string) (bool, error) {
			logger.Info("hotspotd", "🔐 Permission dialog for %s: granted=%v", permission, !sim.denyPermission)
			return !sim.denyPermission, nil
		})
		return android.NewPlatform(adapter, perms), noCleanup, nil
	case config.PlatformLinux:
		return linuxPlatform(cfg)
	default:
		return phone.Platform{}, nil, fmt.Errorf("unknown platform %q", cfg.Platform)
	}
}

func noCleanup() error { return nil }

// newSimulatedAir parses "name=address,..." into onboarding hotspots
func newSimulatedAir(spec string) (*wire.Air, error) {
	air := wire.NewAir(wire.DefaultSimulationConfig())
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, addr, ok := strings.Cut(entry, "=")
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("hotspot %q: want name=address", entry)
		}
		h := onboard.NewSimulatedHotspot(name, phone.DeviceAddress(addr))
		air.AddHotspot(h)
		logger.Debug("hotspotd", "📡 Simulated hotspot %s (%s) → %s", name, h.ID, addr)
	}
	return air, nil
}
