package main

import (
	"flag"
	"time"

	"github.com/user/hotspot-blue/config"
)

type cliFlags struct {
	configPath     string
	platform       string
	addr           string
	logLevel       string
	scan           time.Duration
	settle         time.Duration
	hotspots       string
	denyPermission bool

	set map[string]bool
}

func parseFlags(args []string) (*cliFlags, error) {
	f := &cliFlags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("hotspotd", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/hotspot-blue/config.json)")
	fs.StringVar(&f.platform, "platform", "", "Platform: ios, android or linux")
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	fs.DurationVar(&f.scan, "scan", 0, "Scan window (unset: config, 2s)")
	fs.DurationVar(&f.settle, "settle", 0, "Delay after configure before reporting success; 0 disables it (unset: config, 500ms)")
	fs.StringVar(&f.hotspots, "hotspots", defaultSimHotspots, "Simulated hotspots as name=address pairs (ios/android)")
	fs.BoolVar(&f.denyPermission, "deny-permission", false, "Simulated Android user denies location permission")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// apply overrides cfg with the flags given on the command line
func (f *cliFlags) apply(cfg *config.Config) {
	if f.set["platform"] {
		cfg.Platform = f.platform
	}
	if f.set["addr"] {
		cfg.HTTPAddr = f.addr
	}
	if f.set["log-level"] {
		cfg.LogLevel = f.logLevel
	}
	if f.set["scan"] {
		cfg.ScanDuration = config.Duration(f.scan)
	}
	if f.set["settle"] {
		cfg.SettleDelay = config.Duration(f.settle)
	}
}
