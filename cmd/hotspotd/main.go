// hotspotd runs the hotspot pairing flow and serves it over HTTP.
//
// ios and android run against the in-memory BLE simulation with simulated
// hotspots; linux drives the host adapter through BlueZ.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"

	"github.com/user/hotspot-blue/api"
	"github.com/user/hotspot-blue/config"
	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/util"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hotspotd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fl, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load(fl.configPath)
	if err != nil {
		return err
	}
	fl.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if cfg.DataDir != "" {
		os.Setenv("HOTSPOT_BLUE_DIR", cfg.DataDir)
	}

	sessionID := uuid.New().String()
	prefix := util.ShortID(sessionID) + " hotspotd"

	plat, cleanup, err := buildPlatform(cfg, simOptions{
		hotspots:       fl.hotspots,
		denyPermission: fl.denyPermission,
		sessionID:      sessionID,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	opts := cfg.FlowOptions()
	opts.SessionID = sessionID
	opts.Events = phone.NewStateEventLogger(sessionID, cfg.EventLog)
	opts.Settings = phone.SettingsOpenerFunc(func(ctx context.Context, url string) error {
		logger.Info(prefix, "⚙️  Open %s to fix the radio", url)
		return nil
	})

	manager := phone.NewConnectionManager(plat, nil, opts)
	defer manager.Close()
	manager.OnConnected(func(dev phone.DiscoveredDevice, addr phone.DeviceAddress) {
		logger.Info(prefix, "🎉 %s ready at %s", dev.Name, addr)
	})
	if p := opts.Events.Path(); p != "" {
		logger.Info(prefix, "📝 State events → %s", p)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewServer(manager, plat.Name).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(prefix, "🚀 Listening on %s (platform %s)", cfg.HTTPAddr, plat.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn(prefix, "sd_notify failed: %v", err)
	} else if ok {
		logger.Debug(prefix, "Notified systemd of readiness")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info(prefix, "Received %s, shutting down", sig)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info(prefix, "Stopped")
	return nil
}
