//go:build linux

package main

import (
	"github.com/user/hotspot-blue/bluez"
	"github.com/user/hotspot-blue/config"
	"github.com/user/hotspot-blue/phone"
)

func linuxPlatform(cfg config.Config) (phone.Platform, func() error, error) {
	path := cfg.AdapterPath
	if path == "" {
		path = string(bluez.DefaultAdapterPath)
	}
	return bluez.NewPlatform(path)
}
