//go:build !linux

package main

import (
	"fmt"
	"runtime"

	"github.com/user/hotspot-blue/config"
	"github.com/user/hotspot-blue/phone"
)

func linuxPlatform(cfg config.Config) (phone.Platform, func() error, error) {
	return phone.Platform{}, nil, fmt.Errorf("platform linux needs BlueZ, not available on %s", runtime.GOOS)
}
