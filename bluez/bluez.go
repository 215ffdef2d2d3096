//go:build linux

// Package bluez provides the Linux capability providers: adapter power over
// BlueZ's D-Bus API and a BLE central through tinygo's bluetooth package.
package bluez

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/user/hotspot-blue/phone"
)

// NewPlatform connects to the system bus and builds the Linux providers.
// Linux has no location prerequisite for scanning.
func NewPlatform(adapterPath string) (phone.Platform, func() error, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return phone.Platform{}, nil, fmt.Errorf("connect to system bus: %w", err)
	}
	return phone.Platform{
		Name:      "linux",
		Radio:     NewRadio(conn, dbus.ObjectPath(adapterPath)),
		Transport: NewTransport(nil),
	}, conn.Close, nil
}
