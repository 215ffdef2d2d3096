//go:build linux

package bluez

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/phone"
)

const (
	busName      = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	propsIface   = "org.freedesktop.DBus.Properties"

	// DefaultAdapterPath is the first HCI controller
	DefaultAdapterPath = dbus.ObjectPath("/org/bluez/hci0")
)

// Adapter1.PowerState values (BlueZ 5.66+)
const (
	powerStateOn          = "on"
	powerStateOff         = "off"
	powerStateOffEnabling = "off-enabling"
	powerStateOnDisabling = "on-disabling"
	powerStateOffBlocked  = "off-blocked"
)

// properties is the slice of org.freedesktop.DBus.Properties the radio uses
type properties interface {
	Get(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error)
	Set(path dbus.ObjectPath, iface, prop string, val interface{}) error
}

// busProperties calls org.freedesktop.DBus.Properties on the system bus
type busProperties struct {
	conn *dbus.Conn
}

func (b busProperties) Get(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := b.conn.Object(busName, path).Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b busProperties) Set(path dbus.ObjectPath, iface, prop string, val interface{}) error {
	return b.conn.Object(busName, path).Call(propsIface+".Set", 0, iface, prop, dbus.MakeVariant(val)).Err
}

// Radio reads and powers the BlueZ adapter over D-Bus
type Radio struct {
	props properties
	path  dbus.ObjectPath
	poll  time.Duration
}

// NewRadio creates a radio for the adapter at path on conn
func NewRadio(conn *dbus.Conn, path dbus.ObjectPath) *Radio {
	if path == "" {
		path = DefaultAdapterPath
	}
	return &Radio{props: busProperties{conn: conn}, path: path, poll: 100 * time.Millisecond}
}

func (r *Radio) State(ctx context.Context) (phone.RadioState, error) {
	powered, err := r.getBool("Powered")
	if err != nil {
		if isMissingAdapter(err) {
			return phone.RadioUnsupported, nil
		}
		return phone.RadioUnknown, fmt.Errorf("read %s.Powered: %w", r.path, err)
	}
	if powered {
		return phone.RadioPoweredOn, nil
	}

	// PowerState is absent on older BlueZ
	if v, err := r.props.Get(r.path, adapterIface, "PowerState"); err == nil {
		if s, ok := v.Value().(string); ok {
			return radioStateFromPowerState(s), nil
		}
	}
	return phone.RadioPoweredOff, nil
}

func radioStateFromPowerState(s string) phone.RadioState {
	switch s {
	case powerStateOn:
		return phone.RadioPoweredOn
	case powerStateOffBlocked:
		// rfkill: the user or policy has blocked the radio
		return phone.RadioUnauthorized
	case powerStateOff, powerStateOffEnabling, powerStateOnDisabling:
		return phone.RadioPoweredOff
	default:
		return phone.RadioUnknown
	}
}

// CanEnable is true: BlueZ lets a privileged client set Powered
func (r *Radio) CanEnable() bool {
	return true
}

// Enable sets Adapter1.Powered and waits until the adapter reports it
func (r *Radio) Enable(ctx context.Context) error {
	logger.Info("BlueZ Radio", "📻 Powering on %s", r.path)
	if err := r.props.Set(r.path, adapterIface, "Powered", true); err != nil {
		return fmt.Errorf("set %s.Powered: %w", r.path, err)
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		if on, err := r.getBool("Powered"); err == nil && on {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SettingsURL has no deep link on Linux
func (r *Radio) SettingsURL(state phone.RadioState) string {
	return ""
}

func (r *Radio) getBool(prop string) (bool, error) {
	v, err := r.props.Get(r.path, adapterIface, prop)
	if err != nil {
		return false, err
	}
	b, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return b, nil
}

func isMissingAdapter(err error) bool {
	var name string
	var derr dbus.Error
	var pderr *dbus.Error
	switch {
	case errors.As(err, &derr):
		name = derr.Name
	case errors.As(err, &pderr):
		name = pderr.Name
	default:
		return false
	}
	switch name {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.InvalidArgs",
		"org.freedesktop.DBus.Error.ServiceUnknown":
		return true
	}
	return false
}
