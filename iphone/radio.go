package iphone

import (
	"context"
	"errors"

	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/swift"
)

// Settings deep links. iOS only allows apps to open their own settings page;
// the Bluetooth pane link is the private scheme hotspot apps rely on.
const (
	BluetoothSettingsURL = "App-Prefs:Bluetooth"
	AppSettingsURL       = "app-settings:"
)

// ErrEnableNotSupported is returned by Radio.Enable. Apps cannot power the
// radio on iOS.
var ErrEnableNotSupported = errors.New("iOS apps cannot enable Bluetooth")

// Radio reports CBCentralManager state as a phone.RadioProvider
type Radio struct {
	manager *swift.CBCentralManager
}

func (r *Radio) State(ctx context.Context) (phone.RadioState, error) {
	return radioState(r.manager.State()), nil
}

func (r *Radio) CanEnable() bool {
	return false
}

func (r *Radio) Enable(ctx context.Context) error {
	return ErrEnableNotSupported
}

// SettingsURL points at the Bluetooth pane when the radio is off and at the
// app's own page (where the Bluetooth grant lives) otherwise
func (r *Radio) SettingsURL(state phone.RadioState) string {
	if state == phone.RadioPoweredOff {
		return BluetoothSettingsURL
	}
	return AppSettingsURL
}

func radioState(s swift.CBManagerState) phone.RadioState {
	switch s {
	case swift.CBManagerStatePoweredOn:
		return phone.RadioPoweredOn
	case swift.CBManagerStatePoweredOff:
		return phone.RadioPoweredOff
	case swift.CBManagerStateUnauthorized:
		return phone.RadioUnauthorized
	case swift.CBManagerStateUnsupported:
		return phone.RadioUnsupported
	default:
		// unknown and resetting settle shortly; treat as not ready
		return phone.RadioUnknown
	}
}
