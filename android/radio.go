package android

import (
	"context"
	"fmt"

	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/phone"
)

// BluetoothSettingsURL is Settings.ACTION_BLUETOOTH_SETTINGS
const BluetoothSettingsURL = "android.settings.BLUETOOTH_SETTINGS"

// Radio reports BluetoothAdapter state as a phone.RadioProvider
type Radio struct {
	adapter *kotlin.BluetoothAdapter
}

func (r *Radio) State(ctx context.Context) (phone.RadioState, error) {
	if r.adapter == nil {
		return phone.RadioUnsupported, nil
	}
	switch r.adapter.GetState() {
	case kotlin.STATE_ON:
		return phone.RadioPoweredOn, nil
	case kotlin.STATE_OFF, kotlin.STATE_TURNING_ON, kotlin.STATE_TURNING_OFF:
		return phone.RadioPoweredOff, nil
	default:
		return phone.RadioUnknown, nil
	}
}

// CanEnable is true whenever an adapter exists
func (r *Radio) CanEnable() bool {
	return r.adapter != nil
}

// Enable requests the adapter on and waits for STATE_ON
func (r *Radio) Enable(ctx context.Context) error {
	if r.adapter == nil {
		return ErrNoAdapter
	}

	on := make(chan struct{}, 1)
	unregister := r.adapter.RegisterStateReceiver(func(state int) {
		if state == kotlin.STATE_ON {
			select {
			case on <- struct{}{}:
			default:
			}
		}
	})
	defer unregister()

	if r.adapter.IsEnabled() {
		return nil
	}
	logger.Info("Android Radio", "📻 BluetoothAdapter.enable()")
	if !r.adapter.Enable() {
		return fmt.Errorf("BluetoothAdapter.enable() refused")
	}

	select {
	case <-on:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Radio) SettingsURL(state phone.RadioState) string {
	return BluetoothSettingsURL
}
