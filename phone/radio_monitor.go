package phone

import (
	"context"
	"fmt"

	"github.com/user/hotspot-blue/logger"
)

// BluetoothOffAlert is shown when the radio has to be turned on by the user
var BluetoothOffAlert = Alert{
	TitleKey:   "hotspot_setup.pair.alert_ble_off.title",
	MessageKey: "hotspot_setup.pair.alert_ble_off.body",
	OKKey:      "generic.go_to_settings",
}

// RadioMonitor performs a one-shot check that the radio is powered on,
// trying the platform's remediation once when it is not.
type RadioMonitor struct {
	radio    RadioProvider
	prompter Prompter
	settings SettingsOpener
	prefix   string
}

// NewRadioMonitor creates a monitor. A nil prompter behaves like a user who
// cancels every dialog.
func NewRadioMonitor(radio RadioProvider, prompter Prompter, settings SettingsOpener, prefix string) *RadioMonitor {
	return &RadioMonitor{
		radio:    radio,
		prompter: prompter,
		settings: settings,
		prefix:   prefix + " Radio",
	}
}

// Ensure returns nil when the radio is on, ErrRadioUnavailable when it is
// unsupported or unauthorized, and ErrRadioOff otherwise.
func (m *RadioMonitor) Ensure(ctx context.Context) error {
	state, err := m.radio.State(ctx)
	if err != nil {
		return fmt.Errorf("%w: read radio state: %v", ErrRadioOff, err)
	}
	if state == RadioPoweredOn {
		return nil
	}

	logger.Info(m.prefix, "📴 Radio is %s", state)

	if state == RadioPoweredOff && m.radio.CanEnable() {
		if err := m.radio.Enable(ctx); err != nil {
			logger.Warn(m.prefix, "Enable request failed: %v", err)
			return fmt.Errorf("%w: enable: %v", ErrRadioOff, err)
		}
	} else if err := m.promptForSettings(ctx, state); err != nil {
		return err
	}

	// Callers re-check rather than trusting the remediation
	state, err = m.radio.State(ctx)
	if err != nil {
		return fmt.Errorf("%w: read radio state: %v", ErrRadioOff, err)
	}
	return classifyRadioState(state)
}

func (m *RadioMonitor) promptForSettings(ctx context.Context, state RadioState) error {
	if m.prompter == nil {
		return nil
	}
	accepted, err := m.prompter.ShowOKCancel(ctx, BluetoothOffAlert)
	if err != nil {
		return fmt.Errorf("%w: prompt: %v", ErrRadioOff, err)
	}
	if !accepted {
		logger.Info(m.prefix, "User declined Bluetooth settings prompt")
		return nil
	}

	url := m.radio.SettingsURL(state)
	if url == "" || m.settings == nil {
		return nil
	}
	logger.Info(m.prefix, "⚙️  Opening %s", url)
	if err := m.settings.OpenURL(ctx, url); err != nil {
		logger.Warn(m.prefix, "Failed to open settings: %v", err)
	}
	return nil
}

func classifyRadioState(state RadioState) error {
	switch state {
	case RadioPoweredOn:
		return nil
	case RadioUnsupported, RadioUnauthorized:
		return fmt.Errorf("%w: radio is %s", ErrRadioUnavailable, state)
	default:
		return fmt.Errorf("%w: radio is %s", ErrRadioOff, state)
	}
}
