package phone

import (
	"context"
)

// PermissionProvider is the OS location-permission API. Platforms where
// location is not a scan prerequisite report Required() == false.
type PermissionProvider interface {
	Required() bool
	QueryLocationPermission(ctx context.Context) (PermissionStatus, error)
	// RequestLocationPermission shows the OS permission dialog
	RequestLocationPermission(ctx context.Context) (PermissionStatus, error)
}

// RadioProvider is the OS Bluetooth radio API
type RadioProvider interface {
	State(ctx context.Context) (RadioState, error)
	// CanEnable reports whether Enable can power the radio without the user
	// visiting the OS settings.
	CanEnable() bool
	Enable(ctx context.Context) error
	// SettingsURL returns the deep link that lets the user fix the given state
	SettingsURL(state RadioState) string
}

// Connection is an established BLE link owned by the transport
type Connection interface {
	DeviceID() string
}

// Transport is the BLE transport.
//
// ScanForDevices blocks until ctx is done (returning nil or the context
// error) or the radio stops scanning on its own, in which case it returns
// ErrRadioLost. onDiscover may be called from any goroutine but never after
// ScanForDevices returns. Configure performs the vendor provisioning
// handshake on a live connection.
type Transport interface {
	ScanForDevices(ctx context.Context, serviceFilter string, onDiscover func(DiscoveredDevice)) error
	StopScan() error
	Connect(ctx context.Context, deviceID string) (Connection, error)
	Configure(ctx context.Context, conn Connection) (DeviceAddress, error)
	Disconnect(conn Connection) error
}

// DisconnectNotifier is implemented by transports that report links
// dropped by the remote side or the radio. The handler receives the
// Connection that was lost, as returned by Connect.
type DisconnectNotifier interface {
	SetDisconnectHandler(func(conn Connection))
}

// Alert is an OK/Cancel dialog. Keys are looked up by the host's
// translation layer.
type Alert struct {
	TitleKey   string
	MessageKey string
	OKKey      string
}

// Prompter shows an OK/Cancel dialog and reports whether the user accepted
type Prompter interface {
	ShowOKCancel(ctx context.Context, alert Alert) (bool, error)
}

// SettingsOpener deep-links into an OS settings surface. It returns once
// the user is back in the app.
type SettingsOpener interface {
	OpenURL(ctx context.Context, url string) error
}

// PrompterFunc adapts a function to Prompter
type PrompterFunc func(ctx context.Context, alert Alert) (bool, error)

func (f PrompterFunc) ShowOKCancel(ctx context.Context, alert Alert) (bool, error) {
	return f(ctx, alert)
}

// SettingsOpenerFunc adapts a function to SettingsOpener
type SettingsOpenerFunc func(ctx context.Context, url string) error

func (f SettingsOpenerFunc) OpenURL(ctx context.Context, url string) error {
	return f(ctx, url)
}

// Platform bundles the capability providers selected at startup
type Platform struct {
	Name        string
	Permissions PermissionProvider
	Radio       RadioProvider
	Transport   Transport
}
