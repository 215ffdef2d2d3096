package android

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/onboard"
	"github.com/user/hotspot-blue/phone"
)

// ErrNoAdapter is returned by transport calls on devices without Bluetooth
var ErrNoAdapter = errors.New("no bluetooth adapter")

// NewPlatform builds the Android capability providers. adapter is nil on
// devices without Bluetooth.
func NewPlatform(adapter *kotlin.BluetoothAdapter, perms *kotlin.PermissionManager) phone.Platform {
	return phone.Platform{
		Name:        "android",
		Permissions: &LocationPermission{perms: perms},
		Radio:       &Radio{adapter: adapter},
		Transport:   NewTransport(adapter),
	}
}

// Transport presents the BluetoothLeScanner and BluetoothGatt callback APIs
// as the blocking phone.Transport
type Transport struct {
	adapter      *kotlin.BluetoothAdapter
	configurator *onboard.Configurator
	prefix       string

	mu           sync.Mutex
	scanner      *kotlin.BluetoothLeScanner
	scan         *scanCallback
	links        map[string]*link
	onDisconnect func(phone.Connection)
}

// NewTransport creates a transport over adapter
func NewTransport(adapter *kotlin.BluetoothAdapter) *Transport {
	return &Transport{
		adapter:      adapter,
		configurator: onboard.NewConfigurator(),
		prefix:       "Android",
		links:        make(map[string]*link),
	}
}

// SetDisconnectHandler registers the callback for links dropped by the
// remote side or the radio
func (t *Transport) SetDisconnectHandler(fn func(phone.Connection)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = fn
}

// ScanForDevices scans until ctx is done, the adapter turns off, or the
// scanner reports a failure
func (t *Transport) ScanForDevices(ctx context.Context, serviceFilter string, onDiscover func(phone.DiscoveredDevice)) error {
	if t.adapter == nil {
		return fmt.Errorf("%w: %v", phone.ErrRadioLost, ErrNoAdapter)
	}
	scanner := t.adapter.GetBluetoothLeScanner()
	if scanner == nil {
		return fmt.Errorf("%w: adapter is off", phone.ErrRadioLost)
	}

	cb := newScanCallback(onDiscover)
	unregister := t.adapter.RegisterStateReceiver(func(state int) {
		if state != kotlin.STATE_ON {
			cb.lose()
		}
	})
	defer unregister()

	t.mu.Lock()
	t.scanner = scanner
	t.scan = cb
	t.mu.Unlock()

	var filters []kotlin.ScanFilter
	if serviceFilter != "" {
		filters = []kotlin.ScanFilter{{ServiceUuid: serviceFilter}}
	}
	logger.Debug(t.prefix, "🔍 startScan(%v)", filters)
	scanner.StartScan(filters, kotlin.ScanSettings{ScanMode: kotlin.SCAN_MODE_LOW_LATENCY}, cb)

	var err error
	select {
	case <-ctx.Done():
	case <-cb.lost:
		err = phone.ErrRadioLost
	case code := <-cb.failed:
		err = fmt.Errorf("scan failed with code %d", code)
	}

	t.stopScan(scanner, cb)
	return err
}

func (t *Transport) stopScan(scanner *kotlin.BluetoothLeScanner, cb *scanCallback) {
	scanner.StopScan(cb)
	cb.close()
	t.mu.Lock()
	if t.scan == cb {
		t.scan = nil
		t.scanner = nil
	}
	t.mu.Unlock()
}

// StopScan stops a running scan early
func (t *Transport) StopScan() error {
	t.mu.Lock()
	scanner, cb := t.scanner, t.scan
	t.mu.Unlock()
	if cb != nil {
		t.stopScan(scanner, cb)
	}
	return nil
}

// Connect calls connectGatt and waits for STATE_CONNECTED. Android's own
// connect timeout is not used; ctx bounds the wait.
func (t *Transport) Connect(ctx context.Context, deviceID string) (phone.Connection, error) {
	if t.adapter == nil {
		return nil, ErrNoAdapter
	}

	l := newLink(t, deviceID)
	l.gatt = t.adapter.GetRemoteDevice(deviceID).ConnectGatt(nil, false, l)

	select {
	case status := <-l.connected:
		if status != kotlin.GATT_SUCCESS {
			l.gatt.Close()
			return nil, fmt.Errorf("connectGatt status %d", status)
		}
	case <-ctx.Done():
		l.gatt.Close()
		return nil, ctx.Err()
	}

	t.mu.Lock()
	old := t.links[deviceID]
	t.links[deviceID] = l
	t.mu.Unlock()
	if old != nil {
		logger.Debug(t.prefix, "Replacing link to %s", deviceID)
	}
	return l, nil
}

// Configure runs the onboarding handshake over the link
func (t *Transport) Configure(ctx context.Context, conn phone.Connection) (phone.DeviceAddress, error) {
	l, ok := conn.(*link)
	if !ok {
		return "", fmt.Errorf("%w: foreign connection %T", phone.ErrConfigureRejected, conn)
	}
	return t.configurator.Configure(ctx, l)
}

// Disconnect disconnects and closes the gatt. It does not trigger the
// disconnect handler.
func (t *Transport) Disconnect(conn phone.Connection) error {
	l, ok := conn.(*link)
	if !ok {
		return fmt.Errorf("foreign connection %T", conn)
	}
	t.mu.Lock()
	if t.links[l.deviceID] == l {
		delete(t.links, l.deviceID)
	}
	t.mu.Unlock()

	l.shutdown()
	return nil
}

func (t *Transport) remoteDisconnected(l *link) {
	t.mu.Lock()
	current := t.links[l.deviceID] == l
	if current {
		delete(t.links, l.deviceID)
	}
	fn := t.onDisconnect
	t.mu.Unlock()

	if current && fn != nil {
		fn(l)
	}
}
