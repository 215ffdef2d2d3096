//go:build linux

package bluez

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/onboard"
	"github.com/user/hotspot-blue/phone"
)

// adapter is the part of *bluetooth.Adapter the transport drives
type adapter interface {
	Enable() error
	SetConnectHandler(func(device bluetooth.Device, connected bool))
	Scan(func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
	Connect(bluetooth.Address, bluetooth.ConnectionParams) (bluetooth.Device, error)
}

// stopRetryInterval paces StopScan while a cancelled scan has not started yet
const stopRetryInterval = 10 * time.Millisecond

// Transport is a BLE central on a BlueZ adapter through tinygo's bluetooth
// package. Device IDs are MAC addresses.
type Transport struct {
	adapter      adapter
	configurator *onboard.Configurator

	mu           sync.Mutex
	addresses    map[string]bluetooth.Address
	links        map[string]*link
	onDisconnect func(phone.Connection)
	enabled      bool
}

// NewTransport wraps adapter; nil uses bluetooth.DefaultAdapter
func NewTransport(a *bluetooth.Adapter) *Transport {
	if a == nil {
		a = bluetooth.DefaultAdapter
	}
	return newTransport(a)
}

func newTransport(a adapter) *Transport {
	return &Transport{
		adapter:      a,
		configurator: onboard.NewConfigurator(),
		addresses:    make(map[string]bluetooth.Address),
		links:        make(map[string]*link),
	}
}

func (t *Transport) enable() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		return nil
	}
	if err := t.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	t.adapter.SetConnectHandler(t.connectEvent)
	t.enabled = true
	return nil
}

// SetDisconnectHandler registers the callback for links lost without the
// app asking
func (t *Transport) SetDisconnectHandler(fn func(phone.Connection)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = fn
}

func (t *Transport) connectEvent(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	id := device.Address.String()

	t.mu.Lock()
	l, ok := t.links[id]
	delete(t.links, id)
	fn := t.onDisconnect
	t.mu.Unlock()

	if !ok || l.isClosing() {
		return
	}
	logger.Info("BlueZ", "📴 %s disconnected", id)
	l.close()
	if fn != nil {
		fn(l)
	}
}

// ScanForDevices scans until ctx is done. Adapter.Scan blocks, so ctx
// cancellation stops it from another goroutine.
func (t *Transport) ScanForDevices(ctx context.Context, serviceFilter string, onDiscover func(phone.DiscoveredDevice)) error {
	if err := t.enable(); err != nil {
		return fmt.Errorf("%w: %v", phone.ErrRadioLost, err)
	}

	var filter *bluetooth.UUID
	if serviceFilter != "" {
		u, err := bluetooth.ParseUUID(serviceFilter)
		if err != nil {
			return fmt.Errorf("service filter %q: %w", serviceFilter, err)
		}
		filter = &u
	}

	if ctx.Err() != nil {
		return nil
	}

	var mu sync.Mutex
	stopped := false
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
			return
		}
		// ctx may end before Adapter.Scan is running, so keep stopping
		// until Scan has returned
		tick := time.NewTicker(stopRetryInterval)
		defer tick.Stop()
		for {
			t.adapter.StopScan()
			select {
			case <-stop:
				return
			case <-tick.C:
			}
		}
	}()
	defer close(stop)

	err := t.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if filter != nil && !result.HasServiceUUID(*filter) {
			return
		}
		id := result.Address.String()
		t.mu.Lock()
		t.addresses[id] = result.Address
		t.mu.Unlock()

		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		onDiscover(discoveredDevice(id, result, filter))
	})

	mu.Lock()
	stopped = true
	mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", phone.ErrRadioLost, err)
	}
	// Scan returned without being asked to
	return phone.ErrRadioLost
}

func discoveredDevice(id string, result bluetooth.ScanResult, filter *bluetooth.UUID) phone.DiscoveredDevice {
	d := phone.DiscoveredDevice{
		ID:   id,
		Name: result.LocalName(),
		RSSI: int(result.RSSI),
	}
	if filter != nil {
		d.ServiceUUIDs = []string{strings.ToLower(filter.String())}
	}
	for _, md := range result.ManufacturerData() {
		out := make([]byte, 2+len(md.Data))
		binary.LittleEndian.PutUint16(out, md.CompanyID)
		copy(out[2:], md.Data)
		d.ManufacturerData = out
		break
	}
	return d
}

// StopScan stops a running scan
func (t *Transport) StopScan() error {
	t.mu.Lock()
	enabled := t.enabled
	t.mu.Unlock()
	if !enabled {
		return nil
	}
	return t.adapter.StopScan()
}

// Connect connects to a device seen by a scan. Adapter.Connect cannot be
// cancelled; a connect that completes after ctx is done is torn down.
func (t *Transport) Connect(ctx context.Context, deviceID string) (phone.Connection, error) {
	t.mu.Lock()
	addr, ok := t.addresses[deviceID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown device %s", deviceID)
	}

	type result struct {
		device bluetooth.Device
		err    error
	}
	done := make(chan result, 1)
	go func() {
		d, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		done <- result{d, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		l := &link{id: deviceID, device: r.device}
		t.mu.Lock()
		t.links[deviceID] = l
		t.mu.Unlock()
		return l, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				r.device.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// Configure runs the onboarding handshake over the link
func (t *Transport) Configure(ctx context.Context, conn phone.Connection) (phone.DeviceAddress, error) {
	l, ok := conn.(*link)
	if !ok {
		return "", fmt.Errorf("%w: foreign connection %T", phone.ErrConfigureRejected, conn)
	}
	return t.configurator.Configure(ctx, l)
}

// Disconnect closes the link without notifying the disconnect handler
func (t *Transport) Disconnect(conn phone.Connection) error {
	l, ok := conn.(*link)
	if !ok {
		return fmt.Errorf("foreign connection %T", conn)
	}
	l.markClosing()
	t.mu.Lock()
	if t.links[l.id] == l {
		delete(t.links, l.id)
	}
	t.mu.Unlock()
	l.close()
	return l.device.Disconnect()
}

type link struct {
	id     string
	device bluetooth.Device

	mu      sync.Mutex
	closing bool
	closed  bool
}

func (l *link) DeviceID() string {
	return l.id
}

func (l *link) markClosing() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closing = true
}

func (l *link) isClosing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closing
}

func (l *link) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// ReadCharacteristic discovers service and characteristic and reads the
// value. The D-Bus calls are not cancellable; ctx bounds the wait.
func (l *link) ReadCharacteristic(ctx context.Context, service, char string) ([]byte, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("link to %s closed", l.id)
	}

	svcUUID, err := bluetooth.ParseUUID(service)
	if err != nil {
		return nil, fmt.Errorf("service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(char)
	if err != nil {
		return nil, fmt.Errorf("characteristic uuid: %w", err)
	}

	type result struct {
		value []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := l.read(svcUUID, charUUID)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *link) read(svcUUID, charUUID bluetooth.UUID) ([]byte, error) {
	services, err := l.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("service %s not found", svcUUID)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("characteristic %s not found", charUUID)
	}

	buf := make([]byte, onboard.MaxAddressLen+1)
	n, err := chars[0].Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return buf[:n], nil
}
