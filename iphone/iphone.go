package iphone

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/onboard"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/swift"
	"github.com/user/hotspot-blue/wire"
)

// NewPlatform builds the iOS capability providers over a radio. iOS does not
// gate BLE scanning on location, so there is no permission provider.
func NewPlatform(radio *wire.Central) phone.Platform {
	t := NewTransport(radio)
	return phone.Platform{
		Name:      "ios",
		Radio:     &Radio{manager: t.manager},
		Transport: t,
	}
}

var errConnectReplaced = errors.New("connect replaced by a newer request")

// Transport drives CoreBluetooth's callback API and presents it as the
// blocking phone.Transport. It is the CBCentralManager's delegate.
type Transport struct {
	manager      *swift.CBCentralManager
	configurator *onboard.Configurator
	prefix       string

	mu           sync.Mutex
	scan         *scanSession
	connecting   map[string]chan error
	links        map[string]*link
	onDisconnect func(phone.Connection)
}

type scanSession struct {
	onDiscover func(phone.DiscoveredDevice)
	lost       chan struct{}
	lostOnce   sync.Once
}

func (s *scanSession) lose() {
	s.lostOnce.Do(func() { close(s.lost) })
}

// NewTransport creates a transport with its own central manager
func NewTransport(radio *wire.Central) *Transport {
	t := &Transport{
		configurator: onboard.NewConfigurator(),
		prefix:       radio.Name() + " iOS",
		connecting:   make(map[string]chan error),
		links:        make(map[string]*link),
	}
	t.manager = swift.NewCBCentralManager(t, radio)
	return t
}

// Manager returns the underlying central manager
func (t *Transport) Manager() *swift.CBCentralManager {
	return t.manager
}

// SetDisconnectHandler registers the callback for links lost without the
// app asking
func (t *Transport) SetDisconnectHandler(fn func(phone.Connection)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnect = fn
}

// ScanForDevices scans until ctx is done or the manager leaves poweredOn
func (t *Transport) ScanForDevices(ctx context.Context, serviceFilter string, onDiscover func(phone.DiscoveredDevice)) error {
	if state := t.manager.State(); state != swift.CBManagerStatePoweredOn {
		return fmt.Errorf("%w: manager is %s", phone.ErrRadioLost, state)
	}

	session := &scanSession{onDiscover: onDiscover, lost: make(chan struct{})}
	t.mu.Lock()
	t.scan = session
	t.mu.Unlock()

	var services []string
	if serviceFilter != "" {
		services = []string{serviceFilter}
	}
	t.manager.ScanForPeripherals(services, nil)
	logger.Debug(t.prefix, "🔍 scanForPeripherals(%v)", services)

	var err error
	select {
	case <-ctx.Done():
	case <-session.lost:
		err = phone.ErrRadioLost
	}

	t.manager.StopScan()
	t.mu.Lock()
	if t.scan == session {
		t.scan = nil
	}
	t.mu.Unlock()
	return err
}

// StopScan ends a running scan early
func (t *Transport) StopScan() error {
	t.manager.StopScan()
	return nil
}

// Connect connects to a peripheral seen by a scan. CoreBluetooth connects
// never time out, so ctx cancellation cancels the request.
func (t *Transport) Connect(ctx context.Context, deviceID string) (phone.Connection, error) {
	p := t.manager.RetrievePeripheral(deviceID)
	if p == nil {
		return nil, fmt.Errorf("unknown peripheral %s", deviceID)
	}

	done := make(chan error, 1)
	t.mu.Lock()
	if prev, ok := t.connecting[deviceID]; ok {
		prev <- errConnectReplaced
	}
	t.connecting[deviceID] = done
	t.mu.Unlock()

	t.manager.Connect(p, nil)

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		t.mu.Lock()
		current := t.connecting[deviceID] == done
		if current {
			delete(t.connecting, deviceID)
		}
		t.mu.Unlock()
		if !current {
			// The outcome raced the deadline
			if err := <-done; err != nil {
				return nil, ctx.Err()
			}
		}
		t.manager.CancelPeripheralConnection(p)
		return nil, ctx.Err()
	}

	l := newLink(t, p)
	t.mu.Lock()
	t.links[deviceID] = l
	t.mu.Unlock()
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

// Disconnect cancels the peripheral connection. It does not trigger the
// disconnect handler.
func (t *Transport) Disconnect(conn phone.Connection) error {
	l, ok := conn.(*link)
	if !ok {
		return fmt.Errorf("foreign connection %T", conn)
	}
	t.mu.Lock()
	current := t.links[l.DeviceID()] == l
	if current {
		delete(t.links, l.DeviceID())
	}
	t.mu.Unlock()

	l.close()
	if current {
		t.manager.CancelPeripheralConnection(l.peripheral)
	}
	return nil
}
