package android

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/logger"
)

var errLinkClosed = errors.New("gatt link closed")

// link is one BluetoothGatt client. It is the gatt's callback and turns the
// discover/read callbacks into a blocking characteristic read.
type link struct {
	transport *Transport
	deviceID  string
	gatt      *kotlin.BluetoothGatt

	op sync.Mutex

	connected  chan int
	discovered chan int
	reads      chan int

	mu     sync.Mutex
	up     bool
	local  bool
	closed chan struct{}
	once   sync.Once
}

func newLink(t *Transport, deviceID string) *link {
	return &link{
		transport:  t,
		deviceID:   deviceID,
		connected:  make(chan int, 1),
		discovered: make(chan int, 1),
		reads:      make(chan int, 1),
		closed:     make(chan struct{}),
	}
}

func (l *link) DeviceID() string {
	return l.deviceID
}

// shutdown is the app-initiated teardown
func (l *link) shutdown() {
	l.mu.Lock()
	l.local = true
	l.mu.Unlock()

	l.gatt.Disconnect()
	l.gatt.Close()
	l.once.Do(func() { close(l.closed) })
}

// ReadCharacteristic discovers services and reads one characteristic
func (l *link) ReadCharacteristic(ctx context.Context, service, char string) ([]byte, error) {
	l.op.Lock()
	defer l.op.Unlock()

	svc := l.gatt.GetService(service)
	if svc == nil || svc.GetCharacteristic(char) == nil {
		if !l.gatt.DiscoverServices(service, char) {
			return nil, fmt.Errorf("discoverServices refused")
		}
		status, err := l.wait(ctx, l.discovered)
		if err != nil {
			return nil, err
		}
		if status != kotlin.GATT_SUCCESS {
			return nil, fmt.Errorf("onServicesDiscovered status %d", status)
		}
		if svc = l.gatt.GetService(service); svc == nil {
			return nil, fmt.Errorf("service %s not found", service)
		}
	}

	c := svc.GetCharacteristic(char)
	if c == nil {
		return nil, fmt.Errorf("characteristic %s not found", char)
	}
	if !l.gatt.ReadCharacteristic(c) {
		return nil, fmt.Errorf("readCharacteristic refused")
	}
	status, err := l.wait(ctx, l.reads)
	if err != nil {
		return nil, err
	}
	if status != kotlin.GATT_SUCCESS {
		return nil, fmt.Errorf("onCharacteristicRead status %d", status)
	}
	return append([]byte(nil), c.Value...), nil
}

func (l *link) wait(ctx context.Context, ch chan int) (int, error) {
	select {
	case status := <-ch:
		return status, nil
	case <-l.closed:
		return 0, errLinkClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func push(ch chan int, status int) {
	select {
	case <-ch:
	default:
	}
	ch <- status
}

// BluetoothGattCallback methods

func (l *link) OnConnectionStateChange(gatt *kotlin.BluetoothGatt, status int, newState int) {
	logger.Debug(l.transport.prefix, "onConnectionStateChange %s status=%d newState=%d", l.deviceID, status, newState)

	l.mu.Lock()
	wasUp := l.up
	local := l.local
	if newState == kotlin.STATE_CONNECTED {
		l.up = true
	} else {
		l.up = false
	}
	l.mu.Unlock()

	switch {
	case newState == kotlin.STATE_CONNECTED:
		push(l.connected, kotlin.GATT_SUCCESS)
	case !wasUp:
		// connect failed
		if status == kotlin.GATT_SUCCESS {
			status = kotlin.GATT_FAILURE
		}
		push(l.connected, status)
	case !local:
		l.once.Do(func() { close(l.closed) })
		gatt.Close()
		l.transport.remoteDisconnected(l)
	}
}

func (l *link) OnServicesDiscovered(gatt *kotlin.BluetoothGatt, status int) {
	push(l.discovered, status)
}

func (l *link) OnCharacteristicRead(gatt *kotlin.BluetoothGatt, characteristic *kotlin.BluetoothGattCharacteristic, status int) {
	push(l.reads, status)
}
