package iphone

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/user/hotspot-blue/swift"
)

var errLinkClosed = errors.New("link closed")

// link is one connected peripheral. It turns CBPeripheral's discover and
// read callbacks into a blocking characteristic read and is the
// peripheral's delegate while connected.
type link struct {
	transport  *Transport
	peripheral *swift.CBPeripheral

	// one GATT operation at a time
	op sync.Mutex

	services chan error
	chars    chan error
	values   chan error

	closeOnce sync.Once
	closed    chan struct{}
}

func newLink(t *Transport, p *swift.CBPeripheral) *link {
	l := &link{
		transport:  t,
		peripheral: p,
		services:   make(chan error, 1),
		chars:      make(chan error, 1),
		values:     make(chan error, 1),
		closed:     make(chan struct{}),
	}
	p.Delegate = l
	return l
}

func (l *link) DeviceID() string {
	return l.peripheral.UUID
}

func (l *link) close() {
	l.closeOnce.Do(func() { close(l.closed) })
}

// ReadCharacteristic discovers the service and characteristic as needed and
// reads its value
func (l *link) ReadCharacteristic(ctx context.Context, service, char string) ([]byte, error) {
	l.op.Lock()
	defer l.op.Unlock()

	svc := l.peripheral.GetService(service)
	if svc == nil {
		l.peripheral.DiscoverServices([]string{service})
		if err := l.wait(ctx, l.services); err != nil {
			return nil, fmt.Errorf("discover services: %w", err)
		}
		if svc = l.peripheral.GetService(service); svc == nil {
			return nil, fmt.Errorf("service %s not found", service)
		}
	}

	c := l.peripheral.GetCharacteristic(service, char)
	if c == nil {
		l.peripheral.DiscoverCharacteristics([]string{char}, svc)
		if err := l.wait(ctx, l.chars); err != nil {
			return nil, fmt.Errorf("discover characteristics: %w", err)
		}
		if c = l.peripheral.GetCharacteristic(service, char); c == nil {
			return nil, fmt.Errorf("characteristic %s not found", char)
		}
	}

	l.peripheral.ReadValue(c)
	if err := l.wait(ctx, l.values); err != nil {
		return nil, err
	}
	return append([]byte(nil), c.Value...), nil
}

func (l *link) wait(ctx context.Context, ch chan error) error {
	select {
	case err := <-ch:
		return err
	case <-l.closed:
		return errLinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver hands a callback result to the waiting operation. A result with
// no waiter (its operation timed out) replaces any stale one.
func deliver(ch chan error, err error) {
	select {
	case <-ch:
	default:
	}
	ch <- err
}

// CBPeripheralDelegate methods

func (l *link) DidDiscoverServices(peripheral *swift.CBPeripheral, err error) {
	deliver(l.services, err)
}

func (l *link) DidDiscoverCharacteristics(peripheral *swift.CBPeripheral, service *swift.CBService, err error) {
	deliver(l.chars, err)
}

func (l *link) DidUpdateValueForCharacteristic(peripheral *swift.CBPeripheral, characteristic *swift.CBCharacteristic, err error) {
	deliver(l.values, err)
}
