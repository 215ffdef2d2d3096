package swift

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/user/hotspot-blue/wire"
)

var errNotConnected = errors.New("peripheral not connected")

type CBCharacteristic struct {
	UUID    string
	Service *CBService
	Value   []byte
}

type CBService struct {
	UUID            string
	Characteristics []*CBCharacteristic
}

type CBPeripheralDelegate interface {
	DidDiscoverServices(peripheral *CBPeripheral, err error)
	DidDiscoverCharacteristics(peripheral *CBPeripheral, service *CBService, err error)
	DidUpdateValueForCharacteristic(peripheral *CBPeripheral, characteristic *CBCharacteristic, err error)
}

// CBPeripheral is a remote hotspot as seen by a CBCentralManager
type CBPeripheral struct {
	Delegate CBPeripheralDelegate
	UUID     string

	mu       sync.RWMutex
	name     string
	state    CBPeripheralState
	services []*CBService
	conn     *wire.Connection
	ctx      context.Context
	cancel   context.CancelFunc
}

// Name returns the last advertised local name
func (p *CBPeripheral) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *CBPeripheral) setName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// State returns the connection state
func (p *CBPeripheral) State() CBPeripheralState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *CBPeripheral) setState(s CBPeripheralState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// attach installs a new link and returns the one it replaced, if any
func (p *CBPeripheral) attach(conn *wire.Connection) *wire.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	old := p.conn
	if p.cancel != nil {
		p.cancel()
	}
	p.conn = conn
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.state = CBPeripheralStateConnected
	p.services = nil
	return old
}

// detach forgets the link and aborts GATT operations in flight
func (p *CBPeripheral) detach() *wire.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn := p.conn
	p.conn = nil
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state = CBPeripheralStateDisconnected
	return conn
}

func (p *CBPeripheral) link() (*wire.Connection, context.Context) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn, p.ctx
}

// Services returns the services discovered so far
func (p *CBPeripheral) Services() []*CBService {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*CBService(nil), p.services...)
}

// DiscoverServices discovers the listed services. The simulated GATT table
// is not enumerable, so the requested services are reported as found.
func (p *CBPeripheral) DiscoverServices(serviceUUIDs []string) {
	conn, _ := p.link()
	go func() {
		if conn == nil {
			p.notifyServices(errNotConnected)
			return
		}
		p.mu.Lock()
		for _, u := range serviceUUIDs {
			if p.serviceLocked(u) == nil {
				p.services = append(p.services, &CBService{UUID: u})
			}
		}
		p.mu.Unlock()
		p.notifyServices(nil)
	}()
}

func (p *CBPeripheral) notifyServices(err error) {
	if p.Delegate != nil {
		p.Delegate.DidDiscoverServices(p, err)
	}
}

// DiscoverCharacteristics discovers the listed characteristics of service
func (p *CBPeripheral) DiscoverCharacteristics(characteristicUUIDs []string, service *CBService) {
	conn, _ := p.link()
	go func() {
		var err error
		if conn == nil {
			err = errNotConnected
		} else {
			p.mu.Lock()
			for _, u := range characteristicUUIDs {
				if findCharacteristic(service, u) == nil {
					service.Characteristics = append(service.Characteristics, &CBCharacteristic{UUID: u, Service: service})
				}
			}
			p.mu.Unlock()
		}
		if p.Delegate != nil {
			p.Delegate.DidDiscoverCharacteristics(p, service, err)
		}
	}()
}

// ReadValue reads a characteristic. The result arrives through
// DidUpdateValueForCharacteristic.
func (p *CBPeripheral) ReadValue(characteristic *CBCharacteristic) {
	conn, ctx := p.link()
	go func() {
		if conn == nil {
			p.notifyValue(characteristic, errNotConnected)
			return
		}
		if characteristic == nil || characteristic.Service == nil {
			p.notifyValue(characteristic, errors.New("invalid characteristic"))
			return
		}
		value, err := conn.ReadCharacteristic(ctx, characteristic.Service.UUID, characteristic.UUID)
		if err == nil {
			p.mu.Lock()
			characteristic.Value = value
			p.mu.Unlock()
		}
		p.notifyValue(characteristic, err)
	}()
}

func (p *CBPeripheral) notifyValue(characteristic *CBCharacteristic, err error) {
	if p.Delegate != nil {
		p.Delegate.DidUpdateValueForCharacteristic(p, characteristic, err)
	}
}

// GetCharacteristic finds a discovered characteristic
func (p *CBPeripheral) GetCharacteristic(serviceUUID, charUUID string) *CBCharacteristic {
	p.mu.RLock()
	defer p.mu.RUnlock()
	svc := p.serviceLocked(serviceUUID)
	if svc == nil {
		return nil
	}
	return findCharacteristic(svc, charUUID)
}

// GetService finds a discovered service
func (p *CBPeripheral) GetService(serviceUUID string) *CBService {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.serviceLocked(serviceUUID)
}

func (p *CBPeripheral) serviceLocked(serviceUUID string) *CBService {
	for _, s := range p.services {
		if matchesUUID(s.UUID, serviceUUID) {
			return s
		}
	}
	return nil
}

func findCharacteristic(service *CBService, charUUID string) *CBCharacteristic {
	for _, c := range service.Characteristics {
		if matchesUUID(c.UUID, charUUID) {
			return c
		}
	}
	return nil
}

// matchesUUID compares UUIDs ignoring case and dashes
func matchesUUID(uuid1, uuid2 string) bool {
	norm := func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "-", ""))
	}
	return norm(uuid1) == norm(uuid2)
}
