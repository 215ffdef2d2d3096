package kotlin

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/wire"
)

// BluetoothGatt status codes
const (
	GATT_SUCCESS              = 0
	GATT_READ_NOT_PERMITTED   = 0x02
	GATT_CONNECTION_TIMEOUT   = 0x08
	GATT_ERROR                = 0x85 // 133, the generic Android connect failure
	GATT_FAILURE              = 0x101
	GATT_CONNECTION_CANCELLED = 0x16 // local host terminated the link
)

// BluetoothProfile connection states
const (
	STATE_DISCONNECTED  = 0
	STATE_CONNECTING    = 1
	STATE_CONNECTED     = 2
	STATE_DISCONNECTING = 3
)

type BluetoothGattCallback interface {
	OnConnectionStateChange(gatt *BluetoothGatt, status int, newState int)
	OnServicesDiscovered(gatt *BluetoothGatt, status int)
	OnCharacteristicRead(gatt *BluetoothGatt, characteristic *BluetoothGattCharacteristic, status int)
}

type BluetoothGattService struct {
	UUID            string
	Characteristics []*BluetoothGattCharacteristic
}

// GetCharacteristic finds a characteristic of the service
func (s *BluetoothGattService) GetCharacteristic(uuid string) *BluetoothGattCharacteristic {
	for _, c := range s.Characteristics {
		if strings.EqualFold(c.UUID, uuid) {
			return c
		}
	}
	return nil
}

type BluetoothGattCharacteristic struct {
	UUID    string
	Service *BluetoothGattService
	Value   []byte
}

// BluetoothGatt is a client link to one remote device. Android allows a
// single outstanding GATT operation per link; ops issued while one is in
// flight are refused.
type BluetoothGatt struct {
	device   *BluetoothDevice
	callback BluetoothGattCallback
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.Mutex
	state    int
	conn     *wire.Connection
	services []*BluetoothGattService
	busy     bool
	closed   bool
}

// GetDevice returns the remote device
func (g *BluetoothGatt) GetDevice() *BluetoothDevice {
	return g.device
}

// ConnectionState returns one of the STATE_* profile constants
func (g *BluetoothGatt) ConnectionState() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func newBluetoothGatt(d *BluetoothDevice, callback BluetoothGattCallback) *BluetoothGatt {
	ctx, cancel := context.WithCancel(context.Background())
	return &BluetoothGatt{
		device:   d,
		callback: callback,
		ctx:      ctx,
		cancel:   cancel,
		state:    STATE_CONNECTING,
	}
}

func (g *BluetoothGatt) connect() {
	conn, err := g.device.adapter.radio.Connect(g.ctx, g.device.Address)

	g.mu.Lock()
	if g.state != STATE_CONNECTING {
		// disconnect() or close() ran first
		g.mu.Unlock()
		if err == nil {
			conn.Disconnect()
		}
		return
	}
	if err != nil {
		g.state = STATE_DISCONNECTED
		g.mu.Unlock()
		logger.Debug("BluetoothGatt", "connect %s failed: %v", g.device.Address, err)
		g.notifyState(GATT_ERROR, STATE_DISCONNECTED)
		return
	}
	g.conn = conn
	g.state = STATE_CONNECTED
	g.mu.Unlock()

	g.notifyState(GATT_SUCCESS, STATE_CONNECTED)
}

func (g *BluetoothGatt) notifyState(status, newState int) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if !closed && g.callback != nil {
		g.callback.OnConnectionStateChange(g, status, newState)
	}
}

// DiscoverServices populates the service list. The simulated GATT table is
// not enumerable, so the caller names the service and characteristics it
// expects and they are reported as found.
func (g *BluetoothGatt) DiscoverServices(serviceUUID string, characteristicUUIDs ...string) bool {
	g.mu.Lock()
	if g.conn == nil || g.busy {
		g.mu.Unlock()
		return false
	}
	g.busy = true
	svc := &BluetoothGattService{UUID: serviceUUID}
	for _, u := range characteristicUUIDs {
		svc.Characteristics = append(svc.Characteristics, &BluetoothGattCharacteristic{UUID: u, Service: svc})
	}
	g.services = []*BluetoothGattService{svc}
	g.mu.Unlock()

	go func() {
		g.mu.Lock()
		g.busy = false
		closed := g.closed
		g.mu.Unlock()
		if !closed && g.callback != nil {
			g.callback.OnServicesDiscovered(g, GATT_SUCCESS)
		}
	}()
	return true
}

// GetService returns a discovered service, nil before discovery
func (g *BluetoothGatt) GetService(uuid string) *BluetoothGattService {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range g.services {
		if strings.EqualFold(s.UUID, uuid) {
			return s
		}
	}
	return nil
}

// ReadCharacteristic queues a read. It returns false when the link is down
// or another operation is outstanding.
func (g *BluetoothGatt) ReadCharacteristic(characteristic *BluetoothGattCharacteristic) bool {
	if characteristic == nil || characteristic.Service == nil {
		return false
	}
	g.mu.Lock()
	conn := g.conn
	if conn == nil || g.busy {
		g.mu.Unlock()
		return false
	}
	g.busy = true
	g.mu.Unlock()

	go func() {
		value, err := conn.ReadCharacteristic(g.ctx, characteristic.Service.UUID, characteristic.UUID)
		status := GATT_SUCCESS
		if err != nil {
			status = GATT_READ_NOT_PERMITTED
			if !errors.Is(err, wire.ErrCharacteristicNotFound) {
				status = GATT_FAILURE
			}
		}

		g.mu.Lock()
		g.busy = false
		if err == nil {
			characteristic.Value = value
		}
		closed := g.closed
		g.mu.Unlock()

		if !closed && g.callback != nil {
			g.callback.OnCharacteristicRead(g, characteristic, status)
		}
	}()
	return true
}

// Disconnect tears down the link. A pending connect is cancelled. The
// callback receives STATE_DISCONNECTED unless Close was called.
func (g *BluetoothGatt) Disconnect() {
	g.mu.Lock()
	prev := g.state
	conn := g.conn
	g.conn = nil
	g.state = STATE_DISCONNECTED
	g.mu.Unlock()

	g.cancel()
	if conn != nil {
		conn.Disconnect()
	}
	if prev != STATE_DISCONNECTED {
		g.notifyState(GATT_SUCCESS, STATE_DISCONNECTED)
	}
}

// Close releases the client. No callbacks are delivered afterwards.
func (g *BluetoothGatt) Close() {
	g.mu.Lock()
	g.closed = true
	conn := g.conn
	g.conn = nil
	g.state = STATE_DISCONNECTED
	g.mu.Unlock()

	g.cancel()
	if conn != nil {
		conn.Disconnect()
	}
	g.device.adapter.unregisterGatt(g)
}

// remoteDisconnected handles a link dropped by the remote side or radio
func (g *BluetoothGatt) remoteDisconnected() {
	g.mu.Lock()
	if g.state != STATE_CONNECTED {
		g.mu.Unlock()
		return
	}
	g.conn = nil
	g.state = STATE_DISCONNECTED
	g.mu.Unlock()

	g.cancel()
	g.notifyState(GATT_CONNECTION_TIMEOUT, STATE_DISCONNECTED)
}
