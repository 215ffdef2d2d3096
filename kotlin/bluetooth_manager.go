package kotlin

import (
	"sync"
	"time"

	"github.com/user/hotspot-blue/wire"
)

// BluetoothAdapter states (BluetoothAdapter.STATE_*)
const (
	STATE_OFF         = 10
	STATE_TURNING_ON  = 11
	STATE_ON          = 12
	STATE_TURNING_OFF = 13
)

// Time the simulated adapter spends in STATE_TURNING_ON
const enableDelay = 50 * time.Millisecond

type BluetoothManager struct {
	adapter *BluetoothAdapter
}

// NewBluetoothManager wraps a simulated radio. A radio reporting
// unsupported has no adapter, as on devices without Bluetooth.
func NewBluetoothManager(radio *wire.Central) *BluetoothManager {
	m := &BluetoothManager{}
	if radio.PowerState() != wire.PowerUnsupported {
		m.adapter = newBluetoothAdapter(radio)
	}
	return m
}

// GetAdapter returns the default adapter, nil when Bluetooth is unsupported
func (m *BluetoothManager) GetAdapter() *BluetoothAdapter {
	return m.adapter
}

type BluetoothAdapter struct {
	radio   *wire.Central
	scanner *BluetoothLeScanner

	mu        sync.Mutex
	turningOn bool
	receivers []func(state int)
	devices   map[string]*BluetoothDevice
	gatts     map[string]*BluetoothGatt
}

func newBluetoothAdapter(radio *wire.Central) *BluetoothAdapter {
	a := &BluetoothAdapter{
		radio:   radio,
		devices: make(map[string]*BluetoothDevice),
		gatts:   make(map[string]*BluetoothGatt),
	}
	a.scanner = &BluetoothLeScanner{adapter: a}

	radio.SetPowerHandler(func(wire.PowerState) {
		a.mu.Lock()
		a.turningOn = false
		a.mu.Unlock()
		a.broadcast(a.GetState())
	})
	radio.SetDisconnectHandler(func(address string) {
		a.mu.Lock()
		gatt := a.gatts[address]
		a.mu.Unlock()
		if gatt != nil {
			gatt.remoteDisconnected()
		}
	})
	return a
}

// GetState returns one of the STATE_* constants
func (a *BluetoothAdapter) GetState() int {
	a.mu.Lock()
	turningOn := a.turningOn
	a.mu.Unlock()
	if turningOn {
		return STATE_TURNING_ON
	}
	if a.radio.PowerState() == wire.PowerOn {
		return STATE_ON
	}
	return STATE_OFF
}

// IsEnabled reports whether the adapter is on
func (a *BluetoothAdapter) IsEnabled() bool {
	return a.GetState() == STATE_ON
}

// Enable turns the adapter on without user interaction. It returns false
// when the request cannot be started; completion is reported through
// RegisterStateReceiver.
func (a *BluetoothAdapter) Enable() bool {
	switch a.radio.PowerState() {
	case wire.PowerOn:
		return true
	case wire.PowerOff:
	default:
		return false
	}

	a.mu.Lock()
	if a.turningOn {
		a.mu.Unlock()
		return true
	}
	a.turningOn = true
	a.mu.Unlock()
	a.broadcast(STATE_TURNING_ON)

	go func() {
		time.Sleep(enableDelay)
		a.radio.SetPowerState(wire.PowerOn)
	}()
	return true
}

// Disable turns the adapter off
func (a *BluetoothAdapter) Disable() bool {
	if a.radio.PowerState() != wire.PowerOn {
		return false
	}
	a.broadcast(STATE_TURNING_OFF)
	a.radio.SetPowerState(wire.PowerOff)
	return true
}

// RegisterStateReceiver subscribes to ACTION_STATE_CHANGED broadcasts and
// returns a function that unregisters it.
func (a *BluetoothAdapter) RegisterStateReceiver(fn func(state int)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.receivers = append(a.receivers, fn)
	idx := len(a.receivers) - 1
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.receivers[idx] = nil
	}
}

func (a *BluetoothAdapter) broadcast(state int) {
	a.mu.Lock()
	receivers := append([]func(int){}, a.receivers...)
	a.mu.Unlock()
	for _, fn := range receivers {
		if fn != nil {
			fn(state)
		}
	}
}

func (a *BluetoothAdapter) GetBluetoothLeScanner() *BluetoothLeScanner {
	if !a.IsEnabled() {
		// Android returns null while the adapter is off
		return nil
	}
	return a.scanner
}

// GetRemoteDevice returns the device object for an address
func (a *BluetoothAdapter) GetRemoteDevice(address string) *BluetoothDevice {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.devices[address]
	if !ok {
		d = &BluetoothDevice{Address: address, adapter: a}
		a.devices[address] = d
	}
	return d
}

func (a *BluetoothAdapter) registerGatt(g *BluetoothGatt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gatts[g.device.Address] = g
}

func (a *BluetoothAdapter) unregisterGatt(g *BluetoothGatt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gatts[g.device.Address] == g {
		delete(a.gatts, g.device.Address)
	}
}
