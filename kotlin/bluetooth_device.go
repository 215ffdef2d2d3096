package kotlin

import (
	"sync"

	"github.com/user/hotspot-blue/logger"
)

type BluetoothDevice struct {
	Address string

	adapter *BluetoothAdapter
	mu      sync.RWMutex
	name    string
}

// GetName returns the name from the last scan record, empty if none
func (d *BluetoothDevice) GetName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

func (d *BluetoothDevice) setName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.name = name
}

// ConnectGatt starts connecting and returns immediately. The outcome is
// reported through OnConnectionStateChange. autoConnect is accepted for
// signature compatibility; the simulated stack always connects directly.
func (d *BluetoothDevice) ConnectGatt(context interface{}, autoConnect bool, callback BluetoothGattCallback) *BluetoothGatt {
	g := newBluetoothGatt(d, callback)
	d.adapter.registerGatt(g)
	logger.Debug("BluetoothDevice", "connectGatt %s", d.Address)
	go g.connect()
	return g
}
