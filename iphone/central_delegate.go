package iphone

import (
	"context"
	"errors"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/swift"
)

// CBCentralManagerDelegate methods

func (t *Transport) DidUpdateState(central *swift.CBCentralManager) {
	state := central.State()
	logger.Debug(t.prefix, "📻 centralManagerDidUpdateState: %s", state)
	if state == swift.CBManagerStatePoweredOn {
		return
	}

	t.mu.Lock()
	scan := t.scan
	t.mu.Unlock()
	if scan != nil {
		scan.lose()
	}
}

func (t *Transport) DidDiscoverPeripheral(central *swift.CBCentralManager, peripheral *swift.CBPeripheral, advertisementData map[string]interface{}, rssi float64) {
	t.mu.Lock()
	scan := t.scan
	t.mu.Unlock()
	if scan == nil {
		return
	}

	d := phone.DiscoveredDevice{
		ID:   peripheral.UUID,
		Name: peripheral.Name(),
		RSSI: int(rssi),
	}
	if name, ok := advertisementData[swift.CBAdvertisementDataLocalNameKey].(string); ok {
		d.Name = name
	}
	if uuids, ok := advertisementData[swift.CBAdvertisementDataServiceUUIDsKey].([]string); ok {
		d.ServiceUUIDs = uuids
	}
	if md, ok := advertisementData[swift.CBAdvertisementDataManufacturerDataKey].([]byte); ok {
		d.ManufacturerData = md
	}
	logger.Trace(t.prefix, "📱 didDiscover %s (%q) RSSI %.0f", peripheral.UUID, d.Name, rssi)
	scan.onDiscover(d)
}

func (t *Transport) DidConnectPeripheral(central *swift.CBCentralManager, peripheral *swift.CBPeripheral) {
	logger.Debug(t.prefix, "✅ didConnect %s", peripheral.UUID)
	t.deliverConnect(peripheral.UUID, nil)
}

func (t *Transport) DidFailToConnectPeripheral(central *swift.CBCentralManager, peripheral *swift.CBPeripheral, err error) {
	if errors.Is(err, context.Canceled) {
		// The request was cancelled or replaced; its waiter is gone
		return
	}
	logger.Debug(t.prefix, "❌ didFailToConnect %s: %v", peripheral.UUID, err)
	t.deliverConnect(peripheral.UUID, err)
}

func (t *Transport) deliverConnect(identifier string, err error) {
	t.mu.Lock()
	done, ok := t.connecting[identifier]
	delete(t.connecting, identifier)
	t.mu.Unlock()
	if ok {
		done <- err
	}
}

// DidDisconnectPeripheral reports remote and radio drops to the disconnect
// handler. A nil error means the app cancelled the link itself.
func (t *Transport) DidDisconnectPeripheral(central *swift.CBCentralManager, peripheral *swift.CBPeripheral, err error) {
	if err == nil {
		return
	}
	logger.Info(t.prefix, "📴 didDisconnect %s: %v", peripheral.UUID, err)

	t.mu.Lock()
	l := t.links[peripheral.UUID]
	delete(t.links, peripheral.UUID)
	fn := t.onDisconnect
	t.mu.Unlock()

	if l == nil {
		return
	}
	l.close()
	if fn != nil {
		fn(l)
	}
}
