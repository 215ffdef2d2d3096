package swift

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/wire"
)

// ErrPeripheralDisconnected is delivered to DidDisconnectPeripheral when the
// link was lost rather than cancelled by the app
var ErrPeripheralDisconnected = errors.New("the specified device has disconnected from us")

type CBCentralManagerDelegate interface {
	DidUpdateState(central *CBCentralManager)
	DidDiscoverPeripheral(central *CBCentralManager, peripheral *CBPeripheral, advertisementData map[string]interface{}, rssi float64)
	DidConnectPeripheral(central *CBCentralManager, peripheral *CBPeripheral)
	DidFailToConnectPeripheral(central *CBCentralManager, peripheral *CBPeripheral, err error)
	DidDisconnectPeripheral(central *CBCentralManager, peripheral *CBPeripheral, err error)
}

// CBCentralManager mirrors CoreBluetooth's central role over a simulated
// radio. Delegate callbacks arrive on radio goroutines.
type CBCentralManager struct {
	Delegate CBCentralManagerDelegate

	radio *wire.Central

	mu          sync.Mutex
	discovery   *wire.Discovery
	peripherals map[string]*CBPeripheral   // identifier -> peripheral seen by this manager
	pending     map[string]*pendingConnect // identifier -> pending connect
}

type pendingConnect struct {
	cancel context.CancelFunc
}

// NewCBCentralManager creates a manager over a central radio
func NewCBCentralManager(delegate CBCentralManagerDelegate, radio *wire.Central) *CBCentralManager {
	cm := &CBCentralManager{
		Delegate:    delegate,
		radio:       radio,
		peripherals: make(map[string]*CBPeripheral),
		pending:     make(map[string]*pendingConnect),
	}

	radio.SetPowerHandler(func(wire.PowerState) {
		if cm.State() != CBManagerStatePoweredOn {
			// iOS ends scans silently when the radio goes away
			cm.StopScan()
		}
		if cm.Delegate != nil {
			cm.Delegate.DidUpdateState(cm)
		}
	})

	radio.SetDisconnectHandler(func(identifier string) {
		p := cm.RetrievePeripheral(identifier)
		if p == nil {
			return
		}
		p.detach()
		if cm.Delegate != nil {
			cm.Delegate.DidDisconnectPeripheral(cm, p, ErrPeripheralDisconnected)
		}
	})

	return cm
}

// State returns the manager state derived from the radio power
func (c *CBCentralManager) State() CBManagerState {
	return managerStateFromPower(c.radio.PowerState())
}

// IsScanning reports whether a scan is running
func (c *CBCentralManager) IsScanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discovery != nil
}

// RetrievePeripheral returns a peripheral this manager has seen
func (c *CBCentralManager) RetrievePeripheral(identifier string) *CBPeripheral {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peripherals[identifier]
}

func (c *CBCentralManager) peripheral(identifier string) *CBPeripheral {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peripherals[identifier]
	if !ok {
		p = &CBPeripheral{UUID: identifier}
		c.peripherals[identifier] = p
	}
	return p
}

// ScanForPeripherals starts scanning. Only the first service UUID is used
// as a filter. Calling it while not powered on is API misuse and is ignored,
// as CoreBluetooth does.
func (c *CBCentralManager) ScanForPeripherals(withServices []string, options map[string]interface{}) {
	if state := c.State(); state != CBManagerStatePoweredOn {
		logger.Warn("CBCentralManager", "API MISUSE: can only accept this command while in the powered on state (%s)", state)
		return
	}

	filter := ""
	if len(withServices) > 0 {
		filter = withServices[0]
	}

	c.StopScan()
	d, err := c.radio.StartDiscovery(filter, func(adv wire.Advertisement) {
		p := c.peripheral(adv.HotspotID)
		if adv.Fields.LocalName != "" {
			p.setName(adv.Fields.LocalName)
		}
		if c.Delegate != nil {
			c.Delegate.DidDiscoverPeripheral(c, p, advertisementData(adv), float64(adv.RSSI))
		}
	})
	if err != nil {
		logger.Warn("CBCentralManager", "Scan failed to start: %v", err)
		return
	}

	c.mu.Lock()
	c.discovery = d
	c.mu.Unlock()
}

func advertisementData(adv wire.Advertisement) map[string]interface{} {
	data := map[string]interface{}{
		CBAdvertisementDataIsConnectable: true,
	}
	f := adv.Fields
	if f.LocalName != "" {
		data[CBAdvertisementDataLocalNameKey] = f.LocalName
	}
	if len(f.ServiceUUIDs) > 0 {
		data[CBAdvertisementDataServiceUUIDsKey] = f.ServiceUUIDs
	}
	if len(f.ManufacturerData) > 0 {
		// CoreBluetooth includes the company identifier in the data
		md := make([]byte, 2+len(f.ManufacturerData))
		binary.LittleEndian.PutUint16(md, f.CompanyID)
		copy(md[2:], f.ManufacturerData)
		data[CBAdvertisementDataManufacturerDataKey] = md
	}
	if f.TxPowerLevel != nil {
		data[CBAdvertisementDataTxPowerLevelKey] = int(*f.TxPowerLevel)
	}
	return data
}

// StopScan stops scanning. No discovery callbacks arrive after it returns.
func (c *CBCentralManager) StopScan() {
	c.mu.Lock()
	d := c.discovery
	c.discovery = nil
	c.mu.Unlock()

	if d != nil {
		d.Stop()
	}
}

// Connect requests a connection. iOS connection requests do not time out;
// cancel them with CancelPeripheralConnection.
func (c *CBCentralManager) Connect(peripheral *CBPeripheral, options map[string]interface{}) {
	ctx, cancel := context.WithCancel(context.Background())
	pc := &pendingConnect{cancel: cancel}

	c.mu.Lock()
	if prev, ok := c.pending[peripheral.UUID]; ok {
		prev.cancel()
	}
	c.pending[peripheral.UUID] = pc
	c.mu.Unlock()

	peripheral.setState(CBPeripheralStateConnecting)

	go func() {
		defer cancel()
		conn, err := c.radio.Connect(ctx, peripheral.UUID)

		var replaced *wire.Connection
		c.mu.Lock()
		cancelled := c.pending[peripheral.UUID] != pc
		if !cancelled {
			delete(c.pending, peripheral.UUID)
			if err == nil {
				replaced = peripheral.attach(conn)
			}
		}
		c.mu.Unlock()

		if replaced != nil && replaced != conn {
			replaced.Disconnect()
		}

		if err == nil && cancelled {
			conn.Disconnect()
			err = context.Canceled
		}
		if err != nil {
			peripheral.setState(CBPeripheralStateDisconnected)
			if c.Delegate != nil {
				c.Delegate.DidFailToConnectPeripheral(c, peripheral, err)
			}
			return
		}

		if c.Delegate != nil {
			c.Delegate.DidConnectPeripheral(c, peripheral)
		}
	}()
}

// CancelPeripheralConnection cancels a pending connection or disconnects
// an established one
func (c *CBCentralManager) CancelPeripheralConnection(peripheral *CBPeripheral) {
	c.mu.Lock()
	pc, pending := c.pending[peripheral.UUID]
	delete(c.pending, peripheral.UUID)
	c.mu.Unlock()

	if pending {
		pc.cancel()
	}

	if conn := peripheral.detach(); conn != nil {
		peripheral.setState(CBPeripheralStateDisconnecting)
		conn.Disconnect()
		peripheral.setState(CBPeripheralStateDisconnected)
		if c.Delegate != nil {
			c.Delegate.DidDisconnectPeripheral(c, peripheral, nil)
		}
	}
}
