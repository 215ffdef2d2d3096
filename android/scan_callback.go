package android

import (
	"encoding/binary"
	"sync"

	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/phone"
)

// scanCallback implements kotlin.ScanCallback for one scan session
type scanCallback struct {
	onDiscover func(phone.DiscoveredDevice)

	mu     sync.Mutex
	closed bool

	lost     chan struct{}
	lostOnce sync.Once
	failed   chan int
}

func newScanCallback(onDiscover func(phone.DiscoveredDevice)) *scanCallback {
	return &scanCallback{
		onDiscover: onDiscover,
		lost:       make(chan struct{}),
		failed:     make(chan int, 1),
	}
}

func (c *scanCallback) lose() {
	c.lostOnce.Do(func() { close(c.lost) })
}

// close stops forwarding results
func (c *scanCallback) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *scanCallback) OnScanResult(callbackType int, result *kotlin.ScanResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	d := phone.DiscoveredDevice{
		ID:   result.Device.Address,
		Name: result.Device.GetName(),
		RSSI: result.Rssi,
	}
	if rec := result.ScanRecord; rec != nil {
		if rec.DeviceName != "" {
			d.Name = rec.DeviceName
		}
		d.ServiceUUIDs = rec.ServiceUuids
		d.Raw = rec.Bytes
		d.ManufacturerData = manufacturerData(rec.ManufacturerSpecificData)
	}
	c.onDiscover(d)
}

// manufacturerData flattens the SparseArray form back to company ID + data,
// matching what CoreBluetooth reports
func manufacturerData(m map[uint16][]byte) []byte {
	for id, data := range m {
		out := make([]byte, 2+len(data))
		binary.LittleEndian.PutUint16(out, id)
		copy(out[2:], data)
		return out
	}
	return nil
}

func (c *scanCallback) OnScanFailed(errorCode int) {
	select {
	case c.failed <- errorCode:
	default:
	}
}
