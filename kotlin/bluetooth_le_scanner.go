package kotlin

import (
	"sync"

	"github.com/user/hotspot-blue/wire"
)

// ScanCallback error codes
const (
	SCAN_FAILED_ALREADY_STARTED = 1
	SCAN_FAILED_INTERNAL_ERROR  = 3
)

// ScanSettings modes
const (
	SCAN_MODE_LOW_POWER   = 0
	SCAN_MODE_BALANCED    = 1
	SCAN_MODE_LOW_LATENCY = 2
)

// CALLBACK_TYPE_ALL_MATCHES is the only callback type the simulation reports
const CALLBACK_TYPE_ALL_MATCHES = 1

type ScanCallback interface {
	OnScanResult(callbackType int, result *ScanResult)
	OnScanFailed(errorCode int)
}

// ScanFilter matches advertisements by service UUID
type ScanFilter struct {
	ServiceUuid string
}

type ScanSettings struct {
	ScanMode int
}

// ScanRecord is the parsed advertisement plus scan response
type ScanRecord struct {
	DeviceName               string
	ServiceUuids             []string
	ManufacturerSpecificData map[uint16][]byte
	TxPowerLevel             int
	Bytes                    []byte
}

type ScanResult struct {
	Device     *BluetoothDevice
	Rssi       int
	ScanRecord *ScanRecord
}

type BluetoothLeScanner struct {
	adapter *BluetoothAdapter

	mu    sync.Mutex
	scans map[ScanCallback]*wire.Discovery
}

// StartScan starts a scan reporting to callback. Only the first filter is
// applied.
func (s *BluetoothLeScanner) StartScan(filters []ScanFilter, settings ScanSettings, callback ScanCallback) {
	s.mu.Lock()
	if s.scans == nil {
		s.scans = make(map[ScanCallback]*wire.Discovery)
	}
	if _, running := s.scans[callback]; running {
		s.mu.Unlock()
		callback.OnScanFailed(SCAN_FAILED_ALREADY_STARTED)
		return
	}
	s.mu.Unlock()

	filter := ""
	if len(filters) > 0 {
		filter = filters[0].ServiceUuid
	}

	d, err := s.adapter.radio.StartDiscovery(filter, func(adv wire.Advertisement) {
		device := s.adapter.GetRemoteDevice(adv.HotspotID)
		if adv.Fields.LocalName != "" {
			device.setName(adv.Fields.LocalName)
		}
		callback.OnScanResult(CALLBACK_TYPE_ALL_MATCHES, &ScanResult{
			Device:     device,
			Rssi:       adv.RSSI,
			ScanRecord: scanRecord(adv),
		})
	})
	if err != nil {
		callback.OnScanFailed(SCAN_FAILED_INTERNAL_ERROR)
		return
	}

	s.mu.Lock()
	s.scans[callback] = d
	s.mu.Unlock()
}

func scanRecord(adv wire.Advertisement) *ScanRecord {
	f := adv.Fields
	rec := &ScanRecord{
		DeviceName:   f.LocalName,
		ServiceUuids: f.ServiceUUIDs,
		TxPowerLevel: -2147483648, // Integer.MIN_VALUE when absent
		Bytes:        append(append([]byte(nil), adv.AdvData...), adv.ScanResponse...),
	}
	if f.TxPowerLevel != nil {
		rec.TxPowerLevel = int(*f.TxPowerLevel)
	}
	if len(f.ManufacturerData) > 0 {
		rec.ManufacturerSpecificData = map[uint16][]byte{f.CompanyID: f.ManufacturerData}
	}
	return rec
}

// StopScan stops the scan started with callback. No results arrive after it
// returns.
func (s *BluetoothLeScanner) StopScan(callback ScanCallback) {
	s.mu.Lock()
	d := s.scans[callback]
	delete(s.scans, callback)
	s.mu.Unlock()

	if d != nil {
		d.Stop()
	}
}
