package wire

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/hotspot-blue/wire/advertising"
)

// Hotspot is a simulated hotspot advertising its onboarding service.
//
// ID is the per-session BLE identifier a phone sees. It is random, like the
// identifiers CoreBluetooth hands out, and unrelated to the address the
// hotspot reports once configured.
type Hotspot struct {
	ID string

	mu               sync.RWMutex
	name             string
	serviceUUIDs     []string
	companyID        uint16
	manufacturerData []byte
	txPower          int8
	distance         float64
	advertising      bool
	characteristics  map[string][]byte

	connectDelay time.Duration
	connectErr   error
	readDelay    time.Duration
	readErr      error
}

// NewHotspot creates an advertising hotspot. An empty name advertises
// without a local name.
func NewHotspot(name string, serviceUUIDs ...string) *Hotspot {
	return &Hotspot{
		ID:              strings.ToUpper(uuid.New().String()),
		name:            name,
		serviceUUIDs:    serviceUUIDs,
		txPower:         -4,
		distance:        2,
		advertising:     true,
		characteristics: make(map[string][]byte),
	}
}

func charKey(service, char string) string {
	return strings.ToLower(service) + "/" + strings.ToLower(char)
}

// Name returns the advertised local name
func (h *Hotspot) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.name
}

// SetName changes the advertised local name
func (h *Hotspot) SetName(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.name = name
}

// SetManufacturerData sets the manufacturer specific AD structure
func (h *Hotspot) SetManufacturerData(companyID uint16, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.companyID = companyID
	h.manufacturerData = append([]byte(nil), data...)
}

// SetDistance sets the distance in metres used for RSSI
func (h *Hotspot) SetDistance(metres float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.distance = metres
}

// Distance returns the distance in metres
func (h *Hotspot) Distance() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.distance
}

// SetAdvertising starts or stops advertising. A hotspot that is not
// advertising cannot be discovered or connected to.
func (h *Hotspot) SetAdvertising(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.advertising = on
}

// Advertising reports whether the hotspot is advertising
func (h *Hotspot) Advertising() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.advertising
}

// SetCharacteristic sets the value served for a characteristic
func (h *Hotspot) SetCharacteristic(service, char string, value []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.characteristics[charKey(service, char)] = append([]byte(nil), value...)
}

func (h *Hotspot) characteristic(service, char string) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.characteristics[charKey(service, char)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// SetConnectBehavior adds delay to every connect and, with a non-nil err,
// refuses it
func (h *Hotspot) SetConnectBehavior(delay time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectDelay = delay
	h.connectErr = err
}

// SetReadBehavior adds delay to every characteristic read and, with a
// non-nil err, fails it
func (h *Hotspot) SetReadBehavior(delay time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readDelay = delay
	h.readErr = err
}

func (h *Hotspot) connectBehavior() (time.Duration, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connectDelay, h.connectErr
}

func (h *Hotspot) readBehavior() (time.Duration, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readDelay, h.readErr
}

// AdvertisingPayload builds the advertising and scan response payloads.
// Service UUIDs and TX power go in the advertisement; the name and
// manufacturer data go in the scan response.
func (h *Hotspot) AdvertisingPayload() ([]byte, []byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	adv := []advertising.ADStructure{
		advertising.NewFlagsAD(advertising.FlagLEGeneralDiscoverableMode | advertising.FlagBREDRNotSupported),
	}
	if len(h.serviceUUIDs) > 0 {
		svc, err := advertising.NewComplete128BitServiceUUIDsAD(h.serviceUUIDs)
		if err != nil {
			return nil, nil, err
		}
		adv = append(adv, svc)
	}
	adv = append(adv, advertising.NewTxPowerLevelAD(h.txPower))

	var scanResp []advertising.ADStructure
	if h.name != "" {
		scanResp = append(scanResp, advertising.NewCompleteLocalNameAD(h.name))
	}
	if len(h.manufacturerData) > 0 {
		scanResp = append(scanResp, advertising.NewManufacturerSpecificDataAD(h.companyID, h.manufacturerData))
	}

	advData, err := advertising.EncodeADStructures(adv)
	if err != nil {
		return nil, nil, err
	}
	scanData, err := advertising.EncodeADStructures(scanResp)
	if err != nil {
		return nil, nil, err
	}
	return advData, scanData, nil
}
