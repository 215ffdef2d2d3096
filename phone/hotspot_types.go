package phone

import (
	"sort"
	"time"
)

// DeviceAddress is the stable business identity a hotspot reports once
// configured. It is unrelated to the per-session BLE identifier.
type DeviceAddress string

// DiscoveredDevice is one advertising hotspot seen during a scan window
type DiscoveredDevice struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	RSSI             int       `json:"rssi"`
	ServiceUUIDs     []string  `json:"service_uuids,omitempty"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	Raw              []byte    `json:"-"`
	LastSeen         time.Time `json:"last_seen"`
}

// Named reports whether the device may be offered for selection
func (d DiscoveredDevice) Named() bool {
	return d.Name != ""
}

// DiscoverySet holds the devices seen during one scan window, keyed by ID.
// It is not safe for concurrent use; the scanner guards it while filling.
type DiscoverySet struct {
	devices map[string]DiscoveredDevice
}

// NewDiscoverySet creates an empty set
func NewDiscoverySet() *DiscoverySet {
	return &DiscoverySet{devices: make(map[string]DiscoveredDevice)}
}

// Upsert records an advertisement. A repeat advertisement from the same ID
// updates the existing entry; fields missing from the newer advertisement
// keep their previous value.
func (s *DiscoverySet) Upsert(d DiscoveredDevice) {
	if d.ID == "" {
		return
	}
	if prev, ok := s.devices[d.ID]; ok {
		if d.Name == "" {
			d.Name = prev.Name
		}
		if len(d.ServiceUUIDs) == 0 {
			d.ServiceUUIDs = prev.ServiceUUIDs
		}
		if len(d.ManufacturerData) == 0 {
			d.ManufacturerData = prev.ManufacturerData
		}
	}
	s.devices[d.ID] = d
}

// Get returns the device with the given ID
func (s *DiscoverySet) Get(id string) (DiscoveredDevice, bool) {
	d, ok := s.devices[id]
	return d, ok
}

// Len returns the number of distinct devices
func (s *DiscoverySet) Len() int {
	return len(s.devices)
}

// Devices returns every device, sorted by ID
func (s *DiscoverySet) Devices() []DiscoveredDevice {
	out := make([]DiscoveredDevice, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Candidates returns the devices that can be presented to the user: named
// devices only, sorted by name then ID.
func (s *DiscoverySet) Candidates() []DiscoveredDevice {
	out := make([]DiscoveredDevice, 0, len(s.devices))
	for _, d := range s.devices {
		if d.Named() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clone returns an independent copy of the set
func (s *DiscoverySet) Clone() *DiscoverySet {
	c := NewDiscoverySet()
	for id, d := range s.devices {
		c.devices[id] = d
	}
	return c
}

// HotspotStatus is the connection status of the connected hotspot
type HotspotStatus string

const (
	StatusDisconnected HotspotStatus = "disconnected"
	StatusConnecting   HotspotStatus = "connecting"
	StatusConnected    HotspotStatus = "connected"
)

// HotspotSnapshot is one immutable value of ConnectedHotspotState
type HotspotSnapshot struct {
	Address   DeviceAddress `json:"address,omitempty"`
	Status    HotspotStatus `json:"status"`
	DeviceID  string        `json:"device_id,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ValidAddress returns the address only while the status is connected.
// Readers must not trust Address on its own.
func (s HotspotSnapshot) ValidAddress() (DeviceAddress, bool) {
	if s.Status != StatusConnected || s.Address == "" {
		return "", false
	}
	return s.Address, true
}

// PermissionStatus is the OS-reported location permission
type PermissionStatus int

const (
	PermissionUndetermined PermissionStatus = iota
	PermissionGranted
	PermissionDenied
)

func (p PermissionStatus) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "undetermined"
	}
}

// RadioState is the OS-reported Bluetooth radio power state
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioPoweredOn
	RadioPoweredOff
	RadioUnauthorized
	RadioUnsupported
)

func (r RadioState) String() string {
	switch r {
	case RadioPoweredOn:
		return "PoweredOn"
	case RadioPoweredOff:
		return "PoweredOff"
	case RadioUnauthorized:
		return "Unauthorized"
	case RadioUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}
