package phone

import "time"

// Hotspot BLE service. Hotspots in onboarding mode advertise this UUID.
const HotspotServiceUUID = "0fda92b2-44a2-4af2-84f5-fa682baa2b8d"

const (
	DefaultSettleDelay      = 500 * time.Millisecond
	DefaultConnectTimeout   = 15 * time.Second
	DefaultConfigureTimeout = 30 * time.Second
)
