package swift

import "github.com/user/hotspot-blue/wire"

// CBManagerState represents the current state of a CBCentralManager
// Matches iOS CoreBluetooth CBManagerState enum
type CBManagerState int

const (
	CBManagerStateUnknown      CBManagerState = 0 // State is unknown, cannot use Bluetooth yet
	CBManagerStateResetting    CBManagerState = 1 // Connection to the system service was momentarily lost, update imminent
	CBManagerStateUnsupported  CBManagerState = 2 // Platform doesn't support Bluetooth Low Energy
	CBManagerStateUnauthorized CBManagerState = 3 // App is not authorized to use Bluetooth Low Energy
	CBManagerStatePoweredOff   CBManagerState = 4 // Bluetooth is currently powered off
	CBManagerStatePoweredOn    CBManagerState = 5 // Bluetooth is currently powered on and available to use
)

// String returns the string representation of the CBManagerState
func (s CBManagerState) String() string {
	switch s {
	case CBManagerStateUnknown:
		return "unknown"
	case CBManagerStateResetting:
		return "resetting"
	case CBManagerStateUnsupported:
		return "unsupported"
	case CBManagerStateUnauthorized:
		return "unauthorized"
	case CBManagerStatePoweredOff:
		return "poweredOff"
	case CBManagerStatePoweredOn:
		return "poweredOn"
	default:
		return "unknown"
	}
}

func managerStateFromPower(p wire.PowerState) CBManagerState {
	switch p {
	case wire.PowerOn:
		return CBManagerStatePoweredOn
	case wire.PowerOff:
		return CBManagerStatePoweredOff
	case wire.PowerUnauthorized:
		return CBManagerStateUnauthorized
	case wire.PowerUnsupported:
		return CBManagerStateUnsupported
	default:
		return CBManagerStateUnknown
	}
}

// CBPeripheralState represents the connection state of a CBPeripheral
// Matches iOS CoreBluetooth CBPeripheralState enum
type CBPeripheralState int

const (
	CBPeripheralStateDisconnected  CBPeripheralState = 0 // Not connected to the central
	CBPeripheralStateConnecting    CBPeripheralState = 1 // Connection is being established
	CBPeripheralStateConnected     CBPeripheralState = 2 // Connected to the central
	CBPeripheralStateDisconnecting CBPeripheralState = 3 // Disconnection is in progress
)

// String returns the string representation of the CBPeripheralState
func (s CBPeripheralState) String() string {
	switch s {
	case CBPeripheralStateConnecting:
		return "connecting"
	case CBPeripheralStateConnected:
		return "connected"
	case CBPeripheralStateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Advertisement data dictionary keys, as delivered to
// centralManager(_:didDiscover:advertisementData:rssi:)
const (
	CBAdvertisementDataLocalNameKey        = "kCBAdvDataLocalName"
	CBAdvertisementDataServiceUUIDsKey     = "kCBAdvDataServiceUUIDs"
	CBAdvertisementDataManufacturerDataKey = "kCBAdvDataManufacturerData"
	CBAdvertisementDataTxPowerLevelKey     = "kCBAdvDataTxPowerLevel"
	CBAdvertisementDataIsConnectable       = "kCBAdvDataIsConnectable"
)
