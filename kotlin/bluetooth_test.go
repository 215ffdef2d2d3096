package kotlin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/user/hotspot-blue/onboard"
	"github.com/user/hotspot-blue/wire"
)

type testScanCallback struct {
	mu      sync.Mutex
	results []*ScanResult
	failed  []int
}

func (c *testScanCallback) OnScanResult(callbackType int, result *ScanResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

func (c *testScanCallback) OnScanFailed(errorCode int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, errorCode)
}

func (c *testScanCallback) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

type stateChange struct {
	status   int
	newState int
}

type testGattCallback struct {
	states chan stateChange
	reads  chan int
	disc   chan int
}

func newTestGattCallback() *testGattCallback {
	return &testGattCallback{
		states: make(chan stateChange, 8),
		reads:  make(chan int, 8),
		disc:   make(chan int, 8),
	}
}

func (c *testGattCallback) OnConnectionStateChange(gatt *BluetoothGatt, status int, newState int) {
	c.states <- stateChange{status, newState}
}

func (c *testGattCallback) OnServicesDiscovered(gatt *BluetoothGatt, status int) {
	c.disc <- status
}

func (c *testGattCallback) OnCharacteristicRead(gatt *BluetoothGatt, characteristic *BluetoothGattCharacteristic, status int) {
	c.reads <- status
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func newTestAdapter(t *testing.T) (*wire.Air, *wire.Central, *BluetoothAdapter) {
	t.Helper()
	air := wire.NewAir(wire.PerfectSimulationConfig())
	radio := air.NewCentral("android")
	adapter := NewBluetoothManager(radio).GetAdapter()
	if adapter == nil {
		t.Fatal("Expected an adapter for a supported radio")
	}
	return air, radio, adapter
}

func TestBluetoothManager_NoAdapterWhenUnsupported(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	radio := air.NewCentral("android")
	radio.SetPowerState(wire.PowerUnsupported)

	if NewBluetoothManager(radio).GetAdapter() != nil {
		t.Fatal("Expected nil adapter when Bluetooth is unsupported")
	}
	t.Logf("✅ Unsupported radio has no adapter")
}

func TestBluetoothAdapter_EnableBroadcastsStates(t *testing.T) {
	_, radio, adapter := newTestAdapter(t)
	radio.SetPowerState(wire.PowerOff)

	if adapter.GetState() != STATE_OFF {
		t.Fatalf("Expected STATE_OFF, got %d", adapter.GetState())
	}
	if adapter.GetBluetoothLeScanner() != nil {
		t.Fatal("Scanner should be nil while the adapter is off")
	}

	states := make(chan int, 4)
	unregister := adapter.RegisterStateReceiver(func(state int) { states <- state })
	defer unregister()

	if !adapter.Enable() {
		t.Fatal("Enable should start from STATE_OFF")
	}
	if got := recv(t, states, "STATE_TURNING_ON"); got != STATE_TURNING_ON {
		t.Fatalf("Expected STATE_TURNING_ON first, got %d", got)
	}
	if got := recv(t, states, "STATE_ON"); got != STATE_ON {
		t.Fatalf("Expected STATE_ON, got %d", got)
	}
	if !adapter.IsEnabled() {
		t.Fatal("Adapter should be enabled")
	}
	t.Logf("✅ Enable went TURNING_ON → ON")
}

func TestBluetoothAdapter_EnableRefusedWhenUnauthorized(t *testing.T) {
	_, radio, adapter := newTestAdapter(t)
	radio.SetPowerState(wire.PowerUnauthorized)

	if adapter.Enable() {
		t.Fatal("Enable should refuse an unauthorized radio")
	}
}

func TestBluetoothLeScanner_FilterAndScanRecord(t *testing.T) {
	air, _, adapter := newTestAdapter(t)

	h := onboard.NewSimulatedHotspot("Hotspot-7F", "ADDR-1")
	h.SetManufacturerData(0x0A12, []byte{1, 2})
	air.AddHotspot(h)
	air.AddHotspot(wire.NewHotspot("Headphones", "0000180d-0000-1000-8000-00805f9b34fb"))

	scanner := adapter.GetBluetoothLeScanner()
	cb := &testScanCallback{}
	scanner.StartScan([]ScanFilter{{ServiceUuid: onboard.ServiceUUID}}, ScanSettings{}, cb)

	deadline := time.Now().Add(2 * time.Second)
	for cb.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	scanner.StopScan(cb)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.results) == 0 {
		t.Fatal("Expected scan results")
	}
	for _, r := range cb.results {
		if r.Device.Address != h.ID {
			t.Fatalf("Filter let through %s", r.Device.Address)
		}
	}
	r := cb.results[0]
	if r.Device.GetName() != "Hotspot-7F" || r.ScanRecord.DeviceName != "Hotspot-7F" {
		t.Errorf("Unexpected name %q / %q", r.Device.GetName(), r.ScanRecord.DeviceName)
	}
	if md := r.ScanRecord.ManufacturerSpecificData[0x0A12]; len(md) != 2 {
		t.Errorf("Expected manufacturer data under company 0x0A12, got %v", r.ScanRecord.ManufacturerSpecificData)
	}
	t.Logf("✅ %d filtered results", len(cb.results))
}

func TestBluetoothLeScanner_DoubleStartFails(t *testing.T) {
	_, _, adapter := newTestAdapter(t)
	scanner := adapter.GetBluetoothLeScanner()
	cb := &testScanCallback{}

	scanner.StartScan(nil, ScanSettings{}, cb)
	scanner.StartScan(nil, ScanSettings{}, cb)
	scanner.StopScan(cb)

	if len(cb.failed) != 1 || cb.failed[0] != SCAN_FAILED_ALREADY_STARTED {
		t.Fatalf("Expected SCAN_FAILED_ALREADY_STARTED, got %v", cb.failed)
	}
}

func TestBluetoothGatt_ConnectDiscoverRead(t *testing.T) {
	air, _, adapter := newTestAdapter(t)
	h := onboard.NewSimulatedHotspot("Hotspot-1", "ONBOARD-XYZ")
	air.AddHotspot(h)

	cb := newTestGattCallback()
	gatt := adapter.GetRemoteDevice(h.ID).ConnectGatt(nil, false, cb)
	defer gatt.Close()

	if sc := recv(t, cb.states, "connect"); sc.status != GATT_SUCCESS || sc.newState != STATE_CONNECTED {
		t.Fatalf("Unexpected state change %+v", sc)
	}
	if !gatt.DiscoverServices(onboard.ServiceUUID, onboard.OnboardingAddressCharUUID) {
		t.Fatal("DiscoverServices refused")
	}
	if status := recv(t, cb.disc, "services"); status != GATT_SUCCESS {
		t.Fatalf("Service discovery status %d", status)
	}

	char := gatt.GetService(onboard.ServiceUUID).GetCharacteristic(onboard.OnboardingAddressCharUUID)
	if char == nil {
		t.Fatal("Onboarding characteristic missing after discovery")
	}
	if !gatt.ReadCharacteristic(char) {
		t.Fatal("ReadCharacteristic refused")
	}
	if gatt.ReadCharacteristic(char) {
		t.Error("Second read should be refused while one is outstanding")
	}
	if status := recv(t, cb.reads, "read"); status != GATT_SUCCESS {
		t.Fatalf("Read status %d", status)
	}
	if string(char.Value) != "ONBOARD-XYZ" {
		t.Fatalf("Read %q", char.Value)
	}
	t.Logf("✅ Read onboarding address %s", char.Value)
}

func TestBluetoothGatt_ConnectFailureReportsGattError(t *testing.T) {
	_, _, adapter := newTestAdapter(t)

	cb := newTestGattCallback()
	gatt := adapter.GetRemoteDevice("NOT-IN-RANGE").ConnectGatt(nil, false, cb)
	defer gatt.Close()

	sc := recv(t, cb.states, "connect failure")
	if sc.status != GATT_ERROR || sc.newState != STATE_DISCONNECTED {
		t.Fatalf("Expected status 133 disconnected, got %+v", sc)
	}
}

func TestBluetoothGatt_RemoteDropAndClose(t *testing.T) {
	air, _, adapter := newTestAdapter(t)
	h := onboard.NewSimulatedHotspot("Hotspot-1", "ADDR")
	air.AddHotspot(h)

	cb := newTestGattCallback()
	gatt := adapter.GetRemoteDevice(h.ID).ConnectGatt(nil, false, cb)
	recv(t, cb.states, "connect")

	air.DropLinks(h.ID)
	sc := recv(t, cb.states, "remote drop")
	if sc.newState != STATE_DISCONNECTED || sc.status == GATT_SUCCESS {
		t.Fatalf("Expected an error status on remote drop, got %+v", sc)
	}

	gatt.Close()
	gatt.Disconnect()
	select {
	case sc := <-cb.states:
		t.Fatalf("No callbacks expected after Close, got %+v", sc)
	case <-time.After(50 * time.Millisecond):
	}
	t.Logf("✅ Remote drop reported, silent after close")
}

func TestBluetoothGatt_DisconnectCancelsPendingConnect(t *testing.T) {
	air, radio, adapter := newTestAdapter(t)
	h := onboard.NewSimulatedHotspot("Slow", "ADDR")
	h.SetConnectBehavior(time.Second, nil)
	air.AddHotspot(h)

	cb := newTestGattCallback()
	gatt := adapter.GetRemoteDevice(h.ID).ConnectGatt(nil, false, cb)
	gatt.Disconnect()

	if sc := recv(t, cb.states, "disconnect"); sc.newState != STATE_DISCONNECTED {
		t.Fatalf("Expected disconnected, got %+v", sc)
	}
	time.Sleep(50 * time.Millisecond)
	if radio.Connections() != 0 {
		t.Fatalf("Cancelled connect left %d links open", radio.Connections())
	}
	gatt.Close()
}

func TestPermissionManager(t *testing.T) {
	asked := 0
	pm := NewPermissionManager(func(ctx context.Context, permission string) (bool, error) {
		asked++
		return permission == ACCESS_FINE_LOCATION, nil
	})

	if pm.CheckSelfPermission(ACCESS_FINE_LOCATION) != PERMISSION_DENIED {
		t.Fatal("Nothing should be granted initially")
	}
	results, err := pm.RequestPermissions(context.Background(), []string{ACCESS_FINE_LOCATION, BLUETOOTH_CONNECT})
	if err != nil {
		t.Fatalf("RequestPermissions: %v", err)
	}
	if results[0] != PERMISSION_GRANTED || results[1] != PERMISSION_DENIED {
		t.Fatalf("Unexpected results %v", results)
	}
	if !pm.ShouldShowRequestPermissionRationale(BLUETOOTH_CONNECT) {
		t.Error("Denied permission should show rationale")
	}

	pm.RequestPermissions(context.Background(), []string{ACCESS_FINE_LOCATION})
	if asked != 2 {
		t.Errorf("Granted permission should not prompt again, dialog shown %d times", asked)
	}
}
