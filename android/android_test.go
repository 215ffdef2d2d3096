package android

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/onboard"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/wire"
)

func testOptions() phone.Options {
	return phone.Options{
		ScanDuration:     100 * time.Millisecond,
		SettleDelay:      10 * time.Millisecond,
		ConnectTimeout:   time.Second,
		ConfigureTimeout: time.Second,
	}
}

func allowAll(ctx context.Context, permission string) (bool, error) {
	return true, nil
}

func denyAll(ctx context.Context, permission string) (bool, error) {
	return false, nil
}

func newAdapter(t *testing.T, air *wire.Air) (*wire.Central, *kotlin.BluetoothAdapter) {
	t.Helper()
	radio := air.NewCentral("android")
	adapter := kotlin.NewBluetoothManager(radio).GetAdapter()
	if adapter == nil {
		t.Fatal("Expected an adapter")
	}
	return radio, adapter
}

func TestAndroidFlowConnectsAndConfigures(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	h := onboard.NewSimulatedHotspot("Hotspot-C3", "HS-00C3")
	air.AddHotspot(h)
	_, adapter := newAdapter(t, air)

	p := NewPlatform(adapter, kotlin.NewPermissionManager(allowAll))
	m := phone.NewConnectionManager(p, nil, testOptions())
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	a, err := m.Select(h.ID)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	addr, err := a.Wait(ctx)
	if err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if addr != "HS-00C3" {
		t.Fatalf("Expected HS-00C3, got %s", addr)
	}
	t.Logf("✅ Android flow configured %s", addr)
}

func TestAndroidPermissionDeniedHaltsFlow(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	air.AddHotspot(onboard.NewSimulatedHotspot("Hotspot", "HS"))
	_, adapter := newAdapter(t, air)

	m := phone.NewConnectionManager(NewPlatform(adapter, kotlin.NewPermissionManager(denyAll)), nil, testOptions())
	defer m.Close()

	err := m.Start(context.Background())
	if !errors.Is(err, phone.ErrPermissionDenied) {
		t.Fatalf("Expected ErrPermissionDenied, got %v", err)
	}
	if m.State().Step != phone.StepFailed {
		t.Fatalf("Expected failed step, got %s", m.State().Step)
	}
	if m.DiscoverySet() != nil {
		t.Fatal("No scan should have run")
	}
}

func TestAndroidEnablesRadioWithoutPrompt(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	h := onboard.NewSimulatedHotspot("Hotspot", "HS")
	air.AddHotspot(h)
	radio, adapter := newAdapter(t, air)
	radio.SetPowerState(wire.PowerOff)

	opts := testOptions()
	opts.Prompter = phone.PrompterFunc(func(ctx context.Context, alert phone.Alert) (bool, error) {
		t.Error("Android should enable the radio without prompting")
		return false, nil
	})
	m := phone.NewConnectionManager(NewPlatform(adapter, kotlin.NewPermissionManager(allowAll)), nil, opts)
	defer m.Close()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if radio.PowerState() != wire.PowerOn {
		t.Fatalf("Radio should be on, got %s", radio.PowerState())
	}
	if len(m.Candidates()) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(m.Candidates()))
	}
}

func TestAndroidNoAdapterIsUnavailable(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	radio := air.NewCentral("android")
	radio.SetPowerState(wire.PowerUnsupported)
	adapter := kotlin.NewBluetoothManager(radio).GetAdapter()

	m := phone.NewConnectionManager(NewPlatform(adapter, kotlin.NewPermissionManager(allowAll)), nil, testOptions())
	defer m.Close()

	if err := m.Start(context.Background()); !errors.Is(err, phone.ErrRadioUnavailable) {
		t.Fatalf("Expected ErrRadioUnavailable, got %v", err)
	}
}

func TestAndroidConnectFailureAndRemoteDrop(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	h := onboard.NewSimulatedHotspot("Hotspot", "HS")
	air.AddHotspot(h)
	_, adapter := newAdapter(t, air)
	tr := NewTransport(adapter)

	if _, err := tr.Connect(context.Background(), "MISSING"); err == nil {
		t.Fatal("Connect to an absent device should fail")
	}

	dropped := make(chan string, 1)
	tr.SetDisconnectHandler(func(c phone.Connection) { dropped <- c.DeviceID() })

	conn, err := tr.Connect(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	addr, err := tr.Configure(context.Background(), conn)
	if err != nil || addr != "HS" {
		t.Fatalf("Configure: %q %v", addr, err)
	}

	air.DropLinks(h.ID)
	select {
	case id := <-dropped:
		if id != h.ID {
			t.Fatalf("Handler got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Disconnect handler not called")
	}
}

func TestAndroidLocalDisconnectIsSilent(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	h := onboard.NewSimulatedHotspot("Hotspot", "HS")
	air.AddHotspot(h)
	radio, adapter := newAdapter(t, air)
	tr := NewTransport(adapter)

	dropped := make(chan string, 1)
	tr.SetDisconnectHandler(func(c phone.Connection) { dropped <- c.DeviceID() })

	conn, err := tr.Connect(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tr.Disconnect(conn)

	select {
	case id := <-dropped:
		t.Fatalf("Local disconnect reported as drop of %s", id)
	case <-time.After(50 * time.Millisecond):
	}
	if radio.Connections() != 0 {
		t.Fatalf("Expected no links, got %d", radio.Connections())
	}
}

func TestAndroidScanEndsWhenAdapterTurnsOff(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	air.AddHotspot(onboard.NewSimulatedHotspot("Hotspot", "HS"))
	_, adapter := newAdapter(t, air)
	tr := NewTransport(adapter)

	go func() {
		time.Sleep(30 * time.Millisecond)
		adapter.Disable()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	seen := 0
	err := tr.ScanForDevices(ctx, onboard.ServiceUUID, func(phone.DiscoveredDevice) { seen++ })
	if !errors.Is(err, phone.ErrRadioLost) {
		t.Fatalf("Expected ErrRadioLost, got %v", err)
	}
	t.Logf("✅ Scan ended with the adapter after %d results", seen)
}

func TestLocationPermissionStates(t *testing.T) {
	perms := kotlin.NewPermissionManager(denyAll)
	p := &LocationPermission{perms: perms}
	ctx := context.Background()

	if s, _ := p.QueryLocationPermission(ctx); s != phone.PermissionUndetermined {
		t.Fatalf("Expected undetermined before asking, got %s", s)
	}
	if s, _ := p.RequestLocationPermission(ctx); s != phone.PermissionDenied {
		t.Fatalf("Expected denied, got %s", s)
	}
	if s, _ := p.QueryLocationPermission(ctx); s != phone.PermissionDenied {
		t.Fatalf("Expected denied after refusal, got %s", s)
	}

	perms.Grant(kotlin.ACCESS_FINE_LOCATION)
	if s, _ := p.QueryLocationPermission(ctx); s != phone.PermissionGranted {
		t.Fatalf("Expected granted, got %s", s)
	}
}

func TestRadioSettingsURL(t *testing.T) {
	r := &Radio{}
	if r.CanEnable() {
		t.Error("No adapter means no enable")
	}
	if s, _ := r.State(context.Background()); s != phone.RadioUnsupported {
		t.Errorf("Expected Unsupported, got %s", s)
	}
	if r.SettingsURL(phone.RadioPoweredOff) != BluetoothSettingsURL {
		t.Errorf("Unexpected settings URL %s", r.SettingsURL(phone.RadioPoweredOff))
	}
}
