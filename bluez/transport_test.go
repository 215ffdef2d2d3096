//go:build linux

package bluez

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/user/hotspot-blue/phone"
)

// fakeAdapter scans until StopScan is called. StopScan before the scan is
// running fails and has no effect, like BlueZ.
type fakeAdapter struct {
	mu          sync.Mutex
	enableErr   error
	scanDelay   time.Duration
	scanning    bool
	stop        chan struct{}
	scanExit    chan error
	failedStops int

	connectGate chan struct{}
	connectErr  error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{scanExit: make(chan error, 1)}
}

func (f *fakeAdapter) Enable() error { return f.enableErr }

func (f *fakeAdapter) SetConnectHandler(func(device bluetooth.Device, connected bool)) {}

func (f *fakeAdapter) Scan(func(*bluetooth.Adapter, bluetooth.ScanResult)) error {
	time.Sleep(f.scanDelay)
	f.mu.Lock()
	f.scanning = true
	stop := make(chan struct{})
	f.stop = stop
	f.mu.Unlock()

	select {
	case <-stop:
		return nil
	case err := <-f.scanExit:
		f.mu.Lock()
		f.scanning = false
		f.mu.Unlock()
		return err
	}
}

func (f *fakeAdapter) StopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.scanning {
		f.failedStops++
		return errors.New("not scanning")
	}
	f.scanning = false
	close(f.stop)
	return nil
}

func (f *fakeAdapter) Connect(bluetooth.Address, bluetooth.ConnectionParams) (bluetooth.Device, error) {
	if f.connectGate != nil {
		<-f.connectGate
	}
	return bluetooth.Device{}, f.connectErr
}

func scanAsync(ctx context.Context, tr *Transport) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- tr.ScanForDevices(ctx, phone.HotspotServiceUUID, func(phone.DiscoveredDevice) {})
	}()
	return done
}

func TestTransportScanStopsOnCancel(t *testing.T) {
	a := newFakeAdapter()
	tr := newTransport(a)

	ctx, cancel := context.WithCancel(context.Background())
	done := scanAsync(ctx, tr)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Cancelled scan should return nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Scan did not stop after cancel")
	}
}

func TestTransportCancelBeforeScanStarts(t *testing.T) {
	a := newFakeAdapter()
	a.scanDelay = 60 * time.Millisecond
	tr := newTransport(a)

	ctx, cancel := context.WithCancel(context.Background())
	done := scanAsync(ctx, tr)
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Scan started after cancel was never stopped")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failedStops == 0 {
		t.Errorf("Expected StopScan to be retried before the scan was running")
	}
	t.Logf("✅ Scan stopped after %d early StopScan call(s)", a.failedStops)
}

func TestTransportScanAlreadyCancelled(t *testing.T) {
	a := newFakeAdapter()
	tr := newTransport(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.ScanForDevices(ctx, "", func(phone.DiscoveredDevice) {}); err != nil {
		t.Fatalf("Expected nil, got %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scanning {
		t.Error("Scan should not start on a done context")
	}
}

func TestTransportScanEndingOnItsOwnIsRadioLoss(t *testing.T) {
	a := newFakeAdapter()
	tr := newTransport(a)

	done := scanAsync(context.Background(), tr)
	time.Sleep(10 * time.Millisecond)
	a.scanExit <- errors.New("adapter removed")

	select {
	case err := <-done:
		if !errors.Is(err, phone.ErrRadioLost) {
			t.Fatalf("Expected ErrRadioLost, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Scan never returned")
	}
}

func TestTransportEnableFailure(t *testing.T) {
	a := newFakeAdapter()
	a.enableErr = errors.New("no adapter")
	tr := newTransport(a)

	err := tr.ScanForDevices(context.Background(), "", func(phone.DiscoveredDevice) {})
	if !errors.Is(err, phone.ErrRadioLost) {
		t.Fatalf("Expected ErrRadioLost, got %v", err)
	}
	if err := tr.StopScan(); err != nil {
		t.Errorf("StopScan on a disabled adapter should be a no-op, got %v", err)
	}
}

func TestTransportBadServiceFilter(t *testing.T) {
	tr := newTransport(newFakeAdapter())
	if err := tr.ScanForDevices(context.Background(), "not-a-uuid", func(phone.DiscoveredDevice) {}); err == nil {
		t.Fatal("Expected a malformed service filter to fail")
	}
}

func TestTransportConnect(t *testing.T) {
	a := newFakeAdapter()
	a.connectGate = make(chan struct{})
	a.connectErr = errors.New("page timeout")
	defer close(a.connectGate)
	tr := newTransport(a)

	if _, err := tr.Connect(context.Background(), "AA:BB:CC:DD:EE:FF"); err == nil {
		t.Fatal("Connect to a device no scan has seen should fail")
	}

	tr.mu.Lock()
	tr.addresses["AA:BB:CC:DD:EE:FF"] = bluetooth.Address{}
	tr.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := tr.Connect(ctx, "AA:BB:CC:DD:EE:FF"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected the connect to give up with ctx, got %v", err)
	}
}

type otherConn struct{}

func (otherConn) DeviceID() string { return "x" }

func TestTransportRejectsForeignConnection(t *testing.T) {
	tr := newTransport(newFakeAdapter())
	if _, err := tr.Configure(context.Background(), otherConn{}); !errors.Is(err, phone.ErrConfigureRejected) {
		t.Errorf("Expected ErrConfigureRejected, got %v", err)
	}
	if err := tr.Disconnect(otherConn{}); err == nil {
		t.Error("Disconnect of a foreign connection should fail")
	}
}
