package phone

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStep scripts one connect or configure call. A non-nil gate blocks the
// call until it is closed or the context ends.
type fakeStep struct {
	delay time.Duration
	gate  chan struct{}
	err   error
	addr  DeviceAddress
}

type fakeConn struct {
	id string
}

func (c *fakeConn) DeviceID() string { return c.id }

type fakeTransport struct {
	mu          sync.Mutex
	adverts     []DiscoveredDevice
	scanErr     error
	connect     map[string]fakeStep
	configure   map[string]fakeStep
	disconnects []string
	links       map[string]*fakeConn
	onDrop      func(Connection)

	scanCalls   int32
	scanStarted chan struct{}
	startedOnce sync.Once
}

func newFakeTransport(adverts ...DiscoveredDevice) *fakeTransport {
	return &fakeTransport{
		adverts:     adverts,
		connect:     make(map[string]fakeStep),
		configure:   make(map[string]fakeStep),
		links:       make(map[string]*fakeConn),
		scanStarted: make(chan struct{}),
	}
}

func (f *fakeTransport) setAdverts(adverts ...DiscoveredDevice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adverts = adverts
}

func (f *fakeTransport) ScanForDevices(ctx context.Context, serviceFilter string, onDiscover func(DiscoveredDevice)) error {
	atomic.AddInt32(&f.scanCalls, 1)
	f.startedOnce.Do(func() { close(f.scanStarted) })

	f.mu.Lock()
	adverts := append([]DiscoveredDevice(nil), f.adverts...)
	scanErr := f.scanErr
	f.mu.Unlock()

	for _, d := range adverts {
		onDiscover(d)
	}
	if scanErr != nil {
		return scanErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeTransport) StopScan() error { return nil }

func (f *fakeTransport) Connect(ctx context.Context, deviceID string) (Connection, error) {
	f.mu.Lock()
	step := f.connect[deviceID]
	f.mu.Unlock()

	if err := step.wait(ctx); err != nil {
		return nil, err
	}
	if step.err != nil {
		return nil, step.err
	}
	conn := &fakeConn{id: deviceID}
	f.mu.Lock()
	f.links[deviceID] = conn
	f.mu.Unlock()
	return conn, nil
}

func (f *fakeTransport) Configure(ctx context.Context, conn Connection) (DeviceAddress, error) {
	f.mu.Lock()
	step, ok := f.configure[conn.DeviceID()]
	f.mu.Unlock()

	if err := step.wait(ctx); err != nil {
		return "", err
	}
	if step.err != nil {
		return "", step.err
	}
	if !ok {
		return DeviceAddress("addr-" + conn.DeviceID()), nil
	}
	return step.addr, nil
}

func (f *fakeTransport) Disconnect(conn Connection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, conn.DeviceID())
	return nil
}

func (f *fakeTransport) SetDisconnectHandler(fn func(Connection)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDrop = fn
}

// drop reports the most recent link to deviceID as lost
func (f *fakeTransport) drop(deviceID string) {
	f.mu.Lock()
	conn := f.links[deviceID]
	f.mu.Unlock()
	if conn != nil {
		f.dropConn(conn)
	}
}

func (f *fakeTransport) dropConn(conn Connection) {
	f.mu.Lock()
	fn := f.onDrop
	f.mu.Unlock()
	if fn != nil {
		fn(conn)
	}
}

func (f *fakeTransport) link(deviceID string) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[deviceID]
}

func (f *fakeTransport) disconnected(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.disconnects {
		if id == deviceID {
			return true
		}
	}
	return false
}

func (s fakeStep) wait(ctx context.Context) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type fakePermissions struct {
	required bool
	status   PermissionStatus
	answer   PermissionStatus
	requests int32
}

func (p *fakePermissions) Required() bool { return p.required }

func (p *fakePermissions) QueryLocationPermission(ctx context.Context) (PermissionStatus, error) {
	return p.status, nil
}

func (p *fakePermissions) RequestLocationPermission(ctx context.Context) (PermissionStatus, error) {
	atomic.AddInt32(&p.requests, 1)
	p.status = p.answer
	return p.answer, nil
}

type fakeRadio struct {
	mu          sync.Mutex
	state       RadioState
	canEnable   bool
	enableErr   error
	enableCalls int
	settingsURL string
}

func (r *fakeRadio) State(ctx context.Context) (RadioState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

func (r *fakeRadio) CanEnable() bool { return r.canEnable }

func (r *fakeRadio) Enable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enableCalls++
	if r.enableErr != nil {
		return r.enableErr
	}
	r.state = RadioPoweredOn
	return nil
}

func (r *fakeRadio) SettingsURL(state RadioState) string { return r.settingsURL }

type recordingPrompter struct {
	mu     sync.Mutex
	accept bool
	alerts []Alert
}

func (p *recordingPrompter) ShowOKCancel(ctx context.Context, alert Alert) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return p.accept, nil
}

func (p *recordingPrompter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts)
}

func hotspot(id, name string) DiscoveredDevice {
	return DiscoveredDevice{ID: id, Name: name, RSSI: -60}
}

func testPlatform(transport *fakeTransport) Platform {
	return Platform{
		Name:        "test",
		Permissions: &fakePermissions{required: false},
		Radio:       &fakeRadio{state: RadioPoweredOn},
		Transport:   transport,
	}
}

func testOptions() Options {
	return Options{
		ServiceUUID:      "0fda92b2-44a2-4af2-84f5-fa682baa2b8d",
		ScanDuration:     30 * time.Millisecond,
		SettleDelay:      20 * time.Millisecond,
		ConnectTimeout:   time.Second,
		ConfigureTimeout: time.Second,
	}
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func waitAttempt(t *testing.T, a *Attempt) (DeviceAddress, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	addr, err := a.Wait(ctx)
	if err == context.DeadlineExceeded {
		t.Fatalf("Attempt for %s never finished", a.Device.ID)
	}
	return addr, err
}
