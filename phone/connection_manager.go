package phone

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/util"
)

// Step is a state of the pairing flow
type Step int

const (
	StepIdle Step = iota
	StepCheckingPermission
	StepCheckingRadio
	StepScanning
	StepScanComplete
	StepConnecting
	StepConfiguring
	StepConnected
	StepFailed
)

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepCheckingPermission:
		return "checking_permission"
	case StepCheckingRadio:
		return "checking_radio"
	case StepScanning:
		return "scanning"
	case StepScanComplete:
		return "scan_complete"
	case StepConnecting:
		return "connecting"
	case StepConfiguring:
		return "configuring"
	case StepConnected:
		return "connected"
	case StepFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FlowState is the externally visible state of the flow. Reason is set only
// for StepFailed; DeviceID names the device the step concerns.
type FlowState struct {
	Step       Step
	Reason     error
	DeviceID   string
	Generation uint64
}

// Options tunes a ConnectionManager. Zero durations take the defaults. A
// negative SettleDelay reports success as soon as configure returns.
type Options struct {
	SessionID        string
	ServiceUUID      string
	ScanDuration     time.Duration
	SettleDelay      time.Duration
	ConnectTimeout   time.Duration
	ConfigureTimeout time.Duration
	Prompter         Prompter
	Settings         SettingsOpener
	Events           *StateEventLogger
}

// Attempt is one connect → configure sequence against a selected device
type Attempt struct {
	Device     DiscoveredDevice
	Generation uint64

	done chan struct{}
	once sync.Once
	addr DeviceAddress
	err  error
}

func newAttempt(dev DiscoveredDevice, generation uint64) *Attempt {
	return &Attempt{Device: dev, Generation: generation, done: make(chan struct{})}
}

func (a *Attempt) finish(addr DeviceAddress, err error) {
	a.once.Do(func() {
		a.addr = addr
		a.err = err
		close(a.done)
	})
}

func (a *Attempt) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// Done is closed once the attempt has an outcome
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Err returns the outcome error, nil while pending or on success
func (a *Attempt) Err() error {
	if !a.finished() {
		return nil
	}
	return a.err
}

// Address returns the configured address once the attempt succeeded
func (a *Attempt) Address() DeviceAddress {
	if !a.finished() {
		return ""
	}
	return a.addr
}

// Wait blocks until the attempt has an outcome or ctx is done. A superseded
// attempt returns ErrSuperseded.
func (a *Attempt) Wait(ctx context.Context) (DeviceAddress, error) {
	select {
	case <-a.done:
		return a.addr, a.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// settlingLink is a configured link waiting out the settle delay
type settlingLink struct {
	conn Connection
	lost bool
}

// ConnectionManager drives permission → radio → scan → select → connect →
// configure, and is the only writer of ConnectedHotspotState.
//
// Every attempt carries the generation it was started with. An outcome is
// applied only if its generation is still current, so a newer selection
// supersedes an older one instead of racing it.
type ConnectionManager struct {
	sessionID string
	prefix    string
	platform  Platform
	gate      *PermissionGate
	radio     *RadioMonitor
	scanner   *Scanner
	store     *ConnectedHotspotState
	ownsStore bool
	opts      Options
	events    *StateEventLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        FlowState
	flowGen      uint64
	ready        bool // permission and radio passed for the current flow entry
	discovery    *DiscoverySet
	scanComplete bool
	gen          uint64
	attempt      *Attempt
	preAttempt   *HotspotSnapshot
	active       Connection
	settling     *settlingLink
	lastFailure  *FlowError
	onConnected  func(DiscoveredDevice, DeviceAddress)
	closed       bool
}

// NewConnectionManager wires the flow to a platform and the shared state
func NewConnectionManager(platform Platform, store *ConnectedHotspotState, opts Options) *ConnectionManager {
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = HotspotServiceUUID
	}
	if opts.ScanDuration <= 0 {
		opts.ScanDuration = DefaultScanDuration
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	} else if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ConfigureTimeout <= 0 {
		opts.ConfigureTimeout = DefaultConfigureTimeout
	}
	ownsStore := store == nil
	if ownsStore {
		store = NewConnectedHotspotState()
	}

	prefix := util.ShortID(opts.SessionID)
	ctx, cancel := context.WithCancel(context.Background())

	m := &ConnectionManager{
		sessionID: opts.SessionID,
		prefix:    prefix + " Flow",
		platform:  platform,
		gate:      NewPermissionGate(platform.Permissions, prefix),
		radio:     NewRadioMonitor(platform.Radio, opts.Prompter, opts.Settings, prefix),
		scanner:   NewScanner(platform.Transport, opts.ServiceUUID, prefix),
		store:     store,
		ownsStore: ownsStore,
		opts:      opts,
		events:    opts.Events,
		ctx:       ctx,
		cancel:    cancel,
		state:     FlowState{Step: StepIdle},
	}

	if n, ok := platform.Transport.(DisconnectNotifier); ok {
		n.SetDisconnectHandler(m.handleRemoteDisconnect)
	}
	return m
}

// SessionID identifies this manager in logs and event files
func (m *ConnectionManager) SessionID() string {
	return m.sessionID
}

// Store returns the state this manager writes
func (m *ConnectionManager) Store() *ConnectedHotspotState {
	return m.store
}

// OnConnected registers a callback run after the settle delay that follows a
// successful configure.
func (m *ConnectionManager) OnConnected(fn func(DiscoveredDevice, DeviceAddress)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// State returns the current flow state
func (m *ConnectionManager) State() FlowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ScanComplete reports whether a candidate list is available
func (m *ConnectionManager) ScanComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanComplete
}

// Candidates returns the named devices of the last completed scan. It is
// empty while a scan is running.
func (m *ConnectionManager) Candidates() []DiscoveredDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanComplete || m.discovery == nil {
		return nil
	}
	return m.discovery.Candidates()
}

// DiscoverySet returns a copy of the last completed scan's set, or nil
func (m *ConnectionManager) DiscoverySet() *DiscoverySet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanComplete || m.discovery == nil {
		return nil
	}
	return m.discovery.Clone()
}

// LastFailure returns the most recent failure, or nil
func (m *ConnectionManager) LastFailure() *FlowError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFailure
}

// CurrentAttempt returns the most recent attempt, or nil
func (m *ConnectionManager) CurrentAttempt() *Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Start enters the flow: permission check, radio check, then one scan.
// It returns a *FlowError when the flow halts.
func (m *ConnectionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkIdleLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.abandonAttemptLocked("flow restarted")
	m.flowGen++
	fg := m.flowGen
	m.ready = false
	m.discovery = nil
	m.scanComplete = false
	m.setStepLocked(StepCheckingPermission, nil, "")
	m.mu.Unlock()

	granted, err := m.gate.CheckLocationPermission(ctx)
	if ctx.Err() != nil {
		return m.interrupt(fg, ctx.Err())
	}
	if err != nil || !granted {
		return m.failFlow(fg, ErrPermissionDenied, err)
	}

	if !m.advanceFlow(fg, StepCheckingRadio) {
		return ErrSuperseded
	}
	if err := m.radio.Ensure(ctx); err != nil {
		if ctx.Err() != nil {
			return m.interrupt(fg, ctx.Err())
		}
		reason := ErrRadioOff
		if errors.Is(err, ErrRadioUnavailable) {
			reason = ErrRadioUnavailable
		}
		return m.failFlow(fg, reason, err)
	}

	m.mu.Lock()
	if fg == m.flowGen {
		m.ready = true
	}
	m.mu.Unlock()

	return m.runScan(ctx, fg)
}

// ScanAgain discards the candidate list and scans again. Without a
// successful permission and radio check in this flow entry it behaves like
// Start.
func (m *ConnectionManager) ScanAgain(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkIdleLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if !m.ready {
		m.mu.Unlock()
		return m.Start(ctx)
	}
	m.abandonAttemptLocked("scan again")
	m.flowGen++
	fg := m.flowGen
	m.discovery = nil
	m.scanComplete = false
	m.mu.Unlock()

	return m.runScan(ctx, fg)
}

// Select makes deviceID the selected device and starts connecting to it.
// Any attempt still in flight is superseded.
func (m *ConnectionManager) Select(deviceID string) (*Attempt, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if !m.scanComplete || m.discovery == nil {
		m.mu.Unlock()
		return nil, ErrNotScanned
	}
	dev, ok := m.discovery.Get(deviceID)
	if !ok {
		m.mu.Unlock()
		return nil, ErrUnknownDevice
	}
	if !dev.Named() {
		m.mu.Unlock()
		return nil, ErrUnnamedDevice
	}

	if prev := m.attempt; prev != nil && !prev.finished() {
		logger.Info(m.prefix, "⏭️  Selection moved from %s to %s", prev.Device.ID, dev.ID)
		prev.finish("", ErrSuperseded)
		m.events.LogDiscarded(prev.Device.ID, prev.Generation, "superseded")
	}
	if m.preAttempt == nil {
		snap := m.store.Get()
		m.preAttempt = &snap
	}

	m.gen++
	a := newAttempt(dev, m.gen)
	m.attempt = a
	m.setStepLocked(StepConnecting, nil, dev.ID)
	m.publishLocked(HotspotSnapshot{Status: StatusConnecting, DeviceID: dev.ID})
	m.mu.Unlock()

	logger.Info(m.prefix, "🔌 Connecting to %s (%s)", dev.Name, dev.ID)
	go m.run(a)
	return a, nil
}

// Disconnect drops the active hotspot link, abandons any attempt in flight
// and resets ConnectedHotspotState.
func (m *ConnectionManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if prev := m.attempt; prev != nil && !prev.finished() {
		m.gen++
		prev.finish("", ErrSuperseded)
		m.events.LogDiscarded(prev.Device.ID, prev.Generation, "disconnect")
	}
	m.preAttempt = nil
	conn := m.active
	m.active = nil
	m.resetLocked()
	if m.scanComplete {
		m.setStepLocked(StepScanComplete, nil, "")
	} else if !m.busyLocked() {
		m.setStepLocked(StepIdle, nil, "")
	}
	m.mu.Unlock()

	if conn != nil {
		logger.Info(m.prefix, "Disconnecting from %s", conn.DeviceID())
		return m.platform.Transport.Disconnect(conn)
	}
	return nil
}

// Close abandons pending work and releases the active connection
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if prev := m.attempt; prev != nil && !prev.finished() {
		m.gen++
		prev.finish("", ErrClosed)
	}
	m.preAttempt = nil
	conn := m.active
	m.active = nil
	if conn != nil {
		m.resetLocked()
	}
	m.mu.Unlock()

	m.cancel()
	if m.ownsStore {
		m.store.Close()
	}
	if conn != nil {
		return m.platform.Transport.Disconnect(conn)
	}
	return nil
}

func (m *ConnectionManager) checkIdleLocked() error {
	if m.closed {
		return ErrClosed
	}
	if m.busyLocked() {
		return ErrFlowBusy
	}
	return nil
}

func (m *ConnectionManager) busyLocked() bool {
	switch m.state.Step {
	case StepCheckingPermission, StepCheckingRadio, StepScanning:
		return true
	}
	return false
}

func (m *ConnectionManager) runScan(ctx context.Context, fg uint64) error {
	if !m.advanceFlow(fg, StepScanning) {
		return ErrSuperseded
	}

	set, err := m.scanner.Scan(ctx, m.opts.ScanDuration)

	m.mu.Lock()
	defer m.mu.Unlock()
	if fg != m.flowGen {
		return ErrSuperseded
	}
	if err != nil {
		if ctx.Err() != nil {
			m.setStepLocked(StepIdle, nil, "")
			return ctx.Err()
		}
		m.ready = false
		fe := newFlowError(ErrRadioOff, "", err)
		m.lastFailure = fe
		m.setStepLocked(StepFailed, ErrRadioOff, "")
		return fe
	}

	m.discovery = set
	m.scanComplete = true
	m.setStepLocked(StepScanComplete, nil, "")
	if len(set.Candidates()) == 0 {
		logger.Info(m.prefix, "No hotspots found")
	}
	return nil
}

func (m *ConnectionManager) advanceFlow(fg uint64, step Step) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fg != m.flowGen {
		return false
	}
	m.setStepLocked(step, nil, "")
	return true
}

func (m *ConnectionManager) failFlow(fg uint64, reason, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fg != m.flowGen {
		return ErrSuperseded
	}
	fe := newFlowError(reason, "", err)
	m.lastFailure = fe
	m.setStepLocked(StepFailed, reason, "")
	logger.Warn(m.prefix, "❌ Flow halted: %v", fe)
	return fe
}

func (m *ConnectionManager) interrupt(fg uint64, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fg == m.flowGen {
		m.setStepLocked(StepIdle, nil, "")
	}
	return err
}

// abandonAttemptLocked invalidates an attempt in flight and restores the
// state it replaced
func (m *ConnectionManager) abandonAttemptLocked(why string) {
	prev := m.attempt
	if prev == nil || prev.finished() {
		return
	}
	m.gen++
	prev.finish("", ErrSuperseded)
	m.events.LogDiscarded(prev.Device.ID, prev.Generation, why)
	if m.preAttempt != nil {
		m.publishLocked(*m.preAttempt)
		m.preAttempt = nil
	}
}

func (m *ConnectionManager) run(a *Attempt) {
	conn, err := m.connect(a)
	if err != nil {
		m.failAttempt(a, ErrConnectFailed, err)
		return
	}
	if !m.advanceAttempt(a, StepConfiguring) {
		m.discardConnection(a, conn, "connected")
		return
	}

	logger.Info(m.prefix, "🔧 Configuring %s", a.Device.ID)
	addr, err := m.configure(a, conn)
	if err == nil && addr == "" {
		err = errors.New("hotspot returned an empty address")
	}
	if err != nil {
		m.teardown(conn)
		m.failAttempt(a, ErrConfigureRejected, err)
		return
	}

	s, ok := m.beginSettle(a, conn)
	if !ok {
		m.discardConnection(a, conn, "configured")
		return
	}
	logger.Info(m.prefix, "📍 %s configured as %s", a.Device.ID, addr)

	// The link stays private until the hotspot has settled
	t := time.NewTimer(m.opts.SettleDelay)
	select {
	case <-t.C:
	case <-m.ctx.Done():
		t.Stop()
	}
	m.complete(a, s, addr)
}

func (m *ConnectionManager) connect(a *Attempt) (Connection, error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.opts.ConnectTimeout)
	defer cancel()
	return m.platform.Transport.Connect(ctx, a.Device.ID)
}

func (m *ConnectionManager) configure(a *Attempt, conn Connection) (DeviceAddress, error) {
	ctx, cancel := context.WithTimeout(m.ctx, m.opts.ConfigureTimeout)
	defer cancel()
	return m.platform.Transport.Configure(ctx, conn)
}

func (m *ConnectionManager) advanceAttempt(a *Attempt, step Step) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Generation != m.gen {
		return false
	}
	m.setStepLocked(step, nil, a.Device.ID)
	return true
}

func (m *ConnectionManager) beginSettle(a *Attempt, conn Connection) (*settlingLink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Generation != m.gen {
		return nil, false
	}
	s := &settlingLink{conn: conn}
	m.settling = s
	return s, true
}

// complete publishes the attempt's result if it is still current once the
// settle delay is over. Stale or dropped links are torn down instead.
func (m *ConnectionManager) complete(a *Attempt, s *settlingLink, addr DeviceAddress) {
	m.mu.Lock()
	if m.settling == s {
		m.settling = nil
	}
	if a.Generation != m.gen {
		m.mu.Unlock()
		m.discardConnection(a, s.conn, "settled")
		return
	}
	if s.lost {
		fe := newFlowError(ErrConnectFailed, a.Device.ID, errors.New("link dropped while settling"))
		if m.preAttempt != nil {
			m.publishLocked(*m.preAttempt)
			m.preAttempt = nil
		}
		m.lastFailure = fe
		m.setStepLocked(StepFailed, ErrConnectFailed, a.Device.ID)
		m.mu.Unlock()
		logger.Warn(m.prefix, "❌ %v", fe)
		m.teardown(s.conn)
		a.finish("", fe)
		return
	}
	old := m.active
	m.active = s.conn
	m.preAttempt = nil
	m.publishLocked(HotspotSnapshot{Address: addr, Status: StatusConnected, DeviceID: a.Device.ID})
	m.setStepLocked(StepConnected, nil, a.Device.ID)
	cb := m.onConnected
	m.mu.Unlock()

	if old != nil && old != s.conn {
		m.teardown(old)
	}
	logger.Info(m.prefix, "🎉 Connected to %s (%s)", a.Device.Name, addr)
	a.finish(addr, nil)
	if cb != nil {
		cb(a.Device, addr)
	}
}

func (m *ConnectionManager) failAttempt(a *Attempt, reason, err error) {
	m.mu.Lock()
	if a.Generation != m.gen {
		m.mu.Unlock()
		logger.Debug(m.prefix, "Dropping stale failure for %s: %v", a.Device.ID, err)
		m.events.LogDiscarded(a.Device.ID, a.Generation, "failed")
		a.finish("", ErrSuperseded)
		return
	}
	fe := newFlowError(reason, a.Device.ID, err)
	if m.preAttempt != nil {
		m.publishLocked(*m.preAttempt)
		m.preAttempt = nil
	}
	m.lastFailure = fe
	m.setStepLocked(StepFailed, reason, a.Device.ID)
	m.mu.Unlock()

	logger.Warn(m.prefix, "❌ %v", fe)
	a.finish("", fe)
}

func (m *ConnectionManager) discardConnection(a *Attempt, conn Connection, stage string) {
	logger.Debug(m.prefix, "Tearing down stale link to %s (%s)", a.Device.ID, stage)
	m.events.LogDiscarded(a.Device.ID, a.Generation, stage)
	m.teardown(conn)
	a.finish("", ErrSuperseded)
}

func (m *ConnectionManager) teardown(conn Connection) {
	if err := m.platform.Transport.Disconnect(conn); err != nil {
		logger.Debug(m.prefix, "Disconnect %s: %v", conn.DeviceID(), err)
	}
}

func (m *ConnectionManager) handleRemoteDisconnect(conn Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.settling; s != nil && s.conn == conn {
		s.lost = true
		return
	}
	if m.active == nil || m.active != conn {
		return
	}
	deviceID := conn.DeviceID()
	m.active = nil
	logger.Warn(m.prefix, "📴 Hotspot %s dropped the link", deviceID)

	if m.preAttempt != nil {
		// An attempt for another device is running; its fallback is gone too
		m.preAttempt = &HotspotSnapshot{Status: StatusDisconnected}
		return
	}
	snap := m.store.Get()
	if snap.Status == StatusConnected && snap.DeviceID == deviceID {
		m.resetLocked()
	}
	if m.state.Step == StepConnected {
		m.setStepLocked(StepScanComplete, nil, "")
	}
}

func (m *ConnectionManager) setStepLocked(step Step, reason error, deviceID string) {
	m.state = FlowState{Step: step, Reason: reason, DeviceID: deviceID, Generation: m.gen}
	logger.Debug(m.prefix, "→ %s %s", step, deviceID)
	m.events.LogTransition(m.state)
}

func (m *ConnectionManager) publishLocked(snap HotspotSnapshot) {
	stored := m.store.set(snap)
	m.events.LogSnapshot(stored)
}

func (m *ConnectionManager) resetLocked() {
	m.events.LogSnapshot(m.store.reset())
}
