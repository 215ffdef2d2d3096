package wire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/wire/advertising"
)

var (
	ErrPoweredOff             = errors.New("radio is not powered on")
	ErrNotInRange             = errors.New("hotspot not in range")
	ErrConnectionFailed       = errors.New("connection failed")
	ErrNotConnected           = errors.New("not connected")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrReadFailed             = errors.New("characteristic read failed")
)

// PowerState is the power state of a central's radio
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerOn
	PowerOff
	PowerUnauthorized
	PowerUnsupported
)

func (p PowerState) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	case PowerUnauthorized:
		return "unauthorized"
	case PowerUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Air is the shared radio medium. Hotspots advertise into it and centrals
// scan and connect through it. Everything is in memory.
type Air struct {
	sim *Simulator

	mu       sync.RWMutex
	hotspots map[string]*Hotspot
	centrals []*Central
}

// NewAir creates an empty medium; a nil config uses the defaults
func NewAir(config *SimulationConfig) *Air {
	return &Air{
		sim:      NewSimulator(config),
		hotspots: make(map[string]*Hotspot),
	}
}

// Simulator returns the medium's simulator
func (a *Air) Simulator() *Simulator {
	return a.sim
}

// AddHotspot puts a hotspot in range
func (a *Air) AddHotspot(h *Hotspot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hotspots[h.ID] = h
}

// RemoveHotspot takes a hotspot out of range, dropping its links
func (a *Air) RemoveHotspot(id string) {
	a.mu.Lock()
	delete(a.hotspots, id)
	a.mu.Unlock()
	a.DropLinks(id)
}

// Hotspot looks up an in-range hotspot
func (a *Air) Hotspot(id string) (*Hotspot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.hotspots[id]
	return h, ok
}

func (a *Air) snapshot() []*Hotspot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Hotspot, 0, len(a.hotspots))
	for _, h := range a.hotspots {
		out = append(out, h)
	}
	return out
}

// NewCentral attaches a powered-on central to the medium
func (a *Air) NewCentral(name string) *Central {
	c := &Central{
		air:         a,
		name:        name,
		power:       PowerOn,
		discoveries: make(map[*Discovery]struct{}),
		conns:       make(map[*Connection]struct{}),
	}
	a.mu.Lock()
	a.centrals = append(a.centrals, c)
	a.mu.Unlock()
	return c
}

// DropLinks disconnects every central from the hotspot, as if the hotspot
// rebooted or walked out of range
func (a *Air) DropLinks(hotspotID string) {
	a.mu.RLock()
	centrals := append([]*Central(nil), a.centrals...)
	a.mu.RUnlock()

	for _, c := range centrals {
		c.dropLinks(func(conn *Connection) bool { return conn.hotspot.ID == hotspotID }, "remote")
	}
}

// Advertisement is one advertising event heard by a central
type Advertisement struct {
	HotspotID    string
	RSSI         int
	AdvData      []byte
	ScanResponse []byte
	Fields       *advertising.Fields
}

// Central is a phone's radio
type Central struct {
	air  *Air
	name string

	mu           sync.Mutex
	power        PowerState
	discoveries  map[*Discovery]struct{}
	conns        map[*Connection]struct{}
	onDisconnect func(hotspotID string)
	onPower      func(PowerState)
	events       *LinkEventLogger
}

// Name returns the central's log name
func (c *Central) Name() string {
	return c.name
}

// SetEventLogger attaches a link event log
func (c *Central) SetEventLogger(l *LinkEventLogger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = l
}

func (c *Central) eventLog() *LinkEventLogger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// SetDisconnectHandler registers the callback for links dropped by the
// hotspot or by the radio powering down. Local Disconnect calls do not
// trigger it.
func (c *Central) SetDisconnectHandler(fn func(hotspotID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// SetPowerHandler registers the callback for power state changes
func (c *Central) SetPowerHandler(fn func(PowerState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPower = fn
}

// PowerState returns the radio power state
func (c *Central) PowerState() PowerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power
}

// SetPowerState changes the radio power. Leaving the on state ends every
// running discovery and drops every link.
func (c *Central) SetPowerState(state PowerState) {
	c.mu.Lock()
	prev := c.power
	c.power = state
	var lost []*Discovery
	if prev == PowerOn && state != PowerOn {
		for d := range c.discoveries {
			lost = append(lost, d)
		}
	}
	onPower := c.onPower
	events := c.events
	c.mu.Unlock()

	if prev == state {
		return
	}
	logger.Info(c.name+" Radio", "📻 Power %s → %s", prev, state)
	events.LogPower(state)

	for _, d := range lost {
		d.lose()
	}
	if prev == PowerOn && state != PowerOn {
		c.dropLinks(func(*Connection) bool { return true }, "radio "+state.String())
	}
	if onPower != nil {
		onPower(state)
	}
}

// StartDiscovery begins scanning. cb receives every advertising event from
// hotspots listing serviceFilter (all hotspots when empty) until Stop is
// called or the radio powers down. cb is never called after Stop returns.
func (c *Central) StartDiscovery(serviceFilter string, cb func(Advertisement)) (*Discovery, error) {
	c.mu.Lock()
	if c.power != PowerOn {
		c.mu.Unlock()
		return nil, ErrPoweredOff
	}
	d := &Discovery{
		central: c,
		stop:    make(chan struct{}),
		lost:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.discoveries[d] = struct{}{}
	events := c.events
	c.mu.Unlock()

	events.LogScan("scan_started", serviceFilter)
	go d.run(serviceFilter, cb)
	return d, nil
}

// Connect establishes a link to an in-range hotspot
func (c *Central) Connect(ctx context.Context, hotspotID string) (*Connection, error) {
	if c.PowerState() != PowerOn {
		return nil, ErrPoweredOff
	}
	h, ok := c.air.Hotspot(hotspotID)
	if !ok || !h.Advertising() {
		return nil, ErrNotInRange
	}

	started := time.Now()
	extra, refuse := h.connectBehavior()
	delay := c.air.sim.ConnectionDelay() + extra
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			c.eventLog().LogConnectFailed(hotspotID, ctx.Err())
			return nil, ctx.Err()
		}
	}

	var err error
	switch {
	case refuse != nil:
		err = fmt.Errorf("%w: %v", ErrConnectionFailed, refuse)
	case !c.air.sim.ShouldConnectionSucceed():
		err = fmt.Errorf("%w: link establishment timed out", ErrConnectionFailed)
	case c.PowerState() != PowerOn:
		err = ErrPoweredOff
	}
	if err != nil {
		logger.Debug(c.name+" Radio", "Connect to %s failed: %v", hotspotID, err)
		c.eventLog().LogConnectFailed(hotspotID, err)
		return nil, err
	}

	conn := &Connection{central: c, hotspot: h, state: StateConnected}
	c.mu.Lock()
	c.conns[conn] = struct{}{}
	events := c.events
	c.mu.Unlock()

	logger.Debug(c.name+" Radio", "🔗 Connected to %s in %v", hotspotID, time.Since(started).Round(time.Millisecond))
	events.LogConnected(hotspotID, time.Since(started))
	return conn, nil
}

// Connections returns the number of open links
func (c *Central) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

func (c *Central) dropLinks(match func(*Connection) bool, reason string) {
	c.mu.Lock()
	var dropped []*Connection
	for conn := range c.conns {
		if match(conn) {
			delete(c.conns, conn)
			dropped = append(dropped, conn)
		}
	}
	onDisconnect := c.onDisconnect
	events := c.events
	c.mu.Unlock()

	for _, conn := range dropped {
		conn.setState(StateDisconnected)
		logger.Info(c.name+" Radio", "📴 Link to %s dropped (%s)", conn.hotspot.ID, reason)
		events.LogDisconnected(conn.hotspot.ID, reason)
		if onDisconnect != nil {
			onDisconnect(conn.hotspot.ID)
		}
	}
}

func (c *Central) removeDiscovery(d *Discovery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.discoveries, d)
}

// Discovery is a running scan
type Discovery struct {
	central  *Central
	stop     chan struct{}
	lost     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	lostOnce sync.Once
}

// Stop ends the scan and waits for the scan goroutine to exit
func (d *Discovery) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
	d.central.removeDiscovery(d)
}

// Lost is closed when the radio stops the scan on its own
func (d *Discovery) Lost() <-chan struct{} {
	return d.lost
}

func (d *Discovery) lose() {
	d.lostOnce.Do(func() { close(d.lost) })
}

func (d *Discovery) run(serviceFilter string, cb func(Advertisement)) {
	defer close(d.done)

	c := d.central
	sim := c.air.sim
	started := time.Now()
	heardAt := make(map[string]time.Time)

	ticker := time.NewTicker(sim.AdvertisingInterval())
	defer ticker.Stop()

	for {
		for _, h := range c.air.snapshot() {
			if !h.Advertising() {
				continue
			}
			due, ok := heardAt[h.ID]
			if !ok {
				due = started.Add(sim.DiscoveryDelay())
				heardAt[h.ID] = due
			}
			if time.Now().Before(due) {
				continue
			}

			adv, scanResp, err := h.AdvertisingPayload()
			if err != nil {
				logger.Warn(c.name+" Radio", "Hotspot %s has an invalid advertisement: %v", h.ID, err)
				continue
			}
			fields, err := advertising.Parse(adv, scanResp)
			if err != nil {
				logger.Trace(c.name+" Radio", "Undecodable advertisement from %s: %v", h.ID, err)
				continue
			}
			if serviceFilter != "" && !fields.HasService(serviceFilter) {
				continue
			}

			select {
			case <-d.stop:
				return
			case <-d.lost:
				return
			default:
			}
			cb(Advertisement{
				HotspotID:    h.ID,
				RSSI:         sim.GenerateRSSI(h.Distance()),
				AdvData:      adv,
				ScanResponse: scanResp,
				Fields:       fields,
			})
		}

		select {
		case <-d.stop:
			return
		case <-d.lost:
			c.eventLog().LogScan("scan_lost", serviceFilter)
			return
		case <-ticker.C:
		}
	}
}

// Connection is a link from a central to a hotspot
type Connection struct {
	central *Central
	hotspot *Hotspot

	mu    sync.Mutex
	state ConnectionState
}

// HotspotID returns the remote hotspot's identifier
func (conn *Connection) HotspotID() string {
	return conn.hotspot.ID
}

// State returns the link state
func (conn *Connection) State() ConnectionState {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.state
}

func (conn *Connection) setState(s ConnectionState) {
	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.state = s
}

// ReadCharacteristic reads a characteristic value from the hotspot. Lost
// exchanges are retried up to the simulator's retry limit.
func (conn *Connection) ReadCharacteristic(ctx context.Context, service, char string) ([]byte, error) {
	if conn.State() != StateConnected {
		return nil, ErrNotConnected
	}

	sim := conn.central.air.sim
	delay, readErr := conn.hotspot.readBehavior()
	if err := sleepCtx(ctx, delay); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, readErr)
	}

	for attempt := 0; !sim.ShouldPacketSucceed(); attempt++ {
		if attempt >= sim.Config().MaxRetries {
			return nil, fmt.Errorf("%w: no response after %d retries", ErrReadFailed, attempt)
		}
		if err := sleepCtx(ctx, sim.RetryDelay()); err != nil {
			return nil, err
		}
	}

	if conn.State() != StateConnected {
		return nil, ErrNotConnected
	}
	value, ok := conn.hotspot.characteristic(service, char)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrCharacteristicNotFound, service, char)
	}
	return value, nil
}

// Disconnect closes the link. Closing a closed link is a no-op.
func (conn *Connection) Disconnect() error {
	c := conn.central
	c.mu.Lock()
	_, open := c.conns[conn]
	delete(c.conns, conn)
	events := c.events
	c.mu.Unlock()

	if !open {
		return nil
	}
	conn.setState(StateDisconnecting)
	time.Sleep(c.air.sim.DisconnectDelay())
	conn.setState(StateDisconnected)
	events.LogDisconnected(conn.hotspot.ID, "local")
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
