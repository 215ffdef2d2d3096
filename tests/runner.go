package tests

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/user/hotspot-blue/android"
	"github.com/user/hotspot-blue/iphone"
	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/onboard"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/wire"
)

// defaultAttemptWait bounds wait_attempt when the event gives no duration
const defaultAttemptWait = 5 * time.Second

var errConnectRefused = errors.New("connection refused by hotspot")

// ScenarioRunner executes a scenario against the in-memory radio
type ScenarioRunner struct {
	scenario *Scenario
	air      *wire.Air
	central  *wire.Central
	manager  *phone.ConnectionManager
	hotspots map[string]*wire.Hotspot // scenario id → simulated hotspot

	attempts         map[string]*phone.Attempt // scenario id → latest attempt
	lastFlowErr      error
	eventLog         []EventLogEntry
	startTime        time.Time
	assertionResults []AssertionResult
}

// EventLogEntry records an event that occurred during the scenario
type EventLogEntry struct {
	TimeMs    int
	Hotspot   string
	EventType string
	Message   string
}

// AssertionResult records the outcome of an assertion
type AssertionResult struct {
	Assertion *Assertion
	Passed    bool
	Message   string
}

// NewScenarioRunner creates a new scenario runner
func NewScenarioRunner(scenario *Scenario) *ScenarioRunner {
	return &ScenarioRunner{
		scenario: scenario,
		hotspots: make(map[string]*wire.Hotspot),
		attempts: make(map[string]*phone.Attempt),
	}
}

// Setup builds the air, the hotspots and the phone
func (r *ScenarioRunner) Setup() error {
	if problems := r.scenario.Validate(); len(problems) > 0 {
		return fmt.Errorf("scenario validation failed: %s", strings.Join(problems, "; "))
	}

	r.air = wire.NewAir(wire.PerfectSimulationConfig())
	for i := range r.scenario.Hotspots {
		cfg := &r.scenario.Hotspots[i]
		h := createHotspot(cfg)
		r.air.AddHotspot(h)
		r.hotspots[cfg.ID] = h
	}

	r.central = r.air.NewCentral(r.scenario.Platform)
	if r.scenario.Phone.RadioOff {
		r.central.SetPowerState(wire.PowerOff)
	}

	var plat phone.Platform
	switch r.scenario.Platform {
	case "ios":
		plat = iphone.NewPlatform(r.central)
	case "android":
		deny := r.scenario.Phone.DenyPermission
		perms := kotlin.NewPermissionManager(func(ctx context.Context, permission string) (bool, error) {
			return !deny, nil
		})
		plat = android.NewPlatform(kotlin.NewBluetoothManager(r.central).GetAdapter(), perms)
	}

	r.manager = phone.NewConnectionManager(plat, nil, r.options())
	return nil
}

func (r *ScenarioRunner) options() phone.Options {
	ms := func(v, def int) time.Duration {
		if v == 0 {
			v = def
		}
		return time.Duration(v) * time.Millisecond
	}
	p := r.scenario.Phone
	return phone.Options{
		ScanDuration:     ms(p.ScanMs, 150),
		SettleDelay:      ms(p.SettleMs, 10),
		ConnectTimeout:   ms(p.ConnectTimeoutMs, 1000),
		ConfigureTimeout: ms(p.ConfigureTimeoutMs, 1000),
	}
}

func createHotspot(cfg *HotspotConfig) *wire.Hotspot {
	var h *wire.Hotspot
	if cfg.ServiceUUID == "" || strings.EqualFold(cfg.ServiceUUID, onboard.ServiceUUID) {
		h = onboard.NewSimulatedHotspot(cfg.Name, phone.DeviceAddress(cfg.Address))
	} else {
		h = wire.NewHotspot(cfg.Name, cfg.ServiceUUID)
	}
	if cfg.NotAdvertising {
		h.SetAdvertising(false)
	}
	if cfg.ConnectDelayMs > 0 || cfg.RefuseConnect {
		var err error
		if cfg.RefuseConnect {
			err = errConnectRefused
		}
		h.SetConnectBehavior(time.Duration(cfg.ConnectDelayMs)*time.Millisecond, err)
	}
	if cfg.ReadDelayMs > 0 {
		h.SetReadBehavior(time.Duration(cfg.ReadDelayMs)*time.Millisecond, nil)
	}
	if cfg.DistanceM > 0 {
		h.SetDistance(cfg.DistanceM)
	}
	if len(cfg.ManufacturerData) >= 2 {
		h.SetManufacturerData(binary.LittleEndian.Uint16(cfg.ManufacturerData), cfg.ManufacturerData[2:])
	}
	return h
}

// Close releases the phone
func (r *ScenarioRunner) Close() error {
	if r.manager == nil {
		return nil
	}
	return r.manager.Close()
}

// Run executes the scenario timeline
func (r *ScenarioRunner) Run() error {
	if r.manager == nil {
		return fmt.Errorf("runner not set up")
	}
	r.startTime = time.Now()

	for _, event := range r.scenario.SortedTimeline() {
		if wait := time.Until(r.startTime.Add(time.Duration(event.TimeMs) * time.Millisecond)); wait > 0 {
			time.Sleep(wait)
		}
		if err := r.executeEvent(event); err != nil {
			r.logEvent(event.Hotspot, "error", fmt.Sprintf("%s: %v", event.Action, err))
		}
	}
	return nil
}

func (r *ScenarioRunner) executeEvent(event TimelineEvent) error {
	r.logEvent(event.Hotspot, event.Action, event.Comment)

	var h *wire.Hotspot
	if event.Hotspot != "" {
		h = r.hotspots[event.Hotspot]
	}

	switch event.Action {
	case ActionStart:
		r.lastFlowErr = r.manager.Start(context.Background())
		r.logFlowResult()
	case ActionScanAgain:
		r.lastFlowErr = r.manager.ScanAgain(context.Background())
		r.logFlowResult()
	case ActionSelect:
		a, err := r.manager.Select(h.ID)
		if err != nil {
			return err
		}
		r.attempts[event.Hotspot] = a
	case ActionWaitAttempt:
		return r.waitAttempt(event.Value)
	case ActionDisconnect:
		return r.manager.Disconnect(context.Background())
	case ActionRadioOff:
		r.central.SetPowerState(wire.PowerOff)
	case ActionRadioOn:
		r.central.SetPowerState(wire.PowerOn)
	case ActionDropLink:
		r.air.DropLinks(h.ID)
	case ActionStopAdvertising:
		h.SetAdvertising(false)
	case ActionStartAdvertising:
		h.SetAdvertising(true)
	case ActionSetAddress:
		onboard.Provision(h, phone.DeviceAddress(event.Value))
	case ActionSleep:
		d, err := time.ParseDuration(event.Value)
		if err != nil {
			return err
		}
		time.Sleep(d)
	default:
		return fmt.Errorf("unknown action: %s", event.Action)
	}
	return nil
}

func (r *ScenarioRunner) waitAttempt(value string) error {
	a := r.manager.CurrentAttempt()
	if a == nil {
		return fmt.Errorf("no attempt to wait for")
	}
	wait := defaultAttemptWait
	if value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		wait = d
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	addr, err := a.Wait(ctx)
	if err != nil {
		r.logEvent("", "attempt", fmt.Sprintf("%s failed: %v", a.Device.Name, err))
		return nil
	}
	r.logEvent("", "attempt", fmt.Sprintf("%s configured as %s", a.Device.Name, addr))
	return nil
}

func (r *ScenarioRunner) logFlowResult() {
	if r.lastFlowErr != nil {
		r.logEvent("", "flow", r.lastFlowErr.Error())
		return
	}
	r.logEvent("", "flow", fmt.Sprintf("scan complete, %d candidate(s)", len(r.manager.Candidates())))
}

// CheckAssertions validates all assertions
func (r *ScenarioRunner) CheckAssertions() []AssertionResult {
	results := make([]AssertionResult, 0, len(r.scenario.Assertions))
	for i := range r.scenario.Assertions {
		results = append(results, r.checkAssertion(&r.scenario.Assertions[i]))
	}
	r.assertionResults = results
	return results
}

func (r *ScenarioRunner) checkAssertion(a *Assertion) AssertionResult {
	pass := func(format string, args ...interface{}) AssertionResult {
		return AssertionResult{Assertion: a, Passed: true, Message: fmt.Sprintf(format, args...)}
	}
	fail := func(format string, args ...interface{}) AssertionResult {
		return AssertionResult{Assertion: a, Passed: false, Message: fmt.Sprintf(format, args...)}
	}
	expect := func(what string, got, want interface{}) AssertionResult {
		if got == want {
			return pass("%s is %v", what, got)
		}
		return fail("%s is %v, expected %v", what, got, want)
	}

	switch a.Type {
	case AssertStep:
		return expect("step", r.manager.State().Step.String(), a.Value)
	case AssertHotspotStatus:
		return expect("hotspot status", string(r.manager.Store().Get().Status), a.Value)
	case AssertAddress:
		addr, _ := r.manager.Store().Get().ValidAddress()
		return expect("address", string(addr), a.Value)
	case AssertCandidates:
		return expect("candidate count", len(r.manager.Candidates()), a.Count)
	case AssertDiscovered:
		set := r.manager.DiscoverySet()
		if set == nil {
			return fail("no completed scan")
		}
		return expect("discovered count", set.Len(), a.Count)
	case AssertCandidatePresent, AssertCandidateAbsent:
		id := r.hotspots[a.Hotspot].ID
		found := false
		for _, c := range r.manager.Candidates() {
			if c.ID == id {
				found = true
			}
		}
		if found == (a.Type == AssertCandidatePresent) {
			return pass("%s candidate presence is %v", a.Hotspot, found)
		}
		return fail("%s candidate presence is %v", a.Hotspot, found)
	case AssertFlowError:
		return expect("flow error", phone.ReasonCode(r.lastFlowErr), a.Value)
	case AssertAttemptOutcome:
		at := r.attempts[a.Hotspot]
		if at == nil {
			return fail("%s was never selected", a.Hotspot)
		}
		return expect(a.Hotspot+" outcome", attemptOutcome(at), a.Value)
	case AssertNoScan:
		if set := r.manager.DiscoverySet(); set != nil {
			return fail("a scan completed with %d device(s)", set.Len())
		}
		return pass("no scan ran")
	default:
		return fail("unknown assertion %s", a.Type)
	}
}

func attemptOutcome(a *phone.Attempt) string {
	select {
	case <-a.Done():
	default:
		return "pending"
	}
	if err := a.Err(); err != nil {
		return phone.ReasonCode(err)
	}
	return "connected"
}

// Passed reports whether every checked assertion passed
func (r *ScenarioRunner) Passed() bool {
	for _, res := range r.assertionResults {
		if !res.Passed {
			return false
		}
	}
	return true
}

func (r *ScenarioRunner) logEvent(hotspot, eventType, message string) {
	elapsed := 0
	if !r.startTime.IsZero() {
		elapsed = int(time.Since(r.startTime).Milliseconds())
	}
	r.eventLog = append(r.eventLog, EventLogEntry{
		TimeMs:    elapsed,
		Hotspot:   hotspot,
		EventType: eventType,
		Message:   message,
	})
	logger.Debug("scenario", "[%dms] %s %s %s", elapsed, eventType, hotspot, message)
}

// PrintReport prints the scenario execution report to stdout
func (r *ScenarioRunner) PrintReport() {
	r.WriteReport(os.Stdout)
}

// WriteReport writes the scenario execution report
func (r *ScenarioRunner) WriteReport(w io.Writer) {
	fmt.Fprintln(w, "\n=== Scenario Report ===")
	fmt.Fprintf(w, "Name: %s\n", r.scenario.Name)
	fmt.Fprintf(w, "Description: %s\n", r.scenario.Description)
	fmt.Fprintf(w, "Platform: %s\n", r.scenario.Platform)
	fmt.Fprintf(w, "Scheduled: %v\n", r.scenario.Duration())

	fmt.Fprintln(w, "\n--- Event Log ---")
	for _, entry := range r.eventLog {
		target := entry.Hotspot
		if target == "" {
			target = "phone"
		}
		fmt.Fprintf(w, "[%dms] [%s] %s: %s\n", entry.TimeMs, target, entry.EventType, entry.Message)
	}

	fmt.Fprintln(w, "\n--- Assertion Results ---")
	passed := 0
	for _, result := range r.assertionResults {
		status := "❌ FAIL"
		if result.Passed {
			status = "✅ PASS"
			passed++
		}
		fmt.Fprintf(w, "%s - %s: %s\n", status, result.Assertion.Type, result.Message)
	}
	fmt.Fprintf(w, "\nTotal: %d/%d assertions passed\n", passed, len(r.assertionResults))
}

// RunScenario loads, runs and checks the scenario at path
func RunScenario(path string) (*ScenarioRunner, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, err
	}
	r := NewScenarioRunner(scenario)
	if err := r.Setup(); err != nil {
		return nil, err
	}
	defer r.Close()
	if err := r.Run(); err != nil {
		return r, err
	}
	r.CheckAssertions()
	return r, nil
}
