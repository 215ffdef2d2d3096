package tests

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Scenario is a scripted pairing session: one phone, a set of simulated
// hotspots, a timeline of user and radio events, and the expected outcome.
type Scenario struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Platform    string          `json:"platform"` // "ios" or "android"
	Phone       PhoneConfig     `json:"phone"`
	Hotspots    []HotspotConfig `json:"hotspots"`
	Timeline    []TimelineEvent `json:"timeline"`
	Assertions  []Assertion     `json:"assertions"`
}

// PhoneConfig sets up the phone under test
type PhoneConfig struct {
	DenyPermission     bool `json:"deny_permission,omitempty"`
	RadioOff           bool `json:"radio_off,omitempty"`
	ScanMs             int  `json:"scan_ms,omitempty"`
	SettleMs           int  `json:"settle_ms,omitempty"`
	ConnectTimeoutMs   int  `json:"connect_timeout_ms,omitempty"`
	ConfigureTimeoutMs int  `json:"configure_timeout_ms,omitempty"`
}

// HotspotConfig defines one simulated hotspot. ID is scenario-local; the
// BLE identifier the phone sees is random.
type HotspotConfig struct {
	ID               string  `json:"id"`
	Name             string  `json:"name,omitempty"`
	Address          string  `json:"address,omitempty"`
	ServiceUUID      string  `json:"service_uuid,omitempty"`
	NotAdvertising   bool    `json:"not_advertising,omitempty"`
	ConnectDelayMs   int     `json:"connect_delay_ms,omitempty"`
	RefuseConnect    bool    `json:"refuse_connect,omitempty"`
	ReadDelayMs      int     `json:"read_delay_ms,omitempty"`
	DistanceM        float64 `json:"distance_m,omitempty"`
	ManufacturerData []byte  `json:"manufacturer_data,omitempty"`
}

// TimelineEvent is an action at a point in time. Blocking actions (start,
// scan_again, wait_attempt) delay every later event.
type TimelineEvent struct {
	TimeMs  int    `json:"time_ms"`
	Action  string `json:"action"`
	Hotspot string `json:"hotspot,omitempty"`
	Value   string `json:"value,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Action types
const (
	ActionStart            = "start"
	ActionScanAgain        = "scan_again"
	ActionSelect           = "select"
	ActionWaitAttempt      = "wait_attempt"
	ActionDisconnect       = "disconnect"
	ActionRadioOff         = "radio_off"
	ActionRadioOn          = "radio_on"
	ActionDropLink         = "drop_link"
	ActionStopAdvertising  = "stop_advertising"
	ActionStartAdvertising = "start_advertising"
	ActionSetAddress       = "set_address"
	ActionSleep            = "sleep"
)

// Assertion is an expected outcome checked after the timeline ran
type Assertion struct {
	Type    string `json:"type"`
	Hotspot string `json:"hotspot,omitempty"`
	Value   string `json:"value,omitempty"`
	Count   int    `json:"count,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Assertion types
const (
	AssertStep             = "step"              // Value: flow step name
	AssertHotspotStatus    = "hotspot_status"    // Value: disconnected|connecting|connected
	AssertAddress          = "address"           // Value: expected address, "" for none
	AssertCandidates       = "candidates"        // Count
	AssertDiscovered       = "discovered"        // Count
	AssertCandidatePresent = "candidate_present" // Hotspot
	AssertCandidateAbsent  = "candidate_absent"  // Hotspot
	AssertFlowError        = "flow_error"        // Value: reason code of the last start/scan_again, "" for none
	AssertAttemptOutcome   = "attempt_outcome"   // Hotspot, Value: connected or a reason code
	AssertNoScan           = "no_scan"           // no discovery set exists
)

var knownActions = map[string]bool{
	ActionStart: true, ActionScanAgain: true, ActionSelect: true, ActionWaitAttempt: true,
	ActionDisconnect: true, ActionRadioOff: true, ActionRadioOn: true, ActionDropLink: true,
	ActionStopAdvertising: true, ActionStartAdvertising: true, ActionSetAddress: true,
	ActionSleep: true,
}

// Actions that operate on a hotspot
var hotspotActions = map[string]bool{
	ActionSelect: true, ActionDropLink: true, ActionStopAdvertising: true,
	ActionStartAdvertising: true, ActionSetAddress: true,
}

var knownAssertions = map[string]bool{
	AssertStep: true, AssertHotspotStatus: true, AssertAddress: true, AssertCandidates: true,
	AssertDiscovered: true, AssertCandidatePresent: true, AssertCandidateAbsent: true,
	AssertFlowError: true, AssertAttemptOutcome: true, AssertNoScan: true,
}

// LoadScenario loads a scenario from a JSON file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := json.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &scenario, nil
}

// Save writes the scenario as indented JSON
func (s *Scenario) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetHotspotByID returns a hotspot config by scenario ID
func (s *Scenario) GetHotspotByID(id string) *HotspotConfig {
	for i, h := range s.Hotspots {
		if h.ID == id {
			return &s.Hotspots[i]
		}
	}
	return nil
}

// SortedTimeline returns the timeline ordered by time, stable for ties
func (s *Scenario) SortedTimeline() []TimelineEvent {
	events := append([]TimelineEvent(nil), s.Timeline...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].TimeMs < events[j].TimeMs })
	return events
}

// Duration returns the time of the last scheduled event
func (s *Scenario) Duration() time.Duration {
	maxTime := 0
	for _, event := range s.Timeline {
		if event.TimeMs > maxTime {
			maxTime = event.TimeMs
		}
	}
	return time.Duration(maxTime) * time.Millisecond
}

// Validate returns every problem found in the scenario
func (s *Scenario) Validate() []string {
	var problems []string

	switch s.Platform {
	case "ios", "android":
	default:
		problems = append(problems, "Unknown platform: "+s.Platform)
	}

	ids := make(map[string]bool)
	for _, h := range s.Hotspots {
		if h.ID == "" {
			problems = append(problems, "Hotspot without id")
		}
		if ids[h.ID] {
			problems = append(problems, "Duplicate hotspot id: "+h.ID)
		}
		ids[h.ID] = true
	}

	for _, event := range s.Timeline {
		if !knownActions[event.Action] {
			problems = append(problems, "Unknown action: "+event.Action)
		}
		if event.Hotspot != "" && !ids[event.Hotspot] {
			problems = append(problems, "Event references unknown hotspot: "+event.Hotspot)
		}
		if hotspotActions[event.Action] && event.Hotspot == "" {
			problems = append(problems, "Action needs a hotspot: "+event.Action)
		}
	}

	for _, a := range s.Assertions {
		if !knownAssertions[a.Type] {
			problems = append(problems, "Unknown assertion: "+a.Type)
		}
		if a.Hotspot != "" && !ids[a.Hotspot] {
			problems = append(problems, "Assertion references unknown hotspot: "+a.Hotspot)
		}
		switch a.Type {
		case AssertCandidatePresent, AssertCandidateAbsent, AssertAttemptOutcome:
			if a.Hotspot == "" {
				problems = append(problems, "Assertion needs a hotspot: "+a.Type)
			}
		}
	}
	return problems
}
