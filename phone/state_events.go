package phone

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/util"
)

// StateEvent is one audit record of the pairing flow
type StateEvent struct {
	Event    string
	Step     string
	DeviceID string
	Status   string
	Address  string
	Reason   string
	Details  map[string]interface{}
}

// StateEventLogger appends flow transitions and hotspot state writes to
// {dataDir}/{session}/hotspot_events.jsonl. Each line is a
// google.protobuf.Struct in protojson form. These files are write-only.
type StateEventLogger struct {
	sessionID string
	logPath   string
	mutex     sync.Mutex
	enabled   bool
}

// NewStateEventLogger creates a logger for one session
func NewStateEventLogger(sessionID string, enabled bool) *StateEventLogger {
	if !enabled {
		return &StateEventLogger{enabled: false}
	}

	dir, err := util.GetSessionDir(sessionID)
	if err != nil {
		logger.Warn(util.ShortID(sessionID)+" state_events", "Event log disabled: %v", err)
		return &StateEventLogger{enabled: false}
	}

	return &StateEventLogger{
		sessionID: sessionID,
		logPath:   filepath.Join(dir, "hotspot_events.jsonl"),
		enabled:   true,
	}
}

// Path returns the JSONL file path, empty when disabled
func (l *StateEventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.logPath
}

// Log writes one event line
func (l *StateEventLogger) Log(event StateEvent) {
	if l == nil || !l.enabled {
		return
	}

	fields := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"event":     event.Event,
	}
	if event.Step != "" {
		fields["step"] = event.Step
	}
	if event.DeviceID != "" {
		fields["device_id"] = event.DeviceID
	}
	if event.Status != "" {
		fields["status"] = event.Status
	}
	if event.Address != "" {
		fields["address"] = event.Address
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	if len(event.Details) > 0 {
		fields["details"] = event.Details
	}

	st, err := structpb.NewStruct(fields)
	if err != nil {
		logger.Warn(util.ShortID(l.sessionID)+" state_events", "Failed to build event: %v", err)
		return
	}
	line, err := protojson.Marshal(st)
	if err != nil {
		logger.Warn(util.ShortID(l.sessionID)+" state_events", "Failed to marshal event: %v", err)
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Warn(util.ShortID(l.sessionID)+" state_events", "Failed to open event log: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		logger.Warn(util.ShortID(l.sessionID)+" state_events", "Failed to write event: %v", err)
	}
}

func (l *StateEventLogger) LogTransition(state FlowState) {
	ev := StateEvent{
		Event:    "flow_transition",
		Step:     state.Step.String(),
		DeviceID: state.DeviceID,
		Details:  map[string]interface{}{"generation": fmt.Sprintf("%d", state.Generation)},
	}
	if state.Reason != nil {
		ev.Reason = state.Reason.Error()
	}
	l.Log(ev)
}

func (l *StateEventLogger) LogSnapshot(snap HotspotSnapshot) {
	l.Log(StateEvent{
		Event:    "hotspot_state",
		DeviceID: snap.DeviceID,
		Status:   string(snap.Status),
		Address:  string(snap.Address),
	})
}

func (l *StateEventLogger) LogDiscarded(deviceID string, generation uint64, outcome string) {
	l.Log(StateEvent{
		Event:    "attempt_discarded",
		DeviceID: deviceID,
		Details: map[string]interface{}{
			"generation": fmt.Sprintf("%d", generation),
			"outcome":    outcome,
		},
	})
}
