package wire

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/util"
)

// LinkEvent is one radio-level event seen by a central
type LinkEvent struct {
	Timestamp int64             `json:"timestamp"` // nanoseconds since epoch
	Event     string            `json:"event"`     // scan_started, scan_lost, connected, connect_failed, disconnected, power_changed
	Central   string            `json:"central"`
	HotspotID string            `json:"hotspot_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// LinkEventLogger appends link events to {dataDir}/{session}/link_events.jsonl
type LinkEventLogger struct {
	central string
	logPath string
	mutex   sync.Mutex
	enabled bool
}

// NewLinkEventLogger creates a logger for one central within a session
func NewLinkEventLogger(sessionID, central string, enabled bool) *LinkEventLogger {
	if !enabled {
		return &LinkEventLogger{enabled: false}
	}

	dir, err := util.GetSessionDir(sessionID)
	if err != nil {
		logger.Warn(fmt.Sprintf("%s link_events", util.ShortID(sessionID)), "Link event log disabled: %v", err)
		return &LinkEventLogger{enabled: false}
	}

	return &LinkEventLogger{
		central: central,
		logPath: filepath.Join(dir, "link_events.jsonl"),
		enabled: true,
	}
}

// Path returns the JSONL path, empty when disabled
func (l *LinkEventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.logPath
}

// Log writes a link event to the JSONL file
func (l *LinkEventLogger) Log(event LinkEvent) {
	if l == nil || !l.enabled {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixNano()
	}
	event.Central = l.central

	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn(l.central+" link_events", "Failed to marshal link event: %v", err)
		return
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Warn(l.central+" link_events", "Failed to open link event log: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		logger.Warn(l.central+" link_events", "Failed to write link event: %v", err)
	}
}

func (l *LinkEventLogger) LogConnected(hotspotID string, took time.Duration) {
	l.Log(LinkEvent{
		Event:     "connected",
		HotspotID: hotspotID,
		Details:   map[string]string{"duration_ms": fmt.Sprintf("%d", took.Milliseconds())},
	})
}

func (l *LinkEventLogger) LogConnectFailed(hotspotID string, err error) {
	l.Log(LinkEvent{Event: "connect_failed", HotspotID: hotspotID, Error: err.Error()})
}

func (l *LinkEventLogger) LogDisconnected(hotspotID, reason string) {
	l.Log(LinkEvent{Event: "disconnected", HotspotID: hotspotID, Details: map[string]string{"reason": reason}})
}

func (l *LinkEventLogger) LogPower(state PowerState) {
	l.Log(LinkEvent{Event: "power_changed", Details: map[string]string{"state": state.String()}})
}

func (l *LinkEventLogger) LogScan(event string, filter string) {
	l.Log(LinkEvent{Event: event, Details: map[string]string{"filter": filter}})
}
