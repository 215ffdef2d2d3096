package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/phone"
)

// maxAttemptWait bounds GET /flow/attempt?wait=
const maxAttemptWait = 60 * time.Second

type flowStateResponse struct {
	Step       string `json:"step"`
	Generation uint64 `json:"generation"`
	DeviceID   string `json:"device_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newFlowStateResponse(st phone.FlowState, last *phone.FlowError) flowStateResponse {
	resp := flowStateResponse{
		Step:       st.Step.String(),
		Generation: st.Generation,
		DeviceID:   st.DeviceID,
	}
	if st.Reason != nil {
		resp.Reason = phone.ReasonCode(st.Reason)
		if last != nil {
			resp.Error = last.Error()
		} else {
			resp.Error = st.Reason.Error()
		}
	}
	return resp
}

type candidatesResponse struct {
	ScanComplete bool                     `json:"scan_complete"`
	NoHotspots   bool                     `json:"no_hotspots"`
	Seen         int                      `json:"seen"`
	Candidates   []phone.DiscoveredDevice `json:"candidates"`
}

type attemptResponse struct {
	DeviceID   string `json:"device_id"`
	Name       string `json:"name"`
	Generation uint64 `json:"generation"`
	Pending    bool   `json:"pending"`
	Address    string `json:"address,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Health reports liveness and the running platform
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"platform": s.platform,
		"session":  s.manager.SessionID(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
	})
}

// HotspotState returns the current ConnectedHotspotState value. The address
// is only included while the hotspot is connected.
func (s *Server) HotspotState(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Store().Get()
	body := map[string]interface{}{
		"status":     snap.Status,
		"updated_at": snap.UpdatedAt,
	}
	if snap.DeviceID != "" {
		body["device_id"] = snap.DeviceID
	}
	if addr, ok := snap.ValidAddress(); ok {
		body["address"] = addr
	}
	jsonResponse(w, http.StatusOK, body)
}

// FlowState returns the step the flow is in
func (s *Server) FlowState(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, newFlowStateResponse(s.manager.State(), s.manager.LastFailure()))
}

// StartFlow runs the permission check, radio check and one scan window.
// The response carries the candidate list.
func (s *Server) StartFlow(w http.ResponseWriter, r *http.Request) {
	logger.Info(s.prefix, "▶️  Flow start requested")
	if err := s.manager.Start(r.Context()); err != nil {
		s.flowErrorResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, s.candidates())
}

// ScanAgain discards the candidate list and scans again
func (s *Server) ScanAgain(w http.ResponseWriter, r *http.Request) {
	logger.Info(s.prefix, "🔄 Scan again requested")
	if err := s.manager.ScanAgain(r.Context()); err != nil {
		s.flowErrorResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, s.candidates())
}

// Candidates returns the named devices of the last completed scan
func (s *Server) Candidates(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.candidates())
}

func (s *Server) candidates() candidatesResponse {
	resp := candidatesResponse{Candidates: []phone.DiscoveredDevice{}}
	set := s.manager.DiscoverySet()
	if set == nil {
		return resp
	}
	resp.ScanComplete = true
	resp.Seen = set.Len()
	if c := set.Candidates(); len(c) > 0 {
		resp.Candidates = c
	}
	resp.NoHotspots = len(resp.Candidates) == 0
	return resp
}

// Select starts connecting to a candidate. The attempt runs in the
// background; poll /flow/attempt for its outcome.
func (s *Server) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		errorResponse(w, http.StatusBadRequest, "device id is required")
		return
	}
	a, err := s.manager.Select(id)
	if err != nil {
		s.flowErrorResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, map[string]interface{}{
		"device_id":  a.Device.ID,
		"name":       a.Device.Name,
		"generation": a.Generation,
	})
}

// Attempt reports the most recent attempt. ?wait=<duration> blocks until it
// has an outcome or the wait elapses.
func (s *Server) Attempt(w http.ResponseWriter, r *http.Request) {
	a := s.manager.CurrentAttempt()
	if a == nil {
		errorResponse(w, http.StatusNotFound, "no attempt")
		return
	}

	if v := r.URL.Query().Get("wait"); v != "" {
		wait, err := time.ParseDuration(v)
		if err != nil || wait < 0 {
			errorResponse(w, http.StatusBadRequest, "invalid wait duration")
			return
		}
		if wait > maxAttemptWait {
			wait = maxAttemptWait
		}
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		_, _ = a.Wait(ctx)
		cancel()
	}

	resp := attemptResponse{
		DeviceID:   a.Device.ID,
		Name:       a.Device.Name,
		Generation: a.Generation,
	}
	select {
	case <-a.Done():
		if err := a.Err(); err != nil {
			resp.Error = err.Error()
			resp.Reason = phone.ReasonCode(err)
		} else {
			resp.Address = string(a.Address())
		}
	default:
		resp.Pending = true
	}
	jsonResponse(w, http.StatusOK, resp)
}

// Disconnect drops the hotspot link and resets ConnectedHotspotState
func (s *Server) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Disconnect(r.Context()); err != nil {
		// State is already reset; the transport error is informational
		logger.Warn(s.prefix, "Disconnect: %v", err)
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status": s.manager.Store().Get().Status,
	})
}
