// Package api exposes the pairing flow and the connected hotspot over HTTP
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/util"
)

// Server serves the flow of one ConnectionManager
type Server struct {
	manager  *phone.ConnectionManager
	platform string
	prefix   string
	started  time.Time
}

// NewServer creates a server for manager. platform is reported by /health.
func NewServer(manager *phone.ConnectionManager, platform string) *Server {
	return &Server{
		manager:  manager,
		platform: platform,
		prefix:   util.ShortID(manager.SessionID()) + " API",
		started:  time.Now(),
	}
}

// Router builds the chi router with all routes mounted
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)
	r.Get("/hotspot/state", s.HotspotState)

	r.Route("/flow", func(r chi.Router) {
		r.Get("/", s.FlowState)
		r.Post("/start", s.StartFlow)
		r.Post("/scan", s.ScanAgain)
		r.Get("/candidates", s.Candidates)
		r.Post("/select/{id}", s.Select)
		r.Get("/attempt", s.Attempt)
		r.Post("/disconnect", s.Disconnect)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug(s.prefix, "%s %s → %d in %v [%s]",
			r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond),
			middleware.GetReqID(r.Context()))
	})
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]interface{}{
		"error": message,
		"code":  status,
	})
}

// flowErrorResponse writes err with the status its reason maps to
func (s *Server) flowErrorResponse(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.Error(s.prefix, "❌ %v", err)
	} else {
		logger.Debug(s.prefix, "Request refused (%d): %v", status, err)
	}

	body := map[string]interface{}{
		"error": err.Error(),
		"code":  status,
	}
	var fe *phone.FlowError
	if errors.As(err, &fe) {
		body["reason"] = phone.ReasonCode(fe.Reason)
		if fe.DeviceID != "" {
			body["device_id"] = fe.DeviceID
		}
	}
	jsonResponse(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, phone.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, phone.ErrRadioOff), errors.Is(err, phone.ErrRadioUnavailable):
		return http.StatusConflict
	case errors.Is(err, phone.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, phone.ErrUnnamedDevice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, phone.ErrNotScanned), errors.Is(err, phone.ErrFlowBusy),
		errors.Is(err, phone.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, phone.ErrConnectFailed), errors.Is(err, phone.ErrConfigureRejected):
		return http.StatusBadGateway
	case errors.Is(err, phone.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
