package phone

import (
	"errors"
	"fmt"
)

// Failure reasons. A FlowError carries one of these as its Reason.
var (
	ErrPermissionDenied  = errors.New("location permission denied")
	ErrRadioUnavailable  = errors.New("bluetooth radio unavailable")
	ErrRadioOff          = errors.New("bluetooth radio is off")
	ErrConnectFailed     = errors.New("connect failed")
	ErrConfigureRejected = errors.New("configuration rejected")
	ErrSuperseded        = errors.New("attempt superseded by a newer selection")
)

var (
	// ErrRadioLost is returned by transports when scanning stops because the
	// radio went away. The scanner treats it as an early end of the window.
	ErrRadioLost = errors.New("radio lost")

	ErrFlowBusy      = errors.New("flow is already checking or scanning")
	ErrNotScanned    = errors.New("no completed scan to select from")
	ErrUnknownDevice = errors.New("device not in discovery set")
	ErrUnnamedDevice = errors.New("device has no advertised name")
	ErrClosed        = errors.New("connection manager closed")
)

// FlowError is a failure of the pairing flow
type FlowError struct {
	Reason   error
	DeviceID string
	Err      error
}

func (e *FlowError) Error() string {
	var msg string
	switch {
	case e.Err == nil:
		msg = e.Reason.Error()
	case errors.Is(e.Err, e.Reason):
		msg = e.Err.Error()
	default:
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.DeviceID != "" {
		msg = fmt.Sprintf("%s (device %s)", msg, e.DeviceID)
	}
	return msg
}

func (e *FlowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// Terminal reports whether the failure ends the flow until the user
// re-enters it, as opposed to a per-device failure that keeps the
// candidate list.
func (e *FlowError) Terminal() bool {
	return errors.Is(e.Reason, ErrPermissionDenied) ||
		errors.Is(e.Reason, ErrRadioUnavailable) ||
		errors.Is(e.Reason, ErrRadioOff)
}

func newFlowError(reason error, deviceID string, err error) *FlowError {
	return &FlowError{Reason: reason, DeviceID: deviceID, Err: err}
}

// ReasonCode returns the stable machine name of the failure reason err
// carries, or "" for nil.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrRadioUnavailable):
		return "radio_unavailable"
	case errors.Is(err, ErrRadioOff):
		return "radio_off"
	case errors.Is(err, ErrConnectFailed):
		return "connect_failed"
	case errors.Is(err, ErrConfigureRejected):
		return "configure_rejected"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "error"
	}
}
