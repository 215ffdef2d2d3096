package phone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReasonCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrPermissionDenied, "permission_denied"},
		{fmt.Errorf("%w: prompt declined", ErrRadioOff), "radio_off"},
		{newFlowError(ErrRadioUnavailable, "", nil), "radio_unavailable"},
		{newFlowError(ErrConnectFailed, "dev-1", context.DeadlineExceeded), "connect_failed"},
		{newFlowError(ErrConfigureRejected, "dev-1", errors.New("empty address")), "configure_rejected"},
		{ErrSuperseded, "superseded"},
		{ErrClosed, "closed"},
		{errors.New("boom"), "error"},
	}
	for _, tc := range cases {
		if got := ReasonCode(tc.err); got != tc.want {
			t.Errorf("ReasonCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestFlowErrorMessageAndUnwrap(t *testing.T) {
	fe := newFlowError(ErrConnectFailed, "dev-9", context.DeadlineExceeded)
	if !errors.Is(fe, ErrConnectFailed) || !errors.Is(fe, context.DeadlineExceeded) {
		t.Fatalf("FlowError should unwrap to reason and cause: %v", fe)
	}
	if msg := fe.Error(); !strings.Contains(msg, "connect failed") || !strings.Contains(msg, "dev-9") {
		t.Errorf("Unexpected message %q", msg)
	}

	wrapped := newFlowError(ErrRadioOff, "", fmt.Errorf("%w: declined", ErrRadioOff))
	if msg := wrapped.Error(); strings.Count(msg, "bluetooth radio is off") != 1 {
		t.Errorf("Reason repeated in %q", msg)
	}
	if !wrapped.Terminal() {
		t.Error("Radio off should be terminal")
	}
	if fe.Terminal() {
		t.Error("Connect failure keeps the candidate list")
	}

	var target *FlowError
	if !errors.As(fmt.Errorf("select: %w", fe), &target) || target.DeviceID != "dev-9" {
		t.Errorf("errors.As lost the device id: %+v", target)
	}
	t.Logf("✅ %v", fe)
}
