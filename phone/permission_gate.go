package phone

import (
	"context"
	"fmt"

	"github.com/user/hotspot-blue/logger"
)

// PermissionGate resolves whether scanning is allowed by the OS location
// permission. A denial is returned as-is; it is never retried here.
type PermissionGate struct {
	provider PermissionProvider
	prefix   string
}

// NewPermissionGate creates a gate. A nil provider means the platform has no
// location prerequisite.
func NewPermissionGate(provider PermissionProvider, prefix string) *PermissionGate {
	return &PermissionGate{provider: provider, prefix: prefix + " Permission"}
}

// CheckLocationPermission queries the permission and, when it is not yet
// granted, shows the OS dialog once.
func (g *PermissionGate) CheckLocationPermission(ctx context.Context) (bool, error) {
	if g.provider == nil || !g.provider.Required() {
		return true, nil
	}

	status, err := g.provider.QueryLocationPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("query location permission: %w", err)
	}
	if status == PermissionGranted {
		logger.Debug(g.prefix, "📍 Location permission already granted")
		return true, nil
	}

	logger.Info(g.prefix, "📍 Requesting location permission (was %s)", status)
	status, err = g.provider.RequestLocationPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("request location permission: %w", err)
	}
	if status != PermissionGranted {
		logger.Warn(g.prefix, "🚫 Location permission %s", status)
		return false, nil
	}
	return true, nil
}
