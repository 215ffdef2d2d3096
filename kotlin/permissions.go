package kotlin

import (
	"context"
	"sync"
)

// Manifest permissions used by the onboarding flow
const (
	ACCESS_FINE_LOCATION = "android.permission.ACCESS_FINE_LOCATION"
	BLUETOOTH_SCAN       = "android.permission.BLUETOOTH_SCAN"
	BLUETOOTH_CONNECT    = "android.permission.BLUETOOTH_CONNECT"
)

// PackageManager results
const (
	PERMISSION_GRANTED = 0
	PERMISSION_DENIED  = -1
)

// PermissionDialog stands in for the system runtime-permission dialog. It
// returns true when the user allows the permission.
type PermissionDialog func(ctx context.Context, permission string) (bool, error)

// PermissionManager tracks runtime permission grants for one app
type PermissionManager struct {
	dialog PermissionDialog

	mu      sync.Mutex
	granted map[string]bool
	denied  map[string]bool
}

// NewPermissionManager returns a manager with nothing granted. A nil dialog
// denies every request.
func NewPermissionManager(dialog PermissionDialog) *PermissionManager {
	return &PermissionManager{
		dialog:  dialog,
		granted: make(map[string]bool),
		denied:  make(map[string]bool),
	}
}

// Grant marks a permission as granted, as if allowed in a previous session
func (m *PermissionManager) Grant(permission string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted[permission] = true
	delete(m.denied, permission)
}

// CheckSelfPermission returns PERMISSION_GRANTED or PERMISSION_DENIED
func (m *PermissionManager) CheckSelfPermission(permission string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.granted[permission] {
		return PERMISSION_GRANTED
	}
	return PERMISSION_DENIED
}

// ShouldShowRequestPermissionRationale reports whether the user has denied
// the permission before
func (m *PermissionManager) ShouldShowRequestPermissionRationale(permission string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.denied[permission]
}

// RequestPermissions shows the dialog for each permission not yet granted
// and returns the grant results in order.
func (m *PermissionManager) RequestPermissions(ctx context.Context, permissions []string) ([]int, error) {
	results := make([]int, len(permissions))
	for i, p := range permissions {
		if m.CheckSelfPermission(p) == PERMISSION_GRANTED {
			results[i] = PERMISSION_GRANTED
			continue
		}

		allowed := false
		if m.dialog != nil {
			var err error
			allowed, err = m.dialog(ctx, p)
			if err != nil {
				return nil, err
			}
		}

		m.mu.Lock()
		if allowed {
			m.granted[p] = true
			delete(m.denied, p)
			results[i] = PERMISSION_GRANTED
		} else {
			m.denied[p] = true
			results[i] = PERMISSION_DENIED
		}
		m.mu.Unlock()
	}
	return results, nil
}
