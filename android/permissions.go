package android

import (
	"context"

	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/phone"
)

// LocationPermission maps ACCESS_FINE_LOCATION to a phone.PermissionProvider.
// Android requires it for BLE scan results.
type LocationPermission struct {
	perms *kotlin.PermissionManager
}

func (p *LocationPermission) Required() bool {
	return true
}

func (p *LocationPermission) QueryLocationPermission(ctx context.Context) (phone.PermissionStatus, error) {
	if p.perms == nil {
		return phone.PermissionDenied, nil
	}
	if p.perms.CheckSelfPermission(kotlin.ACCESS_FINE_LOCATION) == kotlin.PERMISSION_GRANTED {
		return phone.PermissionGranted, nil
	}
	if p.perms.ShouldShowRequestPermissionRationale(kotlin.ACCESS_FINE_LOCATION) {
		return phone.PermissionDenied, nil
	}
	return phone.PermissionUndetermined, nil
}

func (p *LocationPermission) RequestLocationPermission(ctx context.Context) (phone.PermissionStatus, error) {
	if p.perms == nil {
		return phone.PermissionDenied, nil
	}
	results, err := p.perms.RequestPermissions(ctx, []string{kotlin.ACCESS_FINE_LOCATION})
	if err != nil {
		return phone.PermissionUndetermined, err
	}
	if results[0] == kotlin.PERMISSION_GRANTED {
		return phone.PermissionGranted, nil
	}
	return phone.PermissionDenied, nil
}
