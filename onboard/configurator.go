package onboard

import (
	"bytes"
	"context"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/user/hotspot-blue/logger"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/wire"
)

// Onboarding GATT layout
const (
	ServiceUUID               = phone.HotspotServiceUUID
	OnboardingAddressCharUUID = "d083b2bd-be16-4600-b397-61512ca2f5ad"

	MaxAddressLen = 128
)

// CharacteristicReader reads one characteristic value over a live link
type CharacteristicReader interface {
	ReadCharacteristic(ctx context.Context, service, char string) ([]byte, error)
}

// Configurator performs the configure handshake: it reads the address the
// hotspot assigns itself for onboarding.
type Configurator struct {
	Service        string
	Characteristic string
}

// NewConfigurator returns a configurator for the standard onboarding layout
func NewConfigurator() *Configurator {
	return &Configurator{
		Service:        ServiceUUID,
		Characteristic: OnboardingAddressCharUUID,
	}
}

// Configure reads and validates the onboarding address. Every failure wraps
// phone.ErrConfigureRejected.
func (c *Configurator) Configure(ctx context.Context, r CharacteristicReader) (phone.DeviceAddress, error) {
	started := time.Now()
	raw, err := r.ReadCharacteristic(ctx, c.Service, c.Characteristic)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", phone.ErrConfigureRejected, ctx.Err())
		}
		return "", fmt.Errorf("%w: read onboarding address: %v", phone.ErrConfigureRejected, err)
	}

	addr, err := ParseAddress(raw)
	if err != nil {
		return "", err
	}
	logger.Debug("onboard", "Read onboarding address %s in %v", addr, time.Since(started).Round(time.Millisecond))
	return addr, nil
}

// ParseAddress validates a raw characteristic value. Trailing NUL padding is
// dropped; the rest must be printable UTF-8 without spaces.
func ParseAddress(raw []byte) (phone.DeviceAddress, error) {
	raw = bytes.TrimRight(raw, "\x00")
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty onboarding address", phone.ErrConfigureRejected)
	}
	if len(raw) > MaxAddressLen {
		return "", fmt.Errorf("%w: onboarding address is %d bytes", phone.ErrConfigureRejected, len(raw))
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: onboarding address is not UTF-8", phone.ErrConfigureRejected)
	}
	for _, r := range string(raw) {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return "", fmt.Errorf("%w: onboarding address contains %q", phone.ErrConfigureRejected, r)
		}
	}
	return phone.DeviceAddress(raw), nil
}

// Provision makes a simulated hotspot serve addr as its onboarding address
func Provision(h *wire.Hotspot, addr phone.DeviceAddress) {
	h.SetCharacteristic(ServiceUUID, OnboardingAddressCharUUID, []byte(addr))
}

// NewSimulatedHotspot creates a simulated hotspot advertising the onboarding
// service and serving addr
func NewSimulatedHotspot(name string, addr phone.DeviceAddress) *wire.Hotspot {
	h := wire.NewHotspot(name, ServiceUUID)
	if addr != "" {
		Provision(h, addr)
	}
	return h
}
