package onboard

import (
	"context"
	"errors"
	"testing"

	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/wire"
)

type staticReader struct {
	value []byte
	err   error
	asked string
}

func (r *staticReader) ReadCharacteristic(ctx context.Context, service, char string) ([]byte, error) {
	r.asked = service + "/" + char
	return r.value, r.err
}

func TestConfigure_ReadsAddress(t *testing.T) {
	r := &staticReader{value: []byte("addr-123\x00\x00")}
	addr, err := NewConfigurator().Configure(context.Background(), r)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if addr != "addr-123" {
		t.Errorf("Expected addr-123, got %q", addr)
	}
	if r.asked != ServiceUUID+"/"+OnboardingAddressCharUUID {
		t.Errorf("Read wrong characteristic: %s", r.asked)
	}
}

func TestConfigure_ReadError(t *testing.T) {
	r := &staticReader{err: errors.New("gatt error 0x0e")}
	_, err := NewConfigurator().Configure(context.Background(), r)
	if !errors.Is(err, phone.ErrConfigureRejected) {
		t.Fatalf("Expected ErrConfigureRejected, got %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name  string
		raw   []byte
		valid bool
	}{
		{"plain", []byte("addr-123"), true},
		{"base58", []byte("112qB3YaH5bZkCnKA5uRH7tBtGNv2Y5B4smv1jsmvGUzgKT71QpE"), true},
		{"empty", nil, false},
		{"only padding", []byte{0, 0, 0}, false},
		{"space", []byte("addr 123"), false},
		{"newline", []byte("addr\n"), false},
		{"control", []byte{'a', 0x01}, false},
		{"bad utf8", []byte{0xff, 0xfe}, false},
		{"too long", make([]byte, MaxAddressLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			if tt.name == "too long" {
				for i := range raw {
					raw[i] = 'a'
				}
			}
			_, err := ParseAddress(raw)
			if tt.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.valid && !errors.Is(err, phone.ErrConfigureRejected) {
				t.Errorf("Expected ErrConfigureRejected, got %v", err)
			}
		})
	}
}

func TestConfigure_OverSimulatedLink(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	h := NewSimulatedHotspot("Helium Hotspot", "addr-123")
	air.AddHotspot(h)

	conn, err := air.NewCentral("phone").Connect(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect()

	addr, err := NewConfigurator().Configure(context.Background(), conn)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if addr != "addr-123" {
		t.Errorf("Expected addr-123, got %s", addr)
	}
	t.Logf("✅ Configured %s as %s", h.ID, addr)
}

func TestConfigure_UnprovisionedHotspot(t *testing.T) {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	h := NewSimulatedHotspot("Blank", "")
	air.AddHotspot(h)

	conn, err := air.NewCentral("phone").Connect(context.Background(), h.ID)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := NewConfigurator().Configure(context.Background(), conn); !errors.Is(err, phone.ErrConfigureRejected) {
		t.Fatalf("Expected ErrConfigureRejected, got %v", err)
	}
}
