//go:build linux

package bluez

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/user/hotspot-blue/phone"
)

// fakeProperties is an in-memory Adapter1
type fakeProperties struct {
	mu      sync.Mutex
	props   map[string]interface{}
	getErr  error
	setErr  error
	onSet   func(prop string, val interface{})
	setCall int
}

func (f *fakeProperties) Get(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return dbus.Variant{}, f.getErr
	}
	v, ok := f.props[prop]
	if !ok {
		return dbus.Variant{}, dbus.Error{Name: "org.freedesktop.DBus.Error.InvalidArgs"}
	}
	return dbus.MakeVariant(v), nil
}

func (f *fakeProperties) Set(path dbus.ObjectPath, iface, prop string, val interface{}) error {
	f.mu.Lock()
	f.setCall++
	if f.setErr != nil {
		f.mu.Unlock()
		return f.setErr
	}
	onSet := f.onSet
	f.mu.Unlock()
	if onSet != nil {
		onSet(prop, val)
	}
	return nil
}

func (f *fakeProperties) put(prop string, val interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[prop] = val
}

func newFakeRadio(props map[string]interface{}) (*Radio, *fakeProperties) {
	f := &fakeProperties{props: props}
	return &Radio{props: f, path: DefaultAdapterPath, poll: 5 * time.Millisecond}, f
}

func TestRadioState(t *testing.T) {
	cases := []struct {
		name  string
		props map[string]interface{}
		want  phone.RadioState
	}{
		{"powered", map[string]interface{}{"Powered": true}, phone.RadioPoweredOn},
		{"off old bluez", map[string]interface{}{"Powered": false}, phone.RadioPoweredOff},
		{"off", map[string]interface{}{"Powered": false, "PowerState": "off"}, phone.RadioPoweredOff},
		{"rfkill", map[string]interface{}{"Powered": false, "PowerState": "off-blocked"}, phone.RadioUnauthorized},
		{"turning on", map[string]interface{}{"Powered": false, "PowerState": "off-enabling"}, phone.RadioPoweredOff},
	}
	for _, tc := range cases {
		r, _ := newFakeRadio(tc.props)
		got, err := r.State(context.Background())
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestRadioMissingAdapterIsUnsupported(t *testing.T) {
	r, f := newFakeRadio(nil)
	f.getErr = dbus.Error{Name: "org.freedesktop.DBus.Error.UnknownObject"}

	got, err := r.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if got != phone.RadioUnsupported {
		t.Fatalf("Expected Unsupported, got %s", got)
	}

	f.getErr = errors.New("bus gone")
	if _, err := r.State(context.Background()); err == nil {
		t.Fatal("Expected an error for a non-D-Bus failure")
	}
}

func TestRadioEnableWaitsForPowered(t *testing.T) {
	r, f := newFakeRadio(map[string]interface{}{"Powered": false})
	f.onSet = func(prop string, val interface{}) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			f.put(prop, val)
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Enable(ctx); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if got, _ := r.State(ctx); got != phone.RadioPoweredOn {
		t.Fatalf("Expected PoweredOn, got %s", got)
	}
	t.Logf("✅ Adapter powered after %d Set call(s)", f.setCall)
}

func TestRadioEnableHonoursContext(t *testing.T) {
	r, _ := newFakeRadio(map[string]interface{}{"Powered": false})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := r.Enable(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
}

func TestRadioEnableRefused(t *testing.T) {
	r, f := newFakeRadio(map[string]interface{}{"Powered": false})
	f.setErr = dbus.Error{Name: "org.bluez.Error.Failed"}

	if err := r.Enable(context.Background()); err == nil {
		t.Fatal("Expected Set failure to surface")
	}
	if !r.CanEnable() || r.SettingsURL(phone.RadioPoweredOff) != "" {
		t.Error("Linux can enable and has no settings link")
	}
}
