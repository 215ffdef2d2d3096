package phone

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestConnectedHotspotState_Normalizes(t *testing.T) {
	s := NewConnectedHotspotState()

	if got := s.Get(); got.Status != StatusDisconnected {
		t.Fatalf("Expected initial disconnected, got %s", got.Status)
	}

	got := s.set(HotspotSnapshot{Status: StatusConnecting, Address: "stale", DeviceID: "hs-1"})
	if got.Address != "" || got.DeviceID != "hs-1" {
		t.Errorf("Connecting must drop the address and keep the device, got %+v", got)
	}

	got = s.set(HotspotSnapshot{Status: StatusConnected, DeviceID: "hs-1"})
	if got.Status != StatusDisconnected || got.DeviceID != "" {
		t.Errorf("Connected without address must be stored as disconnected, got %+v", got)
	}

	got = s.set(HotspotSnapshot{Status: StatusConnected, Address: "addr-1", DeviceID: "hs-1"})
	if addr, ok := got.ValidAddress(); !ok || addr != "addr-1" {
		t.Errorf("Expected valid address, got %+v", got)
	}

	got = s.reset()
	if _, ok := got.ValidAddress(); ok {
		t.Errorf("Reset must clear the address")
	}
}

func TestConnectedHotspotState_SubscribersSeeWritesInOrder(t *testing.T) {
	s := NewConnectedHotspotState()
	ch := make(chan HotspotSnapshot, 100)
	unsubscribe := s.Subscribe(func(snap HotspotSnapshot) { ch <- snap })
	defer unsubscribe()

	const writes = 50
	for i := 0; i < writes; i++ {
		s.set(HotspotSnapshot{Status: StatusConnected, Address: DeviceAddress(fmt.Sprintf("addr-%d", i)), DeviceID: "hs"})
	}

	for i := 0; i < writes; i++ {
		select {
		case snap := <-ch:
			want := DeviceAddress(fmt.Sprintf("addr-%d", i))
			if snap.Address != want {
				t.Fatalf("Write %d delivered out of order: %s", i, snap.Address)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out after %d notifications", i)
		}
	}
	t.Logf("✅ %d notifications in order", writes)
}

func TestConnectedHotspotState_Unsubscribe(t *testing.T) {
	s := NewConnectedHotspotState()
	first := make(chan HotspotSnapshot, 10)
	second := make(chan HotspotSnapshot, 10)

	stopFirst := s.Subscribe(func(snap HotspotSnapshot) { first <- snap })
	stopSecond := s.Subscribe(func(snap HotspotSnapshot) { second <- snap })
	defer stopSecond()

	s.set(HotspotSnapshot{Status: StatusConnecting, DeviceID: "hs-1"})
	<-first
	<-second

	stopFirst()
	s.set(HotspotSnapshot{Status: StatusConnecting, DeviceID: "hs-2"})
	<-second

	select {
	case snap := <-first:
		t.Errorf("Unsubscribed callback received %+v", snap)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestConnectedHotspotState_SubscriberCanRead(t *testing.T) {
	s := NewConnectedHotspotState()
	done := make(chan HotspotSnapshot, 1)
	unsubscribe := s.Subscribe(func(snap HotspotSnapshot) {
		// Get must not deadlock inside a callback
		done <- s.Get()
	})
	defer unsubscribe()

	s.set(HotspotSnapshot{Status: StatusConnected, Address: "addr", DeviceID: "hs"})
	select {
	case snap := <-done:
		if snap.Address != "addr" {
			t.Errorf("Expected addr, got %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Callback deadlocked")
	}
}

func TestConnectedHotspotState_CloseStopsDispatcher(t *testing.T) {
	s := NewConnectedHotspotState()
	got := make(chan HotspotSnapshot, 4)
	s.Subscribe(func(snap HotspotSnapshot) { got <- snap })

	s.set(HotspotSnapshot{Status: StatusConnecting, DeviceID: "hs-1"})
	select {
	case snap := <-got:
		if snap.Status != StatusConnecting {
			t.Fatalf("Expected connecting, got %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("Subscriber not notified")
	}

	s.Close()
	s.Close()
	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("Dispatcher still running after Close")
	}

	s.set(HotspotSnapshot{Address: "addr-1", Status: StatusConnected, DeviceID: "hs-1"})
	if snap := s.Get(); snap.Address != "addr-1" {
		t.Errorf("Get should keep working after Close, got %+v", snap)
	}
	select {
	case snap := <-got:
		t.Errorf("Notified after Close: %+v", snap)
	case <-time.After(30 * time.Millisecond):
	}
	t.Logf("✅ Dispatcher exits on Close")
}

func TestConnectedHotspotState_CloseWithoutSubscribers(t *testing.T) {
	s := NewConnectedHotspotState()
	s.Close()
	select {
	case <-s.done:
	default:
		t.Fatal("Close without a dispatcher should still mark it done")
	}
	s.Subscribe(func(HotspotSnapshot) {})
	s.reset()
}

func TestConnectedHotspotState_ResetAndClosedByManager(t *testing.T) {
	transport := newFakeTransport(hotspot("hs-1", "Hotspot 1"))
	m := NewConnectionManager(testPlatform(transport), nil, testOptions())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	a, _ := m.Select("hs-1")
	if _, err := waitAttempt(t, a); err != nil {
		t.Fatalf("Attempt failed: %v", err)
	}
	if err := m.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if snap := m.Store().Get(); snap.Status != StatusDisconnected || snap.DeviceID != "" {
		t.Errorf("Expected reset state, got %+v", snap)
	}

	m.Close()
	select {
	case <-m.Store().done:
	case <-time.After(time.Second):
		t.Fatal("Manager did not close the state it created")
	}
}
