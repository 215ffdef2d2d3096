package phone

import (
	"sync"
	"time"
)

// ConnectedHotspotState is the process-wide record of the connected
// hotspot. Only the ConnectionManager writes it; everyone else reads it or
// subscribes.
//
// Subscribers are called in write order on a dedicated goroutine, never
// while the writer holds a lock. A subscriber may still receive one
// notification after unsubscribing.
type ConnectedHotspotState struct {
	mu      sync.Mutex
	snap    HotspotSnapshot
	subs    []subscriber
	nextSub uint64
	queue   []HotspotSnapshot
	wake    chan struct{}
	done    chan struct{}
	start   sync.Once
	closed  bool
}

type subscriber struct {
	id uint64
	fn func(HotspotSnapshot)
}

// NewConnectedHotspotState creates the state in the disconnected status
func NewConnectedHotspotState() *ConnectedHotspotState {
	return &ConnectedHotspotState{
		snap: HotspotSnapshot{Status: StatusDisconnected, UpdatedAt: time.Now()},
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Get returns the current snapshot
func (s *ConnectedHotspotState) Get() HotspotSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers fn for every future write and returns a function
// that removes it.
func (s *ConnectedHotspotState) Subscribe(fn func(HotspotSnapshot)) func() {
	s.start.Do(func() { go s.dispatch() })

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// set replaces the snapshot. An address is only kept with the connected
// status, and a connected status without an address is stored as
// disconnected.
func (s *ConnectedHotspotState) set(snap HotspotSnapshot) HotspotSnapshot {
	if snap.Status == "" {
		snap.Status = StatusDisconnected
	}
	if snap.Status != StatusConnected {
		snap.Address = ""
	} else if snap.Address == "" {
		snap.Status = StatusDisconnected
		snap.DeviceID = ""
	}
	if snap.Status == StatusDisconnected {
		snap.DeviceID = ""
	}
	snap.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	if s.closed {
		return snap
	}
	if len(s.subs) > 0 {
		s.queue = append(s.queue, snap)
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return snap
}

// Close stops notifying subscribers. Writes already queued are still
// delivered; Get keeps working.
func (s *ConnectedHotspotState) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.wake)
	s.mu.Unlock()

	s.start.Do(func() { close(s.done) })
}

func (s *ConnectedHotspotState) reset() HotspotSnapshot {
	return s.set(HotspotSnapshot{Status: StatusDisconnected})
}

func (s *ConnectedHotspotState) dispatch() {
	defer close(s.done)
	for range s.wake {
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			batch := s.queue
			s.queue = nil
			subs := append([]subscriber(nil), s.subs...)
			s.mu.Unlock()

			for _, snap := range batch {
				for _, sub := range subs {
					sub.fn(snap)
				}
			}
		}
	}
}
