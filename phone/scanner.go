package phone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/user/hotspot-blue/logger"
)

// DefaultScanDuration is the length of one discovery window
const DefaultScanDuration = 2000 * time.Millisecond

// errScanAbandoned marks a shared scan stopped because every caller left
var errScanAbandoned = errors.New("scan abandoned")

// Scanner runs time-bounded discovery scans. Only one radio scan runs at a
// time; a caller arriving while a scan is in flight receives that scan's
// result.
//
// The shared scan is not tied to any one caller's context. Each caller stops
// waiting when its own context ends, and the radio scan is stopped once no
// caller is left.
type Scanner struct {
	transport     Transport
	serviceFilter string
	group         singleflight.Group
	prefix        string

	mu         sync.Mutex
	waiters    int
	cancelScan context.CancelFunc
}

// NewScanner creates a scanner filtered to the given service UUID
func NewScanner(transport Transport, serviceFilter, prefix string) *Scanner {
	return &Scanner{
		transport:     transport,
		serviceFilter: serviceFilter,
		prefix:        prefix + " Scanner",
	}
}

// Scan collects advertising devices for d and returns a fresh set. The set
// is built from scratch on every call.
func (s *Scanner) Scan(ctx context.Context, d time.Duration) (*DiscoverySet, error) {
	if d <= 0 {
		d = DefaultScanDuration
	}

	for {
		s.mu.Lock()
		s.waiters++
		s.mu.Unlock()

		ch := s.group.DoChan("scan", func() (interface{}, error) {
			return s.shared(ctx, d)
		})

		select {
		case r := <-ch:
			s.leave(false)
			if r.Shared {
				logger.Debug(s.prefix, "Joined in-flight scan")
			}
			if errors.Is(r.Err, errScanAbandoned) {
				// Joined a scan the other callers had already left
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				continue
			}
			if r.Err != nil {
				return nil, r.Err
			}
			return r.Val.(*DiscoverySet).Clone(), nil
		case <-ctx.Done():
			s.leave(true)
			return nil, ctx.Err()
		}
	}
}

func (s *Scanner) shared(ctx context.Context, d time.Duration) (*DiscoverySet, error) {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	s.mu.Lock()
	if s.waiters == 0 {
		s.mu.Unlock()
		return nil, errScanAbandoned
	}
	s.cancelScan = cancel
	s.mu.Unlock()

	set, err := s.scan(sctx, d)

	s.mu.Lock()
	s.cancelScan = nil
	s.mu.Unlock()
	if err != nil && sctx.Err() != nil {
		return nil, errScanAbandoned
	}
	return set, err
}

// leave drops one waiter; the last one to give up stops the radio scan
func (s *Scanner) leave(abandoned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters--
	if abandoned && s.waiters == 0 && s.cancelScan != nil {
		logger.Debug(s.prefix, "Every caller left, stopping scan")
		s.cancelScan()
	}
}

func (s *Scanner) scan(ctx context.Context, d time.Duration) (*DiscoverySet, error) {
	set := NewDiscoverySet()
	var mu sync.Mutex
	closed := false

	logger.Info(s.prefix, "🔍 Scanning for %s (window %v)", s.serviceFilter, d)
	started := time.Now()

	// Deadline is wall-clock based
	sctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := s.transport.ScanForDevices(sctx, s.serviceFilter, func(dev DiscoveredDevice) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		if dev.LastSeen.IsZero() {
			dev.LastSeen = time.Now()
		}
		set.Upsert(dev)
		logger.Trace(s.prefix, "📡 Advertisement from %s name=%q rssi=%d", dev.ID, dev.Name, dev.RSSI)
	})
	if stopErr := s.transport.StopScan(); stopErr != nil {
		logger.Debug(s.prefix, "StopScan: %v", stopErr)
	}

	mu.Lock()
	closed = true
	mu.Unlock()

	switch {
	case errors.Is(err, ErrRadioLost):
		logger.Warn(s.prefix, "Radio lost after %v, keeping %d devices", time.Since(started).Round(time.Millisecond), set.Len())
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err == nil, sctx.Err() != nil:
		// Window elapsed
	default:
		return nil, fmt.Errorf("scan: %w", err)
	}

	logger.Info(s.prefix, "✅ Scan complete: %d devices (%d named)", set.Len(), len(set.Candidates()))
	return set, nil
}
