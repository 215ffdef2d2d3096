package wire

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// SimulationConfig controls the realism of the simulated radio
type SimulationConfig struct {
	// Connection timing (in milliseconds)
	MinConnectionDelay    int     // Default: 30ms
	MaxConnectionDelay    int     // Default: 100ms
	ConnectionFailureRate float64 // Default: 0.016

	// Discovery timing (in milliseconds)
	AdvertisingInterval int // Default: 100ms
	MinDiscoveryDelay   int // Default: 100ms
	MaxDiscoveryDelay   int // Default: 1000ms

	// Radio characteristics
	EnableRSSI   bool // Default: true
	BaseRSSI     int  // Default: -50 dBm
	RSSIVariance int  // Default: 10 dBm

	// Characteristic reads
	PacketLossRate float64 // Default: 0.015
	MaxRetries     int     // Default: 3
	RetryDelay     int     // Default: 50ms

	DisconnectingDelay int // Default: 20ms

	// Deterministic mode for testing
	Deterministic bool
	Seed          int64
}

// DefaultSimulationConfig returns realistic radio timing with occasional
// connection failures
func DefaultSimulationConfig() *SimulationConfig {
	return &SimulationConfig{
		MinConnectionDelay:    30,
		MaxConnectionDelay:    100,
		ConnectionFailureRate: 0.016,

		AdvertisingInterval: 100,
		MinDiscoveryDelay:   100,
		MaxDiscoveryDelay:   1000,

		EnableRSSI:   true,
		BaseRSSI:     -50,
		RSSIVariance: 10,

		PacketLossRate: 0.015,
		MaxRetries:     3,
		RetryDelay:     50,

		DisconnectingDelay: 20,
	}
}

// PerfectSimulationConfig returns a fast, loss-free config for tests
func PerfectSimulationConfig() *SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.MinConnectionDelay = 0
	cfg.MaxConnectionDelay = 0
	cfg.ConnectionFailureRate = 0
	cfg.AdvertisingInterval = 5
	cfg.MinDiscoveryDelay = 0
	cfg.MaxDiscoveryDelay = 0
	cfg.EnableRSSI = false
	cfg.PacketLossRate = 0
	cfg.RetryDelay = 0
	cfg.DisconnectingDelay = 0
	cfg.Deterministic = true
	return cfg
}

// Simulator draws timing and loss decisions. Safe for concurrent use.
type Simulator struct {
	config *SimulationConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSimulator creates a simulator; a nil config uses the defaults
func NewSimulator(config *SimulationConfig) *Simulator {
	if config == nil {
		config = DefaultSimulationConfig()
	}

	var rng *rand.Rand
	if config.Deterministic {
		rng = rand.New(rand.NewSource(config.Seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Simulator{
		config: config,
		rng:    rng,
	}
}

// Config returns the active configuration
func (s *Simulator) Config() *SimulationConfig {
	return s.config
}

func (s *Simulator) float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Simulator) between(min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Millisecond
	}
	s.mu.Lock()
	n := min + s.rng.Intn(max-min)
	s.mu.Unlock()
	return time.Duration(n) * time.Millisecond
}

// ShouldConnectionSucceed returns true if a connection attempt should succeed
func (s *Simulator) ShouldConnectionSucceed() bool {
	return s.float64() >= s.config.ConnectionFailureRate
}

// ConnectionDelay returns how long link establishment takes
func (s *Simulator) ConnectionDelay() time.Duration {
	return s.between(s.config.MinConnectionDelay, s.config.MaxConnectionDelay)
}

// DiscoveryDelay returns how long until a scanner first hears an advertiser
func (s *Simulator) DiscoveryDelay() time.Duration {
	return s.between(s.config.MinDiscoveryDelay, s.config.MaxDiscoveryDelay)
}

// AdvertisingInterval returns the spacing of advertising events
func (s *Simulator) AdvertisingInterval() time.Duration {
	if s.config.AdvertisingInterval <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(s.config.AdvertisingInterval) * time.Millisecond
}

// ShouldPacketSucceed returns true if one read exchange gets through
func (s *Simulator) ShouldPacketSucceed() bool {
	return s.float64() >= s.config.PacketLossRate
}

// RetryDelay returns the wait between lost read exchanges
func (s *Simulator) RetryDelay() time.Duration {
	return time.Duration(s.config.RetryDelay) * time.Millisecond
}

// GenerateRSSI returns an RSSI for an advertiser at distance metres
func (s *Simulator) GenerateRSSI(distance float64) int {
	if !s.config.EnableRSSI {
		return s.config.BaseRSSI
	}
	if distance < 1 {
		distance = 1
	}

	// RSSI decreases by ~20dB per 10x distance
	pathLoss := 20 * math.Log10(distance)
	rssi := float64(s.config.BaseRSSI) - pathLoss

	if s.config.RSSIVariance > 0 {
		s.mu.Lock()
		variance := s.rng.Intn(s.config.RSSIVariance*2) - s.config.RSSIVariance
		s.mu.Unlock()
		rssi += float64(variance)
	}

	// Clamp to realistic BLE range (-100 to -20 dBm)
	if rssi < -100 {
		rssi = -100
	} else if rssi > -20 {
		rssi = -20
	}

	return int(rssi)
}

// DisconnectDelay returns delay for disconnection
func (s *Simulator) DisconnectDelay() time.Duration {
	return time.Duration(s.config.DisconnectingDelay) * time.Millisecond
}

// ConnectionState represents link states
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}
