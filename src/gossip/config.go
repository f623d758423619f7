package gossip

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/hearsay/src/common"
	"github.com/sirupsen/logrus"
)

// Default gossip parameters.
const (
	DefaultInfectionTarget       = 3
	DefaultSaturationLimit       = 80
	DefaultFinishedEntryDuration = 60 * time.Second
	DefaultGossipRequestTimeout  = 10 * time.Second
	DefaultGetRemainderTimeout   = 5 * time.Second
	DefaultGetFromPeerTimeout    = 3 * time.Second
	DefaultMaxGossipAttempts     = 5
	DefaultSufficientPeers       = 5
)

// Config contains the parameters of the gossip engine.
type Config struct {
	// InfectionTarget is the desired number of new holders to reach in each
	// fan-out round.
	InfectionTarget int `mapstructure:"infection-target"`

	// SaturationLimit caps the effective infection target used in the
	// termination test, expressed as a percentage between 0 and 99.
	SaturationLimit int `mapstructure:"saturation-limit"`

	// FinishedEntryDuration is the retention window for Finished records
	// before they are evicted from the gossip table.
	FinishedEntryDuration time.Duration `mapstructure:"finished-entry-duration"`

	// GossipRequestTimeout is the deadline for an outstanding announce.
	GossipRequestTimeout time.Duration `mapstructure:"gossip-request-timeout"`

	// GetRemainderTimeout is the deadline for an outstanding remainder fetch.
	GetRemainderTimeout time.Duration `mapstructure:"get-remainder-timeout"`

	// GetFromPeerTimeout is the deadline for a one-shot fetch issued outside
	// the gossip path.
	GetFromPeerTimeout time.Duration `mapstructure:"get-from-peer-timeout"`

	// MaxGossipAttempts bounds the number of retries for a single request.
	// The bound is waived while the node has fewer than SufficientPeers
	// connections; an isolated or bootstrapping node must not give up
	// permanently.
	MaxGossipAttempts int `mapstructure:"max-gossip-attempts"`

	// SufficientPeers is the connection count below which retries are
	// unbounded.
	SufficientPeers int `mapstructure:"sufficient-peers"`

	// Logger is the logger used by the engine and its parts.
	Logger *logrus.Logger
}

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		InfectionTarget:       DefaultInfectionTarget,
		SaturationLimit:       DefaultSaturationLimit,
		FinishedEntryDuration: DefaultFinishedEntryDuration,
		GossipRequestTimeout:  DefaultGossipRequestTimeout,
		GetRemainderTimeout:   DefaultGetRemainderTimeout,
		GetFromPeerTimeout:    DefaultGetFromPeerTimeout,
		MaxGossipAttempts:     DefaultMaxGossipAttempts,
		SufficientPeers:       DefaultSufficientPeers,
		Logger:                logger,
	}
}

// NewTestConfig returns a Config with default values and a test logger.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.Logger = common.NewTestLogger(t)
	return config
}

// saturatedHolderCount is the holder count above which the saturation limit
// considers the infection target unreachable by new infections.
func (c *Config) saturatedHolderCount() int {
	limit := c.SaturationLimit
	if limit < 0 {
		limit = 0
	}
	if limit > 99 {
		limit = 99
	}
	return c.InfectionTarget * 100 / (100 - limit)
}
