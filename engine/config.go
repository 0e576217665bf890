package engine

import (
	"errors"

	"github.com/blockberries/chainberry/evidence"
)

// Config errors
var (
	ErrInvalidConfig = errors.New("invalid engine config")
)

// Config holds the node-wide engine settings. Per-chain consensus
// policy (rounds, quorums, timeouts) lives in each chain's
// ChainOwnership, not here.
type Config struct {
	// Evidence bounds the equivocation evidence pool.
	Evidence evidence.Config
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Evidence: evidence.DefaultConfig(),
	}
}

// ValidateBasic checks the configuration.
func (c Config) ValidateBasic() error {
	if c.Evidence.MaxAge < 0 || c.Evidence.MaxPending < 0 {
		return ErrInvalidConfig
	}
	return nil
}
