package types

import (
	"errors"
	"fmt"
	"time"
)

// Ownership errors
var (
	ErrNoOwners       = errors.New("chain has no owners")
	ErrInvalidWeight  = errors.New("owner weight must be positive")
	ErrDuplicateOwner = errors.New("duplicate owner")
	ErrUnsortedOwners = errors.New("owners must be sorted by address")
	ErrWeightOverflow = errors.New("total owner weight overflow")
	ErrBadFastQuorum  = errors.New("fast quorum exceeds super owner count")
)

// MaxTotalWeight bounds the sum of owner weights so quorum
// arithmetic can never overflow.
const MaxTotalWeight = uint64(1) << 60

// OwnerWeight pairs an owner address with its voting weight.
type OwnerWeight struct {
	Owner  Owner  `cramberry:"1"`
	Weight uint64 `cramberry:"2"`
}

// TimeoutConfig controls round deadlines for a chain.
//
// A round's timeout is BaseTimeout + TimeoutIncrement * round index,
// capped at MaxTimeout. FastRoundDuration of zero means the fast
// round never times out on its own; escalation must then come from
// an explicit quorum of owners. FallbackDuration gates the handoff
// to validator rounds.
type TimeoutConfig struct {
	FastRoundDuration Duration `cramberry:"1"`
	BaseTimeout       Duration `cramberry:"2"`
	TimeoutIncrement  Duration `cramberry:"3"`
	MaxTimeout        Duration `cramberry:"4"`
	FallbackDuration  Duration `cramberry:"5"`
}

// DefaultTimeoutConfig returns the timeout configuration used when
// a chain's creator does not specify one.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		FastRoundDuration: Duration{}, // fast round does not expire
		BaseTimeout:       DurationFromGo(10 * time.Second),
		TimeoutIncrement:  DurationFromGo(1 * time.Second),
		MaxTimeout:        DurationFromGo(60 * time.Second),
		FallbackDuration:  DurationFromGo(24 * time.Hour),
	}
}

// ChainOwnership is the per-chain consensus configuration: who may
// drive the chain, with what weights, and how rounds escalate.
//
// SuperOwners and Owners are kept sorted by address. Sorted order
// is part of the canonical encoding, so two nodes configuring the
// same ownership produce the same hash.
type ChainOwnership struct {
	SuperOwners []Owner       `cramberry:"1"`
	Owners      []OwnerWeight `cramberry:"2"`
	// MultiLeaderRounds is how many rounds rotate leadership among
	// owners before falling back to single-leader rounds.
	MultiLeaderRounds uint32 `cramberry:"3"`
	// OpenMultiLeaderRounds lets any owner lead a multi-leader
	// round instead of only the rotation target.
	OpenMultiLeaderRounds bool `cramberry:"4"`
	// FastQuorumWeight is the number of super owners whose votes
	// confirm a fast-round proposal. Zero means unanimity. The
	// fraction is policy, so it is explicit configuration rather
	// than a hard-coded constant.
	FastQuorumWeight uint64        `cramberry:"5"`
	Timeouts         TimeoutConfig `cramberry:"6"`
}

// ValidateBasic checks structural invariants: positive weights,
// sorted distinct owners, bounded total weight, sane fast quorum.
func (co *ChainOwnership) ValidateBasic() error {
	if len(co.Owners) == 0 && len(co.SuperOwners) == 0 {
		return ErrNoOwners
	}
	for i, ow := range co.Owners {
		if ow.Weight == 0 {
			return fmt.Errorf("%w: owner %s", ErrInvalidWeight, ow.Owner)
		}
		if i > 0 {
			switch CompareOwners(co.Owners[i-1].Owner, ow.Owner) {
			case 0:
				return fmt.Errorf("%w: %s", ErrDuplicateOwner, ow.Owner)
			case 1:
				return ErrUnsortedOwners
			}
		}
	}
	for i, o := range co.SuperOwners {
		if i > 0 {
			switch CompareOwners(co.SuperOwners[i-1], o) {
			case 0:
				return fmt.Errorf("%w: super owner %s", ErrDuplicateOwner, o)
			case 1:
				return ErrUnsortedOwners
			}
		}
	}
	var total uint64
	for _, ow := range co.Owners {
		if total > MaxTotalWeight-ow.Weight {
			return ErrWeightOverflow
		}
		total += ow.Weight
	}
	if co.FastQuorumWeight > uint64(len(co.SuperOwners)) {
		return fmt.Errorf("%w: %d > %d", ErrBadFastQuorum, co.FastQuorumWeight, len(co.SuperOwners))
	}
	return nil
}

// TotalWeight returns the summed weight of all owners.
func (co *ChainOwnership) TotalWeight() uint64 {
	var total uint64
	for _, ow := range co.Owners {
		total += ow.Weight
	}
	return total
}

// OwnerWeightOf returns the weight of an owner, or zero if the
// address is not an owner.
func (co *ChainOwnership) OwnerWeightOf(o Owner) uint64 {
	for _, ow := range co.Owners {
		if ow.Owner == o {
			return ow.Weight
		}
	}
	return 0
}

// IsOwner reports whether o holds owner weight on this chain.
func (co *ChainOwnership) IsOwner(o Owner) bool {
	return co.OwnerWeightOf(o) > 0
}

// IsSuperOwner reports whether o has fast-path authority.
func (co *ChainOwnership) IsSuperOwner(o Owner) bool {
	for _, so := range co.SuperOwners {
		if so == o {
			return true
		}
	}
	return false
}

// FastQuorum returns the super-owner weight needed to confirm a
// fast-round value. Each super owner counts as weight one.
func (co *ChainOwnership) FastQuorum() uint64 {
	if co.FastQuorumWeight == 0 {
		return uint64(len(co.SuperOwners))
	}
	return co.FastQuorumWeight
}

// OwnerQuorum returns the owner weight needed for a leader-round
// quorum: strictly more than two thirds of total owner weight.
// The arithmetic mirrors committee quorum; see QuorumWeight.
func (co *ChainOwnership) OwnerQuorum() uint64 {
	return QuorumWeight(co.TotalWeight())
}

// QuorumWeight returns the smallest weight strictly greater than
// two thirds of total. Computed as third + third (+1 for a
// remainder of two) + 1 to avoid overflowing 2*total.
func QuorumWeight(total uint64) uint64 {
	third := total / 3
	twoThirds := third + third
	if total%3 == 2 {
		twoThirds++
	}
	return twoThirds + 1
}
