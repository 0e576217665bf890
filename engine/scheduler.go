package engine

import (
	"time"

	"github.com/blockberries/chainberry/types"
)

// RoundScheduler decides, for one chain's ownership configuration,
// who may propose in a round, who its leader is, what weight forms
// a quorum, how long the round may run, and where a timeout
// escalates to. It is pure: all methods are deterministic functions
// of the configuration and their arguments.
type RoundScheduler struct {
	chainID   types.ChainID
	ownership types.ChainOwnership
	committee *types.Committee
}

// NewRoundScheduler validates the ownership configuration and
// builds a scheduler over it.
func NewRoundScheduler(chainID types.ChainID, ownership types.ChainOwnership, committee *types.Committee) (*RoundScheduler, error) {
	if err := ownership.ValidateBasic(); err != nil {
		return nil, err
	}
	if committee == nil || committee.Size() == 0 {
		return nil, types.ErrEmptyCommittee
	}
	return &RoundScheduler{chainID: chainID, ownership: ownership, committee: committee}, nil
}

// Ownership returns the scheduler's ownership configuration.
func (rs *RoundScheduler) Ownership() types.ChainOwnership {
	return rs.ownership
}

// Committee returns the validator committee.
func (rs *RoundScheduler) Committee() *types.Committee {
	return rs.committee
}

// FirstRound returns the round a fresh height starts in: fast when
// super owners exist, otherwise the first leader round, otherwise
// straight to validator rounds for ownerless chains.
func (rs *RoundScheduler) FirstRound() types.Round {
	switch {
	case len(rs.ownership.SuperOwners) > 0:
		return types.FastRound()
	case rs.ownership.MultiLeaderRounds > 0:
		return types.MultiLeaderRound(0)
	case len(rs.ownership.Owners) > 0:
		return types.SingleLeaderRound(0)
	default:
		return types.ValidatorRound(0)
	}
}

// NextRound returns the round a timeout at r escalates to. elapsed
// is the time since the current height began; once it reaches
// FallbackDuration, leader rounds hand over to the validator
// committee.
func (rs *RoundScheduler) NextRound(r types.Round, elapsed time.Duration) types.Round {
	fallback := rs.ownership.Timeouts.FallbackDuration.ToGo()
	if !r.IsFast() && fallback > 0 && elapsed >= fallback {
		return types.ValidatorRound(r.Number + 1)
	}
	switch r.Kind {
	case types.RoundFast:
		if rs.ownership.MultiLeaderRounds > 0 {
			return types.MultiLeaderRound(0)
		}
		if len(rs.ownership.Owners) > 0 {
			return types.SingleLeaderRound(0)
		}
		return types.ValidatorRound(0)
	case types.RoundMultiLeader:
		if r.Number+1 < rs.ownership.MultiLeaderRounds && len(rs.ownership.Owners) > 0 {
			return types.MultiLeaderRound(r.Number + 1)
		}
		if len(rs.ownership.Owners) > 0 {
			return types.SingleLeaderRound(r.Number + 1)
		}
		return types.ValidatorRound(r.Number + 1)
	case types.RoundSingleLeader:
		return types.SingleLeaderRound(r.Number + 1)
	default:
		return types.ValidatorRound(r.Number + 1)
	}
}

// Leader returns the round's single permitted proposer, or nil when
// the round is not leader-restricted (fast and open multi-leader
// rounds, and validator rounds).
func (rs *RoundScheduler) Leader(height uint64, r types.Round) *types.Owner {
	switch r.Kind {
	case types.RoundMultiLeader:
		if rs.ownership.OpenMultiLeaderRounds {
			return nil
		}
		return rs.rotatedOwner(height, r.Number)
	case types.RoundSingleLeader:
		return rs.rotatedOwner(height, r.Number)
	default:
		return nil
	}
}

// rotatedOwner picks an owner deterministically by (height, round
// index), weighted: an owner with twice the weight leads twice as
// often over a rotation cycle.
func (rs *RoundScheduler) rotatedOwner(height uint64, number uint32) *types.Owner {
	total := rs.ownership.TotalWeight()
	if total == 0 {
		return nil
	}
	seed := (height + uint64(number)) % total
	var cum uint64
	for i := range rs.ownership.Owners {
		cum += rs.ownership.Owners[i].Weight
		if seed < cum {
			return &rs.ownership.Owners[i].Owner
		}
	}
	return nil
}

// CanPropose reports whether owner o may propose in round r.
func (rs *RoundScheduler) CanPropose(o types.Owner, height uint64, r types.Round) bool {
	switch r.Kind {
	case types.RoundFast:
		return rs.ownership.IsSuperOwner(o)
	case types.RoundMultiLeader:
		if rs.ownership.OpenMultiLeaderRounds {
			return rs.ownership.IsOwner(o)
		}
		leader := rs.rotatedOwner(height, r.Number)
		return leader != nil && *leader == o
	case types.RoundSingleLeader:
		leader := rs.rotatedOwner(height, r.Number)
		return leader != nil && *leader == o
	case types.RoundValidator:
		// The committee drives progress once owners have stalled.
		_, ok := rs.committee.Member(o)
		return ok
	default:
		return false
	}
}

// VoterWeight returns a participant's weight in the voter set of
// (round, certificate kind), or false for non-members. Timeout
// certificates are always validator-signed, whatever the round.
func (rs *RoundScheduler) VoterWeight(o types.Owner, r types.Round, kind types.CertificateKind) (uint64, bool) {
	if kind == types.CertTimeout || r.Kind == types.RoundValidator {
		w := rs.committee.WeightOf(o)
		return w, w > 0
	}
	if r.IsFast() {
		if rs.ownership.IsSuperOwner(o) {
			return 1, true
		}
		return 0, false
	}
	w := rs.ownership.OwnerWeightOf(o)
	return w, w > 0
}

// QuorumWeight returns the cumulative weight a certificate of the
// given kind needs at round r.
func (rs *RoundScheduler) QuorumWeight(r types.Round, kind types.CertificateKind) uint64 {
	if kind == types.CertTimeout || r.Kind == types.RoundValidator {
		return rs.committee.Quorum()
	}
	if r.IsFast() {
		return rs.ownership.FastQuorum()
	}
	return rs.ownership.OwnerQuorum()
}

// ExpectedVoteKind returns the certificate kind votes build toward
// in round r: fast rounds confirm directly, every other round first
// validates.
func (rs *RoundScheduler) ExpectedVoteKind(r types.Round) types.CertificateKind {
	if r.IsFast() {
		return types.CertConfirmed
	}
	return types.CertValidated
}

// TimeoutDuration returns how long round r may run before the
// timeout path opens. Zero means the round never expires on its
// own (the fast round with no FastRoundDuration configured).
func (rs *RoundScheduler) TimeoutDuration(r types.Round) time.Duration {
	tc := rs.ownership.Timeouts
	if r.IsFast() {
		return tc.FastRoundDuration.ToGo()
	}
	d := tc.BaseTimeout.ToGo() + time.Duration(r.Number)*tc.TimeoutIncrement.ToGo()
	if max := tc.MaxTimeout.ToGo(); max > 0 && d > max {
		d = max
	}
	return d
}
