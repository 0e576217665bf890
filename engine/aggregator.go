package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/blockberries/chainberry/evidence"
	"github.com/blockberries/chainberry/types"
)

// VoteAggregator accumulates lite votes per (round, kind) for one
// chain and turns a quorum of them into a certificate. Insertion is
// atomic per aggregator; many network handlers may call AddVote
// concurrently.
//
// Votes reference values by hash only, so a certificate can only be
// emitted once the full value has been registered (the manager does
// this when it accepts a proposal, or synthesizes the timeout
// marker itself).
type VoteAggregator struct {
	mu        sync.Mutex
	chainID   types.ChainID
	scheduler *RoundScheduler
	evidence  *evidence.Pool

	current types.Round
	rounds  map[roundKey]*roundVotes
}

type roundKey struct {
	Round types.Round
	Kind  types.CertificateKind
}

type roundVotes struct {
	// valueHash is the first value hash registered for this
	// (round, kind). A second, different hash is a conflict.
	valueHash *types.Hash
	// value is the full payload, required to emit a certificate.
	value  *types.CertificateValue
	votes  map[types.Owner]*types.LiteVote
	weight uint64
	done   bool
}

// NewVoteAggregator creates an aggregator for one chain. The
// evidence pool may be nil; conflicts are then still rejected but
// not retained as evidence.
func NewVoteAggregator(chainID types.ChainID, scheduler *RoundScheduler, pool *evidence.Pool) *VoteAggregator {
	return &VoteAggregator{
		chainID:   chainID,
		scheduler: scheduler,
		evidence:  pool,
		current:   scheduler.FirstRound(),
		rounds:    make(map[roundKey]*roundVotes),
	}
}

// AddVote validates and records a vote for the given height. It
// returns a certificate when this vote completes a quorum over a
// registered value, or nil otherwise. A duplicate of an
// already-recorded vote is a no-op; votes for other heights are
// rejected as stale or future, never as conflicts.
func (va *VoteAggregator) AddVote(vote *types.LiteVote, height uint64) (*types.Certificate, error) {
	va.mu.Lock()
	defer va.mu.Unlock()

	if vote.Value.ChainID != va.chainID {
		return nil, ErrWrongChain
	}
	// Straggler votes from a finalized height would otherwise collide
	// with the current height's slots and read as equivocation.
	if vote.Value.Height < height {
		return nil, ErrStaleHeight
	}
	if vote.Value.Height > height {
		return nil, ErrFutureHeight
	}
	if err := vote.Round.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVote, err)
	}
	if vote.Round.Less(va.current) {
		return nil, ErrStaleRound
	}
	// Fast rounds confirm directly and have no validated phase.
	// Other rounds see validated votes (phase one), confirmed votes
	// (phase two, after resubmission) and timeout votes.
	if vote.Value.Kind == types.CertValidated && vote.Round.IsFast() {
		return nil, fmt.Errorf("%w: validated votes are not cast in the fast round", ErrInvalidVote)
	}
	weight, ok := va.scheduler.VoterWeight(vote.Signer, vote.Round, vote.Value.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorizedVoter, vote.Signer)
	}
	if err := vote.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	key := roundKey{Round: vote.Round, Kind: vote.Value.Kind}
	rv := va.rounds[key]
	if rv == nil {
		rv = &roundVotes{votes: make(map[types.Owner]*types.LiteVote)}
		va.rounds[key] = rv
	}

	if existing := rv.votes[vote.Signer]; existing != nil {
		if existing.Value.ValueHash == vote.Value.ValueHash {
			return nil, nil // duplicate, already have it
		}
		// Two valid signatures from one identity over different
		// values: equivocation. Keep both artifacts as evidence.
		if va.evidence != nil {
			va.evidence.RecordConflictingVotes(height, existing, vote)
		}
		return nil, ErrConflictingVote
	}

	if rv.valueHash == nil {
		h := vote.Value.ValueHash
		rv.valueHash = &h
	} else if *rv.valueHash != vote.Value.ValueHash {
		// A valid vote for a different value than the one this
		// round is aggregating. Not applied, surfaced to caller.
		return nil, ErrConflictingVote
	}

	voteCopy := *vote
	rv.votes[vote.Signer] = &voteCopy
	rv.weight += weight

	return va.maybeCertificate(key, rv)
}

// RegisterValue supplies the full payload votes for this round are
// referencing. Returns a certificate immediately if quorum was
// already reached. A payload whose hash conflicts with the
// registered one is rejected.
func (va *VoteAggregator) RegisterValue(round types.Round, value types.CertificateValue) (*types.Certificate, error) {
	va.mu.Lock()
	defer va.mu.Unlock()

	if round.Less(va.current) {
		return nil, ErrStaleRound
	}
	key := roundKey{Round: round, Kind: value.Kind}
	rv := va.rounds[key]
	if rv == nil {
		rv = &roundVotes{votes: make(map[types.Owner]*types.LiteVote)}
		va.rounds[key] = rv
	}
	h := value.Hash()
	if rv.valueHash == nil {
		rv.valueHash = &h
	} else if *rv.valueHash != h {
		return nil, ErrConflictingProposal
	}
	if rv.value == nil {
		v := value
		rv.value = &v
	}
	return va.maybeCertificate(key, rv)
}

// maybeCertificate emits the certificate once weight reaches quorum
// and the full value is known. Signatures are sorted by signer and
// truncated to the first prefix covering the threshold, so two
// aggregators fed the same votes in any order produce byte-identical
// certificates. Caller must hold va.mu.
func (va *VoteAggregator) maybeCertificate(key roundKey, rv *roundVotes) (*types.Certificate, error) {
	if rv.done || rv.value == nil {
		return nil, nil
	}
	quorum := va.scheduler.QuorumWeight(key.Round, key.Kind)
	if rv.weight < quorum {
		return nil, nil
	}

	votes := make([]*types.LiteVote, 0, len(rv.votes))
	for _, v := range rv.votes {
		votes = append(votes, v)
	}
	sort.Slice(votes, func(i, j int) bool {
		return types.CompareOwners(votes[i].Signer, votes[j].Signer) < 0
	})

	sigs := make([]types.SignerSig, 0, len(votes))
	var covered uint64
	for _, v := range votes {
		w, _ := va.scheduler.VoterWeight(v.Signer, key.Round, key.Kind)
		sigs = append(sigs, types.SignerSig{
			Signer:    v.Signer,
			PublicKey: v.PublicKey,
			Signature: v.Signature,
		})
		covered += w
		if covered >= quorum {
			break
		}
	}

	rv.done = true
	return &types.Certificate{
		Value:      *rv.value,
		Round:      key.Round,
		Signatures: sigs,
	}, nil
}

// CurrentRound returns the aggregator's current round.
func (va *VoteAggregator) CurrentRound() types.Round {
	va.mu.Lock()
	defer va.mu.Unlock()
	return va.current
}

// RetireBelow discards partial state of rounds before round, after
// a higher round's proposal or certificate has been adopted. Votes
// for retired rounds are rejected as stale from then on.
func (va *VoteAggregator) RetireBelow(round types.Round) {
	va.mu.Lock()
	defer va.mu.Unlock()

	if round.Less(va.current) {
		return
	}
	va.current = round
	for key := range va.rounds {
		if key.Round.Less(round) {
			delete(va.rounds, key)
		}
	}
}

// Reset clears all vote state for a new height.
func (va *VoteAggregator) Reset() {
	va.mu.Lock()
	defer va.mu.Unlock()
	va.current = va.scheduler.FirstRound()
	va.rounds = make(map[roundKey]*roundVotes)
}

// VoteWeight returns the accumulated weight for (round, kind).
func (va *VoteAggregator) VoteWeight(round types.Round, kind types.CertificateKind) uint64 {
	va.mu.Lock()
	defer va.mu.Unlock()
	if rv := va.rounds[roundKey{Round: round, Kind: kind}]; rv != nil {
		return rv.weight
	}
	return 0
}
