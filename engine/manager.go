package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/blockberries/chainberry/evidence"
	"github.com/blockberries/chainberry/privval"
	"github.com/blockberries/chainberry/types"
)

// StateKind is where the manager stands for the current height.
type StateKind uint8

const (
	// StateIdle: no proposal accepted yet for the current round.
	StateIdle StateKind = 1
	// StateAwaitingVotes: a proposal is accepted, votes are being
	// collected.
	StateAwaitingVotes StateKind = 2
	// StateLocked: a Validated certificate is held and must be
	// resubmitted by a proposer to become Confirmed.
	StateLocked StateKind = 3
	// StateConfirmed is terminal for a height. The manager passes
	// through it and advances to the next height's StateIdle within
	// the same transition.
	StateConfirmed StateKind = 4
)

// String renders the state for logs.
func (s StateKind) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingVotes:
		return "awaiting-votes"
	case StateLocked:
		return "locked"
	case StateConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Outcome is what a manager operation produced for the caller to
// act on: a vote of our own to broadcast, a certificate that formed,
// and, terminally, the Confirmed certificate finalizing the height.
// All fields may be nil.
type Outcome struct {
	Vote        *types.LiteVote
	Certificate *types.Certificate
	Confirmed   *types.Certificate
}

func (o *Outcome) merge(other *Outcome) {
	if other == nil {
		return
	}
	if other.Vote != nil {
		o.Vote = other.Vote
	}
	if other.Certificate != nil {
		o.Certificate = other.Certificate
	}
	if other.Confirmed != nil {
		o.Confirmed = other.Confirmed
	}
}

// BlockVerifier is the execution collaborator's hook: it validates
// a candidate block's content (state transitions, resource limits)
// before the manager will vote for it. Nil accepts any block that
// passes structural validation.
type BlockVerifier func(*types.Block) error

// ChainManager is the consensus state machine of one chain. All
// mutating operations are serialized by its mutex; different chains
// proceed fully in parallel. Every operation validates its input
// completely before mutating anything, so a rejected input never
// leaves partial state behind.
type ChainManager struct {
	mu sync.Mutex

	chainID    types.ChainID
	scheduler  *RoundScheduler
	aggregator *VoteAggregator
	signer     privval.Signer // nil for a pure observer
	pool       *evidence.Pool
	verifier   BlockVerifier

	height      uint64
	state       StateKind
	round       types.Round
	heightStart time.Time
	// deadline is zero when the round never expires on its own.
	deadline time.Time

	proposal    *types.BlockProposal
	pendingVote *types.LiteVote
	locked      *types.Certificate
	timeoutCert *types.Certificate

	// lastConfirmed is the previous height's Confirmed certificate,
	// kept to answer (and reject conflicts on) resubmissions.
	lastConfirmed *types.Certificate

	now func() time.Time
}

// NewChainManager creates a manager starting at height zero. The
// signer may be nil for a node that only observes this chain.
func NewChainManager(chainID types.ChainID, scheduler *RoundScheduler, signer privval.Signer, pool *evidence.Pool) *ChainManager {
	cm := &ChainManager{
		chainID:    chainID,
		scheduler:  scheduler,
		aggregator: NewVoteAggregator(chainID, scheduler, pool),
		signer:     signer,
		pool:       pool,
		state:      StateIdle,
		now:        time.Now,
	}
	cm.enterRound(scheduler.FirstRound(), cm.now())
	cm.heightStart = cm.now()
	return cm
}

// RestoreChainManager rebuilds a manager from its durable
// checkpoint after a restart. Vote tallies are not checkpointed;
// peers re-send votes, and our own pending vote is re-applied.
func RestoreChainManager(info *types.ChainManagerInfo, scheduler *RoundScheduler, signer privval.Signer, pool *evidence.Pool) (*ChainManager, error) {
	if err := info.Round.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint round: %w", err)
	}
	cm := NewChainManager(info.ChainID, scheduler, signer, pool)
	cm.height = info.Height
	cm.round = info.Round
	cm.proposal = info.Proposal
	cm.locked = info.Locked
	cm.timeoutCert = info.TimeoutCertificate
	cm.aggregator.RetireBelow(info.Round)

	switch {
	case info.Locked != nil:
		cm.state = StateLocked
	case info.Proposal != nil:
		cm.state = StateAwaitingVotes
	default:
		cm.state = StateIdle
	}
	if info.RoundDeadline != (types.Timestamp{}) {
		cm.deadline = info.RoundDeadline.ToTime()
	} else {
		cm.deadline = time.Time{}
	}

	if info.Proposal != nil {
		kind := cm.voteKindFor(info.Proposal)
		if _, err := cm.aggregator.RegisterValue(info.Proposal.Round, cm.valueFor(&info.Proposal.Content, kind)); err != nil {
			return nil, err
		}
	}
	if info.Locked != nil && !info.Locked.Round.Less(cm.round) {
		value := types.NewConfirmedValue(info.Locked.Value.Block)
		if _, err := cm.aggregator.RegisterValue(info.Locked.Round, value); err != nil {
			return nil, err
		}
	}
	if info.PendingVote != nil {
		if _, err := cm.aggregator.AddVote(info.PendingVote, info.Height); err != nil {
			return nil, err
		}
		cm.pendingVote = info.PendingVote
	}
	return cm, nil
}

// SetBlockVerifier installs the execution collaborator's content
// check. Must be called before the manager starts handling input.
func (cm *ChainManager) SetBlockVerifier(v BlockVerifier) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.verifier = v
}

// ChainID returns the chain this manager drives.
func (cm *ChainManager) ChainID() types.ChainID {
	return cm.chainID
}

// Height returns the height currently being decided.
func (cm *ChainManager) Height() uint64 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.height
}

// CurrentRound returns the current round.
func (cm *ChainManager) CurrentRound() types.Round {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.round
}

// State returns the manager's current state.
func (cm *ChainManager) State() StateKind {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

// LastConfirmed returns the previous height's Confirmed
// certificate, or nil before the first confirmation.
func (cm *ChainManager) LastConfirmed() *types.Certificate {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.lastConfirmed
}

// Info returns the durable consensus checkpoint of this chain.
func (cm *ChainManager) Info() *types.ChainManagerInfo {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	info := &types.ChainManagerInfo{
		ChainID:            cm.chainID,
		Height:             cm.height,
		Round:              cm.round,
		Leader:             cm.scheduler.Leader(cm.height, cm.round),
		PendingVote:        cm.pendingVote,
		Proposal:           cm.proposal,
		Locked:             cm.locked,
		TimeoutCertificate: cm.timeoutCert,
	}
	if !cm.deadline.IsZero() {
		info.RoundDeadline = types.TimeToTimestamp(cm.deadline)
	}
	return info
}

// MakeProposal signs a proposal for the given content in the
// current round, attaching the justification the round requires
// (the locked certificate being resubmitted, or the timeout
// certificate that opened the round), and applies it locally. The
// caller broadcasts the returned proposal and outcome.
func (cm *ChainManager) MakeProposal(content types.Block) (*types.BlockProposal, *Outcome, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.signer == nil {
		return nil, nil, fmt.Errorf("%w: no signer configured", ErrUnauthorizedProposer)
	}
	if content.ChainID != cm.chainID {
		return nil, nil, ErrWrongChain
	}
	if content.Height != cm.height {
		return nil, nil, fmt.Errorf("%w: proposal height %d, current %d", ErrInvalidProposal, content.Height, cm.height)
	}
	owner := cm.signer.Owner()
	if !cm.scheduler.CanPropose(owner, cm.height, cm.round) {
		return nil, nil, cm.proposerError(owner, cm.round)
	}

	proposal := &types.BlockProposal{
		Content: content,
		Round:   cm.round,
	}
	blockHash := proposal.BlockHash()
	if cm.locked != nil {
		if cm.locked.Value.Hash() == blockHash {
			proposal.Justification = cm.locked
		} else if cm.timeoutCert != nil && cm.timeoutCert.Round.Cmp(cm.locked.Round) >= 0 {
			proposal.Justification = cm.timeoutCert
		} else {
			return nil, nil, ErrMissingJustification
		}
	} else if cm.timeoutCert != nil {
		proposal.Justification = cm.timeoutCert
	}

	if err := cm.signer.SignProposal(proposal); err != nil {
		return nil, nil, err
	}
	outcome, err := cm.handleProposal(proposal)
	if err != nil {
		return nil, nil, err
	}
	return proposal, outcome, nil
}

// HandleProposal applies a proposal received from the network.
func (cm *ChainManager) HandleProposal(p *types.BlockProposal) (*Outcome, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.handleProposal(p)
}

func (cm *ChainManager) handleProposal(p *types.BlockProposal) (*Outcome, error) {
	if p.Content.ChainID != cm.chainID {
		return nil, ErrWrongChain
	}
	if p.Content.Height < cm.height {
		return nil, ErrStaleHeight
	}
	if p.Content.Height > cm.height {
		return nil, ErrFutureHeight
	}
	if err := p.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	if p.Round.Less(cm.round) {
		return nil, ErrStaleRound
	}
	if !cm.scheduler.CanPropose(p.Owner, cm.height, p.Round) {
		return nil, cm.proposerError(p.Owner, p.Round)
	}
	if cm.verifier != nil {
		if err := cm.verifier(&p.Content); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProposal, err)
		}
	}

	blockHash := p.BlockHash()

	// A proposal in a later round must prove the current round is
	// over: a timeout certificate, or a validated certificate being
	// carried forward for confirmation.
	if cm.round.Less(p.Round) {
		if err := cm.checkRoundAdvance(p, blockHash); err != nil {
			return nil, err
		}
	}

	// A locked value is never silently overridden: the proposal
	// either extends it or justifies abandoning it.
	if cm.locked != nil && cm.locked.Value.Hash() != blockHash {
		if err := cm.checkLockOverride(p, blockHash); err != nil {
			return nil, err
		}
	}

	voteKind := cm.voteKindFor(p)

	if cm.proposal != nil && cm.proposal.Round.Equal(p.Round) {
		existingHash := cm.proposal.BlockHash()
		if existingHash != blockHash {
			if cm.proposal.Owner == p.Owner {
				// Same proposer, same round, different block.
				if cm.pool != nil {
					cm.pool.RecordConflictingProposals(cm.proposal, p)
				}
				log.Printf("[ERROR] engine: conflicting proposals from %s at height %d round %s", p.Owner, cm.height, p.Round)
			}
			return nil, ErrConflictingProposal
		}
		if cm.pendingVote != nil && cm.pendingVote.Value.Kind == voteKind {
			// Duplicate of the proposal we already voted for.
			return &Outcome{Vote: cm.pendingVote}, nil
		}
	}

	// Commit.
	if cm.round.Less(p.Round) {
		cm.enterRound(p.Round, cm.now())
		if p.Justification != nil && p.Justification.Value.Kind == types.CertTimeout {
			cm.timeoutCert = p.Justification
		}
	}
	cm.proposal = p
	if cm.state == StateIdle {
		cm.state = StateAwaitingVotes
	}

	outcome := &Outcome{}
	value := cm.valueFor(&p.Content, voteKind)
	cert, err := cm.aggregator.RegisterValue(p.Round, value)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		outcome.merge(cm.adoptCertificate(cert))
		return outcome, nil
	}

	voteOutcome, err := cm.castVote(p.Round, value)
	if err != nil {
		return nil, err
	}
	outcome.merge(voteOutcome)
	return outcome, nil
}

// checkRoundAdvance validates the justification a proposal needs to
// open a round beyond the current one.
func (cm *ChainManager) checkRoundAdvance(p *types.BlockProposal, blockHash types.Hash) error {
	j := p.Justification
	if j == nil {
		return ErrMissingJustification
	}
	if err := cm.verifyCertificate(j); err != nil {
		return err
	}
	switch j.Value.Kind {
	case types.CertTimeout:
		t := j.Value.Timeout
		if t.ChainID != cm.chainID || t.Height != cm.height {
			return fmt.Errorf("%w: timeout certificate for wrong chain or height", ErrMissingJustification)
		}
		if !j.Round.Less(p.Round) {
			return fmt.Errorf("%w: timeout round %s does not precede proposal round %s", ErrMissingJustification, j.Round, p.Round)
		}
	case types.CertValidated:
		if j.Value.Hash() != blockHash {
			return fmt.Errorf("%w: validated certificate is for a different block", ErrMissingJustification)
		}
		if p.Round.Less(j.Round) {
			return fmt.Errorf("%w: validated certificate round %s is after proposal round %s", ErrMissingJustification, j.Round, p.Round)
		}
	default:
		return fmt.Errorf("%w: confirmed certificate cannot justify a new round", ErrMissingJustification)
	}
	return nil
}

// checkLockOverride validates the justification a proposal needs to
// abandon the locked value in favor of a different one.
func (cm *ChainManager) checkLockOverride(p *types.BlockProposal, blockHash types.Hash) error {
	j := p.Justification
	if j == nil || j.Round.Cmp(cm.locked.Round) < 0 {
		return ErrMissingJustification
	}
	if err := cm.verifyCertificate(j); err != nil {
		return err
	}
	switch j.Value.Kind {
	case types.CertTimeout:
		return nil
	case types.CertValidated:
		if j.Value.Hash() == blockHash {
			return nil
		}
		return fmt.Errorf("%w: validated certificate is for a different block", ErrMissingJustification)
	default:
		return fmt.Errorf("%w: confirmed certificate cannot override a lock", ErrMissingJustification)
	}
}

// voteKindFor returns the certificate kind our vote on this
// proposal builds toward: Confirmed when the proposal resubmits a
// validated certificate (phase two) or sits in the fast round,
// Validated otherwise.
func (cm *ChainManager) voteKindFor(p *types.BlockProposal) types.CertificateKind {
	if p.Justification != nil &&
		p.Justification.Value.Kind == types.CertValidated &&
		p.Justification.Value.Hash() == p.BlockHash() {
		return types.CertConfirmed
	}
	return cm.scheduler.ExpectedVoteKind(p.Round)
}

func (cm *ChainManager) valueFor(b *types.Block, kind types.CertificateKind) types.CertificateValue {
	if kind == types.CertConfirmed {
		return types.NewConfirmedValue(b)
	}
	return types.NewValidatedValue(b)
}

// castVote signs and applies our own vote for the value, when this
// node is in the round's voter set. Double-sign protection lives in
// the signer; a refusal there surfaces as a conflict.
func (cm *ChainManager) castVote(round types.Round, value types.CertificateValue) (*Outcome, error) {
	if cm.signer == nil {
		return &Outcome{}, nil
	}
	owner := cm.signer.Owner()
	if _, ok := cm.scheduler.VoterWeight(owner, round, value.Kind); !ok {
		return &Outcome{}, nil
	}

	vote := &types.LiteVote{
		Value: value.Lite(),
		Round: round,
	}
	if err := cm.signer.SignVote(cm.height, vote); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConflictingVote, err)
	}

	outcome := &Outcome{Vote: vote}
	cm.pendingVote = vote
	cert, err := cm.aggregator.AddVote(vote, cm.height)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		outcome.merge(cm.adoptCertificate(cert))
	}
	return outcome, nil
}

// HandleVote applies a vote received from the network. Returns a
// certificate outcome when this vote completes a quorum.
func (cm *ChainManager) HandleVote(v *types.LiteVote) (*Outcome, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.handleVote(v)
}

func (cm *ChainManager) handleVote(v *types.LiteVote) (*Outcome, error) {
	if v.Value.ChainID != cm.chainID {
		return nil, ErrWrongChain
	}
	cert, err := cm.aggregator.AddVote(v, cm.height)
	if err != nil {
		return nil, err
	}
	outcome := &Outcome{}
	if cert != nil {
		outcome.merge(cm.adoptCertificate(cert))
	}
	return outcome, nil
}

// HandleTimeoutVote applies a timeout vote, registering the timeout
// marker as the round's value if this is the first one seen.
func (cm *ChainManager) HandleTimeoutVote(v *types.LiteVote) (*Outcome, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if v.Value.ChainID != cm.chainID {
		return nil, ErrWrongChain
	}
	if v.Value.Kind != types.CertTimeout {
		return nil, fmt.Errorf("%w: expected a timeout vote, got %s", ErrInvalidVote, v.Value.Kind)
	}
	if v.Round.Less(cm.round) {
		return nil, ErrStaleRound
	}

	value := types.NewTimeoutValue(cm.chainID, cm.height, v.Round)
	if v.Value.ValueHash != value.Hash() {
		return nil, fmt.Errorf("%w: timeout vote hash does not match this height's timeout marker", ErrInvalidVote)
	}
	if _, err := cm.aggregator.RegisterValue(v.Round, value); err != nil {
		return nil, err
	}
	return cm.handleVote(v)
}

// HandleCertificate applies an externally formed certificate.
func (cm *ChainManager) HandleCertificate(cert *types.Certificate) (*Outcome, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cert.Value.ChainIDOf() != cm.chainID {
		return nil, ErrWrongChain
	}
	if err := cert.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	height := cert.Value.Height()
	if height < cm.height {
		// The previous height's confirmation may be resubmitted by
		// a lagging peer; the same one is a no-op, a different one
		// is the one inconsistency this machine exists to prevent.
		if cert.Value.Kind == types.CertConfirmed && height == cm.height-1 && cm.lastConfirmed != nil {
			if cert.Value.Hash() == cm.lastConfirmed.Value.Hash() {
				return &Outcome{}, nil
			}
			log.Printf("[ERROR] engine: conflicting confirmed certificate for chain %s height %d", cm.chainID, height)
			return nil, ErrConflictingConfirmation
		}
		return nil, ErrStaleHeight
	}
	if height > cm.height {
		return nil, ErrFutureHeight
	}

	// A Confirmed certificate is final whatever our round; anything
	// else from a superseded round is stale.
	if cert.Value.Kind != types.CertConfirmed && cert.Round.Less(cm.round) {
		return nil, ErrStaleRound
	}
	if err := cm.verifyCertificate(cert); err != nil {
		return nil, err
	}
	return cm.adoptCertificate(cert), nil
}

// Tick drives wall-clock timeout checks. When the round's deadline
// has passed without a certificate, this node casts (or re-issues)
// its timeout vote. Ticks before the deadline are no-ops.
func (cm *ChainManager) Tick(now time.Time) (*Outcome, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.deadline.IsZero() || now.Before(cm.deadline) {
		return &Outcome{}, nil
	}
	if cm.signer == nil {
		return &Outcome{}, nil
	}
	owner := cm.signer.Owner()
	if _, ok := cm.scheduler.VoterWeight(owner, cm.round, types.CertTimeout); !ok {
		return &Outcome{}, nil
	}

	value := types.NewTimeoutValue(cm.chainID, cm.height, cm.round)
	vote := &types.LiteVote{
		Value: value.Lite(),
		Round: cm.round,
	}
	if err := cm.signer.SignVote(cm.height, vote); err != nil {
		return nil, err
	}
	if _, err := cm.aggregator.RegisterValue(cm.round, value); err != nil {
		return nil, err
	}

	outcome := &Outcome{Vote: vote}
	cert, err := cm.aggregator.AddVote(vote, cm.height)
	if err != nil {
		return nil, err
	}
	if cert != nil {
		outcome.merge(cm.adoptCertificate(cert))
	}
	return outcome, nil
}

// adoptCertificate applies a quorum-backed certificate: Validated
// locks, Timeout escalates the round preserving any lock, Confirmed
// finalizes the height. Caller must hold cm.mu and have verified
// the certificate.
func (cm *ChainManager) adoptCertificate(cert *types.Certificate) *Outcome {
	outcome := &Outcome{Certificate: cert}

	switch cert.Value.Kind {
	case types.CertValidated:
		if cm.locked == nil || cm.locked.Round.Less(cert.Round) {
			cm.locked = cert
		}
		cm.pendingVote = nil
		cm.state = StateLocked
		log.Printf("[INFO] engine: chain %s height %d locked at round %s", cm.chainID, cm.height, cert.Round)
		// The validated certificate is itself the phase-two trigger:
		// everyone holding it votes to confirm the locked block.
		value := types.NewConfirmedValue(cert.Value.Block)
		if _, err := cm.aggregator.RegisterValue(cert.Round, value); err != nil {
			log.Printf("[ERROR] engine: chain %s height %d: registering confirmation value: %v", cm.chainID, cm.height, err)
		} else if voteOutcome, err := cm.castVote(cert.Round, value); err != nil {
			log.Printf("[ERROR] engine: chain %s height %d: confirmation vote: %v", cm.chainID, cm.height, err)
		} else {
			outcome.merge(voteOutcome)
		}

	case types.CertTimeout:
		next := cm.scheduler.NextRound(cert.Round, cm.now().Sub(cm.heightStart))
		log.Printf("[INFO] engine: chain %s height %d round %s timed out, escalating to %s", cm.chainID, cm.height, cert.Round, next)
		cm.timeoutCert = cert
		cm.proposal = nil
		cm.pendingVote = nil
		cm.enterRound(next, cm.now())
		if cm.locked != nil {
			cm.state = StateLocked
		} else {
			cm.state = StateIdle
		}

	case types.CertConfirmed:
		log.Printf("[INFO] engine: chain %s confirmed height %d at round %s", cm.chainID, cm.height, cert.Round)
		cm.state = StateConfirmed
		outcome.Confirmed = cert
		cm.advanceHeight(cert)
	}
	return outcome
}

// advanceHeight moves to the next height's idle state after a
// confirmation. Caller must hold cm.mu.
func (cm *ChainManager) advanceHeight(confirmed *types.Certificate) {
	cm.lastConfirmed = confirmed
	cm.height++
	cm.state = StateIdle
	cm.proposal = nil
	cm.pendingVote = nil
	cm.locked = nil
	cm.timeoutCert = nil
	cm.heightStart = cm.now()
	cm.aggregator.Reset()
	cm.enterRound(cm.scheduler.FirstRound(), cm.heightStart)
}

// enterRound sets the current round and its deadline. Caller must
// hold cm.mu.
func (cm *ChainManager) enterRound(r types.Round, now time.Time) {
	cm.round = r
	cm.aggregator.RetireBelow(r)
	if d := cm.scheduler.TimeoutDuration(r); d > 0 {
		cm.deadline = now.Add(d)
	} else {
		cm.deadline = time.Time{}
	}
}

// verifyCertificate checks a certificate against the voter set and
// quorum of its (round, kind).
func (cm *ChainManager) verifyCertificate(cert *types.Certificate) error {
	kind := cert.Value.Kind
	weightOf := func(o types.Owner) (uint64, bool) {
		return cm.scheduler.VoterWeight(o, cert.Round, kind)
	}
	if err := cert.Verify(weightOf, cm.scheduler.QuorumWeight(cert.Round, kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return nil
}

// proposerError distinguishes "not this round's leader" from "not a
// participant at all".
func (cm *ChainManager) proposerError(o types.Owner, r types.Round) error {
	ownership := cm.scheduler.Ownership()
	if leader := cm.scheduler.Leader(cm.height, r); leader != nil && ownership.IsOwner(o) {
		return fmt.Errorf("%w: round %s leader is %s", ErrNotALeader, r, *leader)
	}
	return fmt.Errorf("%w: %s in round %s", ErrUnauthorizedProposer, o, r)
}
