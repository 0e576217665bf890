package engine

import "errors"

// Consensus errors, grouped by the taxonomy callers dispatch on:
// stale inputs are ignorable, invalid inputs are rejected and never
// applied, conflicts are surfaced as evidence, unauthorized inputs
// are rejected outright.
var (
	// Stale: behind current state, no alarm.
	ErrStaleRound  = errors.New("round behind current round")
	ErrStaleHeight = errors.New("height behind current height")

	// Invalid: rejected, not applied.
	ErrInvalidVote        = errors.New("invalid vote")
	ErrInvalidProposal    = errors.New("invalid proposal")
	ErrInvalidCertificate = errors.New("invalid certificate")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrWrongChain         = errors.New("input addressed to a different chain")
	ErrFutureHeight       = errors.New("height ahead of current height")

	// Conflicting: recorded as evidence, surfaced prominently.
	ErrConflictingVote         = errors.New("conflicting vote (equivocation)")
	ErrConflictingProposal     = errors.New("conflicting proposal (equivocation)")
	ErrConflictingConfirmation = errors.New("conflicting confirmed certificate for height")

	// Unauthorized: not permitted in this round per ownership.
	ErrUnauthorizedProposer = errors.New("proposer not permitted in this round")
	ErrUnauthorizedVoter    = errors.New("voter not in this round's voter set")
	ErrNotALeader           = errors.New("proposer is not this round's leader")

	// Two-phase safety.
	ErrMissingJustification = errors.New("proposal does not justify overriding the locked certificate")

	// Lifecycle.
	ErrChainExists    = errors.New("chain already registered")
	ErrUnknownChain   = errors.New("unknown chain")
	ErrAlreadyStarted = errors.New("node already started")
)
