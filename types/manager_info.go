package types

// ChainManagerInfo is the durable consensus checkpoint of one
// chain: everything needed to resume the state machine after a
// restart and to answer client queries about consensus progress.
type ChainManagerInfo struct {
	ChainID ChainID `cramberry:"1"`
	Height  uint64  `cramberry:"2"`
	Round   Round   `cramberry:"3"`
	// Leader is nil when the round is not leader-restricted
	// (fast, open multi-leader, and validator rounds).
	Leader *Owner `cramberry:"4"`
	// PendingVote is this node's own vote for the current round,
	// set once cast and cleared when a certificate forms.
	PendingVote *LiteVote `cramberry:"5"`
	// Proposal is the accepted-but-uncertified proposal, if any.
	Proposal *BlockProposal `cramberry:"6"`
	// Locked is the Validated certificate held pending
	// resubmission for confirmation.
	Locked *Certificate `cramberry:"7"`
	// TimeoutCertificate proves the previous round expired.
	TimeoutCertificate *Certificate `cramberry:"8"`
	// RoundDeadline is when the current round times out.
	// Zero when the round has no deadline.
	RoundDeadline Timestamp `cramberry:"9"`
}
