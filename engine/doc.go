// Package engine implements the per-chain consensus state machine.
//
// Each chain advances through rounds of increasing authority:
//
//	Fast → MultiLeader(0..n) → SingleLeader(0..n) → Validator(0..n)
//
// # Core Components
//
// ChainManager: The state machine for one chain. Applies proposals,
// votes, and certificates; enforces the two-phase Validated → Confirmed
// protocol and the locking rules that keep equivocating owners from
// confirming two blocks at a height.
//
// RoundScheduler: Answers the round-dependent questions: who may
// propose, who votes and with what weight, what quorum a round needs,
// and when it times out. Super-owners short-circuit the fast round;
// validator rounds fall back to the epoch committee.
//
// VoteAggregator: Collects LiteVotes per (round, kind), detects
// conflicting votes from the same signer, and assembles a certificate
// the moment accumulated weight crosses the quorum. Certificates are
// byte-identical regardless of vote arrival order.
//
// DeadlineTicker: One timer per chain, delivering round deadlines to
// the node so stalled rounds escalate by timeout certificate.
//
// Node: The multi-chain facade. Owns a manager, outbox, and inbox per
// hosted chain, checkpoints every state change through the store, and
// routes confirmed blocks' message bundles to their recipients:
// directly for chains hosted in-process, through the cross-chain
// sender otherwise.
package engine
