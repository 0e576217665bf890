// Package types defines the core data model of the chainberry
// multi-chain consensus core: identities and signatures, chain
// ownership, rounds, block proposals, lite votes, certificates,
// and the cross-chain message bundle entities.
//
// All wire entities are plain Go structs with cramberry struct tags.
// Cramberry guarantees a canonical binary encoding (deterministic
// field order, fixed-width integers, length-prefixed sequences),
// which is what makes content hashes and signatures comparable
// across independent implementations.
//
// # Entity Relationships
//
//	ChainOwnership ──configures──> Round sequence per chain
//	BlockProposal ──voted on via──> LiteVote (hash reference only)
//	LiteVote ──aggregated into──> Certificate (Validated | Confirmed | Timeout)
//	Block ──confirmed──> MessageBundle per destination chain
//	MessageBundle ──delivered via──> CrossChainRequest (update / confirm)
//
// # Hashing
//
// HashOf serializes a value with cramberry and hashes it with
// SHA-256. The resulting Hash is the entity's identity everywhere:
// in votes, certificates, bundle keys and storage indices.
//
// # Determinism
//
// Any collection that ends up inside a signed or hashed entity is
// kept in a canonical order (owners sorted by identity, certificate
// signatures sorted by signer). Two nodes assembling the same
// logical value must produce byte-identical encodings.
package types
