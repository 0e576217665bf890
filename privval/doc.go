// Package privval holds a participant's signing key and guards it
// against equivocation. A Signer refuses to produce two different
// signatures for the same chain, height, round and step, making
// accidental double-signing impossible even across process restarts
// (FilePV persists its last-sign state to disk).
//
// State is tracked per chain: one key may own several chains and
// sign for each independently.
package privval
