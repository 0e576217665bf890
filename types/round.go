package types

import (
	"errors"
	"fmt"
)

// RoundKind identifies the leadership/timeout policy of a round.
type RoundKind uint8

const (
	// RoundFast is the optimistic round: only super owners may
	// propose, and the resulting certificate is directly Confirmed.
	RoundFast RoundKind = 1
	// RoundMultiLeader rounds rotate leadership among owners.
	RoundMultiLeader RoundKind = 2
	// RoundSingleLeader rounds pick one deterministic owner leader.
	RoundSingleLeader RoundKind = 3
	// RoundValidator rounds hand progress to the validator
	// committee, the liveness backstop when owners stall.
	RoundValidator RoundKind = 4
)

// Round errors
var (
	ErrUnknownRoundKind = errors.New("unknown round kind")
	ErrInvalidRound     = errors.New("invalid round")
)

// Round is one attempt, under a specific policy, to agree on a
// chain's next block. Rounds are strictly totally ordered by
// (kind rank, number); the order is what makes "stale" well-defined.
type Round struct {
	Kind   RoundKind `cramberry:"1"`
	Number uint32    `cramberry:"2"`
}

// FastRound returns the fast round. It is always round zero.
func FastRound() Round {
	return Round{Kind: RoundFast}
}

// MultiLeaderRound returns the n-th multi-leader round.
func MultiLeaderRound(n uint32) Round {
	return Round{Kind: RoundMultiLeader, Number: n}
}

// SingleLeaderRound returns the n-th single-leader round.
func SingleLeaderRound(n uint32) Round {
	return Round{Kind: RoundSingleLeader, Number: n}
}

// ValidatorRound returns the n-th validator round.
func ValidatorRound(n uint32) Round {
	return Round{Kind: RoundValidator, Number: n}
}

// ValidateBasic rejects rounds that could not have been produced by
// a correct node. An unrecognized kind is a decode error, never a
// silent fallthrough.
func (r Round) ValidateBasic() error {
	switch r.Kind {
	case RoundFast:
		if r.Number != 0 {
			return fmt.Errorf("%w: fast round must be round zero, got %d", ErrInvalidRound, r.Number)
		}
		return nil
	case RoundMultiLeader, RoundSingleLeader, RoundValidator:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownRoundKind, r.Kind)
	}
}

// Cmp orders rounds: negative if r < other, zero if equal,
// positive if r > other.
func (r Round) Cmp(other Round) int {
	if r.Kind != other.Kind {
		if r.Kind < other.Kind {
			return -1
		}
		return 1
	}
	if r.Number != other.Number {
		if r.Number < other.Number {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether r is strictly before other.
func (r Round) Less(other Round) bool {
	return r.Cmp(other) < 0
}

// Equal reports whether two rounds are the same.
func (r Round) Equal(other Round) bool {
	return r == other
}

// IsFast reports whether this is the fast round.
func (r Round) IsFast() bool {
	return r.Kind == RoundFast
}

// String renders the round for logs and errors.
func (r Round) String() string {
	switch r.Kind {
	case RoundFast:
		return "fast"
	case RoundMultiLeader:
		return fmt.Sprintf("multi-leader(%d)", r.Number)
	case RoundSingleLeader:
		return fmt.Sprintf("single-leader(%d)", r.Number)
	case RoundValidator:
		return fmt.Sprintf("validator(%d)", r.Number)
	default:
		return fmt.Sprintf("unknown(%d,%d)", r.Kind, r.Number)
	}
}
