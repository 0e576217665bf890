package types

import (
	"errors"
	"fmt"
)

// Committee errors
var (
	ErrEmptyCommittee     = errors.New("empty validator committee")
	ErrDuplicateValidator = errors.New("duplicate validator")
	ErrValidatorNotFound  = errors.New("validator not found")
)

// CommitteeMember is one validator: its public key and voting weight.
type CommitteeMember struct {
	PublicKey PublicKey `cramberry:"1"`
	Weight    uint64    `cramberry:"2"`
}

// Committee is the weighted validator set backing a chain's
// validator rounds and timeout certificates. It is immutable once
// built; epoch changes install a new committee.
type Committee struct {
	Epoch   uint64            `cramberry:"1"`
	Members []CommitteeMember `cramberry:"2"`

	// Derived lookup state, rebuilt on construction. Not on the wire.
	byOwner     map[Owner]*CommitteeMember
	totalWeight uint64
}

// NewCommittee builds a committee from members, validating weights
// and deduplicating by derived owner address.
func NewCommittee(epoch uint64, members []CommitteeMember) (*Committee, error) {
	if len(members) == 0 {
		return nil, ErrEmptyCommittee
	}
	c := &Committee{
		Epoch:   epoch,
		Members: make([]CommitteeMember, len(members)),
		byOwner: make(map[Owner]*CommitteeMember, len(members)),
	}
	copy(c.Members, members)
	for i := range c.Members {
		m := &c.Members[i]
		if m.Weight == 0 {
			return nil, fmt.Errorf("%w: validator %d", ErrInvalidWeight, i)
		}
		owner := OwnerFromPublicKey(m.PublicKey)
		if _, exists := c.byOwner[owner]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateValidator, owner)
		}
		if c.totalWeight > MaxTotalWeight-m.Weight {
			return nil, ErrWeightOverflow
		}
		c.byOwner[owner] = m
		c.totalWeight += m.Weight
	}
	return c, nil
}

// TotalWeight returns the committee's summed voting weight.
func (c *Committee) TotalWeight() uint64 {
	return c.totalWeight
}

// Quorum returns the weight needed for a committee quorum:
// strictly more than two thirds of total weight.
func (c *Committee) Quorum() uint64 {
	return QuorumWeight(c.totalWeight)
}

// Member returns the committee member with the given owner address.
func (c *Committee) Member(o Owner) (CommitteeMember, bool) {
	m, ok := c.byOwner[o]
	if !ok {
		return CommitteeMember{}, false
	}
	return *m, true
}

// WeightOf returns a validator's weight, or zero for non-members.
func (c *Committee) WeightOf(o Owner) uint64 {
	if m, ok := c.byOwner[o]; ok {
		return m.Weight
	}
	return 0
}

// Size returns the number of validators.
func (c *Committee) Size() int {
	return len(c.Members)
}
