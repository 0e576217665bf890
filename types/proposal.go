package types

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Proposal errors
var (
	ErrInvalidProposal   = errors.New("invalid proposal")
	ErrProposalSignature = errors.New("proposal signature verification failed")
)

// BlockProposal is a signed candidate block for a specific round.
// Justification carries the certificate that entitles the proposer
// to supersede earlier rounds: the Validated certificate being
// resubmitted for confirmation, or a Timeout certificate proving
// the previous round expired.
type BlockProposal struct {
	Content       Block        `cramberry:"1"`
	Round         Round        `cramberry:"2"`
	Owner         Owner        `cramberry:"3"`
	PublicKey     PublicKey    `cramberry:"4"`
	Signature     Signature    `cramberry:"5"`
	Justification *Certificate `cramberry:"6"`
}

// proposalSignPayload is the canonical signed payload: content,
// round and proposer identity. The justification is itself a signed
// artifact and is verified independently.
type proposalSignPayload struct {
	Content Block `cramberry:"1"`
	Round   Round `cramberry:"2"`
	Owner   Owner `cramberry:"3"`
}

// ProposalSignBytes returns the canonical bytes a proposer signs.
func ProposalSignBytes(p *BlockProposal) []byte {
	data, err := cramberry.Marshal(&proposalSignPayload{
		Content: p.Content,
		Round:   p.Round,
		Owner:   p.Owner,
	})
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal proposal for signing: %v", err))
	}
	return data
}

// Verify checks the proposal's structure and signature. Leadership
// and round legality are the scheduler's concern.
func (p *BlockProposal) Verify() error {
	if err := p.Content.ValidateBasic(); err != nil {
		return err
	}
	if err := p.Round.ValidateBasic(); err != nil {
		return err
	}
	if OwnerFromPublicKey(p.PublicKey) != p.Owner {
		return fmt.Errorf("%w: owner does not match public key", ErrInvalidProposal)
	}
	if !VerifySignature(p.PublicKey, ProposalSignBytes(p), p.Signature) {
		return ErrProposalSignature
	}
	if p.Justification != nil {
		if err := p.Justification.ValidateBasic(); err != nil {
			return fmt.Errorf("proposal justification: %w", err)
		}
	}
	return nil
}

// BlockHash returns the hash of the proposed block.
func (p *BlockProposal) BlockHash() Hash {
	return BlockHash(&p.Content)
}
