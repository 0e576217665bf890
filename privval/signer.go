package privval

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/blockberries/chainberry/types"
)

// Errors
var (
	ErrDoubleSign       = errors.New("double sign attempt")
	ErrHeightRegression = errors.New("height regression")
	ErrRoundRegression  = errors.New("round regression")
	ErrStepRegression   = errors.New("step regression")
)

// Signer signs consensus artifacts while preventing equivocation.
type Signer interface {
	// PublicKey returns the signing key.
	PublicKey() types.PublicKey

	// Owner returns the address derived from the signing key.
	Owner() types.Owner

	// SignVote fills in the vote's signer, key and signature,
	// refusing conflicting votes at the same height, round and step.
	// Height is passed explicitly since votes carry only value hashes.
	SignVote(height uint64, vote *types.LiteVote) error

	// SignProposal fills in the proposal's owner, key and signature,
	// refusing conflicting proposals at the same height and round.
	SignProposal(proposal *types.BlockProposal) error
}

// Steps order signing events within one round. A signer may move
// forward through steps but never back, and never signs two
// different artifacts at the same step.
const (
	StepProposal  int8 = 0
	StepValidated int8 = 1
	StepConfirmed int8 = 2
	StepTimeout   int8 = 3
)

// voteStep maps a certificate kind to its signing step. Timeout
// votes come last: a voter that already endorsed a value may still
// attest that the round expired.
func voteStep(kind types.CertificateKind) int8 {
	switch kind {
	case types.CertValidated:
		return StepValidated
	case types.CertConfirmed:
		return StepConfirmed
	case types.CertTimeout:
		return StepTimeout
	default:
		panic(fmt.Sprintf("privval: invalid certificate kind: %v", kind))
	}
}

// LastSignState records the most recent signature produced for one
// chain, for double-sign prevention.
type LastSignState struct {
	Height    uint64
	Round     types.Round
	Step      int8
	ValueHash *types.Hash
	Signature types.Signature
}

// CheckHRS reports whether signing at (height, round, step) is
// allowed. ErrDoubleSign means the position was already signed;
// the caller may still re-issue the cached signature if the
// artifact is identical.
func (lss *LastSignState) CheckHRS(height uint64, round types.Round, step int8) error {
	if lss.Height > height {
		return ErrHeightRegression
	}
	if lss.Height == height {
		cmp := lss.Round.Cmp(round)
		if cmp > 0 {
			return ErrRoundRegression
		}
		if cmp == 0 {
			if lss.Step > step {
				return ErrStepRegression
			}
			if lss.Step == step {
				return ErrDoubleSign
			}
		}
	}
	return nil
}

// signStates tracks last-sign state per chain. Callers hold their
// own lock around it.
type signStates map[types.ChainID]*LastSignState

func (s signStates) forChain(chainID types.ChainID) *LastSignState {
	st, ok := s[chainID]
	if !ok {
		st = &LastSignState{}
		s[chainID] = st
	}
	return st
}

// signVote performs the double-sign check and signs the vote in
// place, updating the chain's state on success. Returns true when
// the state changed and should be persisted.
func (s signStates) signVote(priv ed25519.PrivateKey, pub types.PublicKey, owner types.Owner, height uint64, vote *types.LiteVote) (bool, error) {
	step := voteStep(vote.Value.Kind)
	st := s.forChain(vote.Value.ChainID)

	if err := st.CheckHRS(height, vote.Round, step); err != nil {
		if errors.Is(err, ErrDoubleSign) && st.ValueHash != nil && *st.ValueHash == vote.Value.ValueHash {
			// Same artifact: re-issue the cached signature.
			vote.Signer = owner
			vote.PublicKey = pub
			vote.Signature = st.Signature
			return false, nil
		}
		return false, err
	}

	sig := ed25519.Sign(priv, types.VoteSignBytes(vote.Value, vote.Round))
	vote.Signer = owner
	vote.PublicKey = pub
	copy(vote.Signature[:], sig)

	hash := vote.Value.ValueHash
	st.Height = height
	st.Round = vote.Round
	st.Step = step
	st.ValueHash = &hash
	st.Signature = vote.Signature
	return true, nil
}

// signProposal performs the double-sign check and signs the
// proposal in place.
func (s signStates) signProposal(priv ed25519.PrivateKey, pub types.PublicKey, owner types.Owner, proposal *types.BlockProposal) (bool, error) {
	st := s.forChain(proposal.Content.ChainID)
	blockHash := proposal.BlockHash()

	if err := st.CheckHRS(proposal.Content.Height, proposal.Round, StepProposal); err != nil {
		if errors.Is(err, ErrDoubleSign) && st.ValueHash != nil && *st.ValueHash == blockHash {
			proposal.Owner = owner
			proposal.PublicKey = pub
			proposal.Signature = st.Signature
			return false, nil
		}
		return false, err
	}

	proposal.Owner = owner
	proposal.PublicKey = pub
	sig := ed25519.Sign(priv, types.ProposalSignBytes(proposal))
	copy(proposal.Signature[:], sig)

	st.Height = proposal.Content.Height
	st.Round = proposal.Round
	st.Step = StepProposal
	st.ValueHash = &blockHash
	st.Signature = proposal.Signature
	return true, nil
}
