package types

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// CertificateKind tags what a certificate (or the vote building
// toward one) asserts about its value.
type CertificateKind uint8

const (
	// CertValidated asserts a quorum saw and validated the value.
	// It must be resubmitted to become Confirmed.
	CertValidated CertificateKind = 1
	// CertConfirmed finalizes the value at its height.
	CertConfirmed CertificateKind = 2
	// CertTimeout attests that a round expired without quorum.
	CertTimeout CertificateKind = 3
)

// Vote errors
var (
	ErrUnknownCertificateKind = errors.New("unknown certificate kind")
	ErrInvalidVote            = errors.New("invalid vote")
	ErrVoteSignature          = errors.New("vote signature verification failed")
	ErrSignerMismatch         = errors.New("vote signer does not match public key")
)

// ValidateBasic rejects unrecognized certificate kinds.
func (k CertificateKind) ValidateBasic() error {
	switch k {
	case CertValidated, CertConfirmed, CertTimeout:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCertificateKind, k)
	}
}

// String renders the kind for logs and errors.
func (k CertificateKind) String() string {
	switch k {
	case CertValidated:
		return "validated"
	case CertConfirmed:
		return "confirmed"
	case CertTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// LiteValue is the content-addressed reference a vote signs:
// the value hash, the chain, the height, and what kind of
// certificate the vote builds toward. Votes never carry block
// bodies. Height is explicit so a straggler vote from a finalized
// height can be told apart from a conflicting vote at the current
// one.
type LiteValue struct {
	ValueHash Hash            `cramberry:"1"`
	ChainID   ChainID         `cramberry:"2"`
	Kind      CertificateKind `cramberry:"3"`
	Height    uint64          `cramberry:"4"`
}

// LiteVote is a single participant's signature over a LiteValue at
// a specific round.
type LiteVote struct {
	Value     LiteValue `cramberry:"1"`
	Round     Round     `cramberry:"2"`
	Signer    Owner     `cramberry:"3"`
	PublicKey PublicKey `cramberry:"4"`
	Signature Signature `cramberry:"5"`
}

// voteSignPayload is the canonical signed payload of a vote:
// everything except the signer's key material and signature.
type voteSignPayload struct {
	Value LiteValue `cramberry:"1"`
	Round Round     `cramberry:"2"`
}

// VoteSignBytes returns the canonical bytes a voter signs.
func VoteSignBytes(value LiteValue, round Round) []byte {
	data, err := cramberry.Marshal(&voteSignPayload{Value: value, Round: round})
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal vote for signing: %v", err))
	}
	return data
}

// Verify checks the vote's internal consistency and signature.
// It does not check membership or weight; that is the aggregator's
// job, since the voter set depends on the round.
func (v *LiteVote) Verify() error {
	if err := v.Value.Kind.ValidateBasic(); err != nil {
		return err
	}
	if err := v.Round.ValidateBasic(); err != nil {
		return err
	}
	if OwnerFromPublicKey(v.PublicKey) != v.Signer {
		return ErrSignerMismatch
	}
	if !VerifySignature(v.PublicKey, VoteSignBytes(v.Value, v.Round), v.Signature) {
		return ErrVoteSignature
	}
	return nil
}
