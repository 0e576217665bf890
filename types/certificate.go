package types

import (
	"errors"
	"fmt"
)

// Certificate errors
var (
	ErrInvalidCertificate   = errors.New("invalid certificate")
	ErrCertificateSignature = errors.New("certificate signature verification failed")
	ErrQuorumNotReached     = errors.New("certificate weight below quorum")
	ErrUnsortedSigners      = errors.New("certificate signers not in canonical order")
	ErrUnauthorizedSigner   = errors.New("signer not in the round's voter set")
)

// TimeoutValue is the marker value a timeout certificate certifies:
// that the given round at the given height expired without quorum.
type TimeoutValue struct {
	ChainID ChainID `cramberry:"1"`
	Height  uint64  `cramberry:"2"`
	Round   Round   `cramberry:"3"`
}

// CertificateValue is the tagged payload of a certificate: a block
// for Validated/Confirmed, a timeout marker for Timeout. Exactly
// one arm must be set, matching the kind.
type CertificateValue struct {
	Kind    CertificateKind `cramberry:"1"`
	Block   *Block          `cramberry:"2"`
	Timeout *TimeoutValue   `cramberry:"3"`
}

// NewValidatedValue wraps a block as a to-be-validated value.
func NewValidatedValue(b *Block) CertificateValue {
	return CertificateValue{Kind: CertValidated, Block: b}
}

// NewConfirmedValue wraps a block as a to-be-confirmed value.
func NewConfirmedValue(b *Block) CertificateValue {
	return CertificateValue{Kind: CertConfirmed, Block: b}
}

// NewTimeoutValue wraps a timeout marker.
func NewTimeoutValue(chainID ChainID, height uint64, round Round) CertificateValue {
	return CertificateValue{
		Kind:    CertTimeout,
		Timeout: &TimeoutValue{ChainID: chainID, Height: height, Round: round},
	}
}

// ValidateBasic checks the kind/payload pairing.
func (v CertificateValue) ValidateBasic() error {
	if err := v.Kind.ValidateBasic(); err != nil {
		return err
	}
	switch v.Kind {
	case CertValidated, CertConfirmed:
		if v.Block == nil || v.Timeout != nil {
			return fmt.Errorf("%w: %s value must carry exactly a block", ErrInvalidCertificate, v.Kind)
		}
		return v.Block.ValidateBasic()
	case CertTimeout:
		if v.Timeout == nil || v.Block != nil {
			return fmt.Errorf("%w: timeout value must carry exactly a timeout marker", ErrInvalidCertificate)
		}
		return v.Timeout.Round.ValidateBasic()
	}
	return nil
}

// ChainID returns the chain the value belongs to.
func (v CertificateValue) ChainIDOf() ChainID {
	if v.Block != nil {
		return v.Block.ChainID
	}
	if v.Timeout != nil {
		return v.Timeout.ChainID
	}
	return ChainID{}
}

// Height returns the chain height the value belongs to.
func (v CertificateValue) Height() uint64 {
	if v.Block != nil {
		return v.Block.Height
	}
	if v.Timeout != nil {
		return v.Timeout.Height
	}
	return 0
}

// Hash returns the content hash of the payload. Votes and
// certificates over the same payload share this hash.
func (v CertificateValue) Hash() Hash {
	switch v.Kind {
	case CertTimeout:
		return HashOf(v.Timeout)
	default:
		return BlockHash(v.Block)
	}
}

// Lite returns the content-addressed reference votes sign.
func (v CertificateValue) Lite() LiteValue {
	return LiteValue{
		ValueHash: v.Hash(),
		ChainID:   v.ChainIDOf(),
		Kind:      v.Kind,
		Height:    v.Height(),
	}
}

// SignerSig is one (identity, signature) pair inside a certificate.
// The public key travels with the signature so any party can verify
// a certificate given only the voter set's addresses and weights.
type SignerSig struct {
	Signer    Owner     `cramberry:"1"`
	PublicKey PublicKey `cramberry:"2"`
	Signature Signature `cramberry:"3"`
}

// WeightResolver resolves a signer address to its voting weight
// within a specific voter set. The second result is false when the
// address is not a member.
type WeightResolver func(Owner) (uint64, bool)

// Certificate is an aggregated quorum proof: the full value, the
// round it was agreed in, and signatures in canonical signer order
// whose combined weight meets that round's quorum.
type Certificate struct {
	Value      CertificateValue `cramberry:"1"`
	Round      Round            `cramberry:"2"`
	Signatures []SignerSig      `cramberry:"3"`
}

// Hash returns the certificate's value hash. Bundles emitted from a
// confirmed block are keyed by it.
func (c *Certificate) Hash() Hash {
	return c.Value.Hash()
}

// Lite returns the LiteValue this certificate's signatures cover.
func (c *Certificate) Lite() LiteValue {
	return c.Value.Lite()
}

// ValidateBasic checks structure without resolving keys: payload
// shape, round validity, and canonical strictly-ascending signers.
func (c *Certificate) ValidateBasic() error {
	if err := c.Value.ValidateBasic(); err != nil {
		return err
	}
	if err := c.Round.ValidateBasic(); err != nil {
		return err
	}
	if len(c.Signatures) == 0 {
		return fmt.Errorf("%w: no signatures", ErrInvalidCertificate)
	}
	for i := 1; i < len(c.Signatures); i++ {
		if CompareOwners(c.Signatures[i-1].Signer, c.Signatures[i].Signer) >= 0 {
			return ErrUnsortedSigners
		}
	}
	return nil
}

// Verify checks every signature against the claimed value and
// round, resolving weights through the supplied voter set, and
// requires cumulative weight of at least quorum.
func (c *Certificate) Verify(weightOf WeightResolver, quorum uint64) error {
	if err := c.ValidateBasic(); err != nil {
		return err
	}
	signBytes := VoteSignBytes(c.Lite(), c.Round)
	var weight uint64
	for _, ss := range c.Signatures {
		if OwnerFromPublicKey(ss.PublicKey) != ss.Signer {
			return fmt.Errorf("%w: key does not match signer %s", ErrInvalidCertificate, ss.Signer)
		}
		w, ok := weightOf(ss.Signer)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnauthorizedSigner, ss.Signer)
		}
		if !VerifySignature(ss.PublicKey, signBytes, ss.Signature) {
			return fmt.Errorf("%w: signer %s", ErrCertificateSignature, ss.Signer)
		}
		weight += w
	}
	if weight < quorum {
		return fmt.Errorf("%w: %d < %d", ErrQuorumNotReached, weight, quorum)
	}
	return nil
}
