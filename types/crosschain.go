package types

import (
	"errors"
	"fmt"
)

// CrossChainRequestKind tags the two messages of the delivery
// protocol. Unknown kinds are a decode error.
type CrossChainRequestKind uint8

const (
	// CrossChainUpdateRecipient pushes unacknowledged bundles from
	// a sender to a recipient chain.
	CrossChainUpdateRecipient CrossChainRequestKind = 1
	// CrossChainConfirmUpdatedRecipient acknowledges delivery up to
	// a height, allowing the sender to prune.
	CrossChainConfirmUpdatedRecipient CrossChainRequestKind = 2
)

// Cross-chain request errors
var (
	ErrUnknownRequestKind = errors.New("unknown cross-chain request kind")
	ErrInvalidRequest     = errors.New("invalid cross-chain request")
)

// UpdateRecipient carries every bundle the sender has not yet seen
// acknowledged, oldest first. Re-sending it is always safe: the
// recipient treats already-applied heights as no-ops.
type UpdateRecipient struct {
	Sender    ChainID         `cramberry:"1"`
	Recipient ChainID         `cramberry:"2"`
	Epoch     uint64          `cramberry:"3"`
	Bundles   []MessageBundle `cramberry:"4"`
}

// ConfirmUpdatedRecipient acknowledges that the recipient has
// durably applied the sender's bundles up to Height inclusive.
type ConfirmUpdatedRecipient struct {
	Sender    ChainID `cramberry:"1"`
	Recipient ChainID `cramberry:"2"`
	Height    uint64  `cramberry:"3"`
}

// CrossChainRequest is the tagged union delivered by the transport.
// Exactly one arm must be set, matching the kind.
type CrossChainRequest struct {
	Kind    CrossChainRequestKind    `cramberry:"1"`
	Update  *UpdateRecipient         `cramberry:"2"`
	Confirm *ConfirmUpdatedRecipient `cramberry:"3"`
}

// NewUpdateRequest wraps an UpdateRecipient.
func NewUpdateRequest(u *UpdateRecipient) *CrossChainRequest {
	return &CrossChainRequest{Kind: CrossChainUpdateRecipient, Update: u}
}

// NewConfirmRequest wraps a ConfirmUpdatedRecipient.
func NewConfirmRequest(c *ConfirmUpdatedRecipient) *CrossChainRequest {
	return &CrossChainRequest{Kind: CrossChainConfirmUpdatedRecipient, Confirm: c}
}

// ValidateBasic checks the kind/payload pairing.
func (r *CrossChainRequest) ValidateBasic() error {
	switch r.Kind {
	case CrossChainUpdateRecipient:
		if r.Update == nil || r.Confirm != nil {
			return fmt.Errorf("%w: update request must carry exactly an update", ErrInvalidRequest)
		}
		for i := range r.Update.Bundles {
			if err := r.Update.Bundles[i].ValidateBasic(); err != nil {
				return err
			}
		}
		return nil
	case CrossChainConfirmUpdatedRecipient:
		if r.Confirm == nil || r.Update != nil {
			return fmt.Errorf("%w: confirm request must carry exactly a confirmation", ErrInvalidRequest)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownRequestKind, r.Kind)
	}
}
