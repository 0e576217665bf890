package types

import (
	"errors"
	"fmt"
)

// Bundle errors
var (
	ErrInvalidBundle = errors.New("invalid message bundle")
)

// PostedMessage is one message inside a bundle, as the recipient
// sees it. Index is the message's position within the sending
// block's transaction; tracked kinds keep their refund metadata
// verbatim through any number of retransmissions.
type PostedMessage struct {
	Index           uint32      `cramberry:"1"`
	Kind            MessageKind `cramberry:"2"`
	Grant           uint64      `cramberry:"3"`
	RefundRecipient ChainID     `cramberry:"4"`
	Payload         []byte      `cramberry:"5"`
}

// MessageBundle is the ordered batch of messages one confirmed
// block sends to one destination chain. Bundles are keyed by
// (certificate hash, transaction index) and applied by the
// recipient strictly in height order per sender.
type MessageBundle struct {
	Sender           ChainID         `cramberry:"1"`
	Recipient        ChainID         `cramberry:"2"`
	CertificateHash  Hash            `cramberry:"3"`
	Height           uint64          `cramberry:"4"`
	Timestamp        Timestamp       `cramberry:"5"`
	TransactionIndex uint32          `cramberry:"6"`
	Messages         []PostedMessage `cramberry:"7"`
	// Previous points at the last sender block that messaged this
	// recipient. Nil for the sender's first bundle to it. The
	// recipient checks it against its own cursor to prove order.
	Previous *PreviousMessageBlock `cramberry:"8"`
}

// BundleKey identifies a bundle within a (sender, recipient) pair.
type BundleKey struct {
	CertificateHash  Hash   `cramberry:"1"`
	TransactionIndex uint32 `cramberry:"2"`
}

// Key returns the bundle's identity key.
func (b *MessageBundle) Key() BundleKey {
	return BundleKey{CertificateHash: b.CertificateHash, TransactionIndex: b.TransactionIndex}
}

// ValidateBasic checks structural invariants of a received bundle.
func (b *MessageBundle) ValidateBasic() error {
	if b.Sender.IsZero() || b.Recipient.IsZero() {
		return fmt.Errorf("%w: missing sender or recipient", ErrInvalidBundle)
	}
	if len(b.Messages) == 0 {
		return fmt.Errorf("%w: empty bundle", ErrInvalidBundle)
	}
	for i, m := range b.Messages {
		if err := m.Kind.ValidateBasic(); err != nil {
			return fmt.Errorf("bundle message %d: %w", i, err)
		}
	}
	return nil
}

// IncomingBundle is a bundle queued in a recipient's inbox, tagged
// with its origin chain, awaiting consumption by the recipient's
// next block.
type IncomingBundle struct {
	Origin ChainID       `cramberry:"1"`
	Bundle MessageBundle `cramberry:"2"`
}
