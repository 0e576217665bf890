package types

import (
	"errors"
	"fmt"
)

// Message kind constants. Unknown kinds are a decode error.
type MessageKind uint8

const (
	// MessageSimple carries no delivery guarantees beyond ordering.
	MessageSimple MessageKind = 1
	// MessageTracked retains its refund destination and grant
	// through replay so fees can be returned on rejection.
	MessageTracked MessageKind = 2
	// MessageProtected is tracked and additionally may not be
	// discarded by the recipient's application.
	MessageProtected MessageKind = 3
	// MessageBouncing is a reverse message generated for a tracked
	// message the recipient could not apply.
	MessageBouncing MessageKind = 4
)

// Block errors
var (
	ErrUnknownMessageKind = errors.New("unknown message kind")
	ErrInvalidBlock       = errors.New("invalid block")
)

// ValidateBasic rejects unrecognized message kinds.
func (k MessageKind) ValidateBasic() error {
	switch k {
	case MessageSimple, MessageTracked, MessageProtected, MessageBouncing:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessageKind, k)
	}
}

// IsTracked reports whether the kind retains refund metadata.
func (k MessageKind) IsTracked() bool {
	return k == MessageTracked || k == MessageProtected
}

// OutgoingMessage is one message a block sends to another chain.
type OutgoingMessage struct {
	Recipient ChainID `cramberry:"1"`
	// TransactionIndex is the index of the transaction within the
	// block that produced this message. Bundles are keyed by it.
	TransactionIndex uint32      `cramberry:"2"`
	Kind             MessageKind `cramberry:"3"`
	// Grant is the resource allowance forwarded with the message.
	Grant uint64 `cramberry:"4"`
	// RefundRecipient receives the unspent grant of a tracked
	// message. Preserved verbatim through replay.
	RefundRecipient ChainID `cramberry:"5"`
	Payload         []byte  `cramberry:"6"`
}

// PreviousMessageBlock records, for one destination chain, the last
// block of this chain that sent it a bundle. Recipients use it to
// prove bundle order without replaying history.
type PreviousMessageBlock struct {
	Recipient ChainID `cramberry:"1"`
	Hash      Hash    `cramberry:"2"`
	Height    uint64  `cramberry:"3"`
}

// Block is the candidate content a chain agrees on at one height.
// Execution outcomes live with the VM collaborator; the consensus
// core only needs the message plumbing and the identity fields.
type Block struct {
	ChainID   ChainID   `cramberry:"1"`
	Epoch     uint64    `cramberry:"2"`
	Height    uint64    `cramberry:"3"`
	Timestamp Timestamp `cramberry:"4"`
	// PreviousBlockHash is zero for a chain's first block.
	PreviousBlockHash Hash `cramberry:"5"`
	// AuthenticatedSigner is the owner whose authority the block's
	// operations execute under.
	AuthenticatedSigner Owner             `cramberry:"6"`
	Messages            []OutgoingMessage `cramberry:"7"`
	// PreviousMessageBlocks is sorted by recipient chain id.
	PreviousMessageBlocks []PreviousMessageBlock `cramberry:"8"`
	// StateHash is the application state fingerprint after this
	// block, supplied by the execution collaborator.
	StateHash Hash `cramberry:"9"`
}

// BlockHash computes the canonical content hash of a block.
func BlockHash(b *Block) Hash {
	if b == nil {
		return Hash{}
	}
	return HashOf(b)
}

// ValidateBasic checks the block's structural invariants.
func (b *Block) ValidateBasic() error {
	if b.ChainID.IsZero() {
		return fmt.Errorf("%w: missing chain id", ErrInvalidBlock)
	}
	for i, m := range b.Messages {
		if err := m.Kind.ValidateBasic(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if m.Recipient.IsZero() {
			return fmt.Errorf("%w: message %d has no recipient", ErrInvalidBlock, i)
		}
	}
	for i := 1; i < len(b.PreviousMessageBlocks); i++ {
		prev, cur := b.PreviousMessageBlocks[i-1], b.PreviousMessageBlocks[i]
		if CompareChainIDs(prev.Recipient, cur.Recipient) >= 0 {
			return fmt.Errorf("%w: previous message blocks not sorted by recipient", ErrInvalidBlock)
		}
	}
	return nil
}

// PreviousFor returns this block's previous-message pointer for a
// recipient, or nil if this block is the first to message it.
func (b *Block) PreviousFor(recipient ChainID) *PreviousMessageBlock {
	for i := range b.PreviousMessageBlocks {
		if b.PreviousMessageBlocks[i].Recipient == recipient {
			return &b.PreviousMessageBlocks[i]
		}
	}
	return nil
}
