package router

import (
	"sort"
	"sync"

	"github.com/blockberries/chainberry/types"
)

// Inbox is the recipient side of cross-chain delivery for one
// chain. It applies bundles strictly in sender height order; a
// duplicate or already-applied bundle is a no-op, and a bundle
// whose predecessor has not arrived yet is held, never applied
// early. Mutations are serialized with the recipient chain's own
// manager: accepted bundles only leave the inbox while building or
// validating that chain's next block.
type Inbox struct {
	mu      sync.Mutex
	chainID types.ChainID

	cursors map[types.ChainID]*senderCursor
	// queue is the in-order inbox exposed for block building.
	queue []*types.IncomingBundle
}

// senderCursor tracks how far one sender's bundles have been
// accepted.
type senderCursor struct {
	accepted bool
	height   uint64
	txIndex  uint32
	// seen dedupes retransmissions of accepted bundles.
	seen map[types.BundleKey]struct{}
	// held parks out-of-order bundles until their predecessor
	// arrives, ascending (height, tx index).
	held []*types.MessageBundle
}

// NewInbox creates the inbox of one recipient chain.
func NewInbox(chainID types.ChainID) *Inbox {
	return &Inbox{
		chainID: chainID,
		cursors: make(map[types.ChainID]*senderCursor),
	}
}

// Receive applies an UpdateRecipient push. It returns the
// acknowledgement to send back: the highest sender height fully
// accepted so far. Receiving the same update twice yields identical
// inbox state and the same acknowledgement.
func (ib *Inbox) Receive(update *types.UpdateRecipient) (*types.ConfirmUpdatedRecipient, error) {
	if update.Recipient != ib.chainID {
		return nil, ErrWrongRecipient
	}

	// Validate the whole update before admitting anything: a rejected
	// update must leave the cursor and queue untouched.
	for i := range update.Bundles {
		b := &update.Bundles[i]
		if b.Sender != update.Sender || b.Recipient != ib.chainID {
			return nil, ErrInvalidBundle
		}
		if err := b.ValidateBasic(); err != nil {
			return nil, err
		}
	}

	ib.mu.Lock()
	defer ib.mu.Unlock()

	cursor := ib.cursor(update.Sender)
	for i := range update.Bundles {
		b := update.Bundles[i]
		ib.admit(update.Sender, cursor, &b)
	}

	// No ack until something is accepted: chains start at height
	// zero, so an ack of zero already prunes the sender's first
	// bundle.
	if !cursor.accepted {
		return nil, nil
	}
	return &types.ConfirmUpdatedRecipient{
		Sender:    update.Sender,
		Recipient: ib.chainID,
		Height:    cursor.height,
	}, nil
}

func (ib *Inbox) cursor(sender types.ChainID) *senderCursor {
	c := ib.cursors[sender]
	if c == nil {
		c = &senderCursor{seen: make(map[types.BundleKey]struct{})}
		ib.cursors[sender] = c
	}
	return c
}

// admit files one bundle: accept it if it is next in order, drop it
// if it is old or duplicate, hold it otherwise. Accepting a bundle
// may unblock held successors. Caller must hold ib.mu.
func (ib *Inbox) admit(sender types.ChainID, cursor *senderCursor, b *types.MessageBundle) {
	if _, dup := cursor.seen[b.Key()]; dup {
		return
	}
	if cursor.accepted && (b.Height < cursor.height ||
		(b.Height == cursor.height && b.TransactionIndex <= cursor.txIndex)) {
		// Behind the cursor: an old retransmission, not an error.
		return
	}

	if !ib.inOrder(cursor, b) {
		ib.hold(cursor, b)
		return
	}
	ib.accept(sender, cursor, b)

	// A newly accepted bundle may be the predecessor a held one was
	// waiting for.
	for {
		next := -1
		for i, h := range cursor.held {
			if ib.inOrder(cursor, h) {
				next = i
				break
			}
		}
		if next < 0 {
			return
		}
		h := cursor.held[next]
		cursor.held = append(cursor.held[:next], cursor.held[next+1:]...)
		ib.accept(sender, cursor, h)
	}
}

// inOrder reports whether the bundle is the cursor's immediate
// successor: the continuation of the block being consumed, the
// sender's first bundle ever, or the first bundle of the block
// whose previous pointer names the last accepted height.
func (ib *Inbox) inOrder(cursor *senderCursor, b *types.MessageBundle) bool {
	if cursor.accepted && b.Height == cursor.height && b.TransactionIndex > cursor.txIndex {
		return true
	}
	if b.Previous == nil {
		return !cursor.accepted
	}
	return cursor.accepted && b.Previous.Height == cursor.height && b.Height > cursor.height
}

func (ib *Inbox) hold(cursor *senderCursor, b *types.MessageBundle) {
	for _, h := range cursor.held {
		if h.Key() == b.Key() {
			return
		}
	}
	copied := *b
	cursor.held = append(cursor.held, &copied)
	sort.Slice(cursor.held, func(i, j int) bool {
		if cursor.held[i].Height != cursor.held[j].Height {
			return cursor.held[i].Height < cursor.held[j].Height
		}
		return cursor.held[i].TransactionIndex < cursor.held[j].TransactionIndex
	})
}

func (ib *Inbox) accept(sender types.ChainID, cursor *senderCursor, b *types.MessageBundle) {
	cursor.seen[b.Key()] = struct{}{}
	cursor.accepted = true
	cursor.height = b.Height
	cursor.txIndex = b.TransactionIndex
	copied := *b
	ib.queue = append(ib.queue, &types.IncomingBundle{Origin: sender, Bundle: copied})
}

// RestoreCursor seeds a sender's cursor from storage on startup.
// Heights at or below it were fully consumed before the restart and
// will be rejected as old retransmissions.
func (ib *Inbox) RestoreCursor(sender types.ChainID, height uint64) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	c := ib.cursor(sender)
	c.accepted = true
	c.height = height
	c.txIndex = ^uint32(0)
}

// NextBundles returns the accepted, not-yet-consumed bundles in
// arrival order, for the recipient chain's block building. The
// returned slice is a copy.
func (ib *Inbox) NextBundles() []*types.IncomingBundle {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	out := make([]*types.IncomingBundle, len(ib.queue))
	copy(out, ib.queue)
	return out
}

// Consume removes the first n bundles from the queue once the block
// that incorporates them is confirmed.
func (ib *Inbox) Consume(n int) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	if n > len(ib.queue) {
		n = len(ib.queue)
	}
	ib.queue = ib.queue[n:]
}

// QueueLen returns the number of bundles awaiting consumption.
func (ib *Inbox) QueueLen() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return len(ib.queue)
}

// HeldCount returns the number of out-of-order bundles from a
// sender parked waiting for their predecessor.
func (ib *Inbox) HeldCount(sender types.ChainID) int {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	if c := ib.cursors[sender]; c != nil {
		return len(c.held)
	}
	return 0
}

// AckFor returns the acknowledgement the inbox would currently send
// a sender, or nil if nothing from it was ever accepted.
func (ib *Inbox) AckFor(sender types.ChainID) *types.ConfirmUpdatedRecipient {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	c := ib.cursors[sender]
	if c == nil || !c.accepted {
		return nil
	}
	return &types.ConfirmUpdatedRecipient{
		Sender:    sender,
		Recipient: ib.chainID,
		Height:    c.height,
	}
}

// BounceMessage builds the reverse message for a tracked message
// the recipient's application rejected. The grant and refund
// destination travel back verbatim. Simple messages are dropped
// without a bounce, and a bounce is never bounced again; both
// return false.
func BounceMessage(origin types.ChainID, msg types.PostedMessage) (types.OutgoingMessage, bool) {
	if !msg.Kind.IsTracked() {
		return types.OutgoingMessage{}, false
	}
	return types.OutgoingMessage{
		Recipient:        origin,
		TransactionIndex: msg.Index,
		Kind:             types.MessageBouncing,
		Grant:            msg.Grant,
		RefundRecipient:  msg.RefundRecipient,
		Payload:          msg.Payload,
	}, true
}
