package router

import (
	"sort"
	"sync"

	"github.com/blockberries/chainberry/types"
)

// Outbox is the sender side of cross-chain delivery for one chain.
// Confirmed blocks feed it; it keeps per-recipient queues of
// unacknowledged bundles and the previous-block pointer each future
// block must embed. OnBlockConfirmed is serialized with the chain's
// confirmation transition: a bundle must never exist before its
// source block is durably confirmed.
type Outbox struct {
	mu     sync.Mutex
	sender types.ChainID
	epoch  uint64

	queues map[types.ChainID]*outboxQueue
}

// outboxQueue is one recipient's delivery state.
type outboxQueue struct {
	// bundles not yet acknowledged, ascending (height, tx index).
	bundles []*types.MessageBundle
	// previous points at the last confirmed block that messaged
	// this recipient; the chain's next block embeds it.
	previous *types.PreviousMessageBlock
}

// NewOutbox creates the outbox of one sender chain.
func NewOutbox(sender types.ChainID) *Outbox {
	return &Outbox{
		sender: sender,
		queues: make(map[types.ChainID]*outboxQueue),
	}
}

// SetEpoch records the sender's current epoch, carried on every
// UpdateRecipient so recipients can verify certificates against the
// right committee.
func (ob *Outbox) SetEpoch(epoch uint64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.epoch = epoch
}

// OnBlockConfirmed converts a confirmed block's outgoing messages
// into bundles, one per (recipient, transaction index), queues them
// for delivery, and returns them grouped by recipient. Recipients
// with no messages in the block get nothing.
func (ob *Outbox) OnBlockConfirmed(block *types.Block, cert *types.Certificate) (map[types.ChainID][]*types.MessageBundle, error) {
	if cert.Value.Kind != types.CertConfirmed {
		return nil, ErrNotConfirmed
	}
	if block.ChainID != ob.sender {
		return nil, ErrWrongSender
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	certHash := cert.Hash()
	out := make(map[types.ChainID][]*types.MessageBundle)

	// Group by (recipient, transaction index), preserving the
	// block's message order within each group.
	type groupKey struct {
		recipient types.ChainID
		txIndex   uint32
	}
	groups := make(map[groupKey][]types.PostedMessage)
	var order []groupKey
	for i, m := range block.Messages {
		key := groupKey{recipient: m.Recipient, txIndex: m.TransactionIndex}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], types.PostedMessage{
			Index:           uint32(i),
			Kind:            m.Kind,
			Grant:           m.Grant,
			RefundRecipient: m.RefundRecipient,
			Payload:         m.Payload,
		})
	}
	sort.Slice(order, func(i, j int) bool {
		if c := types.CompareChainIDs(order[i].recipient, order[j].recipient); c != 0 {
			return c < 0
		}
		return order[i].txIndex < order[j].txIndex
	})

	for _, key := range order {
		bundle := &types.MessageBundle{
			Sender:           ob.sender,
			Recipient:        key.recipient,
			CertificateHash:  certHash,
			Height:           block.Height,
			Timestamp:        block.Timestamp,
			TransactionIndex: key.txIndex,
			Messages:         groups[key],
			Previous:         block.PreviousFor(key.recipient),
		}
		queue := ob.queue(key.recipient)
		queue.bundles = append(queue.bundles, bundle)
		out[key.recipient] = append(out[key.recipient], bundle)
	}

	// Advance the previous-block pointers for every recipient this
	// block messaged.
	blockHash := types.BlockHash(block)
	for recipient := range out {
		ob.queue(recipient).previous = &types.PreviousMessageBlock{
			Recipient: recipient,
			Hash:      blockHash,
			Height:    block.Height,
		}
	}
	return out, nil
}

func (ob *Outbox) queue(recipient types.ChainID) *outboxQueue {
	q := ob.queues[recipient]
	if q == nil {
		q = &outboxQueue{}
		ob.queues[recipient] = q
	}
	return q
}

// RestoreBundle requeues an unacknowledged bundle loaded from
// storage on startup. Bundles must be restored in ascending
// (height, transaction index) order per recipient.
func (ob *Outbox) RestoreBundle(b *types.MessageBundle) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	copied := *b
	q := ob.queue(b.Recipient)
	q.bundles = append(q.bundles, &copied)
}

// SetPrevious restores a recipient's previous-block pointer on
// startup, recovered from the last confirmed block that messaged it.
func (ob *Outbox) SetPrevious(recipient types.ChainID, p *types.PreviousMessageBlock) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	copied := *p
	ob.queue(recipient).previous = &copied
}

// PreviousFor returns the pointer the chain's next block must embed
// for a recipient, or nil if no confirmed block has messaged it.
func (ob *Outbox) PreviousFor(recipient types.ChainID) *types.PreviousMessageBlock {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	q := ob.queues[recipient]
	if q == nil || q.previous == nil {
		return nil
	}
	p := *q.previous
	return &p
}

// MakeUpdateRecipient builds the push request carrying every
// unacknowledged bundle for a recipient, in order. Returns nil when
// there is nothing to deliver. Safe to call repeatedly: re-sends
// are the transport's retry mechanism and the recipient treats
// duplicates as no-ops.
func (ob *Outbox) MakeUpdateRecipient(recipient types.ChainID) *types.UpdateRecipient {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	q := ob.queues[recipient]
	if q == nil || len(q.bundles) == 0 {
		return nil
	}
	bundles := make([]types.MessageBundle, len(q.bundles))
	for i, b := range q.bundles {
		bundles[i] = *b
	}
	return &types.UpdateRecipient{
		Sender:    ob.sender,
		Recipient: recipient,
		Epoch:     ob.epoch,
		Bundles:   bundles,
	}
}

// HandleAck prunes bundles the recipient has acknowledged, up to
// and including the given height. Acks are idempotent; an old ack
// is a no-op.
func (ob *Outbox) HandleAck(ack *types.ConfirmUpdatedRecipient) error {
	if ack.Sender != ob.sender {
		return ErrWrongSender
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	q := ob.queues[ack.Recipient]
	if q == nil {
		return nil
	}
	kept := q.bundles[:0]
	for _, b := range q.bundles {
		if b.Height > ack.Height {
			kept = append(kept, b)
		}
	}
	q.bundles = kept
	return nil
}

// PendingRecipients lists recipients with undelivered bundles, in
// canonical order, for the transport's retry loop.
func (ob *Outbox) PendingRecipients() []types.ChainID {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var out []types.ChainID
	for recipient, q := range ob.queues {
		if len(q.bundles) > 0 {
			out = append(out, recipient)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return types.CompareChainIDs(out[i], out[j]) < 0
	})
	return out
}

// PendingCount returns the number of unacknowledged bundles queued
// for a recipient.
func (ob *Outbox) PendingCount(recipient types.ChainID) int {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if q := ob.queues[recipient]; q != nil {
		return len(q.bundles)
	}
	return 0
}
