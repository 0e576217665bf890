package router

import (
	"testing"

	"github.com/blockberries/chainberry/types"
)

var (
	chainX = types.ChainIDFromSeed([]byte("chain-x"))
	chainY = types.ChainIDFromSeed([]byte("chain-y"))
	chainZ = types.ChainIDFromSeed([]byte("chain-z"))
)

// confirmedBlock builds a confirmed block at the given height with
// the given messages and its Confirmed certificate. Certificates
// arriving at the router are already quorum-verified, so no
// signatures are needed here.
func confirmedBlock(sender types.ChainID, height uint64, previous *types.PreviousMessageBlock, messages ...types.OutgoingMessage) (*types.Block, *types.Certificate) {
	block := &types.Block{
		ChainID:  sender,
		Height:   height,
		Messages: messages,
	}
	if previous != nil {
		block.PreviousMessageBlocks = []types.PreviousMessageBlock{*previous}
	}
	cert := &types.Certificate{
		Value: types.NewConfirmedValue(block),
		Round: types.SingleLeaderRound(0),
	}
	return block, cert
}

func msgTo(recipient types.ChainID, txIndex uint32, payload string) types.OutgoingMessage {
	return types.OutgoingMessage{
		Recipient:        recipient,
		TransactionIndex: txIndex,
		Kind:             types.MessageSimple,
		Payload:          []byte(payload),
	}
}

func TestOnBlockConfirmedGroupsByRecipientAndTransaction(t *testing.T) {
	ob := NewOutbox(chainX)

	block, cert := confirmedBlock(chainX, 5, nil,
		msgTo(chainY, 0, "a"),
		msgTo(chainY, 0, "b"),
		msgTo(chainY, 1, "c"),
		msgTo(chainZ, 0, "d"),
	)
	bundles, err := ob.OnBlockConfirmed(block, cert)
	if err != nil {
		t.Fatalf("OnBlockConfirmed: %v", err)
	}
	if len(bundles[chainY]) != 2 {
		t.Fatalf("bundles to Y = %d, want 2 (one per transaction)", len(bundles[chainY]))
	}
	if len(bundles[chainZ]) != 1 {
		t.Fatalf("bundles to Z = %d, want 1", len(bundles[chainZ]))
	}

	first := bundles[chainY][0]
	if first.Height != 5 || first.TransactionIndex != 0 {
		t.Fatalf("first bundle keyed (%d, %d), want (5, 0)", first.Height, first.TransactionIndex)
	}
	if first.CertificateHash != cert.Hash() {
		t.Fatal("bundle should carry the confirming certificate's hash")
	}
	if len(first.Messages) != 2 {
		t.Fatalf("first bundle has %d messages, want 2", len(first.Messages))
	}
	if string(first.Messages[0].Payload) != "a" || string(first.Messages[1].Payload) != "b" {
		t.Fatal("message order within a bundle must follow the block")
	}
	if first.Previous != nil {
		t.Fatal("first bundle to a recipient has no previous pointer")
	}

	pointer := ob.PreviousFor(chainY)
	if pointer == nil || pointer.Height != 5 || pointer.Hash != types.BlockHash(block) {
		t.Fatalf("previous pointer for Y = %+v, want height 5 with the block's hash", pointer)
	}
}

func TestOnBlockConfirmedRejectsUnconfirmed(t *testing.T) {
	ob := NewOutbox(chainX)
	block, _ := confirmedBlock(chainX, 5, nil, msgTo(chainY, 0, "a"))
	validated := &types.Certificate{Value: types.NewValidatedValue(block)}
	if _, err := ob.OnBlockConfirmed(block, validated); err != ErrNotConfirmed {
		t.Fatalf("err = %v, want ErrNotConfirmed", err)
	}
}

func TestMakeUpdateRecipientAndAckPrune(t *testing.T) {
	ob := NewOutbox(chainX)
	ob.SetEpoch(3)

	block5, cert5 := confirmedBlock(chainX, 5, nil, msgTo(chainY, 0, "a"))
	if _, err := ob.OnBlockConfirmed(block5, cert5); err != nil {
		t.Fatalf("confirm 5: %v", err)
	}
	prev := ob.PreviousFor(chainY)
	block7, cert7 := confirmedBlock(chainX, 7, prev, msgTo(chainY, 0, "b"))
	if _, err := ob.OnBlockConfirmed(block7, cert7); err != nil {
		t.Fatalf("confirm 7: %v", err)
	}

	update := ob.MakeUpdateRecipient(chainY)
	if update == nil || len(update.Bundles) != 2 {
		t.Fatalf("update = %+v, want 2 bundles", update)
	}
	if update.Epoch != 3 {
		t.Fatalf("update epoch = %d, want 3", update.Epoch)
	}
	if update.Bundles[0].Height != 5 || update.Bundles[1].Height != 7 {
		t.Fatal("bundles must be delivered in height order")
	}
	if update.Bundles[1].Previous == nil || update.Bundles[1].Previous.Height != 5 {
		t.Fatal("second bundle must point back at height 5")
	}

	// Ack height 5: only the bundle at 7 remains queued.
	if err := ob.HandleAck(&types.ConfirmUpdatedRecipient{Sender: chainX, Recipient: chainY, Height: 5}); err != nil {
		t.Fatalf("HandleAck: %v", err)
	}
	if got := ob.PendingCount(chainY); got != 1 {
		t.Fatalf("pending after ack = %d, want 1", got)
	}

	// Ack everything; the queue drains and the update becomes nil.
	if err := ob.HandleAck(&types.ConfirmUpdatedRecipient{Sender: chainX, Recipient: chainY, Height: 7}); err != nil {
		t.Fatalf("HandleAck: %v", err)
	}
	if update := ob.MakeUpdateRecipient(chainY); update != nil {
		t.Fatalf("update after full ack = %+v, want nil", update)
	}

	// An old ack is a no-op.
	if err := ob.HandleAck(&types.ConfirmUpdatedRecipient{Sender: chainX, Recipient: chainY, Height: 5}); err != nil {
		t.Fatalf("old ack: %v", err)
	}
}

func TestPendingRecipients(t *testing.T) {
	ob := NewOutbox(chainX)
	block, cert := confirmedBlock(chainX, 1, nil, msgTo(chainY, 0, "a"), msgTo(chainZ, 0, "b"))
	if _, err := ob.OnBlockConfirmed(block, cert); err != nil {
		t.Fatalf("OnBlockConfirmed: %v", err)
	}
	recipients := ob.PendingRecipients()
	if len(recipients) != 2 {
		t.Fatalf("pending recipients = %d, want 2", len(recipients))
	}
	if types.CompareChainIDs(recipients[0], recipients[1]) >= 0 {
		t.Fatal("pending recipients must be in canonical order")
	}
}
