package engine

import (
	"errors"
	"testing"

	"github.com/blockberries/chainberry/privval"
	"github.com/blockberries/chainberry/store"
	"github.com/blockberries/chainberry/types"
)

// fastChainConfig is a one-super-owner chain: the proposer's own
// vote is fast-round unanimity, so a single ProposeBlock confirms.
func fastChainConfig(t *testing.T, pv *privval.MemoryPV) (types.ChainOwnership, *types.Committee) {
	t.Helper()
	committee, err := types.NewCommittee(1, []types.CommitteeMember{
		{PublicKey: pv.PublicKey(), Weight: 1},
	})
	if err != nil {
		t.Fatalf("NewCommittee failed: %v", err)
	}
	ownership := types.ChainOwnership{
		SuperOwners: []types.Owner{pv.Owner()},
		Timeouts:    types.DefaultTimeoutConfig(),
	}
	return ownership, committee
}

func newTestNode(t *testing.T, st store.Store, pv *privval.MemoryPV, send CrossChainSender) *Node {
	t.Helper()
	n, err := NewNode(DefaultConfig(), st, pv, send)
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}
	return n
}

func registerFastChain(t *testing.T, n *Node, pv *privval.MemoryPV, chainID types.ChainID) {
	t.Helper()
	ownership, committee := fastChainConfig(t, pv)
	if err := n.RegisterChain(chainID, ownership, committee); err != nil {
		t.Fatalf("RegisterChain failed: %v", err)
	}
}

func TestNodeConfirmAndDeliverLocally(t *testing.T) {
	st := store.NewMemory()
	pv := privval.GenerateMemoryPV()
	n := newTestNode(t, st, pv, nil)

	chain1 := types.ChainIDFromSeed([]byte("node-chain-1"))
	chain2 := types.ChainIDFromSeed([]byte("node-chain-2"))
	registerFastChain(t, n, pv, chain1)
	registerFastChain(t, n, pv, chain2)

	block := types.Block{
		ChainID: chain1,
		Height:  0,
		Messages: []types.OutgoingMessage{
			{Recipient: chain2, TransactionIndex: 0, Kind: types.MessageSimple, Payload: []byte("hello")},
		},
	}
	_, outcome, err := n.ProposeBlock(chain1, block)
	if err != nil {
		t.Fatalf("ProposeBlock failed: %v", err)
	}
	if outcome.Confirmed == nil {
		t.Fatal("super-owner proposal should confirm immediately")
	}

	info, err := n.ChainInfo(chain1)
	if err != nil {
		t.Fatalf("ChainInfo failed: %v", err)
	}
	if info.Height != 1 {
		t.Fatalf("chain height = %d, want 1", info.Height)
	}

	// The certificate is durable.
	cert, err := st.CertificateByHeight(chain1, 0)
	if err != nil {
		t.Fatalf("CertificateByHeight failed: %v", err)
	}
	if cert.Value.Kind != types.CertConfirmed {
		t.Fatalf("stored certificate kind = %s, want confirmed", cert.Value.Kind)
	}

	// The bundle reached the locally hosted recipient and, once
	// acknowledged over the loopback, was pruned from the sender's
	// durable outbox.
	queued, err := n.NextBundles(chain2)
	if err != nil {
		t.Fatalf("NextBundles failed: %v", err)
	}
	if len(queued) != 1 {
		t.Fatalf("inbox length = %d, want 1", len(queued))
	}
	if queued[0].Origin != chain1 || string(queued[0].Bundle.Messages[0].Payload) != "hello" {
		t.Fatalf("unexpected bundle: %+v", queued[0])
	}
	pending, err := st.Bundles(chain1, chain2)
	if err != nil {
		t.Fatalf("Bundles failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("acknowledged bundles not pruned: %d remain", len(pending))
	}
	if height, ok, err := st.InboxCursor(chain2, chain1); err != nil || !ok || height != 0 {
		t.Fatalf("inbox cursor = %d,%v,%v, want 0,true,nil", height, ok, err)
	}
}

func TestNodeRestartRestoresState(t *testing.T) {
	st := store.NewMemory()
	pv := privval.GenerateMemoryPV()
	n := newTestNode(t, st, pv, nil)

	chain1 := types.ChainIDFromSeed([]byte("restart-chain-1"))
	chain2 := types.ChainIDFromSeed([]byte("restart-chain-2"))
	registerFastChain(t, n, pv, chain1)
	registerFastChain(t, n, pv, chain2)

	block := types.Block{
		ChainID: chain1,
		Height:  0,
		Messages: []types.OutgoingMessage{
			{Recipient: chain2, TransactionIndex: 0, Kind: types.MessageSimple, Payload: []byte("x")},
		},
	}
	if _, _, err := n.ProposeBlock(chain1, block); err != nil {
		t.Fatalf("ProposeBlock failed: %v", err)
	}

	// A second node over the same store resumes where the first
	// stopped.
	n2 := newTestNode(t, st, pv, nil)
	registerFastChain(t, n2, pv, chain1)
	registerFastChain(t, n2, pv, chain2)
	if err := n2.RestoreInboxCursor(chain2, chain1); err != nil {
		t.Fatalf("RestoreInboxCursor failed: %v", err)
	}

	info, err := n2.ChainInfo(chain1)
	if err != nil {
		t.Fatalf("ChainInfo failed: %v", err)
	}
	if info.Height != 1 {
		t.Fatalf("restored height = %d, want 1", info.Height)
	}

	// Re-proposing the already-confirmed height is refused.
	if _, _, err := n2.ProposeBlock(chain1, block); !errors.Is(err, ErrInvalidProposal) {
		t.Fatalf("err = %v, want ErrInvalidProposal", err)
	}

	// The next height confirms on the restored chain.
	next := types.Block{ChainID: chain1, Height: 1}
	_, outcome, err := n2.ProposeBlock(chain1, next)
	if err != nil {
		t.Fatalf("ProposeBlock at height 1 failed: %v", err)
	}
	if outcome.Confirmed == nil {
		t.Fatal("expected confirmation at height 1")
	}
}

func TestNodeUnknownChain(t *testing.T) {
	st := store.NewMemory()
	pv := privval.GenerateMemoryPV()
	n := newTestNode(t, st, pv, nil)

	unknown := types.ChainIDFromSeed([]byte("never-registered"))
	if _, err := n.ChainInfo(unknown); !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("err = %v, want ErrUnknownChain", err)
	}
	if _, _, err := n.ProposeBlock(unknown, types.Block{ChainID: unknown}); !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("err = %v, want ErrUnknownChain", err)
	}

	// Registering the same chain twice is refused.
	chainID := types.ChainIDFromSeed([]byte("registered-once"))
	registerFastChain(t, n, pv, chainID)
	ownership, committee := fastChainConfig(t, pv)
	if err := n.RegisterChain(chainID, ownership, committee); !errors.Is(err, ErrChainExists) {
		t.Fatalf("err = %v, want ErrChainExists", err)
	}
}

func TestNodeReceivesRemoteUpdate(t *testing.T) {
	st := store.NewMemory()
	pv := privval.GenerateMemoryPV()
	n := newTestNode(t, st, pv, nil)

	local := types.ChainIDFromSeed([]byte("local-recipient"))
	remote := types.ChainIDFromSeed([]byte("remote-sender"))
	registerFastChain(t, n, pv, local)

	bundle := types.MessageBundle{
		Sender:    remote,
		Recipient: local,
		Height:    0,
		Messages:  []types.PostedMessage{{Index: 0, Kind: types.MessageSimple, Payload: []byte("remote")}},
	}
	update := &types.UpdateRecipient{Sender: remote, Recipient: local, Bundles: []types.MessageBundle{bundle}}

	ack, err := n.ReceiveCrossChain(types.NewUpdateRequest(update))
	if err != nil {
		t.Fatalf("ReceiveCrossChain failed: %v", err)
	}
	if ack == nil || ack.Kind != types.CrossChainConfirmUpdatedRecipient {
		t.Fatalf("response = %+v, want a confirmation", ack)
	}
	if ack.Confirm.Sender != remote || ack.Confirm.Height != 0 {
		t.Fatalf("confirmation = %+v", ack.Confirm)
	}

	queued, err := n.NextBundles(local)
	if err != nil {
		t.Fatalf("NextBundles failed: %v", err)
	}
	if len(queued) != 1 || queued[0].Origin != remote {
		t.Fatalf("inbox = %+v, want the remote bundle", queued)
	}

	// A retransmission of the same update is acknowledged again but
	// queues nothing new.
	if _, err := n.ReceiveCrossChain(types.NewUpdateRequest(update)); err != nil {
		t.Fatalf("retransmitted update failed: %v", err)
	}
	queued, _ = n.NextBundles(local)
	if len(queued) != 1 {
		t.Fatalf("inbox after retransmission = %d bundles, want 1", len(queued))
	}
}

func TestNodeSendsToRemoteRecipient(t *testing.T) {
	st := store.NewMemory()
	pv := privval.GenerateMemoryPV()

	var sent []*types.CrossChainRequest
	n := newTestNode(t, st, pv, func(req *types.CrossChainRequest) {
		sent = append(sent, req)
	})

	chain1 := types.ChainIDFromSeed([]byte("sender-chain"))
	remote := types.ChainIDFromSeed([]byte("unhosted-recipient"))
	registerFastChain(t, n, pv, chain1)

	block := types.Block{
		ChainID: chain1,
		Height:  0,
		Messages: []types.OutgoingMessage{
			{Recipient: remote, TransactionIndex: 0, Kind: types.MessageTracked, Grant: 5, Payload: []byte("out")},
		},
	}
	if _, _, err := n.ProposeBlock(chain1, block); err != nil {
		t.Fatalf("ProposeBlock failed: %v", err)
	}

	if len(sent) != 1 || sent[0].Kind != types.CrossChainUpdateRecipient {
		t.Fatalf("sent = %+v, want one update request", sent)
	}
	if got := sent[0].Update.Recipient; got != remote {
		t.Fatalf("update recipient = %s, want %s", got, remote)
	}

	// Unacknowledged bundles stay durable until the remote confirms.
	pending, err := st.Bundles(chain1, remote)
	if err != nil {
		t.Fatalf("Bundles failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("durable bundles = %d, want 1", len(pending))
	}

	confirm := &types.ConfirmUpdatedRecipient{Sender: chain1, Recipient: remote, Height: 0}
	resp, err := n.ReceiveCrossChain(types.NewConfirmRequest(confirm))
	if err != nil {
		t.Fatalf("ReceiveCrossChain confirm failed: %v", err)
	}
	if resp != nil {
		t.Fatalf("confirmation response = %+v, want nil", resp)
	}
	pending, _ = st.Bundles(chain1, remote)
	if len(pending) != 0 {
		t.Fatalf("bundles after confirmation = %d, want 0", len(pending))
	}
}

func TestProposeBlockChainsPreviousPointers(t *testing.T) {
	st := store.NewMemory()
	pv := privval.GenerateMemoryPV()
	n := newTestNode(t, st, pv, nil)

	chain1 := types.ChainIDFromSeed([]byte("prev-sender"))
	chain2 := types.ChainIDFromSeed([]byte("prev-recipient"))
	registerFastChain(t, n, pv, chain1)
	registerFastChain(t, n, pv, chain2)

	blockAt := func(height uint64, payload string) types.Block {
		return types.Block{
			ChainID: chain1,
			Height:  height,
			Messages: []types.OutgoingMessage{
				{Recipient: chain2, TransactionIndex: 0, Kind: types.MessageSimple, Payload: []byte(payload)},
			},
		}
	}

	// The first block to message a recipient has no predecessor.
	p1, _, err := n.ProposeBlock(chain1, blockAt(0, "one"))
	if err != nil {
		t.Fatalf("ProposeBlock failed: %v", err)
	}
	if len(p1.Content.PreviousMessageBlocks) != 0 {
		t.Fatalf("first block previous pointers = %d, want 0", len(p1.Content.PreviousMessageBlocks))
	}

	// The second block must name the first, or the recipient holds
	// its bundles as out of order.
	p2, _, err := n.ProposeBlock(chain1, blockAt(1, "two"))
	if err != nil {
		t.Fatalf("second ProposeBlock failed: %v", err)
	}
	if len(p2.Content.PreviousMessageBlocks) != 1 {
		t.Fatalf("second block previous pointers = %d, want 1", len(p2.Content.PreviousMessageBlocks))
	}
	prev := p2.Content.PreviousMessageBlocks[0]
	if prev.Recipient != chain2 || prev.Height != 0 {
		t.Fatalf("previous pointer = %+v, want chain2 at height 0", prev)
	}

	// Both bundles were accepted by the recipient, the second one
	// carrying the pointer.
	bundles, err := n.NextBundles(chain2)
	if err != nil {
		t.Fatalf("NextBundles failed: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("recipient bundles = %d, want 2", len(bundles))
	}
	if bundles[1].Bundle.Previous == nil || bundles[1].Bundle.Previous.Height != 0 {
		t.Fatalf("second bundle previous = %+v, want height 0", bundles[1].Bundle.Previous)
	}

	if h, ok, err := st.InboxCursor(chain2, chain1); err != nil || !ok || h != 1 {
		t.Fatalf("inbox cursor = (%d, %v, %v), want (1, true, nil)", h, ok, err)
	}
}
