package chainberrygrpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/blockberries/chainberry/engine"
	chainberrygrpc "github.com/blockberries/chainberry/grpc"
	"github.com/blockberries/chainberry/privval"
	"github.com/blockberries/chainberry/store"
	"github.com/blockberries/chainberry/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// startServer starts a gRPC server on a random port and returns
// the listener address and a cleanup function.
func startServer(t *testing.T, gs *chainberrygrpc.GRPCServer) (string, func()) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := grpc.NewServer()
	gs.Register(s)

	go func() {
		_ = s.Serve(lis)
	}()

	return lis.Addr().String(), func() {
		s.GracefulStop()
	}
}

func dial(t *testing.T, addr string) *chainberrygrpc.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := chainberrygrpc.Dial(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return client
}

// fastChain is a one-super-owner chain: the proposer's own vote is
// fast-round unanimity, so a single proposal confirms.
func fastChain(t *testing.T, pv *privval.MemoryPV) (types.ChainOwnership, *types.Committee) {
	t.Helper()
	committee, err := types.NewCommittee(1, []types.CommitteeMember{
		{PublicKey: pv.PublicKey(), Weight: 1},
	})
	if err != nil {
		t.Fatalf("NewCommittee: %v", err)
	}
	ownership := types.ChainOwnership{
		SuperOwners: []types.Owner{pv.Owner()},
		Timeouts:    types.DefaultTimeoutConfig(),
	}
	return ownership, committee
}

func newNode(t *testing.T, st store.Store, pv *privval.MemoryPV, send engine.CrossChainSender) *engine.Node {
	t.Helper()
	n, err := engine.NewNode(engine.DefaultConfig(), st, pv, send)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return n
}

func registerChain(t *testing.T, n *engine.Node, pv *privval.MemoryPV, chainID types.ChainID) {
	t.Helper()
	ownership, committee := fastChain(t, pv)
	if err := n.RegisterChain(chainID, ownership, committee); err != nil {
		t.Fatalf("RegisterChain: %v", err)
	}
}

func TestGRPC_CertificateSync(t *testing.T) {
	pv := privval.GenerateMemoryPV()
	chainID := types.ChainIDFromSeed([]byte("grpc-sync"))

	// Node A confirms a block locally.
	nodeA := newNode(t, store.NewMemory(), pv, nil)
	registerChain(t, nodeA, pv, chainID)

	_, outcome, err := nodeA.ProposeBlock(chainID, types.Block{ChainID: chainID, Height: 0})
	if err != nil {
		t.Fatalf("ProposeBlock: %v", err)
	}
	if outcome.Confirmed == nil {
		t.Fatal("expected confirmed certificate from super-owner proposal")
	}

	// Node B, hosting the same chain, catches up from the
	// certificate alone.
	nodeB := newNode(t, store.NewMemory(), privval.GenerateMemoryPV(), nil)
	registerChain(t, nodeB, pv, chainID)

	addr, cleanup := startServer(t, chainberrygrpc.NewGRPCServer(nodeB))
	defer cleanup()
	client := dial(t, addr)
	defer client.Close()

	ctx := context.Background()

	resp, err := client.SubmitCertificate(ctx, outcome.Confirmed)
	if err != nil {
		t.Fatalf("SubmitCertificate: %v", err)
	}
	if resp.Confirmed == nil {
		t.Fatal("expected the certificate to confirm the height remotely")
	}

	info, err := client.ChainInfo(ctx, chainID)
	if err != nil {
		t.Fatalf("ChainInfo: %v", err)
	}
	if info.Height != 1 {
		t.Fatalf("remote height = %d, want 1", info.Height)
	}

	// Resubmission of a confirmed certificate is a no-op.
	resp, err = client.SubmitCertificate(ctx, outcome.Confirmed)
	if err != nil {
		t.Fatalf("SubmitCertificate resubmit: %v", err)
	}
	if resp.Confirmed != nil || resp.Vote != nil {
		t.Fatal("resubmitted certificate should produce an empty outcome")
	}
}

func TestGRPC_CrossChainDelivery(t *testing.T) {
	pvA := privval.GenerateMemoryPV()
	pvB := privval.GenerateMemoryPV()
	chain1 := types.ChainIDFromSeed([]byte("grpc-sender"))
	chain2 := types.ChainIDFromSeed([]byte("grpc-recipient"))

	// Node B hosts the recipient chain behind a gRPC server.
	stB := store.NewMemory()
	nodeB := newNode(t, stB, pvB, nil)
	registerChain(t, nodeB, pvB, chain2)

	addr, cleanup := startServer(t, chainberrygrpc.NewGRPCServer(nodeB))
	defer cleanup()
	client := dial(t, addr)
	defer client.Close()

	// Node A delivers outbound bundles through the client; capture
	// the raw updates so retransmission can be replayed below.
	var sent []*types.CrossChainRequest
	var nodeA *engine.Node
	send := func(req *types.CrossChainRequest) {
		sent = append(sent, req)
		client.Sender(nodeA)(req)
	}

	stA := store.NewMemory()
	nodeA = newNode(t, stA, pvA, send)
	registerChain(t, nodeA, pvA, chain1)

	block := types.Block{
		ChainID: chain1,
		Height:  0,
		Messages: []types.OutgoingMessage{
			{Recipient: chain2, TransactionIndex: 0, Kind: types.MessageSimple, Payload: []byte("hello")},
		},
	}
	_, outcome, err := nodeA.ProposeBlock(chain1, block)
	if err != nil {
		t.Fatalf("ProposeBlock: %v", err)
	}
	if outcome.Confirmed == nil {
		t.Fatal("expected confirmed certificate")
	}
	if len(sent) != 1 {
		t.Fatalf("cross-chain sends = %d, want 1", len(sent))
	}

	// The bundle arrived at node B.
	bundles, err := nodeB.NextBundles(chain2)
	if err != nil {
		t.Fatalf("NextBundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("recipient bundles = %d, want 1", len(bundles))
	}
	if bundles[0].Origin != chain1 {
		t.Fatalf("bundle origin = %x, want %x", bundles[0].Origin, chain1)
	}

	// The inbox cursor is durable on node B's side.
	if _, ok, err := stB.InboxCursor(chain2, chain1); err != nil || !ok {
		t.Fatalf("InboxCursor = ok %v, err %v; want recorded cursor", ok, err)
	}

	// Node B's confirmation came back through the sender and pruned
	// node A's durable outbox.
	pending, err := stA.Bundles(chain1, chain2)
	if err != nil {
		t.Fatalf("Bundles: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("outbox bundles after ack = %d, want 0", len(pending))
	}

	// Retransmitting the same update is re-acknowledged without
	// duplicating the bundle.
	confirm, err := client.CrossChain(context.Background(), sent[0])
	if err != nil {
		t.Fatalf("CrossChain retransmit: %v", err)
	}
	if confirm == nil || confirm.Confirm == nil {
		t.Fatal("expected a confirmation for the retransmitted update")
	}
	if confirm.Confirm.Height != 0 {
		t.Fatalf("confirmed height = %d, want 0", confirm.Confirm.Height)
	}
	bundles, err = nodeB.NextBundles(chain2)
	if err != nil {
		t.Fatalf("NextBundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("recipient bundles after retransmit = %d, want 1", len(bundles))
	}
}

func TestGRPC_UnknownChain(t *testing.T) {
	node := newNode(t, store.NewMemory(), privval.GenerateMemoryPV(), nil)

	addr, cleanup := startServer(t, chainberrygrpc.NewGRPCServer(node))
	defer cleanup()
	client := dial(t, addr)
	defer client.Close()

	if _, err := client.ChainInfo(context.Background(), types.ChainIDFromSeed([]byte("nowhere"))); err == nil {
		t.Fatal("expected error for unregistered chain")
	}
}
