package chainberrygrpc

import (
	"context"
	"net"

	"github.com/blockberries/chainberry/engine"
	"github.com/blockberries/chainberry/types"

	"google.golang.org/grpc"
)

// Compile-time interface check.
var _ ChainServiceServer = (*GRPCServer)(nil)

// GRPCServer exposes an engine.Node over gRPC. No type conversion is
// needed: domain types are serialized directly via cramberry.
type GRPCServer struct {
	node *engine.Node
}

// NewGRPCServer creates a gRPC server wrapping the given node.
func NewGRPCServer(node *engine.Node) *GRPCServer {
	return &GRPCServer{node: node}
}

// Register adds the chain service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterChainServiceServer(gs, s)
}

// Serve starts the gRPC server on the given listener.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs.Serve(lis)
}

// Node returns the underlying node for advanced use.
func (s *GRPCServer) Node() *engine.Node {
	return s.node
}

// --- Consensus RPCs ---

func (s *GRPCServer) SubmitProposal(ctx context.Context, p *types.BlockProposal) (*OutcomeResponse, error) {
	outcome, err := s.node.SubmitProposal(p)
	if err != nil {
		return nil, err
	}
	return outcomeResponse(outcome), nil
}

func (s *GRPCServer) SubmitVote(ctx context.Context, v *types.LiteVote) (*OutcomeResponse, error) {
	outcome, err := s.node.SubmitVote(v)
	if err != nil {
		return nil, err
	}
	return outcomeResponse(outcome), nil
}

func (s *GRPCServer) SubmitCertificate(ctx context.Context, c *types.Certificate) (*OutcomeResponse, error) {
	outcome, err := s.node.SubmitCertificate(c)
	if err != nil {
		return nil, err
	}
	return outcomeResponse(outcome), nil
}

// --- Cross-chain RPCs ---

func (s *GRPCServer) CrossChain(ctx context.Context, req *types.CrossChainRequest) (*CrossChainResponse, error) {
	resp, err := s.node.ReceiveCrossChain(req)
	if err != nil {
		return nil, err
	}
	return &CrossChainResponse{Response: resp}, nil
}

// --- Query RPCs ---

func (s *GRPCServer) ChainInfo(ctx context.Context, req *ChainInfoRequest) (*types.ChainManagerInfo, error) {
	return s.node.ChainInfo(req.ChainID)
}

func outcomeResponse(outcome *engine.Outcome) *OutcomeResponse {
	if outcome == nil {
		return &OutcomeResponse{}
	}
	return &OutcomeResponse{
		Vote:        outcome.Vote,
		Certificate: outcome.Certificate,
		Confirmed:   outcome.Confirmed,
	}
}
