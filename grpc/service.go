package chainberrygrpc

import (
	"context"
	"fmt"

	"github.com/blockberries/chainberry/types"

	"google.golang.org/grpc"
)

const serviceName = "github.com/blockberries/chainberry.v1.ChainService"

// ChainServiceServer is the server-side interface for the chainberry
// gRPC service: the full network surface of a node. Proposing blocks
// stays local since it requires the node's own signing key.
type ChainServiceServer interface {
	SubmitProposal(context.Context, *types.BlockProposal) (*OutcomeResponse, error)
	SubmitVote(context.Context, *types.LiteVote) (*OutcomeResponse, error)
	SubmitCertificate(context.Context, *types.Certificate) (*OutcomeResponse, error)
	CrossChain(context.Context, *types.CrossChainRequest) (*CrossChainResponse, error)
	ChainInfo(context.Context, *ChainInfoRequest) (*types.ChainManagerInfo, error)
}

// RegisterChainServiceServer registers the ChainServiceServer on a gRPC server.
func RegisterChainServiceServer(s *grpc.Server, srv ChainServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// --- Handler functions ---

func handlerSubmitProposal(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.BlockProposal)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ChainServiceServer).SubmitProposal(ctx, req)
}

func handlerSubmitVote(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.LiteVote)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ChainServiceServer).SubmitVote(ctx, req)
}

func handlerSubmitCertificate(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.Certificate)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ChainServiceServer).SubmitCertificate(ctx, req)
}

func handlerCrossChain(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.CrossChainRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ChainServiceServer).CrossChain(ctx, req)
}

func handlerChainInfo(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(ChainInfoRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ChainServiceServer).ChainInfo(ctx, req)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor for chainberry.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ChainServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitProposal", Handler: handlerSubmitProposal},
		{MethodName: "SubmitVote", Handler: handlerSubmitVote},
		{MethodName: "SubmitCertificate", Handler: handlerSubmitCertificate},
		{MethodName: "CrossChain", Handler: handlerCrossChain},
		{MethodName: "ChainInfo", Handler: handlerChainInfo},
	},
	Metadata: "github.com/blockberries/chainberry/v1/service.cram",
}
