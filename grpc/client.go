package chainberrygrpc

import (
	"context"
	"fmt"
	"log"

	"github.com/blockberries/chainberry/engine"
	"github.com/blockberries/chainberry/types"

	"google.golang.org/grpc"
)

// Client talks to a remote chainberry node over gRPC using cramberry
// serialization. No protobuf types or conversion layer required.
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a remote chainberry node.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("chainberry client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// --- Consensus ---

func (c *Client) SubmitProposal(ctx context.Context, p *types.BlockProposal) (*OutcomeResponse, error) {
	resp := new(OutcomeResponse)
	if err := c.cc.Invoke(ctx, fullMethod("SubmitProposal"), p, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SubmitVote(ctx context.Context, v *types.LiteVote) (*OutcomeResponse, error) {
	resp := new(OutcomeResponse)
	if err := c.cc.Invoke(ctx, fullMethod("SubmitVote"), v, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) SubmitCertificate(ctx context.Context, cert *types.Certificate) (*OutcomeResponse, error) {
	resp := new(OutcomeResponse)
	if err := c.cc.Invoke(ctx, fullMethod("SubmitCertificate"), cert, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// --- Cross-chain ---

func (c *Client) CrossChain(ctx context.Context, req *types.CrossChainRequest) (*types.CrossChainRequest, error) {
	resp := new(CrossChainResponse)
	if err := c.cc.Invoke(ctx, fullMethod("CrossChain"), req, resp); err != nil {
		return nil, err
	}
	return resp.Response, nil
}

// Sender adapts the client into a cross-chain sender for a local
// node. Delivery is fire and forget: errors are logged and the bundle
// stays in the outbox, so a later retransmission can retry. A peer's
// confirmation is fed back into the node to advance the outbox cursor.
func (c *Client) Sender(node *engine.Node) engine.CrossChainSender {
	return func(req *types.CrossChainRequest) {
		confirm, err := c.CrossChain(context.Background(), req)
		if err != nil {
			log.Printf("[ERROR] grpc: cross-chain delivery: %v", err)
			return
		}
		if confirm == nil {
			return
		}
		if _, err := node.ReceiveCrossChain(confirm); err != nil {
			log.Printf("[ERROR] grpc: cross-chain confirmation: %v", err)
		}
	}
}

// --- Query ---

func (c *Client) ChainInfo(ctx context.Context, chainID types.ChainID) (*types.ChainManagerInfo, error) {
	req := &ChainInfoRequest{ChainID: chainID}
	resp := new(types.ChainManagerInfo)
	if err := c.cc.Invoke(ctx, fullMethod("ChainInfo"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
