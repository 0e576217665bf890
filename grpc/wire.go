package chainberrygrpc

import "github.com/blockberries/chainberry/types"

// Transport-specific wrapper types for RPC methods whose node-side
// signatures don't map to a single request/response struct.
// These are used only at gRPC serialization boundaries.

// OutcomeResponse carries what a submission produced: the node's own
// vote to broadcast, a certificate that formed, and, terminally, the
// Confirmed certificate finalizing the height. All fields may be nil.
type OutcomeResponse struct {
	Vote        *types.LiteVote    `cramberry:"1"`
	Certificate *types.Certificate `cramberry:"2"`
	Confirmed   *types.Certificate `cramberry:"3"`
}

// ChainInfoRequest names the chain whose manager state is queried.
type ChainInfoRequest struct {
	ChainID types.ChainID `cramberry:"1"`
}

// CrossChainResponse wraps the optional confirmation produced by a
// cross-chain delivery. Response is nil when the update carried no
// acceptable bundles yet and the sender should retransmit later.
type CrossChainResponse struct {
	Response *types.CrossChainRequest `cramberry:"1"`
}
