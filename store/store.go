package store

import (
	"errors"

	"github.com/blockberries/chainberry/types"
)

// Store errors
var (
	ErrNotFound = errors.New("store: not found")
	ErrClosed   = errors.New("store: closed")
)

// Store is the persistence the consensus core requires. All methods
// are safe for concurrent use. Lookups that find nothing return
// ErrNotFound.
type Store interface {
	// PutChainInfo overwrites a chain's durable consensus
	// checkpoint.
	PutChainInfo(info *types.ChainManagerInfo) error
	// ChainInfo loads a chain's checkpoint.
	ChainInfo(chainID types.ChainID) (*types.ChainManagerInfo, error)
	// ListChains returns every checkpointed chain, in canonical
	// order.
	ListChains() ([]types.ChainID, error)

	// PutCertificate stores a confirmed certificate, indexed by its
	// hash and by (chain, height).
	PutCertificate(cert *types.Certificate) error
	// CertificateByHeight loads the confirmed certificate at a
	// chain height.
	CertificateByHeight(chainID types.ChainID, height uint64) (*types.Certificate, error)
	// CertificateByHash loads a confirmed certificate by its hash.
	CertificateByHash(hash types.Hash) (*types.Certificate, error)

	// PutBundle stores an unacknowledged outbox bundle.
	PutBundle(bundle *types.MessageBundle) error
	// Bundles returns a (sender, recipient) pair's unacknowledged
	// bundles, ascending (height, transaction index).
	Bundles(sender, recipient types.ChainID) ([]*types.MessageBundle, error)
	// PruneBundles deletes a pair's bundles up to and including a
	// height, after the recipient acknowledged it.
	PruneBundles(sender, recipient types.ChainID, upToHeight uint64) error
	// BundleRecipients lists the recipients a sender still has
	// unacknowledged bundles for, in canonical order. Used to
	// repopulate the outbox on restart.
	BundleRecipients(sender types.ChainID) ([]types.ChainID, error)

	// PutInboxCursor records the last sender height a recipient has
	// accepted.
	PutInboxCursor(recipient, sender types.ChainID, height uint64) error
	// InboxCursor loads a recipient's cursor for a sender. The
	// second result is false when the recipient never accepted
	// anything from the sender.
	InboxCursor(recipient, sender types.ChainID) (uint64, bool, error)

	Close() error
}
