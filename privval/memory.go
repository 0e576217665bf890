package privval

import (
	"crypto/ed25519"
	"sync"

	"github.com/blockberries/chainberry/types"
)

// MemoryPV is an in-memory signer with the same double-sign
// protection as FilePV but no persistence. Useful in tests and for
// ephemeral chain clients.
type MemoryPV struct {
	mu sync.Mutex

	pubKey  types.PublicKey
	owner   types.Owner
	privKey ed25519.PrivateKey

	states signStates
}

// NewMemoryPV wraps an existing key pair.
func NewMemoryPV(priv ed25519.PrivateKey) *MemoryPV {
	pv := &MemoryPV{
		privKey: priv,
		states:  make(signStates),
	}
	copy(pv.pubKey[:], priv.Public().(ed25519.PublicKey))
	pv.owner = types.OwnerFromPublicKey(pv.pubKey)
	return pv
}

// GenerateMemoryPV creates an in-memory signer with a fresh key.
func GenerateMemoryPV() *MemoryPV {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return NewMemoryPV(priv)
}

// PublicKey returns the signing key.
func (pv *MemoryPV) PublicKey() types.PublicKey {
	return pv.pubKey
}

// Owner returns the address derived from the signing key.
func (pv *MemoryPV) Owner() types.Owner {
	return pv.owner
}

// SignVote signs a vote, refusing conflicting votes at the same
// height, round and step.
func (pv *MemoryPV) SignVote(height uint64, vote *types.LiteVote) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	_, err := pv.states.signVote(pv.privKey, pv.pubKey, pv.owner, height, vote)
	return err
}

// SignProposal signs a proposal, refusing conflicting proposals at
// the same height and round.
func (pv *MemoryPV) SignProposal(proposal *types.BlockProposal) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	_, err := pv.states.signProposal(pv.privKey, pv.pubKey, pv.owner, proposal)
	return err
}

var _ Signer = (*MemoryPV)(nil)
