package privval

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blockberries/chainberry/types"
)

const (
	keyFilePerm   = 0600
	stateFilePerm = 0600
)

// FilePV is a file-backed signer. The key file holds the key pair;
// the state file holds the per-chain last-sign state and is
// rewritten after every new signature, so a restarted node cannot
// re-sign a position it already signed.
type FilePV struct {
	mu sync.Mutex

	keyFilePath   string
	stateFilePath string

	pubKey  types.PublicKey
	owner   types.Owner
	privKey ed25519.PrivateKey

	states signStates
}

// FilePVKey is the key file layout.
type FilePVKey struct {
	PubKey  []byte `json:"pub_key"`
	PrivKey []byte `json:"priv_key"`
}

// filePVChainState is one chain's entry in the state file.
type filePVChainState struct {
	Height      uint64 `json:"height"`
	RoundKind   uint8  `json:"round_kind"`
	RoundNumber uint32 `json:"round_number"`
	Step        int8   `json:"step"`
	ValueHash   []byte `json:"value_hash,omitempty"`
	Signature   []byte `json:"signature,omitempty"`
}

// NewFilePV opens a file-backed signer, generating a key if the key
// file does not exist yet.
func NewFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	pv := &FilePV{
		keyFilePath:   keyFilePath,
		stateFilePath: stateFilePath,
		states:        make(signStates),
	}
	if err := pv.loadKey(); err != nil {
		return nil, err
	}
	if err := pv.loadState(); err != nil {
		return nil, err
	}
	return pv, nil
}

// GenerateFilePV generates a fresh key pair and writes both files.
func GenerateFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	pv := &FilePV{
		keyFilePath:   keyFilePath,
		stateFilePath: stateFilePath,
		privKey:       priv,
		states:        make(signStates),
	}
	copy(pv.pubKey[:], pub)
	pv.owner = types.OwnerFromPublicKey(pv.pubKey)

	if err := pv.saveKey(); err != nil {
		return nil, err
	}
	if err := pv.saveState(); err != nil {
		return nil, err
	}
	return pv, nil
}

func (pv *FilePV) loadKey() error {
	data, err := os.ReadFile(pv.keyFilePath)
	if os.IsNotExist(err) {
		pub, priv, genErr := ed25519.GenerateKey(nil)
		if genErr != nil {
			return fmt.Errorf("failed to generate key: %w", genErr)
		}
		copy(pv.pubKey[:], pub)
		pv.owner = types.OwnerFromPublicKey(pv.pubKey)
		pv.privKey = priv
		return pv.saveKey()
	}
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}

	var key FilePVKey
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("failed to parse key file: %w", err)
	}
	if len(key.PubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(key.PubKey))
	}
	if len(key.PrivKey) != ed25519.PrivateKeySize {
		return fmt.Errorf("invalid private key size: %d", len(key.PrivKey))
	}

	copy(pv.pubKey[:], key.PubKey)
	pv.owner = types.OwnerFromPublicKey(pv.pubKey)
	pv.privKey = key.PrivKey
	return nil
}

func (pv *FilePV) saveKey() error {
	dir := filepath.Dir(pv.keyFilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	key := FilePVKey{
		PubKey:  pv.pubKey[:],
		PrivKey: pv.privKey,
	}
	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := os.WriteFile(pv.keyFilePath, data, keyFilePerm); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

func (pv *FilePV) loadState() error {
	data, err := os.ReadFile(pv.stateFilePath)
	if os.IsNotExist(err) {
		return pv.saveState()
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var file map[string]filePVChainState
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	for key, cs := range file {
		raw, err := hex.DecodeString(key)
		if err != nil || len(raw) != len(types.ChainID{}) {
			return fmt.Errorf("invalid chain id in state file: %q", key)
		}
		var chainID types.ChainID
		copy(chainID[:], raw)

		st := &LastSignState{
			Height: cs.Height,
			Round:  types.Round{Kind: types.RoundKind(cs.RoundKind), Number: cs.RoundNumber},
			Step:   cs.Step,
		}
		if len(cs.ValueHash) == len(types.Hash{}) {
			var h types.Hash
			copy(h[:], cs.ValueHash)
			st.ValueHash = &h
		}
		if len(cs.Signature) == len(types.Signature{}) {
			copy(st.Signature[:], cs.Signature)
		}
		pv.states[chainID] = st
	}
	return nil
}

func (pv *FilePV) saveState() error {
	dir := filepath.Dir(pv.stateFilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	file := make(map[string]filePVChainState, len(pv.states))
	for chainID, st := range pv.states {
		cs := filePVChainState{
			Height:      st.Height,
			RoundKind:   uint8(st.Round.Kind),
			RoundNumber: st.Round.Number,
			Step:        st.Step,
			Signature:   st.Signature[:],
		}
		if st.ValueHash != nil {
			cs.ValueHash = st.ValueHash[:]
		}
		file[chainID.String()] = cs
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := os.WriteFile(pv.stateFilePath, data, stateFilePerm); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// PublicKey returns the signing key.
func (pv *FilePV) PublicKey() types.PublicKey {
	return pv.pubKey
}

// Owner returns the address derived from the signing key.
func (pv *FilePV) Owner() types.Owner {
	return pv.owner
}

// SignVote signs a vote, persisting the new last-sign state before
// returning. Re-signing the identical vote is a no-op that re-issues
// the cached signature.
func (pv *FilePV) SignVote(height uint64, vote *types.LiteVote) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	changed, err := pv.states.signVote(pv.privKey, pv.pubKey, pv.owner, height, vote)
	if err != nil {
		return err
	}
	if changed {
		return pv.saveState()
	}
	return nil
}

// SignProposal signs a proposal, persisting the new last-sign state
// before returning.
func (pv *FilePV) SignProposal(proposal *types.BlockProposal) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	changed, err := pv.states.signProposal(pv.privKey, pv.pubKey, pv.owner, proposal)
	if err != nil {
		return err
	}
	if changed {
		return pv.saveState()
	}
	return nil
}

// Reset clears the last-sign state. For tests and chain resets only.
func (pv *FilePV) Reset() error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	pv.states = make(signStates)
	return pv.saveState()
}

var _ Signer = (*FilePV)(nil)
