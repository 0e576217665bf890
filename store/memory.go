package store

import (
	"sort"
	"sync"

	"github.com/blockberries/chainberry/types"
)

// Memory is the in-memory Store used by tests and ephemeral nodes.
type Memory struct {
	mu sync.RWMutex

	infos        map[types.ChainID]*types.ChainManagerInfo
	certsByHash  map[types.Hash]*types.Certificate
	certsByPoint map[chainPoint]types.Hash
	bundles      map[pairKey][]*types.MessageBundle
	cursors      map[pairKey]uint64
}

type chainPoint struct {
	chainID types.ChainID
	height  uint64
}

type pairKey struct {
	a types.ChainID
	b types.ChainID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		infos:        make(map[types.ChainID]*types.ChainManagerInfo),
		certsByHash:  make(map[types.Hash]*types.Certificate),
		certsByPoint: make(map[chainPoint]types.Hash),
		bundles:      make(map[pairKey][]*types.MessageBundle),
		cursors:      make(map[pairKey]uint64),
	}
}

func (m *Memory) PutChainInfo(info *types.ChainManagerInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *info
	m.infos[info.ChainID] = &copied
	return nil
}

func (m *Memory) ChainInfo(chainID types.ChainID) (*types.ChainManagerInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.infos[chainID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *info
	return &copied, nil
}

func (m *Memory) ListChains() ([]types.ChainID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ChainID, 0, len(m.infos))
	for chainID := range m.infos {
		out = append(out, chainID)
	}
	sort.Slice(out, func(i, j int) bool {
		return types.CompareChainIDs(out[i], out[j]) < 0
	})
	return out, nil
}

func (m *Memory) PutCertificate(cert *types.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *cert
	hash := cert.Hash()
	m.certsByHash[hash] = &copied
	m.certsByPoint[chainPoint{cert.Value.ChainIDOf(), cert.Value.Height()}] = hash
	return nil
}

func (m *Memory) CertificateByHeight(chainID types.ChainID, height uint64) (*types.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.certsByPoint[chainPoint{chainID, height}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *m.certsByHash[hash]
	return &copied, nil
}

func (m *Memory) CertificateByHash(hash types.Hash) (*types.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cert, ok := m.certsByHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *cert
	return &copied, nil
}

func (m *Memory) PutBundle(bundle *types.MessageBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{bundle.Sender, bundle.Recipient}
	for _, b := range m.bundles[key] {
		if b.Key() == bundle.Key() {
			return nil
		}
	}
	copied := *bundle
	m.bundles[key] = append(m.bundles[key], &copied)
	sort.Slice(m.bundles[key], func(i, j int) bool {
		bi, bj := m.bundles[key][i], m.bundles[key][j]
		if bi.Height != bj.Height {
			return bi.Height < bj.Height
		}
		return bi.TransactionIndex < bj.TransactionIndex
	})
	return nil
}

func (m *Memory) Bundles(sender, recipient types.ChainID) ([]*types.MessageBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.bundles[pairKey{sender, recipient}]
	out := make([]*types.MessageBundle, 0, len(stored))
	for _, b := range stored {
		copied := *b
		out = append(out, &copied)
	}
	return out, nil
}

func (m *Memory) PruneBundles(sender, recipient types.ChainID, upToHeight uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{sender, recipient}
	kept := m.bundles[key][:0]
	for _, b := range m.bundles[key] {
		if b.Height > upToHeight {
			kept = append(kept, b)
		}
	}
	m.bundles[key] = kept
	return nil
}

func (m *Memory) BundleRecipients(sender types.ChainID) ([]types.ChainID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.ChainID
	for key, bundles := range m.bundles {
		if key.a == sender && len(bundles) > 0 {
			out = append(out, key.b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return types.CompareChainIDs(out[i], out[j]) < 0
	})
	return out, nil
}

func (m *Memory) PutInboxCursor(recipient, sender types.ChainID, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[pairKey{recipient, sender}] = height
	return nil
}

func (m *Memory) InboxCursor(recipient, sender types.ChainID) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	height, ok := m.cursors[pairKey{recipient, sender}]
	return height, ok, nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
