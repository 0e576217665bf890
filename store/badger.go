package store

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/chainberry/types"
)

// Key prefixes. Fixed-width components after the prefix keep
// iteration order equal to (height, transaction index) order.
const (
	prefixInfo   = 'i' // i | chain id                          -> ChainManagerInfo
	prefixCert   = 'c' // c | cert hash                         -> Certificate
	prefixHeight = 'h' // h | chain id | height                 -> cert hash
	prefixBundle = 'b' // b | sender | recipient | height | tx  -> MessageBundle
	prefixCursor = 'x' // x | recipient | sender                -> height
)

const defaultCertCacheSize = 1024

// Badger is the Store backed by a badger key-value database, with
// an LRU cache in front of certificate-by-hash lookups.
type Badger struct {
	db    *badger.DB
	certs *lru.Cache
}

// OpenBadger opens (or creates) the store at dir. An empty dir
// opens an in-memory database, used by tests.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	certs, err := lru.New(defaultCertCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Badger{db: db, certs: certs}, nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}

func infoKey(chainID types.ChainID) []byte {
	return append([]byte{prefixInfo}, chainID[:]...)
}

func certKey(hash types.Hash) []byte {
	return append([]byte{prefixCert}, hash[:]...)
}

func heightKey(chainID types.ChainID, height uint64) []byte {
	key := make([]byte, 0, 1+len(chainID)+8)
	key = append(key, prefixHeight)
	key = append(key, chainID[:]...)
	return binary.BigEndian.AppendUint64(key, height)
}

func bundlePrefix(sender, recipient types.ChainID) []byte {
	key := make([]byte, 0, 1+2*len(sender))
	key = append(key, prefixBundle)
	key = append(key, sender[:]...)
	return append(key, recipient[:]...)
}

func bundleKey(b *types.MessageBundle) []byte {
	key := bundlePrefix(b.Sender, b.Recipient)
	key = binary.BigEndian.AppendUint64(key, b.Height)
	return binary.BigEndian.AppendUint32(key, b.TransactionIndex)
}

func cursorKey(recipient, sender types.ChainID) []byte {
	key := make([]byte, 0, 1+2*len(sender))
	key = append(key, prefixCursor)
	key = append(key, recipient[:]...)
	return append(key, sender[:]...)
}

func (s *Badger) put(key []byte, v any) error {
	data, err := cramberry.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *Badger) get(key []byte, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return cramberry.Unmarshal(data, v)
	})
}

func (s *Badger) PutChainInfo(info *types.ChainManagerInfo) error {
	return s.put(infoKey(info.ChainID), info)
}

func (s *Badger) ChainInfo(chainID types.ChainID) (*types.ChainManagerInfo, error) {
	var info types.ChainManagerInfo
	if err := s.get(infoKey(chainID), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Badger) ListChains() ([]types.ChainID, error) {
	var out []types.ChainID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{prefixInfo}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			var chainID types.ChainID
			copy(chainID[:], key[1:])
			out = append(out, chainID)
		}
		return nil
	})
	return out, err
}

func (s *Badger) PutCertificate(cert *types.Certificate) error {
	hash := cert.Hash()
	if err := s.put(certKey(hash), cert); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(heightKey(cert.Value.ChainIDOf(), cert.Value.Height()), hash[:])
	})
	if err != nil {
		return err
	}
	copied := *cert
	s.certs.Add(hash, &copied)
	return nil
}

func (s *Badger) CertificateByHeight(chainID types.ChainID, height uint64) (*types.Certificate, error) {
	var hash types.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightKey(chainID, height))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		copy(hash[:], data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.CertificateByHash(hash)
}

func (s *Badger) CertificateByHash(hash types.Hash) (*types.Certificate, error) {
	if cached, ok := s.certs.Get(hash); ok {
		copied := *cached.(*types.Certificate)
		return &copied, nil
	}
	var cert types.Certificate
	if err := s.get(certKey(hash), &cert); err != nil {
		return nil, err
	}
	copied := cert
	s.certs.Add(hash, &copied)
	return &cert, nil
}

func (s *Badger) PutBundle(bundle *types.MessageBundle) error {
	return s.put(bundleKey(bundle), bundle)
}

func (s *Badger) Bundles(sender, recipient types.ChainID) ([]*types.MessageBundle, error) {
	var out []*types.MessageBundle
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = bundlePrefix(sender, recipient)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var b types.MessageBundle
			if err := cramberry.Unmarshal(data, &b); err != nil {
				return err
			}
			out = append(out, &b)
		}
		return nil
	})
	return out, err
}

func (s *Badger) PruneBundles(sender, recipient types.ChainID, upToHeight uint64) error {
	var doomed [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := bundlePrefix(sender, recipient)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			height := binary.BigEndian.Uint64(key[len(prefix) : len(prefix)+8])
			if height <= upToHeight {
				doomed = append(doomed, key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Badger) BundleRecipients(sender types.ChainID) ([]types.ChainID, error) {
	var out []types.ChainID
	seen := make(map[types.ChainID]struct{})
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := make([]byte, 0, 1+len(sender))
		prefix = append(prefix, prefixBundle)
		prefix = append(prefix, sender[:]...)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			var recipient types.ChainID
			copy(recipient[:], key[len(prefix):])
			if _, dup := seen[recipient]; !dup {
				seen[recipient] = struct{}{}
				out = append(out, recipient)
			}
		}
		return nil
	})
	// Keys iterate in recipient order already, but make it explicit.
	sort.Slice(out, func(i, j int) bool {
		return types.CompareChainIDs(out[i], out[j]) < 0
	})
	return out, err
}

func (s *Badger) PutInboxCursor(recipient, sender types.ChainID, height uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cursorKey(recipient, sender), buf[:])
	})
}

func (s *Badger) InboxCursor(recipient, sender types.ChainID) (uint64, bool, error) {
	var height uint64
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cursorKey(recipient, sender))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		height = binary.BigEndian.Uint64(data)
		found = true
		return nil
	})
	return height, found, err
}

var _ Store = (*Badger)(nil)
