package types

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// PublicKey is a raw Ed25519 public key.
type PublicKey [32]byte

// Signature is a raw Ed25519 signature.
type Signature [64]byte

// Owner identifies a chain owner or validator: the address derived
// from its public key. Addresses, not keys, appear in ownership
// configuration and certificates so that key material stays out of
// hot-path comparisons.
type Owner [32]byte

// ChainID identifies a single logical chain in the network.
type ChainID [32]byte

// HashBytes computes the SHA-256 hash of raw data.
func HashBytes(data []byte) Hash {
	return sha256.Sum256(data)
}

// HashOf computes the canonical content hash of a wire entity:
// the SHA-256 of its cramberry encoding.
func HashOf(v any) Hash {
	data, err := cramberry.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("CONSENSUS CRITICAL: failed to marshal value for hash: %v", err))
	}
	return HashBytes(data)
}

// OwnerFromPublicKey derives the owner address for a public key.
func OwnerFromPublicKey(pk PublicKey) Owner {
	return Owner(sha256.Sum256(pk[:]))
}

// ChainIDFromSeed derives a chain id from an arbitrary seed.
// Used when creating chains and in tests.
func ChainIDFromSeed(seed []byte) ChainID {
	return ChainID(sha256.Sum256(seed))
}

// VerifySignature verifies an Ed25519 signature over a message.
func VerifySignature(pk PublicKey, message []byte, sig Signature) bool {
	return ed25519.Verify(pk[:], message, sig[:])
}

// IsZeroHash reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the chain id is unset.
func (c ChainID) IsZero() bool {
	return c == ChainID{}
}

// String returns the hex encoding of the chain id.
func (c ChainID) String() string {
	return hex.EncodeToString(c[:])
}

// String returns the hex encoding of the owner address.
func (o Owner) String() string {
	return hex.EncodeToString(o[:])
}

// CompareOwners orders owner addresses lexicographically. This is
// the canonical order for signer lists inside certificates.
func CompareOwners(a, b Owner) int {
	return bytes.Compare(a[:], b[:])
}

// CompareChainIDs orders chain ids lexicographically.
func CompareChainIDs(a, b ChainID) int {
	return bytes.Compare(a[:], b[:])
}
