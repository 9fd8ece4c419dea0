// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Link hashes, lockbox digests, and
// parent-set summaries are all this size.
type Hash [32]byte

// HashSize is the size in bytes of a Hash.
const HashSize = 32

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same input bytes produce different hashes
// in different contexts (a link body and a lockbox digest), so a
// collision in one domain can never be replayed as a valid hash in
// another.
type domainKey [32]byte

// Domain separation keys. Changing any of these invalidates every
// existing hash computed in that domain. Values are the ASCII
// encoding of the domain name, zero-padded to 32 bytes, so they are
// inspectable in hex dumps without sacrificing any cryptographic
// property (BLAKE3 keyed mode treats the key as opaque).
var (
	linkDomainKey = domainKey{
		'c', 'o', 'n', 'c', 'o', 'r', 'd', '.', 'g', 'r', 'a', 'p', 'h', '.',
		'l', 'i', 'n', 'k', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	lockboxDomainKey = domainKey{
		'c', 'o', 'n', 'c', 'o', 'r', 'd', '.', 'l', 'o', 'c', 'k', 'b', 'o', 'x', 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	parentSetDomainKey = domainKey{
		'c', 'o', 'n', 'c', 'o', 'r', 'd', '.', 'g', 'r', 'a', 'p', 'h', '.',
		'p', 'a', 'r', 'e', 'n', 't', 's', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	invitationSeedDomainKey = domainKey{
		'c', 'o', 'n', 'c', 'o', 'r', 'd', '.', 'i', 'n', 'v', 'i', 't', 'a',
		't', 'i', 'o', 'n', '.', 's', 'e', 'e', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashLink computes the link-domain BLAKE3 keyed hash of an encrypted,
// signed link body. This is the hash stored as a Link's unique ID.
func HashLink(data []byte) Hash {
	return keyedHash(linkDomainKey, data)
}

// HashLockbox computes the lockbox-domain BLAKE3 keyed hash of a
// lockbox's encrypted contents. Only the tests call it; the lockbox
// package does not address lockboxes by hash.
func HashLockbox(data []byte) Hash {
	return keyedHash(lockboxDomainKey, data)
}

// ExpandInvitationSeed derives a 32-byte Ed25519 seed from a
// normalized invitation seed string of any length, so a short,
// low-entropy phrase like "abc123" can still key a deterministic
// signing keypair.
func ExpandInvitationSeed(seed string) Hash {
	return keyedHash(invitationSeedDomainKey, []byte(seed))
}

// MerkleRoot computes a binary Merkle tree over the given hashes in
// the parent-set domain and returns the root. The tree is built
// bottom-up: adjacent pairs are concatenated and hashed together. An
// odd node at the end of a level is promoted unhashed to the next
// level (never duplicated — duplicating would let two different leaf
// sets produce the same root when one is a prefix of the other).
//
// Used by the connection sync loop to compare two peers' head sets
// with a single digest comparison.
//
// Panics if hashes is empty.
func MerkleRoot(hashes []Hash) Hash {
	if len(hashes) == 0 {
		panic("primitives: MerkleRoot of empty hash list")
	}
	level := hashes
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, pairHash(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

func pairHash(a, b Hash) Hash {
	hasher, err := blake3.NewKeyed(parentSetDomainKey[:])
	if err != nil {
		panic("primitives: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(a[:])
	hasher.Write(b[:])
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

func keyedHash(key domainKey, data []byte) Hash {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("primitives: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

// String returns the base58 encoding of the hash, the canonical
// human-readable form used in logs and link IDs.
func (h Hash) String() string {
	return EncodeBase58(h[:])
}

// Hex returns the hex encoding of the hash, useful for comparing
// against other systems' content-addressing output in tests.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler, serializing as
// base58 — the canonical external representation for a Hash used as a
// CBOR or JSON map key or struct field.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(data []byte) error {
	decoded, err := DecodeBase58(string(data))
	if err != nil {
		return fmt.Errorf("primitives: decoding hash: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("primitives: decoded hash is %d bytes, want %d", len(decoded), HashSize)
	}
	copy(h[:], decoded)
	return nil
}
