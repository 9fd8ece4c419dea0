// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// sealedBoxInfo is the HKDF info string binding a derived key to its
// purpose, mirroring the per-purpose domain separation used for
// content hashes. Every lockbox key derivation uses this string, so a
// key derived for one recipient scope can never be confused with a
// key derived for another context.
const sealedBoxInfo = "concord.lockbox.seal.v1"

// SealedBox is the output of EncryptSealed: an ephemeral public key
// plus a symmetric ciphertext encrypted to a one-time key derived from
// the ECDH shared secret between the ephemeral key and the
// recipient's static public key. This is the wire format of a
// lockbox's encrypted envelope.
type SealedBox struct {
	EphemeralPublic EncryptionPublicKey
	Ciphertext      []byte
}

// EncryptSealed encrypts plaintext to recipient's static X25519 public
// key. A fresh ephemeral keypair is generated per call; its secret
// half is discarded immediately after deriving the shared secret, so
// only the recipient (holding their static secret key) can derive the
// same shared secret and decrypt.
//
// aad is authenticated additional data, not encrypted; the lockbox
// package binds the recipient reference ("scope@generation") here so a
// sealed box cannot be replayed against a different recipient identity.
func EncryptSealed(recipient EncryptionPublicKey, plaintext, aad []byte) (*SealedBox, error) {
	ephemeral, err := GenerateEncryptionKeypair()
	if err != nil {
		return nil, fmt.Errorf("primitives: generating ephemeral keypair: %w", err)
	}
	defer ephemeral.Close()

	key, err := deriveSealedKey(ephemeral.Secret(), recipient, ephemeral.Public, recipient)
	if err != nil {
		return nil, fmt.Errorf("primitives: deriving sealed box key: %w", err)
	}

	ciphertext, err := EncryptSymmetric(key, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("primitives: sealing box: %w", err)
	}

	return &SealedBox{EphemeralPublic: ephemeral.Public, Ciphertext: ciphertext}, nil
}

// DecryptSealed opens a SealedBox addressed to recipient, whose static
// secret key is held in recipientKeypair.
func DecryptSealed(recipientKeypair *EncryptionKeypair, box *SealedBox, aad []byte) ([]byte, error) {
	key, err := deriveSealedKey(recipientKeypair.Secret(), box.EphemeralPublic, box.EphemeralPublic, recipientKeypair.Public)
	if err != nil {
		return nil, fmt.Errorf("primitives: deriving sealed box key: %w", err)
	}

	plaintext, err := DecryptSymmetric(key, box.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("primitives: opening sealed box: %w", err)
	}
	return plaintext, nil
}

// deriveSealedKey computes the X25519 shared secret between
// localSecret and remotePublic, then stretches it with HKDF-SHA256
// into a symmetric key. ephemeralPublic and staticPublic are mixed
// into the HKDF salt (in a fixed order: ephemeral, then static) so the
// sender and recipient derive the identical key regardless of which
// side is computing it.
func deriveSealedKey(localSecret []byte, remotePublic EncryptionPublicKey, ephemeralPublic, staticPublic EncryptionPublicKey) ([SymmetricKeySize]byte, error) {
	var key [SymmetricKeySize]byte

	shared, err := curve25519.X25519(localSecret, remotePublic[:])
	if err != nil {
		return key, fmt.Errorf("computing X25519 shared secret: %w", err)
	}

	salt := make([]byte, 0, len(ephemeralPublic)+len(staticPublic))
	salt = append(salt, ephemeralPublic[:]...)
	salt = append(salt, staticPublic[:]...)

	reader := hkdf.New(sha256.New, shared, salt, []byte(sealedBoxInfo))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return key, fmt.Errorf("stretching shared secret: %w", err)
	}
	return key, nil
}

// deriveSharedKey computes a symmetric key shared between two static
// X25519 keypairs (no ephemeral key). No code path in this module
// calls it. info distinguishes this derivation from a sealed-box
// derivation sharing the same two public keys.
func deriveSharedKey(localSecret []byte, remotePublic EncryptionPublicKey, info string) ([SymmetricKeySize]byte, error) {
	var key [SymmetricKeySize]byte

	shared, err := curve25519.X25519(localSecret, remotePublic[:])
	if err != nil {
		return key, fmt.Errorf("computing X25519 shared secret: %w", err)
	}

	reader := hkdf.New(sha256.New, shared, nil, []byte(info))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return key, fmt.Errorf("stretching shared secret: %w", err)
	}
	return key, nil
}

// linkKeyInfoPrefix namespaces the HKDF info string used to derive a
// generation's link-encryption key from its scope's encryption secret
// scalar, separating it from sealed-box and shared-key derivations
// that might otherwise reuse the same scalar.
const linkKeyInfoPrefix = "concord.graph.link.key.generation."

// DeriveLinkKey derives the symmetric key used to encrypt and decrypt
// graph links for one generation of a scope, from that generation's
// encryption secret scalar. Every holder of the generation's secret
// key — whether the scope's own owner or a peer who received it via a
// Lockbox — derives the identical key, since HKDF is a deterministic
// function of its inputs.
func DeriveLinkKey(encryptionSecretScalar []byte, generation uint64) ([SymmetricKeySize]byte, error) {
	var key [SymmetricKeySize]byte
	info := fmt.Sprintf("%s%d", linkKeyInfoPrefix, generation)
	reader := hkdf.New(sha256.New, encryptionSecretScalar, nil, []byte(info))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return key, fmt.Errorf("primitives: deriving link key: %w", err)
	}
	return key, nil
}

// RandomBytes returns n cryptographically random bytes. Used by the
// connection session-key negotiation to generate each side's random
// half before XOR-combining them.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("primitives: generating random bytes: %w", err)
	}
	return buf, nil
}
