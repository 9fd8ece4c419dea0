// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// SymmetricKeySize is the key size in bytes for XChaCha20-Poly1305.
const SymmetricKeySize = chacha20poly1305.KeySize

// symmetricBlobVersion is the leading version byte of every
// ciphertext this package produces, so a future format change can be
// distinguished from the current one at decrypt time.
const symmetricBlobVersion = 1

// SymmetricOverhead is the number of bytes EncryptSymmetric adds
// beyond the plaintext length: one version byte, a 24-byte
// XChaCha20-Poly1305 nonce, and a 16-byte Poly1305 tag.
const SymmetricOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// EncryptSymmetric seals plaintext under key using XChaCha20-Poly1305
// with a fresh random 24-byte nonce. aad is authenticated but not
// encrypted — a lockbox binds its recipient reference
// ("scope@generation") into aad so a ciphertext cannot be replayed
// against a different recipient.
//
// The output layout is: version byte || nonce || ciphertext || tag.
func EncryptSymmetric(key [SymmetricKeySize]byte, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("primitives: constructing AEAD cipher: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("primitives: generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, symmetricBlobVersion)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, aad)
	return out, nil
}

// DecryptSymmetric opens a ciphertext produced by EncryptSymmetric.
// aad must match exactly what was passed to EncryptSymmetric or
// decryption fails.
func DecryptSymmetric(key [SymmetricKeySize]byte, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < 1+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("primitives: ciphertext too short")
	}
	if ciphertext[0] != symmetricBlobVersion {
		return nil, fmt.Errorf("primitives: unsupported ciphertext version %d", ciphertext[0])
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("primitives: constructing AEAD cipher: %w", err)
	}

	nonce := ciphertext[1 : 1+chacha20poly1305.NonceSizeX]
	sealed := ciphertext[1+chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("primitives: opening ciphertext: %w", err)
	}
	return plaintext, nil
}
