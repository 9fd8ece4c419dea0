// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/concord-team/concord/lib/secret"
)

// SigningPublicKey is an Ed25519 public key, used to verify link
// signatures and invitation proofs.
type SigningPublicKey [ed25519.PublicKeySize]byte

// SigningKeypair holds an Ed25519 public key and its secret half. The
// secret half lives in a [secret.Buffer] for the lifetime of the
// keypair and must be closed when no longer needed.
type SigningKeypair struct {
	Public SigningPublicKey
	secret *secret.Buffer
}

// Secret returns the raw Ed25519 private key bytes. The returned slice
// aliases the keypair's Buffer and must not be retained past Close.
func (k *SigningKeypair) Secret() []byte { return k.secret.Bytes() }

// Close scrubs the secret half from memory. Safe to call more than
// once.
func (k *SigningKeypair) Close() error { return k.secret.Close() }

// GenerateSigningKeypair creates a fresh Ed25519 keypair.
func GenerateSigningKeypair() (*SigningKeypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("primitives: generating signing keypair: %w", err)
	}
	buf, err := secret.NewFromBytes(priv)
	if err != nil {
		return nil, fmt.Errorf("primitives: locking signing secret: %w", err)
	}
	var kp SigningKeypair
	copy(kp.Public[:], pub)
	kp.secret = buf
	return &kp, nil
}

// EncryptionPublicKey is an X25519 public key, used as the target of a
// sealed asymmetric encryption.
type EncryptionPublicKey [curve25519.PointSize]byte

// EncryptionKeypair holds an X25519 public key and its secret scalar.
type EncryptionKeypair struct {
	Public EncryptionPublicKey
	secret *secret.Buffer
}

// Secret returns the raw X25519 private scalar bytes. The returned
// slice aliases the keypair's Buffer and must not be retained past
// Close.
func (k *EncryptionKeypair) Secret() []byte { return k.secret.Bytes() }

// Close scrubs the secret scalar from memory. Safe to call more than
// once.
func (k *EncryptionKeypair) Close() error { return k.secret.Close() }

// GenerateEncryptionKeypair creates a fresh X25519 keypair.
func GenerateEncryptionKeypair() (*EncryptionKeypair, error) {
	var scalar [curve25519.ScalarSize]byte
	if _, err := rand.Read(scalar[:]); err != nil {
		return nil, fmt.Errorf("primitives: generating encryption scalar: %w", err)
	}
	pub, err := curve25519.X25519(scalar[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("primitives: deriving encryption public key: %w", err)
	}
	buf, err := secret.NewFromBytes(scalar[:])
	if err != nil {
		return nil, fmt.Errorf("primitives: locking encryption secret: %w", err)
	}
	var kp EncryptionKeypair
	copy(kp.Public[:], pub)
	kp.secret = buf
	return &kp, nil
}

// EncryptionKeypairFromSeed derives a deterministic X25519 keypair
// from a 32-byte seed. Used to rebuild a keypair from a secret scalar
// delivered in a lockbox, a sealed team key, or an escrow bundle. The
// caller's seed slice is left unchanged.
func EncryptionKeypairFromSeed(seed []byte) (*EncryptionKeypair, error) {
	if len(seed) != curve25519.ScalarSize {
		return nil, fmt.Errorf("primitives: encryption seed must be %d bytes, got %d", curve25519.ScalarSize, len(seed))
	}
	pub, err := curve25519.X25519(seed, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("primitives: deriving encryption public key from seed: %w", err)
	}
	buf, err := secret.NewFromBytes(append([]byte(nil), seed...))
	if err != nil {
		return nil, fmt.Errorf("primitives: locking encryption secret: %w", err)
	}
	var kp EncryptionKeypair
	copy(kp.Public[:], pub)
	kp.secret = buf
	return &kp, nil
}

// SigningKeypairFromSeed derives a deterministic Ed25519 keypair from
// a 32-byte seed, used by the Seitan invitation protocol.
func SigningKeypairFromSeed(seed []byte) (*SigningKeypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("primitives: signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var kp SigningKeypair
	// Read the public half before NewFromBytes zeroes priv.
	copy(kp.Public[:], priv.Public().(ed25519.PublicKey))
	buf, err := secret.NewFromBytes(priv)
	if err != nil {
		return nil, fmt.Errorf("primitives: locking signing secret: %w", err)
	}
	kp.secret = buf
	return &kp, nil
}
