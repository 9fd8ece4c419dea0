// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package primitives

import (
	"crypto/ed25519"
	"fmt"
)

// SignatureSize is the size in bytes of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// Signature is a detached Ed25519 signature over a link body or
// invitation proof.
type Signature [SignatureSize]byte

// Sign produces a detached Ed25519 signature of message under the
// keypair's secret key.
func Sign(keypair *SigningKeypair, message []byte) Signature {
	raw := ed25519.Sign(keypair.Secret(), message)
	var sig Signature
	copy(sig[:], raw)
	return sig
}

// Verify reports whether sig is a valid Ed25519 signature of message
// under pub. Verification failure is never distinguished from a
// malformed signature — both report false, matching Ed25519's
// all-or-nothing verification contract.
func Verify(pub SigningPublicKey, message []byte, sig Signature) bool {
	return ed25519.Verify(pub[:], message, sig[:])
}

// MarshalText implements encoding.TextMarshaler for SigningPublicKey,
// serializing as base58.
func (p SigningPublicKey) MarshalText() ([]byte, error) {
	return []byte(EncodeBase58(p[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for
// SigningPublicKey.
func (p *SigningPublicKey) UnmarshalText(data []byte) error {
	decoded, err := DecodeBase58(string(data))
	if err != nil {
		return fmt.Errorf("primitives: decoding signing public key: %w", err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return fmt.Errorf("primitives: decoded signing public key is %d bytes, want %d", len(decoded), ed25519.PublicKeySize)
	}
	copy(p[:], decoded)
	return nil
}

// String returns the base58 encoding of the public key.
func (p SigningPublicKey) String() string {
	return EncodeBase58(p[:])
}
