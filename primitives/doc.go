// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package primitives provides typed wrapping of the cryptographic
// primitives the rest of Concord builds on: Ed25519 sign/verify,
// XChaCha20-Poly1305 symmetric AEAD, X25519-sealed asymmetric
// encryption, BLAKE3 keyed content hashing, and base58 text encoding.
//
// No package outside primitives imports crypto/ed25519,
// golang.org/x/crypto/chacha20poly1305, golang.org/x/crypto/
// curve25519, golang.org/x/crypto/hkdf, github.com/zeebo/blake3, or
// github.com/mr-tron/base58 directly — this package is the single
// seam between Concord's domain logic and the underlying primitive
// crypto library, matching the "consumers import only our package"
// rule lib/codec applies to CBOR.
//
// Secret key material is always returned in a [secret.Buffer]
// (mmap-backed, locked against swap, zeroed on Close) — never a bare
// []byte — from the moment a keypair is generated.
package primitives
