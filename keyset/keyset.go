// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package keyset

import (
	"fmt"

	"github.com/concord-team/concord/primitives"
)

// Reference addresses one immutable generation of a scope's keys — a
// Lockbox's recipient field and a link's "encrypted under generation
// N" annotation are both a Reference.
type Reference struct {
	Scope      Scope
	Generation uint64
}

// String returns "scope@generation".
func (r Reference) String() string {
	return fmt.Sprintf("%s@%d", r.Scope, r.Generation)
}

// Keyset is one immutable generation of a scope's public keys.
// Generation increases monotonically per scope; once minted, a
// generation's keys never change — rotation mints a new generation
// rather than mutating this one.
type Keyset struct {
	Scope         Scope
	Generation    uint64
	SigningPublic primitives.SigningPublicKey
	EncryptPublic primitives.EncryptionPublicKey
}

// Reference returns the Reference addressing this keyset's generation.
func (k Keyset) Reference() Reference {
	return Reference{Scope: k.Scope, Generation: k.Generation}
}

// KeysetWithSecrets additionally holds the secret keys matching a
// Keyset's public keys. This is the payload every Lockbox encrypts —
// it must never be serialized in plaintext outside a sealed
// [secret.Buffer]-backed structure.
type KeysetWithSecrets struct {
	Keyset
	SigningKeypair    *primitives.SigningKeypair
	EncryptionKeypair *primitives.EncryptionKeypair
}

// Public strips the secret halves, returning the plain Keyset.
func (k *KeysetWithSecrets) Public() Keyset {
	return k.Keyset
}

// Close scrubs both secret keypairs from memory. Safe to call more
// than once.
func (k *KeysetWithSecrets) Close() error {
	var firstErr error
	if err := k.SigningKeypair.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := k.EncryptionKeypair.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Generate mints generation 0 of a fresh keyset for scope, with newly
// generated signing and encryption keypairs.
func Generate(scope Scope) (*KeysetWithSecrets, error) {
	return GenerateGeneration(scope, 0)
}

// GenerateGeneration mints the given generation of scope with freshly
// generated keys. Used by rotation, which must know the next
// generation number up front (it comes from the caller's Keyring).
func GenerateGeneration(scope Scope, generation uint64) (*KeysetWithSecrets, error) {
	signing, err := primitives.GenerateSigningKeypair()
	if err != nil {
		return nil, fmt.Errorf("keyset: generating signing keypair for %s: %w", scope, err)
	}
	encryption, err := primitives.GenerateEncryptionKeypair()
	if err != nil {
		signing.Close()
		return nil, fmt.Errorf("keyset: generating encryption keypair for %s: %w", scope, err)
	}
	return &KeysetWithSecrets{
		Keyset: Keyset{
			Scope:         scope,
			Generation:    generation,
			SigningPublic: signing.Public,
			EncryptPublic: encryption.Public,
		},
		SigningKeypair:    signing,
		EncryptionKeypair: encryption,
	}, nil
}
