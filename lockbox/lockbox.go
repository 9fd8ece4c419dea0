// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package lockbox

import (
	"fmt"

	"github.com/concord-team/concord/concorderr"
	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/lib/codec"
	"github.com/concord-team/concord/primitives"
)

// Lockbox is an encrypted envelope carrying one KeysetWithSecrets to
// the holder of the recipient scope's secret key. It is
// CBOR-serializable so it can be embedded directly in a link's
// payload or a saved graph.
type Lockbox struct {
	// Recipient identifies the scope+generation whose secret key can
	// open this lockbox.
	Recipient keyset.Reference `cbor:"recipient"`

	// EphemeralPublic is the one-time public key generated for this
	// lockbox; the recipient combines it with their own secret key to
	// derive the same symmetric key the sender used.
	EphemeralPublic primitives.EncryptionPublicKey `cbor:"ephemeral_public"`

	// Ciphertext holds the sealed KeysetWithSecrets payload: version
	// byte, nonce, and AEAD-sealed contents.
	Ciphertext []byte `cbor:"ciphertext"`
}

// contentsPayload is the plaintext structure encrypted inside a
// Lockbox: the full keypair material of the delivered keyset.
type contentsPayload struct {
	Scope         keyset.Scope                   `cbor:"scope"`
	Generation    uint64                          `cbor:"generation"`
	SigningPublic primitives.SigningPublicKey     `cbor:"signing_public"`
	SigningSecret []byte                          `cbor:"signing_secret"`
	EncryptPublic primitives.EncryptionPublicKey  `cbor:"encrypt_public"`
	EncryptSecret []byte                          `cbor:"encrypt_secret"`
}

// aad binds a lockbox ciphertext to its recipient reference, so a
// ciphertext produced for one recipient generation can never be
// replayed and accepted as valid for another.
func aad(recipient keyset.Reference) []byte {
	return []byte(recipient.String())
}

// Create seals contents into a fresh Lockbox addressed to
// recipientPublic at generation recipientGeneration of recipientScope.
func Create(contents *keyset.KeysetWithSecrets, recipientScope keyset.Scope, recipientGeneration uint64, recipientPublic primitives.EncryptionPublicKey) (*Lockbox, error) {
	recipient := keyset.Reference{Scope: recipientScope, Generation: recipientGeneration}

	plaintext, err := codec.Marshal(contentsPayload{
		Scope:         contents.Scope,
		Generation:    contents.Generation,
		SigningPublic: contents.SigningPublic,
		SigningSecret: append([]byte(nil), contents.SigningKeypair.Secret()...),
		EncryptPublic: contents.EncryptPublic,
		EncryptSecret: append([]byte(nil), contents.EncryptionKeypair.Secret()...),
	})
	if err != nil {
		return nil, fmt.Errorf("lockbox: encoding contents: %w", err)
	}

	box, err := primitives.EncryptSealed(recipientPublic, plaintext, aad(recipient))
	if err != nil {
		return nil, fmt.Errorf("lockbox: sealing contents: %w", err)
	}

	return &Lockbox{
		Recipient:       recipient,
		EphemeralPublic: box.EphemeralPublic,
		Ciphertext:      box.Ciphertext,
	}, nil
}

// Open decrypts a Lockbox using the recipient's secret encryption
// keypair, returning the delivered KeysetWithSecrets. Fails with
// concorderr.KindDecryptionFailed if the MAC does not verify — an
// invalid lockbox, wrong recipient key, or tampered ciphertext are all
// indistinguishable at this layer.
func Open(box *Lockbox, recipientKeypair *primitives.EncryptionKeypair) (*keyset.KeysetWithSecrets, error) {
	sealed := &primitives.SealedBox{EphemeralPublic: box.EphemeralPublic, Ciphertext: box.Ciphertext}

	plaintext, err := primitives.DecryptSealed(recipientKeypair, sealed, aad(box.Recipient))
	if err != nil {
		return nil, concorderr.Wrap(concorderr.KindDecryptionFailed, err, "opening lockbox")
	}

	var payload contentsPayload
	if err := codec.Unmarshal(plaintext, &payload); err != nil {
		return nil, concorderr.Wrap(concorderr.KindDecryptionFailed, err, "decoding lockbox contents")
	}

	signingKeypair, err := primitives.SigningKeypairFromSeed(seedFromSecret(payload.SigningSecret))
	if err != nil {
		return nil, fmt.Errorf("lockbox: reconstructing signing keypair: %w", err)
	}
	encryptionKeypair, err := primitives.EncryptionKeypairFromSeed(payload.EncryptSecret)
	if err != nil {
		signingKeypair.Close()
		return nil, fmt.Errorf("lockbox: reconstructing encryption keypair: %w", err)
	}

	return &keyset.KeysetWithSecrets{
		Keyset: keyset.Keyset{
			Scope:         payload.Scope,
			Generation:    payload.Generation,
			SigningPublic: payload.SigningPublic,
			EncryptPublic: payload.EncryptPublic,
		},
		SigningKeypair:    signingKeypair,
		EncryptionKeypair: encryptionKeypair,
	}, nil
}

// seedFromSecret extracts the 32-byte Ed25519 seed from a 64-byte
// standard-library private key encoding (seed || public key), which
// is the format primitives.SigningKeypair.Secret returns.
func seedFromSecret(secret []byte) []byte {
	if len(secret) < 32 {
		return secret
	}
	return secret[:32]
}

// Rotate produces a new Lockbox delivering newContents to the same
// recipient scope, optionally at a new recipient generation and/or
// public key. Passing the existing recipient generation and public
// key rotates only the contents; passing a new recipientGeneration or
// recipientPublic additionally moves the lockbox to address a fresh
// recipient generation, as happens when the recipient scope itself
// was rotated.
func Rotate(newContents *keyset.KeysetWithSecrets, recipientScope keyset.Scope, recipientGeneration uint64, recipientPublic primitives.EncryptionPublicKey) (*Lockbox, error) {
	return Create(newContents, recipientScope, recipientGeneration, recipientPublic)
}
