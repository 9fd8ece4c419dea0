// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"filippo.io/age"

	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/lib/codec"
	"github.com/concord-team/concord/lib/secret"
	"github.com/concord-team/concord/primitives"
)

// EscrowKeypair is an age x25519 keypair used to recover a team when
// every device a member holds is lost. The private half never touches
// the graph — it exists only for whoever holds an ExportEscrow output
// to import it back into a working Team.
type EscrowKeypair struct {
	PrivateKey *secret.Buffer
	PublicKey  string
}

// Close scrubs the private key from memory. Safe to call more than once.
func (k *EscrowKeypair) Close() error {
	if k.PrivateKey == nil {
		return nil
	}
	return k.PrivateKey.Close()
}

// GenerateEscrowKeypair mints a fresh escrow keypair. The public key is
// safe to publish; the private key must be kept offline by whoever is
// trusted to perform recovery.
func GenerateEscrowKeypair() (*EscrowKeypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("team: generating escrow keypair: %w", err)
	}
	priv, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("team: protecting escrow private key: %w", err)
	}
	return &EscrowKeypair{PrivateKey: priv, PublicKey: identity.Recipient().String()}, nil
}

// escrowedSecret is one entry of held, flattened to the raw seed bytes
// primitives.SigningKeypairFromSeed/EncryptionKeypairFromSeed need to
// reconstruct the keypair on import.
type escrowedSecret struct {
	Scope            keyset.Scope `cbor:"scope"`
	Generation       uint64       `cbor:"generation"`
	SigningSecret    []byte       `cbor:"signing_secret"`
	EncryptionSecret []byte       `cbor:"encryption_secret"`
}

// escrowPayload is the plaintext ExportEscrow encrypts: enough to
// reconstruct a Team from nothing but this blob and the matching
// escrow private key.
type escrowPayload struct {
	TeamName   string           `cbor:"team_name"`
	UserID     string           `cbor:"user_id"`
	DeviceName string           `cbor:"device_name"`
	Graph      []byte           `cbor:"graph"`
	Secrets    []escrowedSecret `cbor:"secrets"`
}

// ExportEscrow snapshots t's graph and every secret this principal
// currently holds, encrypting the result to one or more recovery
// public keys. Any one matching private key is enough to import the
// snapshot back into a working Team — recipientPublicKeys is typically
// the org's own escrow key plus a second held by an independent
// operator, so no single party can recover alone if that's the policy
// being enforced above this package.
func ExportEscrow(t *Team, recipientPublicKeys []string) (string, error) {
	if len(recipientPublicKeys) == 0 {
		return "", fmt.Errorf("team: escrow export requires at least one recipient")
	}

	graphBytes, err := t.graph.Save()
	if err != nil {
		return "", fmt.Errorf("team: escrow export: saving graph: %w", err)
	}

	secrets := make([]escrowedSecret, 0, len(t.held))
	for _, ks := range t.held {
		secrets = append(secrets, escrowedSecret{
			Scope:            ks.Scope,
			Generation:       ks.Generation,
			SigningSecret:    append([]byte(nil), ks.SigningKeypair.Secret()[:32]...),
			EncryptionSecret: append([]byte(nil), ks.EncryptionKeypair.Secret()...),
		})
	}

	payload := escrowPayload{
		TeamName:   t.teamScope.Name(),
		UserID:     t.userScope.Name(),
		DeviceName: t.deviceScope.Name(),
		Graph:      graphBytes,
		Secrets:    secrets,
	}
	plaintext, err := codec.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("team: escrow export: encoding: %w", err)
	}

	recipients := make([]age.Recipient, 0, len(recipientPublicKeys))
	for _, key := range recipientPublicKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("team: escrow export: recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("team: escrow export: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("team: escrow export: writing: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("team: escrow export: finalizing: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// ImportEscrow decrypts data with privateKey and rebuilds a Team from
// the snapshot it carries: the graph is reloaded and re-derived exactly
// as Load would, seeded with the secrets the export held at the time.
func ImportEscrow(data string, privateKey *secret.Buffer, events *EventEmitter, logger *slog.Logger) (*Team, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("team: escrow import: parsing private key: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("team: escrow import: decoding: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), identity)
	if err != nil {
		return nil, fmt.Errorf("team: escrow import: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("team: escrow import: reading: %w", err)
	}

	var payload escrowPayload
	if err := codec.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("team: escrow import: decoding payload: %w", err)
	}

	g, err := graph.Load(payload.Graph)
	if err != nil {
		return nil, fmt.Errorf("team: escrow import: loading graph: %w", err)
	}

	held := make(map[string]*keyset.KeysetWithSecrets, len(payload.Secrets))
	for _, s := range payload.Secrets {
		signing, err := primitives.SigningKeypairFromSeed(s.SigningSecret)
		if err != nil {
			return nil, fmt.Errorf("team: escrow import: reconstructing signing key for %s: %w", s.Scope, err)
		}
		encryption, err := primitives.EncryptionKeypairFromSeed(s.EncryptionSecret)
		if err != nil {
			signing.Close()
			return nil, fmt.Errorf("team: escrow import: reconstructing encryption key for %s: %w", s.Scope, err)
		}
		ks := &keyset.KeysetWithSecrets{
			Keyset: keyset.Keyset{
				Scope:         s.Scope,
				Generation:    s.Generation,
				SigningPublic: signing.Public,
				EncryptPublic: encryption.Public,
			},
			SigningKeypair:    signing,
			EncryptionKeypair: encryption,
		}
		held[ks.Reference().String()] = ks
	}

	teamScope, err := keyset.NewScope(keyset.ScopeTeam, payload.TeamName)
	if err != nil {
		return nil, fmt.Errorf("team: escrow import: %w", err)
	}

	return Load(g, teamScope, payload.UserID, payload.DeviceName, held, events, logger)
}
