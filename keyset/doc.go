// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyset defines the scoped key bundles that the rest of
// Concord signs, encrypts, and distributes: a Scope names a principal
// or grant target (the team itself, a role, a user, a device, a
// server, or an ephemeral one-off), a Keyset bundles one generation of
// that scope's public keys, and a Keyring retains the full generation
// history for a scope so that links encrypted under an old generation
// remain decryptable after rotation.
package keyset
