// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package invitation

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/concord-team/concord/primitives"
)

// NormalizeSeed puts a shared invitation phrase into the one canonical
// form both sides will derive keys from: Unicode NFC normalization,
// lowercased, with whitespace and punctuation stripped. "abc 123" and
// "ABC-123" both normalize to "abc123", so the two humans reading a
// seed aloud over the phone don't need to match on formatting.
func NormalizeSeed(seed string) string {
	folded := norm.NFC.String(seed)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// deriveKeypair expands seed to a 32-byte Ed25519 seed and derives the
// deterministic invitation signing keypair from it. Both Create and
// GenerateProof funnel through this so the two sides of an invitation
// always land on the same keys given the same normalized seed.
func deriveKeypair(seed string) (*primitives.SigningKeypair, error) {
	expanded := primitives.ExpandInvitationSeed(seed)
	return primitives.SigningKeypairFromSeed(expanded[:])
}
