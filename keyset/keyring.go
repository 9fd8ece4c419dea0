// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package keyset

import "fmt"

// Keyring is the historical sequence of keysets for one scope, indexed
// by generation. Rotation never discards history: a link encrypted
// under generation 3 must remain decryptable after the scope has
// rotated to generation 7, so every generation a peer has ever
// received a lockbox for stays in its Keyring.
//
// A Keyring holds public Keysets only. The current user's own secret
// keys live in KeysetWithSecrets values held separately by the Team
// façade; a Keyring is what every peer keeps for scopes whose secrets
// they don't hold (e.g. the team scope, or another member's scope).
type Keyring struct {
	scope       Scope
	generations map[uint64]Keyset
	current     uint64
	hasAny      bool
}

// NewKeyring creates an empty keyring for scope.
func NewKeyring(scope Scope) *Keyring {
	return &Keyring{scope: scope, generations: make(map[uint64]Keyset)}
}

// Scope returns the scope this keyring tracks.
func (r *Keyring) Scope() Scope { return r.scope }

// Append adds a new generation to the keyring. Generation must be
// greater than the current generation (gaps are accepted), unless the
// keyring is empty (any starting generation is accepted, since a peer
// may first observe a scope mid-history via a partial graph). Appending an
// already-known generation with identical keys is a no-op; appending
// a conflicting keyset for a known generation is an error — a
// generation's keys are immutable per the data model invariant.
func (r *Keyring) Append(ks Keyset) error {
	if !ks.Scope.Equal(r.scope) {
		return fmt.Errorf("keyset: keyring for %s cannot append keyset for %s", r.scope, ks.Scope)
	}
	if existing, ok := r.generations[ks.Generation]; ok {
		if existing.SigningPublic != ks.SigningPublic || existing.EncryptPublic != ks.EncryptPublic {
			return fmt.Errorf("keyset: generation %d of %s already has different keys", ks.Generation, r.scope)
		}
		return nil
	}
	if r.hasAny && ks.Generation != r.current+1 && ks.Generation <= r.current {
		return fmt.Errorf("keyset: generation %d of %s is not newer than current generation %d", ks.Generation, r.scope, r.current)
	}
	r.generations[ks.Generation] = ks
	if !r.hasAny || ks.Generation > r.current {
		r.current = ks.Generation
		r.hasAny = true
	}
	return nil
}

// Current returns the highest known generation's Keyset. Returns
// false if the keyring is empty.
func (r *Keyring) Current() (Keyset, bool) {
	if !r.hasAny {
		return Keyset{}, false
	}
	return r.generations[r.current], true
}

// AtGeneration returns the Keyset for a specific generation, if known.
func (r *Keyring) AtGeneration(generation uint64) (Keyset, bool) {
	ks, ok := r.generations[generation]
	return ks, ok
}

// Generations returns every known generation number, ascending.
func (r *Keyring) Generations() []uint64 {
	out := make([]uint64, 0, len(r.generations))
	for gen := range r.generations {
		out = append(out, gen)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
