// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"log/slog"
	"sort"

	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/primitives"
)

// LinkKeyFunc resolves the symmetric key a link of the given team
// keyset generation was encrypted under. Reduce calls it once per
// link it folds; a Team supplies one backed by its
// own team Keyring plus whatever generations it holds secrets for.
type LinkKeyFunc func(generation uint64) ([primitives.SymmetricKeySize]byte, bool)

// Reduce is the pure fold `reduce(initialState, order) -> state'`
// described in spec §4.2: order must already be resolver-filtered.
// Reduce itself never fails — a link that cannot be decrypted,
// doesn't parse, or names an unknown action type is logged (if logger
// is non-nil) and skipped, exactly like a reduce-time policy
// violation. This is what lets a malicious or buggy peer's links
// enter the graph without ever crashing another peer's fold.
func Reduce(initial *State, g *graph.Graph, order []primitives.Hash, keyFor LinkKeyFunc, logger *slog.Logger) *State {
	state := initial.clone()

	// head tracks the true frontier of everything folded so far: a
	// hash is on the frontier until some later link in order names it
	// as a predecessor, at which point it's superseded. Seeded from
	// initial.Head so a fold on top of a non-empty starting state still
	// produces a correct frontier, not just the last hash processed.
	head := make(map[primitives.Hash]bool, len(initial.Head))
	for _, h := range initial.Head {
		head[h] = true
	}

	for _, hash := range order {
		link, ok := g.Link(hash)
		if !ok {
			logSkip(logger, hash, "link missing from graph")
			continue
		}

		key, ok := keyFor(link.Generation)
		if !ok {
			logSkip(logger, hash, "no key known for link's generation")
			continue
		}

		body, err := graph.OpenLinkBody(link, key)
		if err != nil {
			logSkip(logger, hash, err.Error())
			continue
		}

		action, err := Decode(ActionType(body.ActionType), body.Payload)
		if err != nil {
			logSkip(logger, hash, err.Error())
			continue
		}

		for _, prev := range body.Prev {
			delete(head, prev)
		}
		head[hash] = true

		state = applyAction(state, action)
	}

	state.Head = sortedHashSet(head)
	return state
}

func sortedHashSet(set map[primitives.Hash]bool) []primitives.Hash {
	out := make([]primitives.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func applyAction(s *State, action TeamAction) *State {
	switch a := action.(type) {
	case AddMemberAction:
		return applyAddMember(s, a)
	case RemoveMemberAction:
		return applyRemoveMember(s, a)
	case AddRoleAction:
		return applyAddRole(s, a)
	case RemoveRoleAction:
		return applyRemoveRole(s, a)
	case AddMemberRoleAction:
		return applyAddMemberRole(s, a)
	case RemoveMemberRoleAction:
		return applyRemoveMemberRole(s, a)
	case AddDeviceAction:
		return applyAddDevice(s, a)
	case RemoveDeviceAction:
		return applyRemoveDevice(s, a)
	case InviteMemberAction:
		return applyInviteMember(s, a)
	case InviteDeviceAction:
		return applyInviteDevice(s, a)
	case RevokeInvitationAction:
		return applyRevokeInvitation(s, a)
	case AdmitMemberAction:
		return applyAdmitMember(s, a)
	case AdmitDeviceAction:
		return applyAdmitDevice(s, a)
	case ChangeMemberKeysAction:
		return applyChangeMemberKeys(s, a)
	case ChangeDeviceKeysAction:
		return applyChangeDeviceKeys(s, a)
	case ChangeServerKeysAction:
		return applyChangeServerKeys(s, a)
	case AddServerAction:
		return applyAddServer(s, a)
	case RemoveServerAction:
		return applyRemoveServer(s, a)
	case RotateKeysAction:
		return applyRotateKeys(s, a)
	default:
		return s
	}
}

func logSkip(logger *slog.Logger, hash primitives.Hash, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("team: skipping link during reduce", "link", hash.String(), "reason", reason)
}
