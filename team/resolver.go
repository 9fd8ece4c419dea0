// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/primitives"
)

// SeniorityIndex ranks every member by how early their authorship first
// appears in the graph's hash-ordered topological walk. Rank 0 is the
// most senior: the team's founder, whose key signs the root link. This
// baseline walk uses graph.HashOrder rather than seniority itself,
// since seniority cannot be used to compute seniority.
type SeniorityIndex struct {
	rank map[string]int
}

// BuildSeniorityIndex decodes every link in hash-topological order and
// records, for each distinct author public key, the rank at which that
// key first signs a link, and for each member's userID the best rank
// any of that member's keys earned. Links that fail to decrypt or decode are
// skipped, same as Reduce — an index built from a partial graph is
// still internally consistent, it just can't rank authors it has never
// seen a link from.
func BuildSeniorityIndex(g *graph.Graph, keyFor LinkKeyFunc) *SeniorityIndex {
	idx := &SeniorityIndex{rank: make(map[string]int)}

	order := graph.TopoSort(g, graph.HashOrder)
	rank := 0
	for _, hash := range order {
		author, ok := linkAuthor(g, hash, keyFor)
		if !ok {
			continue
		}
		if _, known := idx.rank[author]; known {
			continue
		}
		idx.rank[author] = rank
		rank++
	}

	// isMoreSenior is asked about userIDs, not keys: rank each member
	// by the earliest rank any of their keys earned above.
	identity := buildIdentityIndex(Reduce(newState(), g, order, keyFor, nil))
	for key, userID := range identity {
		keyRank, ok := idx.rank[key]
		if !ok {
			continue
		}
		if cur, seen := idx.rank[userID]; !seen || keyRank < cur {
			idx.rank[userID] = keyRank
		}
	}
	return idx
}

// Less returns a graph.Less comparator ordering concurrent links by
// their author's seniority rank, most senior first, falling back to
// HashOrder whenever either link's author isn't in the index (not yet
// decodable) or both links share an author.
func (idx *SeniorityIndex) Less(g *graph.Graph, keyFor LinkKeyFunc) graph.Less {
	return func(a, b primitives.Hash) bool {
		authorA, okA := linkAuthor(g, a, keyFor)
		authorB, okB := linkAuthor(g, b, keyFor)
		if okA && okB {
			rankA, knownA := idx.rank[authorA]
			rankB, knownB := idx.rank[authorB]
			if knownA && knownB && rankA != rankB {
				return rankA < rankB
			}
		}
		return graph.HashOrder(a, b)
	}
}

// isMoreSenior reports whether userA outranks userB. An unknown user is
// treated as least senior of all.
func (idx *SeniorityIndex) isMoreSenior(userA, userB string) bool {
	rankA, okA := idx.rank[userA]
	rankB, okB := idx.rank[userB]
	switch {
	case okA && okB:
		return rankA < rankB
	case okA:
		return true
	default:
		return false
	}
}

func linkAuthor(g *graph.Graph, hash primitives.Hash, keyFor LinkKeyFunc) (string, bool) {
	link, ok := g.Link(hash)
	if !ok {
		return "", false
	}
	key, ok := keyFor(link.Generation)
	if !ok {
		return "", false
	}
	body, err := graph.OpenLinkBody(link, key)
	if err != nil {
		return "", false
	}
	return body.UserPublic.String(), true
}

// decodedLink bundles the parts of a link the resolver needs:
// its decoded action and the userID of whoever signed it.
type decodedLink struct {
	hash      primitives.Hash
	author    string // signing public key string, resolved to a userID via an identity index
	authorKey string // raw signing public key string, for identities an index can't name (e.g. servers)
	action    TeamAction
}

// Resolve derives the final, policy-filtered replay order for g: a
// seniority-ordered topological sort with the conflicting links from
// §4.3 stripped out before Reduce ever sees them. A first, unfiltered
// Reduce pass over initial establishes which public key belongs to
// which userID (including members later removed), since the actions
// themselves don't carry actor identity directly — only the
// link-level UserPublic field does.
func Resolve(initial *State, g *graph.Graph, keyFor LinkKeyFunc, idx *SeniorityIndex) []primitives.Hash {
	order := graph.TopoSort(g, idx.Less(g, keyFor))

	preliminary := Reduce(initial, g, order, keyFor, nil)
	identity := buildIdentityIndex(preliminary)
	servers := buildServerIndex(preliminary)

	decoded := make(map[primitives.Hash]decodedLink, len(order))
	for _, hash := range order {
		link, ok := g.Link(hash)
		if !ok {
			continue
		}
		key, ok := keyFor(link.Generation)
		if !ok {
			continue
		}
		body, err := graph.OpenLinkBody(link, key)
		if err != nil {
			continue
		}
		action, err := Decode(ActionType(body.ActionType), body.Payload)
		if err != nil {
			continue
		}
		decoded[hash] = decodedLink{
			hash:      hash,
			author:    identity[body.UserPublic.String()],
			authorKey: body.UserPublic.String(),
			action:    action,
		}
	}

	excluded := make(map[primitives.Hash]bool)
	resolveServerAuthoredInviteOrJoin(decoded, servers, excluded)
	resolveMutualConflicts(g, order, decoded, idx, excluded)
	resolveInvalidatedAuthority(order, decoded, excluded)

	out := make([]primitives.Hash, 0, len(order))
	for _, hash := range order {
		if !excluded[hash] {
			out = append(out, hash)
		}
	}
	return out
}

// buildIdentityIndex maps every known signing public key (members,
// devices, and anyone already removed) back to the userID it belongs
// to, since a removed member's past actions must still resolve to an
// identity for seniority and cascade purposes.
func buildIdentityIndex(s *State) map[string]string {
	identity := make(map[string]string)
	add := func(userID string, key primitives.SigningPublicKey) {
		identity[key.String()] = userID
	}
	for _, m := range s.Members {
		add(m.UserID, m.Signing)
		for _, d := range m.Devices {
			add(m.UserID, d.Signing)
		}
	}
	for _, m := range s.RemovedMembers {
		add(m.UserID, m.Signing)
		for _, d := range m.Devices {
			add(m.UserID, d.Signing)
		}
	}
	for _, d := range s.RemovedDevices {
		add(d.UserID, d.Signing)
	}
	return identity
}

// buildServerIndex maps every registered server's signing key (current
// or since removed) to true, so server-authored links can be recognized
// without an identity index entry — servers never get one, since
// buildIdentityIndex only tracks members and devices.
func buildServerIndex(s *State) map[string]bool {
	servers := make(map[string]bool)
	for _, srv := range s.Servers {
		servers[srv.Signing.String()] = true
	}
	for _, srv := range s.RemovedServers {
		servers[srv.Signing.String()] = true
	}
	return servers
}

// resolveServerAuthoredInviteOrJoin implements the resolver's third
// conflict rule: a server principal holds its own keys but is never an
// admin and can never legitimately invite or admit anyone. A link of
// one of those four types signed by a server key is excluded outright,
// as if it never happened, rather than merely rejected at the façade —
// the façade only stops a well-behaved local caller, not a forged or
// misconfigured peer's link already in the graph.
func resolveServerAuthoredInviteOrJoin(decoded map[primitives.Hash]decodedLink, servers map[string]bool, excluded map[primitives.Hash]bool) {
	for hash, link := range decoded {
		if excluded[hash] || !servers[link.authorKey] {
			continue
		}
		switch link.action.(type) {
		case InviteMemberAction, InviteDeviceAction, AdmitMemberAction, AdmitDeviceAction:
			excluded[hash] = true
		}
	}
}

// adminTarget reports whether action removes userID's standing — full
// membership or specifically their admin role — returning the targeted
// userID and whether it's a contest-worthy removal at all.
func adminTarget(action TeamAction) (userID string, isRemoval bool, isAdminOnly bool) {
	switch a := action.(type) {
	case RemoveMemberAction:
		return a.UserID, true, false
	case RemoveMemberRoleAction:
		return a.UserID, a.RoleName == adminRoleName, true
	default:
		return "", false, false
	}
}

// resolveMutualConflicts implements the first conflict rule (spec
// §4.3): when two members concurrently remove or demote each other,
// only the more senior member's action survives. The junior's
// conflicting link is excluded outright; its downstream consequences
// are handled by resolveInvalidatedAuthority.
func resolveMutualConflicts(g *graph.Graph, order []primitives.Hash, decoded map[primitives.Hash]decodedLink, idx *SeniorityIndex, excluded map[primitives.Hash]bool) {
	for i, hashA := range order {
		linkA, ok := decoded[hashA]
		if !ok || excluded[hashA] {
			continue
		}
		targetA, removalA, _ := adminTarget(linkA.action)
		if !removalA {
			continue
		}

		for _, hashB := range order[i+1:] {
			linkB, ok := decoded[hashB]
			if !ok || excluded[hashB] {
				continue
			}
			targetB, removalB, _ := adminTarget(linkB.action)
			if !removalB {
				continue
			}

			mutual := targetA == linkB.author && targetB == linkA.author
			if !mutual {
				continue
			}
			if !concurrent(g, hashA, hashB) {
				continue
			}

			if idx.isMoreSenior(linkA.author, linkB.author) {
				excluded[hashB] = true
			} else {
				excluded[hashA] = true
			}
		}
	}
}

// resolveInvalidatedAuthority implements the second conflict rule: any
// action authored by a member whose admin standing (or membership
// entirely) was stripped by a surviving removal link that precedes it
// is itself invalid, since its author no longer had authority to act.
// "Precedes" is position in the already seniority-resolved order, not
// raw graph causality: two actions with no causal edge between them
// (bob promotes charlie on one device while alice concurrently demotes
// bob on another) are exactly the case this rule exists to catch —
// idx.Less has already placed the more senior demotion first, and that
// total order, not IsPredecessor, is what "before" means here.
// This runs to a fixpoint because excluding one action can restore
// standing that un-invalidates (or, recursively, invalidates) another.
func resolveInvalidatedAuthority(order []primitives.Hash, decoded map[primitives.Hash]decodedLink, excluded map[primitives.Hash]bool) {
	position := make(map[primitives.Hash]int, len(order))
	for i, hash := range order {
		position[hash] = i
	}

	for {
		changed := false

		for _, removalHash := range order {
			if excluded[removalHash] {
				continue
			}
			removal, ok := decoded[removalHash]
			if !ok {
				continue
			}
			target, isRemoval, _ := adminTarget(removal.action)
			if !isRemoval {
				continue
			}

			for _, actionHash := range order {
				if excluded[actionHash] || actionHash == removalHash {
					continue
				}
				action, ok := decoded[actionHash]
				if !ok || action.author != target {
					continue
				}
				if position[removalHash] >= position[actionHash] {
					continue
				}
				excluded[actionHash] = true
				changed = true
			}
		}

		if !changed {
			return
		}
	}
}

// concurrent reports whether a and b are unordered in g: neither is a
// predecessor of the other.
func concurrent(g *graph.Graph, a, b primitives.Hash) bool {
	if aBeforeB, err := g.IsPredecessor(a, b); err == nil && aBeforeB {
		return false
	}
	if bBeforeA, err := g.IsPredecessor(b, a); err == nil && bBeforeA {
		return false
	}
	return true
}
