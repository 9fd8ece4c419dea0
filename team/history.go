// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/primitives"
)

// HistoryEntry is one resolved, decoded link: who authored it, what
// action it carried, and when. A host building an admin-facing audit
// view folds over exactly this sequence.
type HistoryEntry struct {
	Hash      primitives.Hash
	Author    string
	Action    TeamAction
	Timestamp int64
}

// History returns every link in t's graph that survived resolver
// filtering, in the same seniority-ordered sequence Reduce folded over
// to produce t's current State. Links this principal cannot decrypt
// (an unknown generation, usually) are silently omitted, same as
// Reduce — an audit view built from a partial graph is necessarily
// partial too.
func (t *Team) History() []HistoryEntry {
	order := Resolve(newState(), t.graph, t.linkKeyFor, t.seniority)
	identity := buildIdentityIndex(t.state)

	entries := make([]HistoryEntry, 0, len(order))
	for _, hash := range order {
		link, ok := t.graph.Link(hash)
		if !ok {
			continue
		}
		key, ok := t.linkKeyFor(link.Generation)
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
		entries = append(entries, HistoryEntry{
			Hash:      hash,
			Author:    identity[body.UserPublic.String()],
			Action:    action,
			Timestamp: body.Timestamp,
		})
	}
	return entries
}
