// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"testing"

	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/keyset"
	"github.com/concord-team/concord/primitives"
)

func mustLoadGraph(t *testing.T, saved []byte) *graph.Graph {
	t.Helper()
	g, err := graph.Load(saved)
	if err != nil {
		t.Fatalf("graph.Load: %v", err)
	}
	return g
}

func TestSeniorityIndexRanksFounderFirst(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	admitFullMember(t, alice, "bob", "Bob", "bob-phone")
	admitFullMember(t, alice, "carol", "Carol", "carol-phone")

	idx := BuildSeniorityIndex(alice.Graph(), alice.linkKeyFor)

	if !idx.isMoreSenior("alice", "bob") {
		t.Fatalf("founder should outrank a later admission")
	}
	if !idx.isMoreSenior("alice", "carol") {
		t.Fatalf("founder should outrank a later admission")
	}
	if idx.isMoreSenior("bob", "alice") {
		t.Fatalf("seniority comparison should not be symmetric")
	}
	if idx.isMoreSenior("nobody", "alice") {
		t.Fatalf("an unranked user should never outrank a known one")
	}
}

func TestResolveExcludesNothingWhenThereIsNoConflict(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	admitFullMember(t, alice, "bob", "Bob", "bob-phone")

	idx := BuildSeniorityIndex(alice.Graph(), alice.linkKeyFor)
	order := Resolve(newState(), alice.Graph(), alice.linkKeyFor, idx)

	if len(order) != alice.Graph().Len() {
		t.Fatalf("Resolve excluded links with no conflict present: got %d of %d", len(order), alice.Graph().Len())
	}
}

func TestResolveIsOrderIndependentAcrossConvergentMerges(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	bobUser, bobDevice := admitFullMember(t, alice, "bob", "Bob", "bob-phone")
	if err := alice.AddMemberRole("bob", adminRoleName); err != nil {
		t.Fatalf("AddMemberRole: %v", err)
	}

	teamScope, err := keyset.NewScope(keyset.ScopeTeam, "Acme")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	bob := forkTeamForResolver(t, alice, teamScope, bobUser, bobDevice)

	if err := alice.Remove("bob"); err != nil {
		t.Fatalf("alice Remove(bob): %v", err)
	}
	if err := bob.Remove("alice"); err != nil {
		t.Fatalf("bob Remove(alice): %v", err)
	}

	aliceGraph, err := alice.Graph().Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	bobGraph, err := bob.Graph().Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Two independent observers merge the same two graphs in opposite
	// order; Resolve must land on the same membership either way.
	observerA := forkTeamForResolver(t, alice, teamScope, bobUser, bobDevice)
	if err := observerA.Merge(bob.Graph()); err != nil {
		t.Fatalf("observerA Merge: %v", err)
	}

	observerB, err := Load(mustLoadGraph(t, bobGraph), teamScope, "bob", "bob-phone", map[string]*keyset.KeysetWithSecrets{
		bobUser.Reference().String():   bobUser,
		bobDevice.Reference().String(): bobDevice,
	}, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := observerB.Merge(mustLoadGraph(t, aliceGraph)); err != nil {
		t.Fatalf("observerB Merge: %v", err)
	}

	if observerA.State().Has("bob") != observerB.State().Has("bob") {
		t.Fatalf("merge order affected bob's final membership")
	}
	if observerA.State().Has("alice") != observerB.State().Has("alice") {
		t.Fatalf("merge order affected alice's final membership")
	}
}

// TestResolveServerAuthoredInviteOrJoinExcludesOnlyInviteAndAdmit checks
// the third conflict rule in isolation: a link signed by a registered
// server's key is excluded when it carries an invite or admit action,
// but a server signing some other action (which the façade never
// produces, but a misbehaving peer could still forge) is left alone —
// this rule targets standing acquisition specifically, not every action
// a server key happens to sign.
func TestResolveServerAuthoredInviteOrJoinExcludesOnlyInviteAndAdmit(t *testing.T) {
	serverInvite := primitives.Hash{1}
	serverAdmit := primitives.Hash{2}
	memberInvite := primitives.Hash{3}
	serverOther := primitives.Hash{4}

	decoded := map[primitives.Hash]decodedLink{
		serverInvite: {hash: serverInvite, authorKey: "server-key", action: InviteMemberAction{}},
		serverAdmit:  {hash: serverAdmit, authorKey: "server-key", action: AdmitDeviceAction{}},
		memberInvite: {hash: memberInvite, authorKey: "member-key", action: InviteMemberAction{}},
		serverOther:  {hash: serverOther, authorKey: "server-key", action: AddRoleAction{RoleName: "viewer"}},
	}
	servers := map[string]bool{"server-key": true}
	excluded := make(map[primitives.Hash]bool)

	resolveServerAuthoredInviteOrJoin(decoded, servers, excluded)

	if !excluded[serverInvite] {
		t.Fatalf("a server-authored InviteMemberAction should be excluded")
	}
	if !excluded[serverAdmit] {
		t.Fatalf("a server-authored AdmitDeviceAction should be excluded")
	}
	if excluded[memberInvite] {
		t.Fatalf("a member-authored invite should survive")
	}
	if excluded[serverOther] {
		t.Fatalf("a server-authored action outside the invite/admit set should survive this rule")
	}
}

func forkTeamForResolver(t *testing.T, src *Team, teamScope keyset.Scope, userSecrets, deviceSecrets *keyset.KeysetWithSecrets) *Team {
	t.Helper()
	saved, err := src.Graph().Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	return mustLoadTeam(t, saved, teamScope, userSecrets, deviceSecrets)
}

func mustLoadTeam(t *testing.T, saved []byte, teamScope keyset.Scope, userSecrets, deviceSecrets *keyset.KeysetWithSecrets) *Team {
	t.Helper()
	g := mustLoadGraph(t, saved)
	userID := userSecrets.Scope.Name()
	deviceName := deviceSecrets.Scope.Name()
	held := map[string]*keyset.KeysetWithSecrets{
		userSecrets.Reference().String():   userSecrets,
		deviceSecrets.Reference().String(): deviceSecrets,
	}
	team, err := Load(g, teamScope, userID, deviceName, held, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return team
}
