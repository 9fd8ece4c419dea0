// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import (
	"testing"

	"github.com/concord-team/concord/graph"
	"github.com/concord-team/concord/keyset"
)

// forkTeam clones t's graph and loads a second Team instance over the
// clone, as if held belonged to a different principal working from
// their own device. The fork shares no state with t going forward:
// appending to one never touches the other until a Merge.
func forkTeam(t *testing.T, src *Team, teamScope keyset.Scope, userID, deviceName string, held map[string]*keyset.KeysetWithSecrets) *Team {
	t.Helper()
	saved, err := src.Graph().Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	g, err := graph.Load(saved)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	forked, err := Load(g, teamScope, userID, deviceName, held, nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return forked
}

// admitFullMember adds userID as a member of host, with one device,
// and returns the user and device keysets so the caller can build a
// held map for a forked Team instance.
func admitFullMember(t *testing.T, host *Team, userID, userName, deviceName string) (*keyset.KeysetWithSecrets, *keyset.KeysetWithSecrets) {
	t.Helper()

	userScope, err := keyset.NewScope(keyset.ScopeUser, userID)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	userSecrets, err := keyset.Generate(userScope)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := host.Add(userID, userName, userSecrets.SigningPublic, userSecrets.EncryptPublic); err != nil {
		t.Fatalf("Add(%s): %v", userID, err)
	}

	deviceScope, err := keyset.NewScope(keyset.ScopeDevice, deviceName)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	deviceSecrets, err := keyset.Generate(deviceScope)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := host.AddDevice(userID, deviceName, deviceSecrets.SigningPublic, deviceSecrets.EncryptPublic); err != nil {
		t.Fatalf("AddDevice(%s): %v", userID, err)
	}

	return userSecrets, deviceSecrets
}

func TestCreateTeamFounderIsAdmin(t *testing.T) {
	team, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	if !team.State().Has("alice") {
		t.Fatalf("founder missing from membership")
	}
	if !team.State().MemberIsAdmin("alice") {
		t.Fatalf("founder is not an admin")
	}
	if got := len(team.State().MemberList()); got != 1 {
		t.Fatalf("MemberList length = %d, want 1", got)
	}
}

func TestRemoveMemberThenRotateKeys(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	admitFullMember(t, alice, "bob", "Bob", "bob-phone")

	ciphertextBeforeRemoval, err := alice.Encrypt([]byte("pre-removal secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if err := alice.Remove("bob"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if alice.State().Has("bob") {
		t.Fatalf("bob still a member after Remove")
	}

	if err := alice.RotateKeys(); err != nil {
		t.Fatalf("RotateKeys: %v", err)
	}

	ciphertextAfterRotation, err := alice.Encrypt([]byte("post-rotation secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// The old ciphertext must still be decryptable at its own
	// generation: rotation mints a new generation, it never destroys
	// the old one.
	if _, err := alice.Decrypt(ciphertextBeforeRemoval, 0); err != nil {
		t.Fatalf("Decrypt(generation 0): %v", err)
	}
	if _, err := alice.Decrypt(ciphertextAfterRotation, 1); err != nil {
		t.Fatalf("Decrypt(generation 1): %v", err)
	}
}

func TestRemoveLastAdminRefused(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	if err := alice.Remove("alice"); err == nil {
		t.Fatalf("Remove should refuse to remove the last admin")
	}
}

func TestConcurrentMutualDemoteSeniorityWins(t *testing.T) {
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
	held := map[string]*keyset.KeysetWithSecrets{
		bobUser.Reference().String():   bobUser,
		bobDevice.Reference().String(): bobDevice,
	}
	bob := forkTeam(t, alice, teamScope, "bob", "bob-phone", held)

	// Concurrently: alice demotes bob, bob demotes alice. Neither has
	// seen the other's link yet.
	if err := alice.RemoveMemberRole("bob", adminRoleName); err != nil {
		t.Fatalf("alice RemoveMemberRole: %v", err)
	}
	if err := bob.RemoveMemberRole("alice", adminRoleName); err != nil {
		t.Fatalf("bob RemoveMemberRole: %v", err)
	}

	if err := alice.Merge(bob.Graph()); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// Alice is the founder and therefore more senior: her demotion of
	// bob survives, bob's demotion of alice is excluded.
	if alice.State().MemberIsAdmin("bob") {
		t.Fatalf("bob should have been demoted")
	}
	if !alice.State().MemberIsAdmin("alice") {
		t.Fatalf("alice should still be an admin")
	}
}

func TestConcurrentMutualRemoveWithThirdObserver(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	bobUser, bobDevice := admitFullMember(t, alice, "bob", "Bob", "bob-phone")
	if err := alice.AddMemberRole("bob", adminRoleName); err != nil {
		t.Fatalf("AddMemberRole: %v", err)
	}
	carolUser, carolDevice := admitFullMember(t, alice, "carol", "Carol", "carol-phone")

	teamScope, err := keyset.NewScope(keyset.ScopeTeam, "Acme")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	bob := forkTeam(t, alice, teamScope, "bob", "bob-phone", map[string]*keyset.KeysetWithSecrets{
		bobUser.Reference().String():   bobUser,
		bobDevice.Reference().String(): bobDevice,
	})
	carolObserver := forkTeam(t, alice, teamScope, "carol", "carol-phone", map[string]*keyset.KeysetWithSecrets{
		carolUser.Reference().String():   carolUser,
		carolDevice.Reference().String(): carolDevice,
	})

	if err := alice.Remove("bob"); err != nil {
		t.Fatalf("alice Remove(bob): %v", err)
	}
	if err := bob.Remove("alice"); err != nil {
		t.Fatalf("bob Remove(alice): %v", err)
	}

	// Carol never acted; she just observes both sides merge in,
	// exactly like a server relaying links would.
	if err := carolObserver.Merge(alice.Graph()); err != nil {
		t.Fatalf("carol Merge(alice): %v", err)
	}
	if err := carolObserver.Merge(bob.Graph()); err != nil {
		t.Fatalf("carol Merge(bob): %v", err)
	}
	if err := alice.Merge(bob.Graph()); err != nil {
		t.Fatalf("alice Merge(bob): %v", err)
	}

	for name, view := range map[string]*Team{"alice": alice, "carol": carolObserver} {
		if !view.State().Has("alice") {
			t.Fatalf("%s: alice should still be a member", name)
		}
		if view.State().Has("bob") {
			t.Fatalf("%s: bob should have been removed", name)
		}
		if !view.State().Has("carol") {
			t.Fatalf("%s: carol should still be a member", name)
		}
	}
}

func TestDemotedMemberActionsInvalidated(t *testing.T) {
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
	bob := forkTeam(t, alice, teamScope, "bob", "bob-phone", map[string]*keyset.KeysetWithSecrets{
		bobUser.Reference().String():   bobUser,
		bobDevice.Reference().String(): bobDevice,
	})

	if err := alice.RemoveMemberRole("bob", adminRoleName); err != nil {
		t.Fatalf("RemoveMemberRole: %v", err)
	}

	// Bob's client merges the demotion in, but nothing in Team stops
	// a non-admin from still calling Add locally — it's the resolver,
	// not the façade, that treats the stripped authority as void.
	if err := bob.Merge(alice.Graph()); err != nil {
		t.Fatalf("bob Merge(alice): %v", err)
	}
	admitFullMember(t, bob, "carol", "Carol", "carol-phone")

	if err := alice.Merge(bob.Graph()); err != nil {
		t.Fatalf("alice Merge(bob): %v", err)
	}

	if alice.State().Has("carol") {
		t.Fatalf("carol's admission should have been invalidated by bob's stripped authority")
	}
}

// TestConcurrentDemotionInvalidatesConcurrentPromotion covers spec
// scenario 5: bob (admin) promotes charlie to admin on one device while
// alice concurrently, and independently, demotes bob on another. The
// two links share no causal edge — bob never saw alice's demotion
// before acting — so this only invalidates bob's promotion if the
// cascade check uses the resolver's seniority-ordered position rather
// than raw graph predecessor-ship.
func TestConcurrentDemotionInvalidatesConcurrentPromotion(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	bobUser, bobDevice := admitFullMember(t, alice, "bob", "Bob", "bob-phone")
	if err := alice.AddMemberRole("bob", adminRoleName); err != nil {
		t.Fatalf("AddMemberRole: %v", err)
	}
	admitFullMember(t, alice, "charlie", "Charlie", "charlie-phone")

	teamScope, err := keyset.NewScope(keyset.ScopeTeam, "Acme")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	bob := forkTeam(t, alice, teamScope, "bob", "bob-phone", map[string]*keyset.KeysetWithSecrets{
		bobUser.Reference().String():   bobUser,
		bobDevice.Reference().String(): bobDevice,
	})

	// alice and bob act concurrently, each unaware of the other's link.
	if err := alice.RemoveMemberRole("bob", adminRoleName); err != nil {
		t.Fatalf("RemoveMemberRole: %v", err)
	}
	if err := bob.AddMemberRole("charlie", adminRoleName); err != nil {
		t.Fatalf("bob AddMemberRole(charlie): %v", err)
	}

	if err := alice.Merge(bob.Graph()); err != nil {
		t.Fatalf("alice Merge(bob): %v", err)
	}

	if alice.State().MemberIsAdmin("bob") {
		t.Fatalf("bob should no longer be admin")
	}
	if alice.State().MemberIsAdmin("charlie") {
		t.Fatalf("charlie's promotion was authored by a member with no authority left and should be invalidated")
	}
}

func TestInvitationAdmitRoundTrip(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	devSecrets, err := keyset.Generate(mustScope(t, keyset.ScopeDevice, "invite-seed"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	invitationKey := devSecrets.SigningPublic

	if err := alice.InviteMember("invite-1", invitationKey, 0, 1); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}
	inv, ok := alice.State().InvitationByID("invite-1")
	if !ok || inv.Revoked || inv.Uses != 0 {
		t.Fatalf("unexpected invitation state: %+v, ok=%v", inv, ok)
	}

	bobUserSecrets, err := keyset.Generate(mustScope(t, keyset.ScopeUser, "bob"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := alice.AdmitMember("invite-1", "bob", "Bob", bobUserSecrets.SigningPublic, bobUserSecrets.EncryptPublic); err != nil {
		t.Fatalf("AdmitMember: %v", err)
	}
	if !alice.State().Has("bob") {
		t.Fatalf("bob should be a member after AdmitMember")
	}

	if err := alice.AdmitMember("invite-1", "dave", "Dave", bobUserSecrets.SigningPublic, bobUserSecrets.EncryptPublic); err == nil {
		t.Fatalf("AdmitMember should refuse a single-use invitation's second use")
	}
}

func mustScope(t *testing.T, scopeType keyset.ScopeType, name string) keyset.Scope {
	t.Helper()
	s, err := keyset.NewScope(scopeType, name)
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	return s
}

func TestEscrowExportImportRoundTrip(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	admitFullMember(t, alice, "bob", "Bob", "bob-phone")

	recovery, err := GenerateEscrowKeypair()
	if err != nil {
		t.Fatalf("GenerateEscrowKeypair: %v", err)
	}
	defer recovery.Close()

	blob, err := ExportEscrow(alice, []string{recovery.PublicKey})
	if err != nil {
		t.Fatalf("ExportEscrow: %v", err)
	}

	recovered, err := ImportEscrow(blob, recovery.PrivateKey, nil, nil)
	if err != nil {
		t.Fatalf("ImportEscrow: %v", err)
	}

	if !recovered.State().Has("alice") || !recovered.State().Has("bob") {
		t.Fatalf("recovered team is missing members: %+v", recovered.State().MemberList())
	}
	if len(recovered.Graph().Head()) != len(alice.Graph().Head()) {
		t.Fatalf("recovered graph head does not match original")
	}

	if err := recovered.AddRole("engineering", []string{"deploy"}); err != nil {
		t.Fatalf("recovered team cannot act: %v", err)
	}
}

func TestEscrowImportWrongKeyFails(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}

	recovery, err := GenerateEscrowKeypair()
	if err != nil {
		t.Fatalf("GenerateEscrowKeypair: %v", err)
	}
	defer recovery.Close()
	impostor, err := GenerateEscrowKeypair()
	if err != nil {
		t.Fatalf("GenerateEscrowKeypair: %v", err)
	}
	defer impostor.Close()

	blob, err := ExportEscrow(alice, []string{recovery.PublicKey})
	if err != nil {
		t.Fatalf("ExportEscrow: %v", err)
	}

	if _, err := ImportEscrow(blob, impostor.PrivateKey, nil, nil); err == nil {
		t.Fatalf("ImportEscrow should fail with the wrong private key")
	}
}
