// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package team

import "testing"

func TestHistoryReportsEveryLinkInOrder(t *testing.T) {
	alice, err := CreateTeam("Acme", "alice", "Alice", "alice-phone", nil, nil)
	if err != nil {
		t.Fatalf("CreateTeam: %v", err)
	}
	admitFullMember(t, alice, "bob", "Bob", "bob-phone")

	entries := alice.History()
	if len(entries) != alice.Graph().Len() {
		t.Fatalf("History length = %d, want %d", len(entries), alice.Graph().Len())
	}

	sawBobAdded := false
	for _, e := range entries {
		if e.Author != "alice" {
			t.Fatalf("every link in this scenario should be authored by alice, got %q", e.Author)
		}
		if add, ok := e.Action.(AddMemberAction); ok && add.UserID == "bob" {
			sawBobAdded = true
		}
	}
	if !sawBobAdded {
		t.Fatalf("History did not surface bob's admission")
	}
}
