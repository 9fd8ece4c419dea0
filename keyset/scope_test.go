// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package keyset

import "testing"

func TestNewScopeValid(t *testing.T) {
	s, err := NewScope(ScopeUser, "alice")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	if s.Type() != ScopeUser || s.Name() != "alice" {
		t.Fatalf("scope = %+v, want user:alice", s)
	}
}

func TestNewScopeRejectsEmptyName(t *testing.T) {
	if _, err := NewScope(ScopeUser, ""); err == nil {
		t.Fatalf("NewScope should reject an empty name")
	}
}

func TestNewScopeRejectsWhitespace(t *testing.T) {
	if _, err := NewScope(ScopeUser, " alice"); err == nil {
		t.Fatalf("NewScope should reject leading whitespace")
	}
	if _, err := NewScope(ScopeUser, "alice "); err == nil {
		t.Fatalf("NewScope should reject trailing whitespace")
	}
}

func TestNewScopeRejectsColon(t *testing.T) {
	if _, err := NewScope(ScopeUser, "ali:ce"); err == nil {
		t.Fatalf("NewScope should reject a name containing a colon")
	}
}

func TestScopeTextRoundTrip(t *testing.T) {
	s, err := NewScope(ScopeDevice, "alice-laptop")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	text, err := s.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var decoded Scope
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if !decoded.Equal(s) {
		t.Fatalf("decoded = %v, want %v", decoded, s)
	}
}

func TestScopeEqual(t *testing.T) {
	a, _ := NewScope(ScopeRole, "admin")
	b, _ := NewScope(ScopeRole, "admin")
	c, _ := NewScope(ScopeRole, "member")
	if !a.Equal(b) {
		t.Fatalf("identical scopes should be equal")
	}
	if a.Equal(c) {
		t.Fatalf("different scopes should not be equal")
	}
}

func TestScopeIsZero(t *testing.T) {
	var zero Scope
	if !zero.IsZero() {
		t.Fatalf("zero-value Scope should report IsZero")
	}
	s, _ := NewScope(ScopeTeam, "acme")
	if s.IsZero() {
		t.Fatalf("validly constructed scope reported IsZero")
	}
}
