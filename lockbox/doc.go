// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockbox implements the encrypted-envelope key distribution
// scheme: a Lockbox delivers one KeysetWithSecrets to whoever holds
// the secret key of a recipient scope. Lockboxes form a directed
// "can-read" edge from recipient scope to contents scope; the set of
// scopes reachable by following those edges from a starting scope is
// that scope's visibility closure, computed by the team package's
// selectors over the lockboxes recorded in team state.
package lockbox
