// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package team implements the membership reducer, conflict resolver,
// read-only selectors, and high-level Team façade that turn a graph of
// signed links into a converged, deterministic team state.
//
// The reducer (reduce.go) is a pure fold over a topologically sorted
// link sequence: one transform per TeamAction variant, total,
// deterministic, never erroring on a malformed or malicious input —
// invalid actions are silently dropped rather than propagated, so a
// bad peer can never crash another peer's reducer.
//
// The resolver (resolver.go) runs before the reducer sees a concurrent
// set of links, filtering out actions whose author lost standing in
// the winning branch of an admin conflict.
//
// Team (team.go) owns a graph.Graph and the TeamState derived from it,
// and is the only thing in this package that mutates anything — every
// other file here computes, it does not store.
package team
