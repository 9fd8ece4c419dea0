// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph implements the append-only, content-addressed,
// hash-linked DAG of encrypted signed links that carries a team's
// replicated history. It provides causal ordering (topological sort
// with a pluggable comparator for concurrent antichains), merge
// (idempotent, commutative, associative union), reachability queries,
// and the incremental parent-map summaries the connection package's
// sync loop uses to converge two peers' histories in O(diameter)
// rounds.
//
// Everything in this package operates on encrypted link bodies; it
// never decides what a link means. That is the team package's job,
// applied to the sequence graph.TopoSort returns.
package graph
