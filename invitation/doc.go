// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package invitation implements the Seitan-style invitation proof: a
// low-entropy shared seed deterministically derives a signing keypair,
// letting an invitee prove possession of the seed without ever
// revealing it to anyone observing the graph.
package invitation
