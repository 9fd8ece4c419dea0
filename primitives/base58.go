// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

package primitives

import "github.com/mr-tron/base58"

// EncodeBase58 encodes data using the Bitcoin base58 alphabet — the
// canonical human-readable form for hashes, signing public keys, and
// invitation IDs throughout Concord. Unlike hex it avoids the visually
// ambiguous characters (0/O, I/l) and unlike base64 it never needs
// padding or URL-escaping.
func EncodeBase58(data []byte) string {
	return base58.Encode(data)
}

// DecodeBase58 decodes a base58 string produced by EncodeBase58.
func DecodeBase58(s string) ([]byte, error) {
	return base58.Decode(s)
}
