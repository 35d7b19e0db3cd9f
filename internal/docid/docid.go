// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Oleg Kazakov

// Package docid derives stable document identifiers from natural primary
// keys. Two clients that concurrently create a resource for the same
// logical key (for example a merchant-name mapping) derive the same
// document ID and collapse onto one document inside the store instead of
// racing two inserts of random IDs.
//
// The encoding is one-way and collision-resistant: BLAKE2b-256 over the
// normalized key, hex-encoded and truncated. An ID is assigned at
// first-write time and never reassigned.
package docid

import (
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// idLength is the number of hex characters kept from the digest. 32 hex
// chars (128 bits) keeps accidental collisions out of reach while staying
// readable in logs.
const idLength = 32

// Normalize canonicalizes a natural key: lower-cased, interior whitespace
// runs collapsed to a single space, surrounding whitespace trimmed.
// "  REWE   Markt " and "rewe markt" map to the same document.
func Normalize(key string) string {
	var b strings.Builder
	b.Grow(len(key))

	space := false
	for _, r := range strings.TrimSpace(key) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// ForKey returns the deterministic document ID for the given natural key.
func ForKey(key string) string {
	sum := blake2b.Sum256([]byte(Normalize(key)))
	return hex.EncodeToString(sum[:])[:idLength]
}

// ForScopedKey derives an ID for a key that is only unique within a scope
// (for example a merchant name within a user's tenant). Scope and key are
// length-prefix separated so that ("ab","c") and ("a","bc") cannot
// collide.
func ForScopedKey(scope, key string) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for oversized keys; nil never does.
		panic(err)
	}
	writeLengthPrefixed(h, Normalize(scope))
	writeLengthPrefixed(h, Normalize(key))
	return hex.EncodeToString(h.Sum(nil))[:idLength]
}

func writeLengthPrefixed(h interface{ Write([]byte) (int, error) }, s string) {
	var size [4]byte
	n := len(s)
	size[0] = byte(n >> 24)
	size[1] = byte(n >> 16)
	size[2] = byte(n >> 8)
	size[3] = byte(n)
	_, _ = h.Write(size[:])
	_, _ = h.Write([]byte(s))
}
