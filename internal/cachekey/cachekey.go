// Package cachekey derives the content address under which a transcript is cached.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a Key in characters (hex-encoded SHA-256).
const Size = sha256.Size * 2

// Key is the fixed-length content address of a source URL.
type Key string

// Derive maps a source URL to its cache key.
// The URL is hashed byte-for-byte: no trimming, casing, query or slash
// canonicalization. Callers must pass consistently formed URLs.
func Derive(url string) Key {
	sum := sha256.Sum256([]byte(url))
	return Key(hex.EncodeToString(sum[:]))
}

// String returns the key as a plain string.
func (k Key) String() string {
	return string(k)
}

// Valid reports whether k has the shape of a derived key.
func (k Key) Valid() bool {
	if len(k) != Size {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Parse validates a user-supplied key (CLI flag, HTTP path segment).
func Parse(s string) (Key, bool) {
	k := Key(s)
	if !k.Valid() {
		return "", false
	}
	return k, true
}
