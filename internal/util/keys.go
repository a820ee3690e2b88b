package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// MaxKeyLen bounds the user key embedded in a storage key. Longer keys are
// replaced by a hash so URLs with long query strings stay within provider
// limits.
const MaxKeyLen = 512

// StorageKey returns "entry:<ns>:<key>". Keys over MaxKeyLen become
// "entry:<ns>:h:<first 32 hex chars of sha256(key)>".
func StorageKey(ns, key string) string {
	if len(key) <= MaxKeyLen {
		return "entry:" + ns + ":" + key
	}
	sum := sha256.Sum256([]byte(key))
	return "entry:" + ns + ":h:" + hex.EncodeToString(sum[:])[:32]
}
