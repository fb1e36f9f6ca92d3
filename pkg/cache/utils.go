package cache

import (
	"crypto/md5"
	"encoding/hex"
)

// GenerateKey joins a namespace and an id, e.g. "fund:IE00B4L5Y983".
func GenerateKey(prefix string, id string) string {
	return prefix + ":" + id
}

// HashKey shortens an arbitrary key to 32 hex characters for L2 stores.
func HashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
