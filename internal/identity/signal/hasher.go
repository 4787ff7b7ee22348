// Package signal turns raw client signals into keyed one-way hashes.
package signal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashLength is the length of a rendered hash.
const HashLength = 64

type Hasher struct {
	key []byte
}

func NewHasher(key []byte) *Hasher {
	return &Hasher{key: key}
}

// Hash returns the lowercase hex HMAC of the trimmed value, or "" when the
// signal is absent.
func (h *Hasher) Hash(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mac := hmac.New(sha256.New, h.key)
	_, _ = mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Ptr is Hash for nullable columns.
func (h *Hasher) Ptr(raw string) *string {
	if hashed := h.Hash(raw); hashed != "" {
		return &hashed
	}
	return nil
}

// IsHash reports whether s has the shape of a rendered hash.
func IsHash(s string) bool {
	if len(s) != HashLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
