package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// keyFilename maps a store key to a safe file name. Keys made only of
// letters, digits, '_' and '-' are used as-is (readable on disk); anything
// else, such as the ':' in "device_config:<id>", is replaced by a prefix of
// its SHA-256 so device IDs with path characters cannot escape the store.
func keyFilename(key string) string {
	if key != "" && strings.IndexFunc(key, unsafeRune) < 0 {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	prefix := key
	if i := strings.IndexFunc(prefix, unsafeRune); i >= 0 {
		prefix = prefix[:i]
	}
	return prefix + "-" + hex.EncodeToString(sum[:12])
}

func unsafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		return false
	}
	return true
}
