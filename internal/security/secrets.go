package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

func HashSecretSHA256(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func ConstantTimeEqualHex(aHex, bHex string) bool {
	a, err1 := hex.DecodeString(strings.TrimSpace(aHex))
	b, err2 := hex.DecodeString(strings.TrimSpace(bHex))
	if err1 != nil || err2 != nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// SharedSecret is the single charger credential. It holds either the plain
// secret or its SHA-256 hex digest; the zero value means no secret is set.
type SharedSecret struct {
	plain  string
	sha256 string
}

func NewSharedSecret(plain, sha256Hex string) SharedSecret {
	return SharedSecret{plain: plain, sha256: strings.ToLower(strings.TrimSpace(sha256Hex))}
}

// Configured reports whether a secret was provided.
func (s SharedSecret) Configured() bool { return s.plain != "" || s.sha256 != "" }

// Matches compares presented against the configured secret in constant time.
// An unconfigured secret matches nothing.
func (s SharedSecret) Matches(presented string) bool {
	switch {
	case s.sha256 != "":
		return ConstantTimeEqualHex(s.sha256, HashSecretSHA256(presented))
	case s.plain != "":
		a := sha256.Sum256([]byte(s.plain))
		b := sha256.Sum256([]byte(presented))
		return subtle.ConstantTimeCompare(a[:], b[:]) == 1
	default:
		return false
	}
}
