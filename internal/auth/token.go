package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"strings"
)

// secretBytes yields a 40 character hex secret.
const secretBytes = 20

// NewTokenSecret returns a random hex secret for a bearer token.
func NewTokenSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest stored in place of the secret.
func HashToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares a presented secret against a stored digest in constant time.
func TokenMatches(secret, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(secret)), []byte(storedHash)) == 1
}

// FormatPlainToken builds the "<id>|<secret>" value handed to clients.
func FormatPlainToken(id int64, secret string) string {
	return strconv.FormatInt(id, 10) + "|" + secret
}

// ParsePlainToken splits a presented token. hasID is false for a bare secret
// without an id prefix; ok is false when the value cannot be a token at all.
func ParsePlainToken(plain string) (id int64, secret string, hasID bool, ok bool) {
	if plain == "" {
		return 0, "", false, false
	}
	idPart, rest, found := strings.Cut(plain, "|")
	if !found {
		return 0, plain, false, true
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 || rest == "" {
		return 0, "", false, false
	}
	return id, rest, true, true
}
