package activation

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ActivationKeyLength is the fixed wire length of a key: a hex encoded
// SHA-1 digest.
const ActivationKeyLength = 40

var activationKeyPattern = regexp.MustCompile(`^[a-f0-9]{40}$`)

// GenerateActivationKey produces a new activation key for the given
// username: a SHA-1 digest over a random salt and the username. The
// salt comes from crypto/rand so keys are not predictable.
func GenerateActivationKey(username string) (string, error) {
	salt := make([]byte, 20)
	if _, err := rand.Read(salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random salt")
	}

	digest := sha1.Sum([]byte(hex.EncodeToString(salt) + username))
	return hex.EncodeToString(digest[:]), nil
}

// NormalizeActivationKey lowercases and trims a user presented key.
// Keys travel inside URLs and mail clients love to mangle case.
func NormalizeActivationKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsWellFormedActivationKey reports whether the value matches the hex
// digest pattern. Anything else is rejected before we touch the store.
func IsWellFormedActivationKey(key string) bool {
	return activationKeyPattern.MatchString(key)
}
