package activation

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// unusablePasswordPrefix marks a credential that can never match a
// login attempt. Pending accounts carry it until activation.
const unusablePasswordPrefix = "!"

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if isUnusablePassword(hash) {
		return ErrMismatchedHashAndPassword
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// UnusablePasswordHash returns a credential that fails every
// comparison. Bcrypt hashes never start with "!" so the sentinel
// cannot collide with a real hash.
func UnusablePasswordHash() string {
	return unusablePasswordPrefix
}

func isUnusablePassword(hash string) bool {
	return hash == "" || strings.HasPrefix(hash, unusablePasswordPrefix)
}
