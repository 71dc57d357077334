package activation

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes retained for logging and API consumers. The workflow
// collapses the first three into a single user facing message so the
// response never reveals which keys exist.
const (
	TextCodeTokenMalformed = "ACTIVATION_KEY_MALFORMED"
	TextCodeTokenNotFound  = "ACTIVATION_KEY_NOT_FOUND"
	TextCodeTokenExpired   = "ACTIVATION_KEY_EXPIRED"
	TextCodeDuplicateToken = "ACTIVATION_KEY_DUPLICATE"
	TextCodeAlreadyActive  = "ACCOUNT_ALREADY_ACTIVE"
	TextCodeInvalidCreds   = "INVALID_CREDENTIALS"
	TextCodeEmptyPassword  = "EMPTY_PASSWORD"
)

// ErrTokenMalformed is returned before any store access when the
// presented key does not match the 40 char hex pattern.
var ErrTokenMalformed = goerrors.New("activation key is malformed", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenMalformed)

// ErrTokenNotFound is returned when no token row matches the key.
var ErrTokenNotFound = goerrors.New("activation key not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTokenNotFound)

// ErrTokenExpired is returned when the key exists but fell outside the
// activation window.
var ErrTokenExpired = goerrors.New("activation key has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired)

// ErrDuplicateToken signals an issuance contract violation: callers
// must not request a second token for an account that already has one.
var ErrDuplicateToken = goerrors.New("account already has a pending activation token", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateToken)

// ErrAccountAlreadyActive guards against stale reads during consume;
// once consumption deletes the token this should not be reachable.
var ErrAccountAlreadyActive = goerrors.New("account is already active", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyActive)

// ErrMismatchedHashAndPassword is the generic credential failure.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound)

// ErrNoEmptyString rejects empty password hashing input
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrAccountInactive blocks logins for pending accounts.
var ErrAccountInactive = goerrors.New("account has not been activated", goerrors.CategoryAuth).
	WithTextCode("ACCOUNT_INACTIVE")

// InvalidActivationKeyMessage is the single message exposed to end
// users for malformed, unknown, and expired keys alike.
const InvalidActivationKeyMessage = "invalid or expired activation link"

// IsInvalidActivationKey reports whether the error is one of the
// ordinary negative outcomes of key validation: malformed, not found,
// or expired. These are user input shaped failures, not faults.
func IsInvalidActivationKey(err error) bool {
	code := errTextCode(err)
	return code == TextCodeTokenMalformed ||
		code == TextCodeTokenNotFound ||
		code == TextCodeTokenExpired
}

// IsTokenExpiredError checks for the expired key outcome.
func IsTokenExpiredError(err error) bool {
	return errTextCode(err) == TextCodeTokenExpired
}

// IsDuplicateTokenError checks for the issuance policy violation.
func IsDuplicateTokenError(err error) bool {
	return errTextCode(err) == TextCodeDuplicateToken
}

func errTextCode(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}
