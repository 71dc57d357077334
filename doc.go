// Package activation implements account creation with email based
// activation: create an inactive account, issue a single-use
// activation key, mail it to the user, and later trade the key for an
// active account with a chosen password.
//
// Token lifecycle:
//   - TokenStore owns key generation (SHA-1 over a crypto/rand salt and
//     the username), lookup, and retirement. Keys are 40 character
//     lowercase hex strings; anything else is rejected before the store
//     is queried. At most one live key exists per account.
//   - Consume is atomic: the key row is removed with a
//     compare-and-delete, so concurrent activation attempts serialize
//     to exactly one winner, and the account flips to active in the
//     same transaction. Expired keys stay behind for PurgeExpired.
//
// Workflow:
//   - CreateAccountHandler creates the account. With no password it
//     stays inactive behind an unusable credential and an activation
//     link is mailed; with an explicit password it is active
//     immediately and the credentials are mailed instead.
//   - ActivationRequestHandler answers, read only, whether a presented
//     key maps to a pending account so callers can render a password
//     prompt.
//   - ActivateAccountHandler consumes the key, sets the chosen
//     password, and, when an Authenticator is configured, logs the
//     user straight in.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing account
//     creation, activation, and purge events. Sinks run best-effort
//     (errors are logged) so you can forward to a database or queue
//     without blocking the flow.
package activation
