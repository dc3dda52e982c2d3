package apperr

import "errors"

// Sentinel errors for the registration pipeline. Repositories and services
// return these (optionally wrapped) so the HTTP boundary can translate them
// into status codes without inspecting strings.
var (
	// ErrNotFound: no identity record exists for the email.
	ErrNotFound = errors.New("account not found")
	// ErrAlreadyVerified: the identity is already verified. Also the expected
	// outcome of the losing side of a concurrent verification race.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrNoPendingCode: no verification attempt is outstanding.
	ErrNoPendingCode = errors.New("no pending verification code")
	// ErrCodeExpired: the pending code exists but its validity window passed.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeInvalid: the submitted code does not match the pending one.
	ErrCodeInvalid = errors.New("invalid verification code")
	// ErrUsernameTaken: another verified identity owns the requested username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials: unknown email or wrong password at login.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotVerified: login attempted against a pending identity.
	ErrNotVerified = errors.New("account not verified")
	// ErrCooldown: a code was requested again before the resend window passed.
	ErrCooldown = errors.New("verification code recently sent, try again later")
	// ErrForbidden: admin bootstrap rejected (bad key or admin exists).
	ErrForbidden = errors.New("forbidden")
)
