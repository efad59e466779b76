package goIdentity

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. Both cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while an account is locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountExists is returned when registering a taken email.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned by account operations addressed by id or email.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidWebID is returned for a WebID that is not an absolute http(s) URL.
	ErrInvalidWebID = errors.New("invalid webid")
	// ErrRegistrationDisabled is returned when self-service registration is off.
	ErrRegistrationDisabled = errors.New("registration disabled")
	// ErrRegistrationRateLimited is returned when the registration throttle trips.
	ErrRegistrationRateLimited = errors.New("registration rate limited")
	// ErrPasswordPolicy is returned when a new password fails the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a new password equals the current one.
	ErrPasswordReuse = errors.New("password reuse not allowed")
	// ErrPasswordResetInvalid covers unknown, redeemed and expired reset tokens.
	ErrPasswordResetInvalid = errors.New("password reset token invalid")
	// ErrPasswordResetRateLimited is returned when reset requests for one email are throttled.
	ErrPasswordResetRateLimited = errors.New("password reset rate limited")
	// ErrTwoFactorRequired is returned when a code is needed to continue.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrTwoFactorInvalid is returned for a wrong or malformed code.
	ErrTwoFactorInvalid = errors.New("two-factor code invalid")
	// ErrTwoFactorNotEnrolled is returned when disabling two-factor on an account without it.
	ErrTwoFactorNotEnrolled = errors.New("two-factor not enrolled")
	// ErrTwoFactorAlreadyEnabled is returned when enrolling an account that already has two-factor.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrSessionNotFound is returned for revoked, expired or foreign sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTokenInvalid is returned for access tokens and challenges that fail verification.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrConsentInvalid is returned for consent calls with empty ids.
	ErrConsentInvalid = errors.New("invalid consent request")
	// ErrEngineNotReady is returned when an Engine is used before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("identity backend unavailable")
)
