package goIdentity

import (
	"context"
	"errors"

	"github.com/MrEthical07/goIdentity/internal/audit"
)

const (
	auditEventRegistrationSuccess    = "registration_success"
	auditEventRegistrationFailure    = "registration_failure"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventAccountLocked          = "account_locked"
	auditEventAccountUnlocked        = "account_unlocked"
	auditEventTwoFactorRequired      = "two_factor_required"
	auditEventTwoFactorFailure       = "two_factor_failure"
	auditEventTwoFactorEnabled       = "two_factor_enabled"
	auditEventTwoFactorDisabled      = "two_factor_disabled"
	auditEventPasswordChange         = "password_change"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventProfileUpdate          = "profile_update"
	auditEventSessionRevoked         = "session_revoked"
	auditEventLogout                 = "logout"
	auditEventLogoutOthers           = "logout_others"
	auditEventConsentGranted         = "consent_granted"
	auditEventConsentRevoked         = "consent_revoked"
	auditEventAuthenticationRejected = "authentication_rejected"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountExists      AuditErrorCode = "duplicate"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTwoFactorInvalid   AuditErrorCode = "two_factor_invalid"
	auditErrTwoFactorState     AuditErrorCode = "two_factor_state"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountExists):
		return auditErrAccountExists
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrRegistrationRateLimited),
		errors.Is(err, ErrPasswordResetRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrPasswordResetInvalid),
		errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrTwoFactorInvalid):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorNotEnrolled),
		errors.Is(err, ErrTwoFactorAlreadyEnabled),
		errors.Is(err, ErrTwoFactorRequired):
		return auditErrTwoFactorState
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrInvalidWebID),
		errors.Is(err, ErrConsentInvalid):
		return auditErrInvalidInput
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
