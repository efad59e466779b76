package goIdentity

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrEthical07/goIdentity/notify"
)

// RequestPasswordReset issues a reset token for email and mails it when
// the account exists. The result is the same for unknown emails.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email = strings.TrimSpace(email)

	if e.throttle(ctx, throttleScopeReset, email,
		e.config.PasswordReset.ThrottleLimit, e.config.PasswordReset.ThrottleWindow) {
		e.metricInc(MetricPasswordResetRateLimited)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", email, "", ErrPasswordResetRateLimited, nil)
		return ErrPasswordResetRateLimited
	}

	ttl := e.config.PasswordReset.TokenTTL
	token, err := e.resets.Issue(ctx, email, ttl)
	if err != nil {
		return storeErr(err)
	}
	u, known, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, u.ID, email, "", nil, func() map[string]string {
		return map[string]string{"known": strconv.FormatBool(known)}
	})
	if known {
		e.send(notify.PasswordReset(u.Email, token, e.resetLink(token), e.now().Add(ttl)))
	}
	return nil
}

// InspectPasswordReset reports whether token is currently redeemable
// without consuming it.
func (e *Engine) InspectPasswordReset(ctx context.Context, token string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	r, err := e.resets.Inspect(ctx, token)
	if err != nil {
		return false, storeErr(err)
	}
	return r.Valid(), nil
}

// ConfirmPasswordReset redeems token and sets newPassword. The policy is
// checked before the token is consumed. A successful reset unlocks the
// account and, with PasswordReset.RevokeSessions, ends all its sessions.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := checkPasswordPolicy(e.config.Password, newPassword); err != nil {
		return err
	}

	r, err := e.resets.Redeem(ctx, token)
	if err != nil {
		return storeErr(err)
	}
	if !r.Valid() {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", "", ErrPasswordResetInvalid, func() map[string]string {
			return map[string]string{"status": r.Status.String()}
		})
		return ErrPasswordResetInvalid
	}

	u, ok, err := e.users.FindByEmail(ctx, r.Email)
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		// Tokens are issued for unknown emails too.
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrPasswordResetInvalid
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return ErrPasswordPolicy
	}
	if err := e.users.UpdatePasswordHash(ctx, u.Email, hash); err != nil {
		return storeErr(err)
	}
	if err := e.users.SetLocked(ctx, u.Email, false); err != nil {
		return storeErr(err)
	}
	if u.Locked {
		e.metricInc(MetricAccountUnlocked)
		e.emitAudit(ctx, auditEventAccountUnlocked, true, u.ID, u.Email, "", nil, func() map[string]string {
			return map[string]string{"by": "password_reset"}
		})
	}

	revoked := 0
	if e.config.PasswordReset.RevokeSessions {
		if revoked, err = e.sessions.RevokeAllExcept(ctx, u.ID, ""); err != nil {
			return storeErr(err)
		}
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, u.ID, u.Email, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	e.send(notify.PasswordChanged(u.Email, e.now()))
	return nil
}

func (e *Engine) resetLink(token string) string {
	base := strings.TrimSpace(e.config.PasswordReset.LinkBase)
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
