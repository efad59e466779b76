package goIdentity

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/identity"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/notify"
	"go.uber.org/zap"
)

const (
	throttleScopeRegister = "register"
	throttleScopeReset    = "reset"
)

// Register creates an account. The returned user carries no password hash
// or two-factor secret.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (identity.User, error) {
	if err := e.ready(); err != nil {
		return identity.User{}, err
	}
	email := strings.TrimSpace(req.Email)
	fail := func(err error, reason string) (identity.User, error) {
		e.emitAudit(ctx, auditEventRegistrationFailure, false, "", email, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return identity.User{}, err
	}

	if !e.config.Registration.Enabled {
		return fail(ErrRegistrationDisabled, "disabled")
	}
	if !validEmail(email) {
		return fail(ErrInvalidEmail, "email")
	}
	webID := strings.TrimSpace(req.WebID)
	if webID != "" && !validWebID(webID) {
		return fail(ErrInvalidWebID, "webid")
	}
	if err := checkPasswordPolicy(e.config.Password, req.Password); err != nil {
		return fail(err, "password_policy")
	}

	if e.throttle(ctx, throttleScopeRegister, throttleSubject(ctx),
		e.config.Registration.ThrottleLimit, e.config.Registration.ThrottleWindow) {
		e.metricInc(MetricRegistrationRateLimited)
		return fail(ErrRegistrationRateLimited, "rate_limited")
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return fail(ErrPasswordPolicy, "hash")
	}

	u, err := e.users.Create(ctx, email, hash, webID)
	if err != nil {
		err = storeErr(err)
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegistrationDuplicate)
			return fail(err, "duplicate")
		}
		return fail(err, "store")
	}
	// Failures recorded before the account existed do not count against it.
	if err := e.attempts.Reset(ctx, u.Email); err != nil {
		e.logger.Warn("clear pre-registration attempts",
			zap.String("user_id", u.ID),
			zap.Error(err),
		)
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		if err := e.users.UpdateProfile(ctx, u.Email, identity.ProfileUpdate{Name: &name}); err != nil {
			return identity.User{}, storeErr(err)
		}
		u.Name = name
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emitAudit(ctx, auditEventRegistrationSuccess, true, u.ID, u.Email, "", nil, nil)
	return withoutSecrets(u), nil
}

// Profile returns the account of userID.
func (e *Engine) Profile(ctx context.Context, userID string) (Profile, error) {
	if err := e.ready(); err != nil {
		return Profile{}, err
	}
	u, err := e.userByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return profileOf(u), nil
}

// UnlockAccount clears the lock flag and the failed-login record.
func (e *Engine) UnlockAccount(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.users.SetLocked(ctx, email, false); err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, "", email, "", nil, func() map[string]string {
		return map[string]string{"by": "admin"}
	})
	return nil
}

// LockAccount locks an account until UnlockAccount or a password reset.
func (e *Engine) LockAccount(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.users.SetLocked(ctx, email, true); err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricAccountLocked)
	e.emitAudit(ctx, auditEventAccountLocked, true, "", email, "", nil, func() map[string]string {
		return map[string]string{"by": "admin"}
	})
	return nil
}

// IsLocked reports the lock flag. Unknown emails are reported unlocked.
func (e *Engine) IsLocked(ctx context.Context, email string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	locked, err := e.users.IsLocked(ctx, email)
	return locked, storeErr(err)
}

// UpdateProfile edits the name and WebID of userID.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	if err := e.ready(); err != nil {
		return err
	}
	if update.WebID != nil {
		webID := strings.TrimSpace(*update.WebID)
		if !validWebID(webID) {
			return ErrInvalidWebID
		}
		update.WebID = &webID
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		update.Name = &name
	}

	u, err := e.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.users.UpdateProfile(ctx, u.Email, update); err != nil {
		return storeErr(err)
	}
	e.emitAudit(ctx, auditEventProfileUpdate, true, u.ID, u.Email, "", nil, func() map[string]string {
		md := map[string]string{}
		if update.Name != nil {
			md["name"] = "changed"
		}
		if update.WebID != nil {
			md["webid"] = *update.WebID
		}
		return md
	})
	return nil
}

// ChangePassword replaces the password of userID after checking the
// current one. Every session except keepSessionID is ended.
func (e *Engine) ChangePassword(ctx context.Context, userID, keepSessionID, oldPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.userByID(ctx, userID)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		e.emitAudit(ctx, auditEventPasswordChange, false, u.ID, u.Email, keepSessionID, err, nil)
		return err
	}

	if err := checkPasswordPolicy(e.config.Password, newPassword); err != nil {
		return fail(err)
	}
	ok, err := e.hasher.Verify(oldPassword, u.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		return fail(ErrInvalidCredentials)
	}
	if oldPassword == newPassword {
		e.metricInc(MetricPasswordChangeReuseRejected)
		return fail(ErrPasswordReuse)
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fail(ErrPasswordPolicy)
	}
	if err := e.users.UpdatePasswordHash(ctx, u.Email, hash); err != nil {
		return fail(storeErr(err))
	}
	revoked, err := e.sessions.RevokeAllExcept(ctx, u.ID, keepSessionID)
	if err != nil {
		return fail(storeErr(err))
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, u.ID, u.Email, keepSessionID, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	e.send(notify.PasswordChanged(u.Email, e.now()))
	return nil
}

// throttle consumes one unit of scope/subject. A backend failure is
// logged and lets the request through.
func (e *Engine) throttle(ctx context.Context, scope, subject string, limit int, window time.Duration) bool {
	if e.limiter == nil || limit <= 0 {
		return false
	}
	err := e.limiter.Allow(ctx, scope, subject, rate.Rule{Limit: limit, Window: window})
	switch {
	case err == nil:
		return false
	case errors.Is(err, rate.ErrRateLimited):
		return true
	default:
		e.logger.Warn("throttle unavailable",
			zap.String("scope", scope),
			zap.Error(err),
		)
		return false
	}
}

func throttleSubject(ctx context.Context) string {
	if ip := clientIPFromContext(ctx); ip != "" {
		return ip
	}
	return "unknown"
}

func withoutSecrets(u identity.User) identity.User {
	u.PasswordHash = ""
	u.TwoFactorSecret = ""
	return u
}
