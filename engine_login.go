package goIdentity

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/attempts"
	"github.com/MrEthical07/goIdentity/identity"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/session"
	"go.uber.org/zap"
)

// Login checks a password. Unknown emails and wrong passwords both count
// as failed attempts and both return ErrInvalidCredentials. Accounts with
// two-factor enabled get a challenge instead of a session.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if err := e.ready(); err != nil {
		return LoginResult{}, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()
	}

	email := strings.TrimSpace(req.Email)
	u, ok, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, storeErr(err)
	}
	if !ok {
		// Spend the same KDF time as a real account would.
		_, _ = e.hasher.Verify(req.Password, e.dummyHash)
		return LoginResult{}, e.loginFailed(ctx, identity.User{Email: email}, "unknown_email")
	}
	if u.Locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, u.Email, "", ErrAccountLocked, nil)
		return LoginResult{}, ErrAccountLocked
	}

	match, err := e.hasher.Verify(req.Password, u.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrEmptyPassword) && !errors.Is(err, password.ErrPasswordTooLong) {
		e.logger.Error("stored password hash unusable",
			zap.String("user_id", u.ID),
			zap.Error(err),
		)
	}
	if !match {
		return LoginResult{}, e.loginFailed(ctx, u, "password")
	}

	if err := e.attempts.Reset(ctx, u.Email); err != nil {
		return LoginResult{}, storeErr(err)
	}
	e.upgradeHash(ctx, u, req.Password)

	if u.TwoFactorEnabled {
		challenge, expiresAt, err := e.jwt.CreateChallenge(u.ID, u.Email)
		if err != nil {
			return LoginResult{}, err
		}
		e.metricInc(MetricTwoFactorRequired)
		e.emitAudit(ctx, auditEventTwoFactorRequired, true, u.ID, u.Email, "", nil, nil)
		return LoginResult{
			TwoFactorRequired:  true,
			Challenge:          challenge,
			ChallengeExpiresAt: expiresAt,
		}, nil
	}

	return e.completeLogin(ctx, u, req.Metadata)
}

// CompleteTwoFactorLogin finishes a login that returned TwoFactorRequired.
// A wrong code counts as a failed attempt. The challenge stays usable
// until it expires.
func (e *Engine) CompleteTwoFactorLogin(ctx context.Context, challenge, code string, md session.Metadata) (LoginResult, error) {
	if err := e.ready(); err != nil {
		return LoginResult{}, err
	}
	claims, err := e.jwt.ParseChallenge(challenge)
	if err != nil {
		return LoginResult{}, ErrTokenInvalid
	}
	u, ok, err := e.users.FindByID(ctx, claims.UID)
	if err != nil {
		return LoginResult{}, storeErr(err)
	}
	if !ok || u.Email != claims.Email || !u.TwoFactorEnabled {
		return LoginResult{}, ErrTokenInvalid
	}
	if u.Locked {
		e.metricInc(MetricLoginLocked)
		return LoginResult{}, ErrAccountLocked
	}

	if !e.twoFactor.VerifyCode(code, u.TwoFactorSecret) {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, u.ID, u.Email, "", ErrTwoFactorInvalid, nil)
		if err := e.loginFailed(ctx, u, "two_factor"); errors.Is(err, ErrAccountLocked) || errors.Is(err, ErrUnavailable) {
			return LoginResult{}, err
		}
		return LoginResult{}, ErrTwoFactorInvalid
	}

	if err := e.attempts.Reset(ctx, u.Email); err != nil {
		return LoginResult{}, storeErr(err)
	}
	e.metricInc(MetricTwoFactorSuccess)
	return e.completeLogin(ctx, u, md)
}

// Authenticate resolves an access token to its live session. Tokens of
// revoked or expired sessions return ErrSessionNotFound.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}
	claims, err := e.jwt.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return Principal{}, ErrTokenInvalid
	}
	s, ok, err := e.sessions.Get(ctx, claims.SID)
	if err != nil {
		return Principal{}, storeErr(err)
	}
	if !ok || s.UserID != claims.UID {
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventAuthenticationRejected, false, claims.UID, claims.Email, claims.SID, ErrSessionNotFound, nil)
		return Principal{}, ErrSessionNotFound
	}
	if err := e.sessions.Touch(ctx, s.ID); err != nil {
		return Principal{}, storeErr(err)
	}
	s.LastActivityAt = e.now()

	return Principal{
		UserID:    claims.UID,
		Email:     claims.Email,
		WebID:     claims.WebID,
		SessionID: s.ID,
		Session:   s,
	}, nil
}

func (e *Engine) completeLogin(ctx context.Context, u identity.User, md session.Metadata) (LoginResult, error) {
	if err := e.users.RecordSuccessfulLogin(ctx, u.Email); err != nil {
		return LoginResult{}, storeErr(err)
	}

	md = metadataFor(ctx, md)
	s, err := e.sessions.Create(ctx, u.ID, md)
	if err != nil {
		return LoginResult{}, storeErr(err)
	}
	token, err := e.jwt.CreateAccess(u.ID, s.ID, u.Email, u.WebID)
	if err != nil {
		if _, rerr := e.sessions.Revoke(ctx, s.ID); rerr != nil {
			e.logger.Warn("revoke orphan session", zap.String("session_id", s.ID), zap.Error(rerr))
		}
		return LoginResult{}, err
	}

	now := e.now()
	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLoginSuccess, true, u.ID, u.Email, s.ID, nil, func() map[string]string {
		return map[string]string{"user_agent": md.UserAgent}
	})
	if e.config.Session.NotifyNewSignIn {
		e.send(notify.NewSignIn(u.Email, md.IP, md.UserAgent, now))
	}

	return LoginResult{
		UserID:      u.ID,
		WebID:       u.WebID,
		SessionID:   s.ID,
		AccessToken: token,
		ExpiresAt:   now.Add(e.config.JWT.AccessTTL),
	}, nil
}

// loginFailed records a failed attempt for u.Email and returns the error
// the caller should see. u.ID is empty for unknown emails.
func (e *Engine) loginFailed(ctx context.Context, u identity.User, reason string) error {
	e.metricInc(MetricLoginFailure)
	out, err := e.attempts.RecordFailure(ctx, u.Email)
	if err != nil {
		return storeErr(err)
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, u.ID, u.Email, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason":   reason,
			"failures": strconv.Itoa(out.Count),
		}
	})
	if !out.Locked {
		return ErrInvalidCredentials
	}
	if out.LockedNow {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, true, u.ID, u.Email, "", nil, func() map[string]string {
			return map[string]string{"by": "threshold", "failures": strconv.Itoa(out.Count)}
		})
		if e.config.Lockout.NotifyOnLock {
			e.send(notify.AccountLocked(u.Email, out.Count))
		}
	}
	return ErrAccountLocked
}

// upgradeHash rehashes the password with the primary scheme when the
// stored hash is legacy or under-costed. Failures only log.
func (e *Engine) upgradeHash(ctx context.Context, u identity.User, plain string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(plain)
	if err == nil {
		err = e.users.UpdatePasswordHash(ctx, u.Email, hash)
	}
	if err != nil {
		e.logger.Warn("password hash upgrade failed",
			zap.String("user_id", u.ID),
			zap.Error(err),
		)
		return
	}
	e.metricInc(MetricPasswordUpgraded)
}
