package goIdentity

import (
	"context"

	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/twofactor"
	"go.uber.org/zap"
)

// BeginTwoFactorEnrollment generates a secret for userID. Nothing is
// stored until ConfirmTwoFactorEnrollment proves the authenticator works.
func (e *Engine) BeginTwoFactorEnrollment(ctx context.Context, userID string) (Enrollment, error) {
	if err := e.ready(); err != nil {
		return Enrollment{}, err
	}
	u, err := e.userByID(ctx, userID)
	if err != nil {
		return Enrollment{}, err
	}
	if u.TwoFactorEnabled {
		return Enrollment{}, ErrTwoFactorAlreadyEnabled
	}

	enr, err := e.twoFactor.NewEnrollment(u.Email)
	if err != nil {
		return Enrollment{}, err
	}
	out := Enrollment{Secret: enr.Secret, URI: enr.URI}
	if size := e.config.TwoFactor.QRSize; size > 0 {
		qr, err := twofactor.QRCodeDataURL(enr.URI, size)
		if err != nil {
			e.logger.Warn("render enrollment qr code", zap.String("user_id", u.ID), zap.Error(err))
		} else {
			out.QRCode = qr
		}
	}
	return out, nil
}

// ConfirmTwoFactorEnrollment stores secret once code verifies against it.
func (e *Engine) ConfirmTwoFactorEnrollment(ctx context.Context, userID, secret, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if secret == "" || !e.twoFactor.VerifyCode(code, secret) {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorEnabled, false, u.ID, u.Email, "", ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}

	if err := e.users.SetTwoFactor(ctx, u.Email, true, secret); err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricTwoFactorEnabled)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, u.ID, u.Email, "", nil, nil)
	e.send(notify.TwoFactorEnabled(u.Email))
	return nil
}

// DisableTwoFactor removes two-factor from userID after checking a
// current code.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	u, err := e.userByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.TwoFactorEnabled {
		return ErrTwoFactorNotEnrolled
	}
	if !e.twoFactor.VerifyCode(code, u.TwoFactorSecret) {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, u.ID, u.Email, "", ErrTwoFactorInvalid, nil)
		return ErrTwoFactorInvalid
	}

	if err := e.users.SetTwoFactor(ctx, u.Email, false, ""); err != nil {
		return storeErr(err)
	}
	e.metricInc(MetricTwoFactorDisabled)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, u.ID, u.Email, "", nil, nil)
	return nil
}
