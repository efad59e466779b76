package goIdentity

import (
	"context"
	"strconv"

	"github.com/MrEthical07/goIdentity/session"
)

// ListSessions returns the live sessions of userID, most recently active
// first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	sessions, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return sessions, nil
}

// Logout ends sessionID. Logging out an unknown or already ended session
// is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, ok, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return storeErr(err)
	}
	if !ok {
		return nil
	}
	removed, err := e.sessions.Revoke(ctx, sessionID)
	if err != nil {
		return storeErr(err)
	}
	if removed {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, s.UserID, "", s.ID, nil, nil)
	}
	return nil
}

// RevokeSession ends sessionID if it belongs to userID. Sessions of other
// users are reported as ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	s, ok, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return storeErr(err)
	}
	if !ok || s.UserID != userID {
		e.emitAudit(ctx, auditEventSessionRevoked, false, userID, "", sessionID, ErrSessionNotFound, nil)
		return ErrSessionNotFound
	}
	removed, err := e.sessions.Revoke(ctx, sessionID)
	if err != nil {
		return storeErr(err)
	}
	if !removed {
		return ErrSessionNotFound
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, "", sessionID, nil, nil)
	return nil
}

// LogoutOtherSessions ends every session of userID except keepID and
// returns how many were ended. An empty keepID ends all of them.
func (e *Engine) LogoutOtherSessions(ctx context.Context, userID, keepID string) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if keepID != "" {
		s, ok, err := e.sessions.Get(ctx, keepID)
		if err != nil {
			return 0, storeErr(err)
		}
		if !ok || s.UserID != userID {
			return 0, ErrSessionNotFound
		}
	}
	n, err := e.sessions.RevokeAllExcept(ctx, userID, keepID)
	if err != nil {
		return 0, storeErr(err)
	}
	e.metricInc(MetricLogoutOthers)
	e.emitAudit(ctx, auditEventLogoutOthers, true, userID, "", keepID, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(n)}
	})
	return n, nil
}
