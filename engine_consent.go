package goIdentity

import (
	"context"
	"strings"

	"github.com/MrEthical07/goIdentity/consent"
)

// GrantConsent records that userID approved scopes for clientID. An
// earlier grant for the same client is replaced.
func (e *Engine) GrantConsent(ctx context.Context, userID, clientID string, scopes []string) (consent.Grant, error) {
	if err := e.ready(); err != nil {
		return consent.Grant{}, err
	}
	g, err := e.consents.Grant(ctx, userID, clientID, scopes)
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventConsentGranted, false, userID, "", "", err, func() map[string]string {
			return map[string]string{"client_id": clientID}
		})
		return consent.Grant{}, err
	}
	e.metricInc(MetricConsentGranted)
	e.emitAudit(ctx, auditEventConsentGranted, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{
			"client_id": clientID,
			"scopes":    strings.Join(g.Scopes, " "),
		}
	})
	return g, nil
}

// HasConsent reports whether userID granted clientID every required scope.
func (e *Engine) HasConsent(ctx context.Context, userID, clientID string, required ...string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	ok, err := e.consents.HasConsent(ctx, userID, clientID, required...)
	return ok, storeErr(err)
}

// ListConsents returns the grants of userID ordered by client id.
func (e *Engine) ListConsents(ctx context.Context, userID string) ([]consent.Grant, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	grants, err := e.consents.List(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return grants, nil
}

// RevokeConsent deletes the grant of userID for clientID and reports
// whether one existed.
func (e *Engine) RevokeConsent(ctx context.Context, userID, clientID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	removed, err := e.consents.Revoke(ctx, userID, clientID)
	if err != nil {
		return false, storeErr(err)
	}
	if removed {
		e.metricInc(MetricConsentRevoked)
		e.emitAudit(ctx, auditEventConsentRevoked, true, userID, "", "", nil, func() map[string]string {
			return map[string]string{"client_id": clientID}
		})
	}
	return removed, nil
}

// ConsentDecision tells the interaction layer whether clientID must ask
// userID again. Requested scopes the provider does not support are
// ignored; the rest are compared with the stored grant.
func (e *Engine) ConsentDecision(ctx context.Context, userID, clientID string, requested []string) (ConsentDecision, error) {
	if err := e.ready(); err != nil {
		return ConsentDecision{}, err
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(clientID) == "" {
		return ConsentDecision{}, ErrConsentInvalid
	}

	supported := make([]string, 0, len(requested))
	for _, s := range consent.NormalizeScopes(requested) {
		if e.config.Provider.HasScope(s) {
			supported = append(supported, s)
		}
	}

	var granted []string
	grants, err := e.consents.List(ctx, userID)
	if err != nil {
		return ConsentDecision{}, storeErr(err)
	}
	found := false
	for _, g := range grants {
		if g.ClientID == clientID {
			granted = g.Scopes
			found = true
			break
		}
	}

	missing := consent.Missing(granted, supported)
	return ConsentDecision{
		Prompt:  !found || len(missing) > 0,
		Missing: missing,
	}, nil
}
