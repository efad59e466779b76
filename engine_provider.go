package goIdentity

import (
	"context"
)

// ExtraTokenClaims returns the claims added to every token issued for
// accountID. Accounts without a WebID, and unknown accounts, get none.
func (e *Engine) ExtraTokenClaims(ctx context.Context, accountID string) (map[string]any, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	claims := map[string]any{}
	if accountID == "" {
		return claims, nil
	}
	u, ok, err := e.users.FindByID(ctx, accountID)
	if err != nil {
		return claims, storeErr(err)
	}
	if ok && u.WebID != "" {
		claims["webid"] = u.WebID
	}
	return claims, nil
}

// FindAccount resolves accountID for the provider. Claims are released
// for scopes, or for every configured scope when none are given. Claims
// the account has no value for are left out.
func (e *Engine) FindAccount(ctx context.Context, accountID string, scopes ...string) (Account, error) {
	if err := e.ready(); err != nil {
		return Account{}, err
	}
	u, err := e.userByID(ctx, accountID)
	if err != nil {
		return Account{}, err
	}

	p := e.config.Provider
	if len(scopes) == 0 {
		scopes = p.Scopes
	}
	values := map[string]any{
		"sub":            u.ID,
		"email":          u.Email,
		"email_verified": false,
	}
	if u.Name != "" {
		values["name"] = u.Name
	}
	if u.WebID != "" {
		values["webid"] = u.WebID
	}

	claims := make(map[string]any)
	for _, name := range p.ClaimsFor(scopes...) {
		if v, ok := values[name]; ok {
			claims[name] = v
		}
	}
	claims["sub"] = u.ID
	return Account{Subject: u.ID, Claims: claims}, nil
}
