package goIdentity

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Feature names an optional capability of the OIDC provider library.
type Feature string

const (
	FeatureDevInteractions             Feature = "devInteractions"
	FeatureDeviceFlow                  Feature = "deviceFlow"
	FeatureIntrospection               Feature = "introspection"
	FeatureRevocation                  Feature = "revocation"
	FeatureResourceIndicators          Feature = "resourceIndicators"
	FeatureRegistration                Feature = "registration"
	FeatureRegistrationManagement      Feature = "registrationManagement"
	FeatureClientCredentials           Feature = "clientCredentials"
	FeatureBackchannelLogout           Feature = "backchannelLogout"
	FeatureJWTResponseModes            Feature = "jwtResponseModes"
	FeaturePushedAuthorizationRequests Feature = "pushedAuthorizationRequests"
	FeatureRequestObjects              Feature = "requestObjects"
	FeatureUserinfo                    Feature = "userinfo"
	FeatureRPInitiatedLogout           Feature = "rpInitiatedLogout"
)

var knownFeatures = map[Feature]struct{}{
	FeatureDevInteractions:             {},
	FeatureDeviceFlow:                  {},
	FeatureIntrospection:               {},
	FeatureRevocation:                  {},
	FeatureResourceIndicators:          {},
	FeatureRegistration:                {},
	FeatureRegistrationManagement:      {},
	FeatureClientCredentials:           {},
	FeatureBackchannelLogout:           {},
	FeatureJWTResponseModes:            {},
	FeaturePushedAuthorizationRequests: {},
	FeatureRequestObjects:              {},
	FeatureUserinfo:                    {},
	FeatureRPInitiatedLogout:           {},
}

// Standard scope names.
const (
	ScopeOpenID        = "openid"
	ScopeEmail         = "email"
	ScopeProfile       = "profile"
	ScopeWebID         = "webid"
	ScopeOfflineAccess = "offline_access"
)

// ProviderTTL holds token and interaction lifetimes handed to the
// provider library.
type ProviderTTL struct {
	AccessToken       time.Duration
	AuthorizationCode time.Duration
	IDToken           time.Duration
	RefreshToken      time.Duration
	DeviceCode        time.Duration
	Interaction       time.Duration
	Session           time.Duration
	Grant             time.Duration
}

// ProviderConfig is the typed form of the provider library's options.
type ProviderConfig struct {
	Issuer string
	Scopes []string
	// Claims maps a scope to the claims it releases.
	Claims   map[string][]string
	Features map[Feature]bool
	TTL      ProviderTTL
}

// DefaultProviderConfig returns the Solid-flavoured defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Issuer: "http://localhost:3000",
		Scopes: []string{ScopeOpenID, ScopeEmail, ScopeProfile, ScopeWebID, ScopeOfflineAccess},
		Claims: map[string][]string{
			ScopeOpenID:  {"sub"},
			ScopeEmail:   {"email", "email_verified"},
			ScopeProfile: {"name", "family_name", "given_name", "preferred_username"},
			ScopeWebID:   {"webid"},
		},
		Features: map[Feature]bool{
			FeatureDevInteractions:             false,
			FeatureDeviceFlow:                  true,
			FeatureIntrospection:               true,
			FeatureRevocation:                  true,
			FeatureResourceIndicators:          true,
			FeatureRegistration:                true,
			FeatureRegistrationManagement:      true,
			FeatureClientCredentials:           true,
			FeatureBackchannelLogout:           true,
			FeatureJWTResponseModes:            true,
			FeaturePushedAuthorizationRequests: true,
			FeatureRequestObjects:              true,
			FeatureRPInitiatedLogout:           true,
		},
		TTL: ProviderTTL{
			AccessToken:       time.Hour,
			AuthorizationCode: 10 * time.Minute,
			IDToken:           time.Hour,
			RefreshToken:      24 * time.Hour,
			DeviceCode:        10 * time.Minute,
			Interaction:       time.Hour,
			Session:           14 * 24 * time.Hour,
			Grant:             14 * 24 * time.Hour,
		},
	}
}

// Enabled reports whether f is switched on.
func (p ProviderConfig) Enabled(f Feature) bool {
	return p.Features[f]
}

// HasScope reports whether scope is offered.
func (p ProviderConfig) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Validate checks the provider options.
func (p ProviderConfig) Validate() error {
	u, err := url.Parse(p.Issuer)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return errors.New("Provider Issuer must be an absolute URL")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("Provider Issuer must not carry a query or fragment")
	}
	if !p.HasScope(ScopeOpenID) {
		return errors.New("Provider Scopes must include openid")
	}
	seen := make(map[string]struct{}, len(p.Scopes))
	for _, s := range p.Scopes {
		if s == "" || strings.ContainsAny(s, " \t") {
			return fmt.Errorf("Provider scope %q is malformed", s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("Provider scope %q is listed twice", s)
		}
		seen[s] = struct{}{}
	}
	for scope, claims := range p.Claims {
		if _, ok := seen[scope]; !ok {
			return fmt.Errorf("Provider Claims references unknown scope %q", scope)
		}
		for _, c := range claims {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("Provider Claims for scope %q contains an empty claim", scope)
			}
		}
	}
	for f := range p.Features {
		if _, ok := knownFeatures[f]; !ok {
			return fmt.Errorf("Provider feature %q is unknown", f)
		}
	}
	ttls := []struct {
		name string
		d    time.Duration
	}{
		{"AccessToken", p.TTL.AccessToken},
		{"AuthorizationCode", p.TTL.AuthorizationCode},
		{"IDToken", p.TTL.IDToken},
		{"RefreshToken", p.TTL.RefreshToken},
		{"DeviceCode", p.TTL.DeviceCode},
		{"Interaction", p.TTL.Interaction},
		{"Session", p.TTL.Session},
		{"Grant", p.TTL.Grant},
	}
	for _, ttl := range ttls {
		if ttl.d <= 0 {
			return fmt.Errorf("Provider TTL %s must be > 0", ttl.name)
		}
	}
	return nil
}

// ClaimsFor returns the claim names released by scopes, sorted.
func (p ProviderConfig) ClaimsFor(scopes ...string) []string {
	set := make(map[string]struct{})
	for _, s := range scopes {
		for _, c := range p.Claims[s] {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (p ProviderConfig) clone() ProviderConfig {
	out := p
	out.Scopes = append([]string(nil), p.Scopes...)
	if p.Claims != nil {
		out.Claims = make(map[string][]string, len(p.Claims))
		for k, v := range p.Claims {
			out.Claims[k] = append([]string(nil), v...)
		}
	}
	if p.Features != nil {
		out.Features = make(map[Feature]bool, len(p.Features))
		for k, v := range p.Features {
			out.Features[k] = v
		}
	}
	return out
}
