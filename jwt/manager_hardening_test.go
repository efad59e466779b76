package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newTestManager(t *testing.T, mutate func(*Config)) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv := newEdKeys(t)
	cfg := Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "https://idp.example",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv
}

func accessClaims(issuer string, exp time.Time) AccessClaims {
	return AccessClaims{UID: "u1", SID: "s1", Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: gjwt.NewNumericDate(exp),
		IssuedAt:  gjwt.NewNumericDate(exp.Add(-time.Minute)),
	}}
}

func TestAccessRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, nil)

	token, err := m.CreateAccess("u1", "s1", "alice@example.com", "https://pod.example/profile/alice#me")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" || claims.Subject != "u1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.WebID != "https://pod.example/profile/alice#me" || claims.Email != "alice@example.com" {
		t.Fatalf("identity claims lost: %+v", claims)
	}

	if _, err := m.CreateAccess("", "s1", "", ""); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestChallengeRoundTripAndExpiry(t *testing.T) {
	now := time.Unix(1750000000, 0)
	m, _ := newTestManager(t, func(c *Config) {
		c.Now = func() time.Time { return now }
	})

	token, exp, err := m.CreateChallenge("u1", "alice@example.com")
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	if !exp.Equal(now.Add(DefaultChallengeTTL)) {
		t.Fatalf("challenge expiry %v", exp)
	}
	claims, err := m.ParseChallenge(token)
	if err != nil {
		t.Fatalf("parse challenge: %v", err)
	}
	if claims.Email != "alice@example.com" || claims.ID == "" {
		t.Fatalf("unexpected challenge claims %+v", claims)
	}

	now = now.Add(DefaultChallengeTTL + time.Second)
	if _, err := m.ParseChallenge(token); err == nil {
		t.Fatal("expected expired challenge to fail")
	}
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	m, _ := newTestManager(t, nil)

	access, _ := m.CreateAccess("u1", "s1", "a@example.com", "")
	challenge, _, _ := m.CreateChallenge("u1", "a@example.com")

	if _, err := m.ParseChallenge(access); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("access token accepted as challenge: %v", err)
	}
	if _, err := m.ParseAccess(challenge); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("challenge accepted as access token: %v", err)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	m, _ := newTestManager(t, nil)

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, accessClaims("https://idp.example", time.Now().Add(time.Minute)))
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	m, priv := newTestManager(t, func(c *Config) {
		c.Audience = "api"
		c.Leeway = 30 * time.Second
	})

	sign := func(c AccessClaims) string {
		c.Audience = gjwt.ClaimStrings{"api"}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := m.ParseAccess(sign(accessClaims("other", time.Now().Add(time.Minute)))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := accessClaims("https://idp.example", time.Now().Add(time.Minute))
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	badAudience, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience).SignedString(priv)
	if _, err := m.ParseAccess(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	if _, err := m.ParseAccess(sign(accessClaims("https://idp.example", time.Now().Add(-15*time.Second)))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.ParseAccess(sign(accessClaims("https://idp.example", time.Now().Add(-2*time.Minute)))); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessRequiresExpiry(t *testing.T) {
	m, priv := newTestManager(t, nil)

	c := accessClaims("https://idp.example", time.Now())
	c.ExpiresAt = nil
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected token without exp to fail")
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := accessClaims("", time.Now().Add(time.Minute))
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseAccess(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)}); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: "rs256"}); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: make([]byte, 32)})
	if err != nil {
		t.Fatalf("hs256 manager: %v", err)
	}
	if m.ChallengeTTL() != DefaultChallengeTTL {
		t.Fatalf("ChallengeTTL = %v", m.ChallengeTTL())
	}
}
