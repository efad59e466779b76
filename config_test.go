package goIdentity

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 24*time.Hour, cfg.Lockout.Retention)
	assert.Equal(t, 8, cfg.Password.MinLength)
	assert.True(t, cfg.Password.RequireLower)
	assert.True(t, cfg.Password.RequireUpper)
	assert.True(t, cfg.Password.RequireNumber)
	assert.True(t, cfg.Password.RequireSpecial)
	assert.Equal(t, time.Hour, cfg.PasswordReset.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.JWT.ChallengeTTL)
	assert.False(t, cfg.Audit.Enabled)
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"prefix whitespace", func(c *Config) { c.Storage.RedisPrefix = "gid prod" }},
		{"relative webid base", func(c *Config) { c.Identity.WebIDBase = "/users" }},
		{"zero threshold", func(c *Config) { c.Lockout.Threshold = 0 }},
		{"negative window", func(c *Config) { c.Lockout.Window = -time.Second }},
		{"negative retention", func(c *Config) { c.Lockout.Retention = -time.Second }},
		{"argon2 memory too low", func(c *Config) { c.Password.Memory = 1024 }},
		{"zero min length", func(c *Config) { c.Password.MinLength = 0 }},
		{"byte cap under min length", func(c *Config) { c.Password.MaxPasswordBytes = 4 }},
		{"zero reset ttl", func(c *Config) { c.PasswordReset.TokenTTL = 0 }},
		{"reset ttl over a day", func(c *Config) { c.PasswordReset.TokenTTL = 25 * time.Hour }},
		{"relative reset link", func(c *Config) { c.PasswordReset.LinkBase = "reset" }},
		{"throttle without window", func(c *Config) { c.Registration.ThrottleWindow = 0 }},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"challenge ttl too long", func(c *Config) { c.JWT.ChallengeTTL = 2 * time.Hour }},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }},
		{"hs256 short key", func(c *Config) {
			c.JWT.SigningMethod = "hs256"
			c.JWT.PrivateKey = []byte("short")
		}},
		{"ed25519 private without public", func(c *Config) {
			_, priv, _ := ed25519.GenerateKey(rand.Reader)
			c.JWT.PrivateKey = priv
		}},
		{"leeway too large", func(c *Config) { c.JWT.Leeway = 3 * time.Minute }},
		{"zero retention", func(c *Config) { c.Session.Retention = 0 }},
		{"issuer with colon", func(c *Config) { c.TwoFactor.Issuer = "Solid: OIDC" }},
		{"notify without buffer", func(c *Config) { c.Notify.BufferSize = 0 }},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}},
		{"histograms without metrics", func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.EnableLatencyHistograms = true
		}},
		{"provider without openid", func(c *Config) { c.Provider.Scopes = []string{"email"} }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigAcceptsHS256AndEd25519Keys(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	require.NoError(t, cfg.Validate())

	e := newTestEngine(t, cfg)
	e.registerAlice(t)
	e.login(t, testEmail, testPassword)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	cfg = testConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	require.NoError(t, cfg.Validate())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lockout.Threshold = 0

	_, err := New().WithConfig(cfg).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Lockout Threshold")
}

func TestConfigIsCopiedOnBuild(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(t, cfg)

	cfg.Provider.Scopes[0] = "mutated"
	got := e.Config()
	assert.Equal(t, ScopeOpenID, got.Provider.Scopes[0])

	got.Provider.Scopes[0] = "mutated"
	assert.Equal(t, ScopeOpenID, e.Config().Provider.Scopes[0])
}
