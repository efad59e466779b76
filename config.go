package goIdentity

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/attempts"
	"github.com/MrEthical07/goIdentity/identity"
	"github.com/MrEthical07/goIdentity/internal/keys"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/resettoken"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/twofactor"
)

// Config is the complete Engine configuration. Obtain one with
// DefaultConfig, adjust it, and hand it to Builder.WithConfig.
type Config struct {
	Storage       StorageConfig
	Identity      IdentityConfig
	Lockout       LockoutConfig
	Password      PasswordConfig
	PasswordReset PasswordResetConfig
	Registration  RegistrationConfig
	JWT           JWTConfig
	Session       SessionConfig
	TwoFactor     TwoFactorConfig
	Notify        NotifyConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Provider      ProviderConfig
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig controls where ephemeral state lives when Redis is used.
type StorageConfig struct {
	// RedisPrefix namespaces every key. Identity, attempts, reset tokens,
	// sessions and consents share it.
	RedisPrefix string
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig controls account records.
type IdentityConfig struct {
	// WebIDBase is used to derive a WebID for users registering without one.
	WebIDBase string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the attempt tracker.
type LockoutConfig struct {
	// Threshold is the number of consecutive failures that locks an account.
	Threshold int
	// Window restarts the failure count when the last failure is older.
	// Zero counts until a successful login or an unlock.
	Window time.Duration
	// Retention bounds how long a record is kept when Window is zero.
	Retention time.Duration
	// NotifyOnLock mails the owner when an account becomes locked.
	NotifyOnLock bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id costs and the password policy.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int

	MinLength      int
	RequireLower   bool
	RequireUpper   bool
	RequireNumber  bool
	RequireSpecial bool

	// AcceptLegacyBcrypt keeps bcrypt hashes from older deployments verifiable.
	AcceptLegacyBcrypt bool
	// UpgradeOnLogin rehashes legacy or under-costed hashes after a
	// successful login.
	UpgradeOnLogin bool
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls reset tokens.
type PasswordResetConfig struct {
	TokenTTL time.Duration
	// LinkBase, when set, is turned into <LinkBase>?token=<token> in the mail.
	LinkBase string
	// RevokeSessions ends every session of the account once the reset succeeds.
	RevokeSessions bool
	// ThrottleLimit requests per ThrottleWindow are accepted per email.
	// Zero disables the throttle.
	ThrottleLimit  int
	ThrottleWindow time.Duration
}

/*
====================================
REGISTRATION CONFIG
====================================
*/

// RegistrationConfig controls self-service registration.
type RegistrationConfig struct {
	Enabled bool
	// ThrottleLimit registrations per ThrottleWindow are accepted per client
	// IP (see WithClientIP). Zero disables the throttle.
	ThrottleLimit  int
	ThrottleWindow time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access tokens and pending two-factor challenges.
type JWTConfig struct {
	AccessTTL     time.Duration
	ChallengeTTL  time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session registry.
type SessionConfig struct {
	// Retention is measured from the last activity of a session.
	Retention time.Duration
	// NotifyNewSignIn mails the owner after each completed login.
	NotifyNewSignIn bool
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls TOTP enrollment.
type TwoFactorConfig struct {
	Issuer string
	// QRSize is the edge length of enrollment QR codes. Zero skips rendering.
	QRSize int
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig controls asynchronous mail delivery.
type NotifyConfig struct {
	Enabled     bool
	BufferSize  int
	SendTimeout time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Storage: StorageConfig{
			RedisPrefix: keys.DefaultPrefix,
		},
		Identity: IdentityConfig{
			WebIDBase: identity.DefaultWebIDBase,
		},
		Lockout: LockoutConfig{
			Threshold:    attempts.DefaultThreshold,
			Retention:    attempts.DefaultRetention,
			NotifyOnLock: true,
		},
		Password: PasswordConfig{
			Memory:             pw.Memory,
			Time:               pw.Time,
			Parallelism:        pw.Parallelism,
			SaltLength:         pw.SaltLength,
			KeyLength:          pw.KeyLength,
			MaxPasswordBytes:   password.DefaultMaxPasswordBytes,
			MinLength:          8,
			RequireLower:       true,
			RequireUpper:       true,
			RequireNumber:      true,
			RequireSpecial:     true,
			AcceptLegacyBcrypt: true,
			UpgradeOnLogin:     true,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:       resettoken.DefaultTTL,
			RevokeSessions: true,
			ThrottleLimit:  5,
			ThrottleWindow: time.Hour,
		},
		Registration: RegistrationConfig{
			Enabled:        true,
			ThrottleLimit:  20,
			ThrottleWindow: time.Hour,
		},
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			ChallengeTTL:  jwt.DefaultChallengeTTL,
			SigningMethod: string(jwt.MethodEd25519),
		},
		Session: SessionConfig{
			Retention:       session.DefaultRetention,
			NotifyNewSignIn: true,
		},
		TwoFactor: TwoFactorConfig{
			Issuer: twofactor.DefaultIssuer,
			QRSize: twofactor.DefaultQRSize,
		},
		Notify: NotifyConfig{
			Enabled:     true,
			BufferSize:  64,
			SendTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Provider: DefaultProviderConfig(),
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Provider = cfg.Provider.clone()
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.Storage.RedisPrefix, " \t\r\n") {
		return errors.New("Storage RedisPrefix must not contain whitespace")
	}
	if base := strings.TrimSpace(c.Identity.WebIDBase); base != "" {
		u, err := url.Parse(base)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.New("Identity WebIDBase must be an absolute http(s) URL")
		}
	}

	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Window < 0 {
		return errors.New("Lockout Window must be >= 0")
	}
	if c.Lockout.Retention < 0 {
		return errors.New("Lockout Retention must be >= 0")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password MaxPasswordBytes must be >= 0")
	}
	if c.Password.MaxPasswordBytes > 0 && c.Password.MaxPasswordBytes < c.Password.MinLength {
		return errors.New("Password MaxPasswordBytes must be >= MinLength")
	}

	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenTTL > 24*time.Hour {
		return errors.New("PasswordReset TokenTTL must be <= 24h")
	}
	if c.PasswordReset.ThrottleLimit < 0 {
		return errors.New("PasswordReset ThrottleLimit must be >= 0")
	}
	if c.PasswordReset.ThrottleLimit > 0 && c.PasswordReset.ThrottleWindow <= 0 {
		return errors.New("PasswordReset ThrottleWindow must be > 0 when ThrottleLimit is set")
	}
	if link := strings.TrimSpace(c.PasswordReset.LinkBase); link != "" {
		u, err := url.Parse(link)
		if err != nil || !u.IsAbs() {
			return errors.New("PasswordReset LinkBase must be an absolute URL")
		}
	}

	if c.Registration.ThrottleLimit < 0 {
		return errors.New("Registration ThrottleLimit must be >= 0")
	}
	if c.Registration.ThrottleLimit > 0 && c.Registration.ThrottleWindow <= 0 {
		return errors.New("Registration ThrottleWindow must be > 0 when ThrottleLimit is set")
	}

	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.ChallengeTTL <= 0 || c.JWT.ChallengeTTL > time.Hour {
		return errors.New("JWT ChallengeTTL must be in (0, 1h]")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) > 0 && len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey when PrivateKey is set")
		}
		if len(c.JWT.PublicKey) > 0 && len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey when PublicKey is set")
		}
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be in [0, 2m]")
	}

	if c.Session.Retention <= 0 {
		return errors.New("Session Retention must be > 0")
	}

	if strings.TrimSpace(c.TwoFactor.Issuer) == "" {
		return errors.New("TwoFactor Issuer is required")
	}
	if strings.Contains(c.TwoFactor.Issuer, ":") {
		return errors.New("TwoFactor Issuer must not contain ':'")
	}
	if c.TwoFactor.QRSize < 0 {
		return errors.New("TwoFactor QRSize must be >= 0")
	}

	if c.Notify.Enabled {
		if c.Notify.BufferSize <= 0 {
			return errors.New("Notify BufferSize must be > 0 when notify is enabled")
		}
		if c.Notify.SendTimeout <= 0 {
			return errors.New("Notify SendTimeout must be > 0 when notify is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return c.Provider.Validate()
}
