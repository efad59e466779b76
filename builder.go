package goIdentity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/attempts"
	"github.com/MrEthical07/goIdentity/consent"
	"github.com/MrEthical07/goIdentity/identity"
	"github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/rate"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/notify"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/MrEthical07/goIdentity/resettoken"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/sqlstore"
	"github.com/MrEthical07/goIdentity/twofactor"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dummyPassword feeds the hash that unknown-email logins verify against.
const dummyPassword = "goidentity-timing-equalisation"

// Builder assembles an Engine. A Builder is single-use.
//
// Without WithRedis or WithSQL every component is kept in process memory.
// WithRedis moves identities, attempts, reset tokens, sessions, consents
// and throttles to Redis. WithSQL moves identities and consents to a SQL
// database; attempts then live next to them in memory and the remaining
// ephemeral state stays in Redis when a client is also given.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	sql    *sqlstore.DB

	logger    *zap.Logger
	mailer    notify.Mailer
	auditSink AuditSink
	hasher    password.Scheme
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis selects the Redis backends.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSQL stores identities and consents in db. The caller keeps
// ownership of db and closes it after the Engine.
func (b *Builder) WithSQL(db *sqlstore.DB) *Builder {
	b.sql = db
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMailer sets the mail transport. The default logs messages instead
// of sending them.
func (b *Builder) WithMailer(m notify.Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPasswordHasher replaces the Argon2id chain built from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Scheme) *Builder {
	b.hasher = h
	return b
}

// WithClock replaces time.Now in every component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the components.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config: cfg,
		logger: logger,
		clock:  now,
	}

	// -------- PASSWORD HASHING --------
	hasher := b.hasher
	if hasher == nil {
		h, err := newPasswordChain(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	engine.hasher = hasher
	engine.dummyHash = dummy

	// -------- STATE COMPONENTS --------
	if err := b.wireStores(engine, cfg, now); err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	jwtCfg := jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		ChallengeTTL:  cfg.JWT.ChallengeTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		RequireIAT:    true,
		Now:           now,
	}
	if jwtCfg.SigningMethod == jwt.MethodEd25519 && len(jwtCfg.PrivateKey) == 0 {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		jwtCfg.PrivateKey, jwtCfg.PublicKey = priv, pub
		logger.Warn("no JWT signing key configured, using an ephemeral ed25519 key")
	}
	jm, err := jwt.NewManager(jwtCfg)
	if err != nil {
		return nil, err
	}
	engine.jwt = jm

	engine.twoFactor = twofactor.New(
		twofactor.WithIssuer(cfg.TwoFactor.Issuer),
		twofactor.WithClock(now),
	)

	// -------- SIDE CHANNELS --------
	if cfg.Notify.Enabled {
		mailer := b.mailer
		if mailer == nil {
			mailer = notify.LogMailer{Logger: logger}
		}
		engine.mail = notify.NewDispatcher(notify.DispatcherConfig{
			BufferSize:  cfg.Notify.BufferSize,
			SendTimeout: cfg.Notify.SendTimeout,
		}, mailer, logger.Named("notify"))
	}

	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = audit.NewZapSink(logger.Named("audit"))
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink, logger.Named("audit"))
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true
	return engine, nil
}

func (b *Builder) wireStores(engine *Engine, cfg Config, now func() time.Time) error {
	prefix := cfg.Storage.RedisPrefix
	lockout := attempts.Config{
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
		Retention: cfg.Lockout.Retention,
	}

	// Identities and the attempt tracker are chosen together: the tracker
	// must lock accounts in the store that holds them.
	switch {
	case b.sql != nil:
		store := b.sql.Identities().With(sqlstore.WithWebIDBase(cfg.Identity.WebIDBase))
		tracker, err := attempts.NewMemoryTracker(store, lockout, attempts.WithClock(now))
		if err != nil {
			return err
		}
		store.OnUnlock(tracker)
		engine.users, engine.attempts = store, tracker
	case b.redis != nil:
		engine.users = identity.NewRedisStore(b.redis, prefix,
			identity.WithClock(now),
			identity.WithWebIDBase(cfg.Identity.WebIDBase),
		)
		tracker, err := attempts.NewRedisTracker(b.redis, prefix, lockout, attempts.WithClock(now))
		if err != nil {
			return err
		}
		engine.attempts = tracker
	default:
		store := identity.NewMemoryStore(
			identity.WithClock(now),
			identity.WithWebIDBase(cfg.Identity.WebIDBase),
		)
		tracker, err := attempts.NewMemoryTracker(store, lockout, attempts.WithClock(now))
		if err != nil {
			return err
		}
		store.OnUnlock(tracker)
		engine.users, engine.attempts = store, tracker
	}

	switch {
	case b.sql != nil:
		engine.consents = b.sql.Consents()
	case b.redis != nil:
		engine.consents = consent.NewRedisLedger(b.redis, prefix, consent.WithClock(now))
	default:
		engine.consents = consent.NewMemoryLedger(consent.WithClock(now))
	}

	if b.redis != nil {
		engine.resets = resettoken.NewRedisVault(b.redis, prefix, resettoken.WithClock(now))
		engine.sessions = session.NewRedisRegistry(b.redis, prefix,
			session.WithClock(now),
			session.WithRetention(cfg.Session.Retention),
		)
		engine.limiter = rate.NewRedis(b.redis, prefix)
		return nil
	}

	engine.resets = resettoken.NewMemoryVault(resettoken.WithClock(now))
	engine.sessions = session.NewMemoryRegistry(
		session.WithClock(now),
		session.WithRetention(cfg.Session.Retention),
	)
	engine.limiter = rate.NewMemory(now)
	return nil
}

func newPasswordChain(cfg PasswordConfig) (*password.Chain, error) {
	primary, err := password.NewArgon2(password.Config{
		Memory:           cfg.Memory,
		Time:             cfg.Time,
		Parallelism:      cfg.Parallelism,
		SaltLength:       cfg.SaltLength,
		KeyLength:        cfg.KeyLength,
		MaxPasswordBytes: cfg.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	if !cfg.AcceptLegacyBcrypt {
		return password.NewChain(primary)
	}
	return password.NewChain(primary, password.NewBcrypt(0))
}
