package goIdentity

import (
	"context"
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
	"github.com/MrEthical07/goIdentity/twofactor"
	"go.uber.org/zap"
)

// Engine is the account-security state machine. It is safe for
// concurrent use once built.
type Engine struct {
	config Config
	logger *zap.Logger
	clock  func() time.Time

	users     identity.Store
	attempts  attempts.Tracker
	resets    resettoken.Vault
	sessions  session.Registry
	consents  consent.Ledger
	twoFactor *twofactor.Manager
	jwt       *jwt.Manager
	limiter   rate.Limiter

	hasher    password.Scheme
	dummyHash string

	mail    *notify.Dispatcher
	audit   *audit.Dispatcher
	metrics *Metrics
}

// Close drains the mail and audit queues. It does not close backends
// handed to the Builder.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mail != nil {
		e.mail.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped reports audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MailStats reports delivery counters of the mail dispatcher.
func (e *Engine) MailStats() notify.Stats {
	if e == nil || e.mail == nil {
		return notify.Stats{}
	}
	return e.mail.Stats()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.attempts == nil || e.resets == nil ||
		e.sessions == nil || e.consents == nil || e.twoFactor == nil ||
		e.hasher == nil || e.jwt == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// send queues msg for asynchronous delivery. Delivery problems never
// reach the caller.
func (e *Engine) send(msg notify.Message) {
	e.mail.Enqueue(msg)
}

// userByID loads an account or returns ErrAccountNotFound.
func (e *Engine) userByID(ctx context.Context, userID string) (identity.User, error) {
	if userID == "" {
		return identity.User{}, ErrAccountNotFound
	}
	u, ok, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return identity.User{}, storeErr(err)
	}
	if !ok {
		return identity.User{}, ErrAccountNotFound
	}
	return u, nil
}

// storeErr maps component errors onto engine sentinels. Backend failures
// keep their original message behind ErrUnavailable.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, identity.ErrAlreadyExists):
		return ErrAccountExists
	case errors.Is(err, identity.ErrInvalid):
		return ErrInvalidEmail
	case errors.Is(err, consent.ErrInvalid):
		return ErrConsentInvalid
	case errors.Is(err, session.ErrInvalid):
		return ErrAccountNotFound
	case errors.Is(err, identity.ErrUnavailable),
		errors.Is(err, attempts.ErrUnavailable),
		errors.Is(err, resettoken.ErrUnavailable),
		errors.Is(err, session.ErrUnavailable),
		errors.Is(err, consent.ErrUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return err
	}
}
