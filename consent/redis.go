package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/internal/keys"
	"github.com/redis/go-redis/v9"
)

// RedisLedger stores one hash per user; each field is a client id holding
// the JSON encoded grant. HSET replaces a field in one step, so a re-grant
// never leaves a union of old and new scopes.
type RedisLedger struct {
	redis  redis.UniversalClient
	layout keys.Layout
	opts   ledgerOptions
}

// NewRedisLedger returns a ledger writing under prefix.
func NewRedisLedger(client redis.UniversalClient, prefix string, opts ...Option) *RedisLedger {
	return &RedisLedger{
		redis:  client,
		layout: keys.New(prefix),
		opts:   buildOptions(opts),
	}
}

func (l *RedisLedger) Grant(ctx context.Context, userID, clientID string, scopes []string) (Grant, error) {
	g, err := NewGrant(userID, clientID, scopes, l.opts.now())
	if err != nil {
		return Grant{}, err
	}
	blob, err := json.Marshal(g)
	if err != nil {
		return Grant{}, err
	}
	if err := l.redis.HSet(ctx, l.layout.Consents(userID), clientID, blob).Err(); err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return g, nil
}

func (l *RedisLedger) HasConsent(ctx context.Context, userID, clientID string, required ...string) (bool, error) {
	g, ok, err := l.get(ctx, userID, clientID)
	if err != nil || !ok {
		return false, err
	}
	return g.Covers(required...), nil
}

func (l *RedisLedger) get(ctx context.Context, userID, clientID string) (Grant, bool, error) {
	blob, err := l.redis.HGet(ctx, l.layout.Consents(userID), clientID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Grant{}, false, nil
		}
		return Grant{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var g Grant
	if err := json.Unmarshal(blob, &g); err != nil {
		return Grant{}, false, fmt.Errorf("consent: corrupt grant for client %q: %w", clientID, err)
	}
	return g, true, nil
}

func (l *RedisLedger) List(ctx context.Context, userID string) ([]Grant, error) {
	fields, err := l.redis.HGetAll(ctx, l.layout.Consents(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	out := make([]Grant, 0, len(fields))
	for clientID, blob := range fields {
		var g Grant
		if err := json.Unmarshal([]byte(blob), &g); err != nil {
			return nil, fmt.Errorf("consent: corrupt grant for client %q: %w", clientID, err)
		}
		out = append(out, g)
	}
	SortByClient(out)
	return out, nil
}

func (l *RedisLedger) Revoke(ctx context.Context, userID, clientID string) (bool, error) {
	n, err := l.redis.HDel(ctx, l.layout.Consents(userID), clientID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}
