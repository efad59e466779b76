package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goIdentity/internal/keys"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const createUserScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "email", ARGV[2],
  "password_hash", ARGV[3],
  "webid", ARGV[4],
  "created_at", ARGV[5],
  "locked", "0",
  "tfa_enabled", "0")
redis.call("SET", KEYS[2], ARGV[2])
redis.call("SETNX", KEYS[3], ARGV[2])
return 1
`

const updateUserScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV))
return 1
`

const unlockUserScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "locked", "0")
redis.call("DEL", KEYS[2])
return 1
`

const updateWebIDScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
local email = ARGV[1]
local old = redis.call("HGET", KEYS[1], "webid")
if old and old ~= ARGV[2] then
  local oldKey = ARGV[3] .. old
  if redis.call("GET", oldKey) == email then
    redis.call("DEL", oldKey)
  end
end
redis.call("HSET", KEYS[1], "webid", ARGV[2])
redis.call("SETNX", KEYS[2], email)
return 1
`

var (
	createUserLua  = redis.NewScript(createUserScript)
	updateUserLua  = redis.NewScript(updateUserScript)
	unlockUserLua  = redis.NewScript(unlockUserScript)
	updateWebIDLua = redis.NewScript(updateWebIDScript)
)

// RedisStore keeps each user in a Redis hash keyed by email, with string
// index keys for id and WebID lookups.
type RedisStore struct {
	redis  redis.UniversalClient
	layout keys.Layout
	opts   options
}

// NewRedisStore returns a store writing under prefix (keys.DefaultPrefix when empty).
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...Option) *RedisStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore{
		redis:  client,
		layout: keys.New(prefix),
		opts:   o,
	}
}

func (s *RedisStore) Create(ctx context.Context, email, passwordHash, webID string) (User, error) {
	if !validEmail(email) {
		return User{}, ErrInvalid
	}
	if webID == "" {
		webID = DeriveWebID(s.opts.webIDBase, email)
	}

	u := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		WebID:        webID,
		CreatedAt:    s.opts.now(),
	}

	created, err := createUserLua.Run(ctx, s.redis,
		[]string{s.layout.User(email), s.layout.UserByID(u.ID), s.layout.UserByWebID(webID)},
		u.ID, email, passwordHash, webID, formatMillis(u.CreatedAt),
	).Int()
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if created == 0 {
		return User{}, ErrAlreadyExists
	}
	return u, nil
}

func (s *RedisStore) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	fields, err := s.redis.HGetAll(ctx, s.layout.User(email)).Result()
	if err != nil {
		return User{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return User{}, false, nil
	}
	return decodeUser(fields), true, nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (User, bool, error) {
	return s.findByIndex(ctx, s.layout.UserByID(id))
}

func (s *RedisStore) FindByWebID(ctx context.Context, webID string) (User, bool, error) {
	return s.findByIndex(ctx, s.layout.UserByWebID(webID))
}

func (s *RedisStore) findByIndex(ctx context.Context, indexKey string) (User, bool, error) {
	email, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return User{}, false, nil
		}
		return User{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.FindByEmail(ctx, email)
}

func (s *RedisStore) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	return s.update(ctx, email,
		keys.FieldPasswordHash, passwordHash,
		keys.FieldPasswordChangedAt, formatMillis(s.opts.now()),
	)
}

// SetLocked toggles the lock flag. Unlocking deletes the attempt hash in
// the same script.
func (s *RedisStore) SetLocked(ctx context.Context, email string, locked bool) error {
	if locked {
		return s.update(ctx, email, keys.FieldLocked, "1")
	}

	ok, err := unlockUserLua.Run(ctx, s.redis,
		[]string{s.layout.User(email), s.layout.Attempts(email)},
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	if s.opts.resetter != nil {
		return s.opts.resetter.Reset(ctx, email)
	}
	return nil
}

func (s *RedisStore) IsLocked(ctx context.Context, email string) (bool, error) {
	v, err := s.redis.HGet(ctx, s.layout.User(email), keys.FieldLocked).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v == "1", nil
}

func (s *RedisStore) RecordSuccessfulLogin(ctx context.Context, email string) error {
	return s.update(ctx, email, keys.FieldLastLoginAt, formatMillis(s.opts.now()))
}

func (s *RedisStore) SetTwoFactor(ctx context.Context, email string, enabled bool, secret string) error {
	if !enabled {
		secret = ""
	}
	return s.update(ctx, email,
		keys.FieldTwoFactorEnabled, formatBool(enabled),
		keys.FieldTwoFactorSecret, secret,
	)
}

func (s *RedisStore) UpdateProfile(ctx context.Context, email string, update ProfileUpdate) error {
	if update.Name != nil {
		if err := s.update(ctx, email, keys.FieldName, *update.Name); err != nil {
			return err
		}
	}
	if update.WebID == nil {
		if update.Name == nil {
			return s.requireExists(ctx, email)
		}
		return nil
	}

	ok, err := updateWebIDLua.Run(ctx, s.redis,
		[]string{s.layout.User(email), s.layout.UserByWebID(*update.WebID)},
		email, *update.WebID, s.layout.UserByWebIDPrefix(),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) requireExists(ctx context.Context, email string) error {
	n, err := s.redis.Exists(ctx, s.layout.User(email)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) update(ctx context.Context, email string, fieldValues ...string) error {
	args := make([]interface{}, len(fieldValues))
	for i, v := range fieldValues {
		args[i] = v
	}
	ok, err := updateUserLua.Run(ctx, s.redis, []string{s.layout.User(email)}, args...).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeUser(f map[string]string) User {
	return User{
		ID:                f[keys.FieldID],
		Email:             f[keys.FieldEmail],
		Name:              f[keys.FieldName],
		PasswordHash:      f[keys.FieldPasswordHash],
		WebID:             f[keys.FieldWebID],
		TwoFactorEnabled:  f[keys.FieldTwoFactorEnabled] == "1",
		TwoFactorSecret:   f[keys.FieldTwoFactorSecret],
		Locked:            f[keys.FieldLocked] == "1",
		CreatedAt:         parseMillis(f[keys.FieldCreatedAt]),
		LastLoginAt:       parseMillis(f[keys.FieldLastLoginAt]),
		PasswordChangedAt: parseMillis(f[keys.FieldPasswordChangedAt]),
	}
}

func formatMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
