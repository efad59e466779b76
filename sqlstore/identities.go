package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrEthical07/goIdentity/identity"
	"github.com/google/uuid"
)

const userColumns = `id, email, name, password_hash, webid, tfa_enabled, tfa_secret,
	locked, created_at, last_login_at, password_changed_at`

// IdentityStore implements identity.Store on the users table.
type IdentityStore struct {
	q    querier
	opts options

	// lockMu orders LockIfReached against unlock so the attempt tracker
	// and the locked column move together.
	lockMu sync.Mutex
}

// With returns a store over the same pool with opts applied on top of the
// current options. The copy has its own unlock hook.
func (s *IdentityStore) With(opts ...Option) *IdentityStore {
	o := s.opts
	o.resetter = nil
	for _, opt := range opts {
		opt(&o)
	}
	return &IdentityStore{q: s.q, opts: o}
}

// OnUnlock registers the attempt tracker cleared when an account is unlocked.
func (s *IdentityStore) OnUnlock(r identity.AttemptResetter) {
	s.lockMu.Lock()
	s.opts.resetter = r
	s.lockMu.Unlock()
}

func (s *IdentityStore) Create(ctx context.Context, email, passwordHash, webID string) (identity.User, error) {
	if strings.TrimSpace(email) == "" || email != strings.TrimSpace(email) {
		return identity.User{}, identity.ErrInvalid
	}
	if webID == "" {
		webID = identity.DeriveWebID(s.opts.webIDBase, email)
	}
	u := identity.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		WebID:        webID,
		CreatedAt:    fromMillis(toMillis(s.opts.now())),
	}

	_, err := s.q.db.ExecContext(ctx, s.q.rebind(
		`INSERT INTO users (id, email, password_hash, webid, created_at) VALUES (?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, u.WebID, toMillis(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.User{}, identity.ErrAlreadyExists
		}
		return identity.User{}, fmt.Errorf("%w: insert user: %v", identity.ErrUnavailable, err)
	}
	return u, nil
}

func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (identity.User, bool, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (identity.User, bool, error) {
	return s.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByWebID returns the earliest registered identity holding webID.
func (s *IdentityStore) FindByWebID(ctx context.Context, webID string) (identity.User, bool, error) {
	return s.findOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE webid = ? ORDER BY created_at, id LIMIT 1`, webID)
}

func (s *IdentityStore) findOne(ctx context.Context, query string, arg string) (identity.User, bool, error) {
	row := s.q.db.QueryRowContext(ctx, s.q.rebind(query), arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, false, nil
		}
		return identity.User{}, false, fmt.Errorf("%w: select user: %v", identity.ErrUnavailable, err)
	}
	return u, true, nil
}

func scanUser(row *sql.Row) (identity.User, error) {
	var (
		u                                   identity.User
		createdAt, lastLogin, passwordChange int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.WebID,
		&u.TwoFactorEnabled, &u.TwoFactorSecret, &u.Locked,
		&createdAt, &lastLogin, &passwordChange)
	if err != nil {
		return identity.User{}, err
	}
	u.CreatedAt = fromMillis(createdAt)
	u.LastLoginAt = fromMillis(lastLogin)
	u.PasswordChangedAt = fromMillis(passwordChange)
	return u, nil
}

func (s *IdentityStore) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	return s.update(ctx, email,
		`UPDATE users SET password_hash = ?, password_changed_at = ? WHERE email = ?`,
		passwordHash, toMillis(s.opts.now()), email)
}

// SetLocked writes the lock flag. Unlocking also resets the attempt record.
func (s *IdentityStore) SetLocked(ctx context.Context, email string, locked bool) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if err := s.update(ctx, email, `UPDATE users SET locked = ? WHERE email = ?`, locked, email); err != nil {
		return err
	}
	if !locked && s.opts.resetter != nil {
		return s.opts.resetter.Reset(ctx, email)
	}
	return nil
}

func (s *IdentityStore) IsLocked(ctx context.Context, email string) (bool, error) {
	var locked bool
	err := s.q.db.QueryRowContext(ctx, s.q.rebind(`SELECT locked FROM users WHERE email = ?`), email).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: select lock: %v", identity.ErrUnavailable, err)
	}
	return locked, nil
}

// LockIfReached runs reached inside a transaction that holds the user row
// and sets locked when it reports true. lockedNow is set only when this
// call changed the column. Unknown emails are never locked.
func (s *IdentityStore) LockIfReached(ctx context.Context, email string, reached func() bool) (locked, lockedNow bool, err error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	tx, err := s.q.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("%w: begin: %v", identity.ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT locked FROM users WHERE email = ?`
	if s.q.dialect == DialectPostgres {
		query += ` FOR UPDATE`
	}
	err = tx.QueryRowContext(ctx, s.q.rebind(query), email).Scan(&locked)
	hit := reached()
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("%w: select lock: %v", identity.ErrUnavailable, err)
	}
	if hit && !locked {
		if _, err := tx.ExecContext(ctx, s.q.rebind(`UPDATE users SET locked = ? WHERE email = ?`), true, email); err != nil {
			return false, false, fmt.Errorf("%w: lock user: %v", identity.ErrUnavailable, err)
		}
		locked, lockedNow = true, true
	}
	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("%w: commit: %v", identity.ErrUnavailable, err)
	}
	return locked, lockedNow, nil
}

func (s *IdentityStore) RecordSuccessfulLogin(ctx context.Context, email string) error {
	return s.update(ctx, email, `UPDATE users SET last_login_at = ? WHERE email = ?`,
		toMillis(s.opts.now()), email)
}

func (s *IdentityStore) SetTwoFactor(ctx context.Context, email string, enabled bool, secret string) error {
	if !enabled {
		secret = ""
	}
	return s.update(ctx, email, `UPDATE users SET tfa_enabled = ?, tfa_secret = ? WHERE email = ?`,
		enabled, secret, email)
}

func (s *IdentityStore) UpdateProfile(ctx context.Context, email string, update identity.ProfileUpdate) error {
	var (
		sets []string
		args []any
	)
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.WebID != nil {
		sets = append(sets, "webid = ?")
		args = append(args, *update.WebID)
	}
	if len(sets) == 0 {
		if _, ok, err := s.FindByEmail(ctx, email); err != nil {
			return err
		} else if !ok {
			return identity.ErrNotFound
		}
		return nil
	}
	args = append(args, email)
	return s.update(ctx, email, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE email = ?`, args...)
}

func (s *IdentityStore) update(ctx context.Context, email, query string, args ...any) error {
	res, err := s.q.db.ExecContext(ctx, s.q.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%w: update user: %v", identity.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", identity.ErrUnavailable, err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

var _ identity.Store = (*IdentityStore)(nil)
