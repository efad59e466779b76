package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/attempts"
	"github.com/MrEthical07/goIdentity/consent"
	"github.com/MrEthical07/goIdentity/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

func openTempDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "identity.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	assert.Error(t, err)
}

func TestMigrateCreatesTablesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTempDB(t)

	for _, table := range []string{"users", "consent_grants", "goose_db_version"} {
		assert.True(t, tableExists(t, db.Conn(), table), "missing table %s", table)
	}
	require.NoError(t, Migrate(ctx, db.Conn(), DialectSQLite))
	assert.Equal(t, DialectSQLite, db.Dialect())
}

func TestNewRejectsUnknownDialect(t *testing.T) {
	db := openTempDB(t)
	_, err := New(db.Conn(), Dialect("oracle"))
	assert.Error(t, err)
	_, err = New(nil, DialectSQLite)
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := `UPDATE users SET a = ?, b = ? WHERE email = ?`
	assert.Equal(t, q, rebind(DialectSQLite, q))
	assert.Equal(t, `UPDATE users SET a = $1, b = $2 WHERE email = $3`, rebind(DialectPostgres, q))
}

func TestIdentityStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTempDB(t, WithWebIDBase("https://pod.example")).Identities()

	u, err := store.Create(ctx, "alice@example.com", "hash-1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "https://pod.example/profile/alice#me", u.WebID)
	assert.True(t, u.CreatedAt.Equal(testNow))

	_, err = store.Create(ctx, "alice@example.com", "hash-2", "")
	assert.ErrorIs(t, err, identity.ErrAlreadyExists)

	_, err = store.Create(ctx, "Alice@example.com", "hash-3", "")
	assert.NoError(t, err, "emails are case-sensitive keys")

	_, err = store.Create(ctx, "", "hash", "")
	assert.ErrorIs(t, err, identity.ErrInvalid)

	byID, ok, err := store.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.Email, byID.Email)

	byWebID, ok, err := store.FindByWebID(ctx, u.WebID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.ID, byWebID.ID)

	_, ok, err = store.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.UpdatePasswordHash(ctx, u.Email, "hash-new"))
	require.NoError(t, store.RecordSuccessfulLogin(ctx, u.Email))
	got, _, _ := store.FindByEmail(ctx, u.Email)
	assert.Equal(t, "hash-new", got.PasswordHash)
	assert.True(t, got.PasswordChangedAt.Equal(testNow))
	assert.True(t, got.LastLoginAt.Equal(testNow))

	assert.ErrorIs(t, store.UpdatePasswordHash(ctx, "nobody@example.com", "x"), identity.ErrNotFound)
	assert.ErrorIs(t, store.SetLocked(ctx, "nobody@example.com", true), identity.ErrNotFound)
}

func TestIdentityStoreTwoFactorAndProfile(t *testing.T) {
	ctx := context.Background()
	store := openTempDB(t).Identities()
	u, err := store.Create(ctx, "bob@example.com", "h", "https://bob.example/card#me")
	require.NoError(t, err)

	require.NoError(t, store.SetTwoFactor(ctx, u.Email, true, "SECRET"))
	got, _, _ := store.FindByEmail(ctx, u.Email)
	assert.True(t, got.TwoFactorEnabled)
	assert.Equal(t, "SECRET", got.TwoFactorSecret)

	require.NoError(t, store.SetTwoFactor(ctx, u.Email, false, "ignored"))
	got, _, _ = store.FindByEmail(ctx, u.Email)
	assert.False(t, got.TwoFactorEnabled)
	assert.Empty(t, got.TwoFactorSecret)

	name := "Bob"
	webID := "https://bob.example/new#me"
	require.NoError(t, store.UpdateProfile(ctx, u.Email, identity.ProfileUpdate{Name: &name, WebID: &webID}))
	got, ok, _ := store.FindByWebID(ctx, webID)
	require.True(t, ok)
	assert.Equal(t, "Bob", got.Name)
	_, ok, _ = store.FindByWebID(ctx, "https://bob.example/card#me")
	assert.False(t, ok)

	assert.NoError(t, store.UpdateProfile(ctx, u.Email, identity.ProfileUpdate{}))
	assert.ErrorIs(t, store.UpdateProfile(ctx, "nobody@example.com", identity.ProfileUpdate{}), identity.ErrNotFound)
}

func TestIdentityStoreWithOverridesOptions(t *testing.T) {
	ctx := context.Background()
	base := openTempDB(t, WithWebIDBase("https://pod.example")).Identities()
	store := base.With(WithWebIDBase("https://id.example"))

	u, err := store.Create(ctx, "erin@example.com", "h", "")
	require.NoError(t, err)
	assert.Equal(t, "https://id.example/profile/erin#me", u.WebID)

	got, ok, err := base.FindByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.WebID, got.WebID, "copies share the pool")

	u, err = base.Create(ctx, "frank@example.com", "h", "")
	require.NoError(t, err)
	assert.Equal(t, "https://pod.example/profile/frank#me", u.WebID)
}

func TestIdentityStoreWithAttemptTracker(t *testing.T) {
	ctx := context.Background()
	store := openTempDB(t).Identities()
	_, err := store.Create(ctx, "carol@example.com", "h", "")
	require.NoError(t, err)

	tracker, err := attempts.NewMemoryTracker(store, attempts.Config{Threshold: 3})
	require.NoError(t, err)
	store.OnUnlock(tracker)

	var last attempts.Outcome
	for i := 0; i < 3; i++ {
		last, err = tracker.RecordFailure(ctx, "carol@example.com")
		require.NoError(t, err)
	}
	assert.True(t, last.Locked)
	assert.True(t, last.LockedNow)
	locked, err := store.IsLocked(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.True(t, locked)

	again, err := tracker.RecordFailure(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.True(t, again.Locked)
	assert.False(t, again.LockedNow)

	require.NoError(t, store.SetLocked(ctx, "carol@example.com", false))
	out, err := tracker.RecordFailure(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.False(t, out.Locked)

	out, err = tracker.RecordFailure(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.False(t, out.Locked)
}

func TestIdentityStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store := openTempDB(t).Identities()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Create(ctx, "race@example.com", "h", ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestConsentLedger(t *testing.T) {
	ctx := context.Background()
	ledger := openTempDB(t).Consents()

	g, err := ledger.Grant(ctx, "u1", "app", []string{"profile", "openid", "openid"})
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "profile"}, g.Scopes)

	ok, err := ledger.HasConsent(ctx, "u1", "app", "openid")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = ledger.HasConsent(ctx, "u1", "app", "openid", "email")
	assert.False(t, ok)

	_, err = ledger.Grant(ctx, "u1", "app", []string{"openid", "email"})
	require.NoError(t, err)
	ok, _ = ledger.HasConsent(ctx, "u1", "app", "profile")
	assert.False(t, ok, "re-grant replaces the scope set")

	_, err = ledger.Grant(ctx, "u1", "Zed", nil)
	require.NoError(t, err)
	list, err := ledger.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Zed", list[0].ClientID)
	assert.Equal(t, "app", list[1].ClientID)
	assert.Empty(t, list[0].Scopes)
	assert.True(t, list[1].GrantedAt.Equal(testNow))

	existed, err := ledger.Revoke(ctx, "u1", "app")
	require.NoError(t, err)
	assert.True(t, existed)
	existed, _ = ledger.Revoke(ctx, "u1", "app")
	assert.False(t, existed)

	_, err = ledger.Grant(ctx, "", "app", nil)
	assert.ErrorIs(t, err, consent.ErrInvalid)
}
