package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goIdentity/identity"
	"github.com/MrEthical07/goIdentity/sqlstore/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Dialect selects SQL placeholder style and the goose dialect.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) goose() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite3", nil
	case DialectPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("sqlstore: unknown dialect %q", d)
	}
}

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

// Migrate applies the embedded migrations. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	name, err := dialect.goose()
	if err != nil {
		return err
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(name); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Option configures a DB.
type Option func(*options)

type options struct {
	now       func() time.Time
	webIDBase string
	resetter  identity.AttemptResetter
}

// WithClock replaces the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithWebIDBase sets the base URL for derived WebIDs.
func WithWebIDBase(base string) Option {
	return func(o *options) {
		if strings.TrimSpace(base) != "" {
			o.webIDBase = base
		}
	}
}

// WithAttemptResetter registers the tracker cleared on unlock.
func WithAttemptResetter(r identity.AttemptResetter) Option {
	return func(o *options) {
		o.resetter = r
	}
}

// DB owns a connection pool and hands out the repositories built on it.
type DB struct {
	sqlDB    *sql.DB
	dialect  Dialect
	users    *IdentityStore
	consents *ConsentLedger
}

// New wraps an open pool. It does not run migrations.
func New(sqlDB *sql.DB, dialect Dialect, opts ...Option) (*DB, error) {
	if sqlDB == nil {
		return nil, errors.New("sqlstore: nil *sql.DB")
	}
	if _, err := dialect.goose(); err != nil {
		return nil, err
	}
	o := options{now: time.Now, webIDBase: identity.DefaultWebIDBase}
	for _, opt := range opts {
		opt(&o)
	}
	q := querier{db: sqlDB, dialect: dialect}
	return &DB{
		sqlDB:    sqlDB,
		dialect:  dialect,
		users:    &IdentityStore{q: q, opts: o},
		consents: &ConsentLedger{q: q, now: o.now},
	}, nil
}

// OpenSQLite opens (or creates) the SQLite database at path and migrates it.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlstore: sqlite path is required")
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection turns lock contention
	// into queueing inside database/sql.
	sqlDB.SetMaxOpenConns(1)
	return open(ctx, sqlDB, DialectSQLite, opts)
}

// OpenPostgres connects through pgx and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return open(ctx, sqlDB, DialectPostgres, opts)
}

func open(ctx context.Context, sqlDB *sql.DB, dialect Dialect, opts []Option) (*DB, error) {
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}
	if err := Migrate(ctx, sqlDB, dialect); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return New(sqlDB, dialect, opts...)
}

// Conn returns the underlying pool.
func (d *DB) Conn() *sql.DB { return d.sqlDB }

// Dialect reports the SQL dialect in use.
func (d *DB) Dialect() Dialect { return d.dialect }

// Identities returns the credential store.
func (d *DB) Identities() *IdentityStore { return d.users }

// Consents returns the consent ledger.
func (d *DB) Consents() *ConsentLedger { return d.consents }

// Close closes the pool.
func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// querier rewrites ? placeholders for Postgres.
type querier struct {
	db      *sql.DB
	dialect Dialect
}

func (q querier) rebind(query string) string {
	return rebind(q.dialect, query)
}

func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
