// Package pg implements the stores on PostgreSQL through database/sql and the pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"consorcia.org/internal/auth"
	"consorcia.org/internal/authz"
	"consorcia.org/internal/property"
)

const (
	pgErrNotNullViolation    = "23502"
	pgErrForeignKeyViolation = "23503"
	pgErrUniqueViolation     = "23505"
	pgErrCheckViolation      = "23514"
)

var (
	_ authz.Store        = (*Store)(nil)
	_ authz.MatrixSource = (*Store)(nil)
	_ property.Store     = (*Store)(nil)
	_ auth.UserDirectory = (*Store)(nil)
)

var errNoDB = errors.New("database connection unavailable")

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPool is used when Open gets a zero PoolConfig.
var DefaultPool = PoolConfig{
	MaxOpenConns:    50,
	MaxIdleConns:    25,
	ConnMaxLifetime: 15 * time.Minute,
	ConnMaxIdleTime: 5 * time.Minute,
}

type Store struct {
	db *sql.DB
}

// Open connects through the pgx stdlib driver.
func Open(dsn string, pool PoolConfig) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool == (PoolConfig{}) {
		pool = DefaultPool
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoDB
	}
	return s.db.PingContext(ctx)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// writeErr maps constraint failures of inserts and updates: a dangling
// reference is a missing parent, a duplicate is a conflict.
func writeErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrNotFound
	}
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrForeignKeyViolation:
		return auth.ErrNotFound
	case pgErrUniqueViolation:
		return auth.ErrConflict
	case pgErrNotNullViolation, pgErrCheckViolation:
		return auth.ErrInvalidInput
	}
	return err
}

// deleteErr maps constraint failures of deletes: a row still referenced is a conflict.
func deleteErr(err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrConflict
	}
	return err
}

func expectAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// int64s keeps empty id lists as empty arrays rather than NULL.
func int64s(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
