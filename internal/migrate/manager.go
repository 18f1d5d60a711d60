// Package migrate applies ordered SQL migrations and idempotent seed files.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"consorcia.org/internal/obs"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"
)

// ErrNothingApplied is returned by Down when no migration has run.
var ErrNothingApplied = errors.New("no migrations applied")

// Manager executes SQL migrations and seed files read from a file system.
type Manager struct {
	db              *sql.DB
	files           fs.FS
	migrationsDir   string
	seedsDir        string
	migrationsTable string
	seedsTable      string
	now             func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeedsTable overrides the default seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// WithClock overrides the applied_at timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager. Directories are slash-separated paths inside files.
func NewManager(db *sql.DB, files fs.FS, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		files:           files,
		migrationsDir:   migrationsDir,
		seedsDir:        seedsDir,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations and returns their names.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	return m.applyPending(ctx, m.migrationsTable, m.migrationsDir, ".up.sql", "migration")
}

// Seed applies seed files that have not run yet.
func (m *Manager) Seed(ctx context.Context) ([]string, error) {
	return m.applyPending(ctx, m.seedsTable, m.seedsDir, ".sql", "seed")
}

func (m *Manager) applyPending(ctx context.Context, table, dir, suffix, kind string) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	executed, err := m.listExecuted(ctx, table)
	if err != nil {
		return nil, err
	}
	files, err := m.collectSQL(dir, suffix)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, f := range files {
		if executed[f.Base] {
			continue
		}
		if err := m.exec(ctx, f.Path); err != nil {
			return applied, fmt.Errorf("apply %s %s: %w", kind, f.Base, err)
		}
		if err := m.insertRecord(ctx, table, f.Base); err != nil {
			return applied, err
		}
		obs.Logger().WithField("file", f.Base).Infof("applied %s", kind)
		applied = append(applied, f.Base)
	}
	return applied, nil
}

// Down rolls back the most recent applied migration and returns its name.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return "", err
	}
	executed, err := m.history(ctx, m.migrationsTable)
	if err != nil {
		return "", err
	}
	if len(executed) == 0 {
		return "", ErrNothingApplied
	}
	last := executed[len(executed)-1]
	downPath := path.Join(m.migrationsDir, strings.TrimSuffix(last, ".up.sql")+".down.sql")
	if _, err := fs.Stat(m.files, downPath); err != nil {
		return "", fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.exec(ctx, downPath); err != nil {
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable), last); err != nil {
		return "", err
	}
	obs.Logger().WithField("file", last).Info("rolled back migration")
	return last, nil
}

// Status returns applied migrations in order.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	return m.history(ctx, m.migrationsTable)
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{m.migrationsTable, m.seedsTable} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) exec(ctx context.Context, name string) error {
	sqlBytes, err := fs.ReadFile(m.files, name)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(sqlBytes)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) insertRecord(ctx context.Context, table, name string) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
		name, m.now())
	return err
}

func (m *Manager) listExecuted(ctx context.Context, table string) (map[string]bool, error) {
	names, err := m.history(ctx, table)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(names))
	for _, name := range names {
		result[name] = true
	}
	return result, nil
}

func (m *Manager) history(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

type sqlFile struct {
	Base string
	Path string
}

func (m *Manager) collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" || m.files == nil {
		return nil, nil
	}
	var files []sqlFile
	err := fs.WalkDir(m.files, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), suffix) {
			files = append(files, sqlFile{Base: d.Name(), Path: p})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Base < files[j].Base
	})
	return files, nil
}

// splitStatements splits SQL on semicolons outside quotes and line comments.
// Blank statements and comment-only statements are dropped.
func splitStatements(src string) []string {
	var (
		stmts     []string
		current   strings.Builder
		inString  bool
		inComment bool
		hasCode   bool
	)
	flush := func() {
		if hasCode {
			stmts = append(stmts, strings.TrimSpace(current.String()))
		}
		current.Reset()
		hasCode = false
	}
	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inComment:
			if r == '\n' {
				inComment = false
				current.WriteRune(r)
			}
		case inString:
			current.WriteRune(r)
			if r == '\'' {
				inString = false
			}
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			inComment = true
			i++
		case r == '\'':
			inString = true
			hasCode = true
			current.WriteRune(r)
		case r == ';':
			flush()
		default:
			if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
				hasCode = true
			}
			current.WriteRune(r)
		}
	}
	flush()
	return stmts
}
