package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Schema changes live in migrations/ as NNNN_name.up.sql with a matching
// NNNN_name.down.sql. Numbers must be contiguous from 1.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

var migrations = mustLoadMigrations(migrationFiles)

// Migrator applies and reverts the embedded schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) error
	CurrentVersion(ctx context.Context) (int, error)
	// Rollback reverts applied migrations newer than targetVersion, newest
	// first.
	Rollback(ctx context.Context, targetVersion int) error
	AppliedMigrations(ctx context.Context) ([]MigrationInfo, error)
}

// MigrationInfo is one row of the migrations table.
type MigrationInfo struct {
	Version   int
	Name      string
	AppliedAt string
}

type migration struct {
	version  int
	name     string
	up, down string
}

func mustLoadMigrations(fsys fs.FS) []migration {
	m, err := loadMigrations(fsys)
	if err != nil {
		panic(err)
	}
	return m
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	out := make([]migration, 0, len(files))
	for i, file := range files {
		base := strings.TrimSuffix(path.Base(file), ".up.sql")
		num, name, ok := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if !ok || err != nil || version != i+1 {
			return nil, fmt.Errorf("migration %s: want %04d_<name>.up.sql", file, i+1)
		}
		up, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		down, err := fs.ReadFile(fsys, strings.TrimSuffix(file, ".up.sql")+".down.sql")
		if err != nil {
			return nil, fmt.Errorf("migration %s has no down script: %w", base, err)
		}
		out = append(out, migration{version: version, name: name, up: string(up), down: string(down)})
	}
	return out, nil
}

type migrator struct {
	db         *DB
	migrations []migration
}

func NewMigrator(db *DB) Migrator {
	return &migrator{db: db, migrations: migrations}
}

func (m *migrator) Migrate(ctx context.Context) error {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	for _, mig := range m.migrations {
		if mig.version <= current {
			continue
		}
		err := m.apply(ctx, mig.up, "INSERT INTO migrations (version, name) VALUES (?, ?)", mig.version, mig.name)
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", mig.version, mig.name, err)
		}
	}
	return nil
}

func (m *migrator) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (m *migrator) Rollback(ctx context.Context, targetVersion int) error {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if targetVersion < 0 || targetVersion > current {
		return fmt.Errorf("cannot roll back to version %d (current %d)", targetVersion, current)
	}
	for i := len(m.migrations) - 1; i >= 0; i-- {
		mig := m.migrations[i]
		if mig.version > current {
			continue
		}
		if mig.version <= targetVersion {
			break
		}
		if err := m.apply(ctx, mig.down, "DELETE FROM migrations WHERE version = ?", mig.version); err != nil {
			return fmt.Errorf("roll back migration %d (%s): %w", mig.version, mig.name, err)
		}
	}
	return nil
}

func (m *migrator) AppliedMigrations(ctx context.Context) ([]MigrationInfo, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, "SELECT version, name, applied_at FROM migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()

	var applied []MigrationInfo
	for rows.Next() {
		var info MigrationInfo
		if err := rows.Scan(&info.Version, &info.Name, &info.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		applied = append(applied, info)
	}
	return applied, rows.Err()
}

func (m *migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return nil
}

// apply runs script and the bookkeeping statement in one transaction, so a
// failed migration leaves no partial schema behind.
func (m *migrator) apply(ctx context.Context, script, record string, args ...any) error {
	return m.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements(script) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%w\nstatement: %s", err, stmt)
			}
		}
		_, err := tx.ExecContext(ctx, record, args...)
		return err
	})
}

// statements splits script on semicolons and drops "--" comments, leaving
// both alone inside quoted literals.
func statements(script string) []string {
	var (
		out     []string
		cur     strings.Builder
		quote   rune
		comment bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case comment:
			if ch == '\n' {
				comment = false
				cur.WriteRune(ch)
			}
		case quote != 0:
			cur.WriteRune(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
		case ch == '\'' || ch == '"':
			quote = ch
			cur.WriteRune(ch)
		case ch == ';':
			flush()
		default:
			cur.WriteRune(ch)
		}
	}
	flush()
	return out
}
