package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/zero-day-ai/crucible/internal/types"
)

// DB is the SQLite file behind the conversation memory. Every connection
// runs in WAL mode with foreign keys on, and writers take the lock at BEGIN
// so concurrent attack runs queue on the busy timeout instead of failing
// half way through a transaction.
type DB struct {
	conn *sql.DB
	path string
}

type options struct {
	busyTimeout time.Duration
	maxConns    int
}

// Option tunes Open.
type Option func(*options)

// WithBusyTimeout sets how long a writer waits for the file lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithMaxConns caps the pool. Half of it is kept idle.
func WithMaxConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConns = n
		}
	}
}

// Open opens (creating if needed) the database at path and checks that the
// connection pragmas took effect. The schema is not touched; call
// InitSchema.
func Open(path string, opts ...Option) (*DB, error) {
	if path == "" {
		return nil, types.NewError(types.DB_OPEN_FAILED, "database path is required")
	}
	o := options{busyTimeout: 5 * time.Second, maxConns: 10}
	for _, opt := range opts {
		opt(&o)
	}

	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", fmt.Sprint(o.busyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")

	conn, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, types.WrapError(types.DB_OPEN_FAILED, "failed to open database", err)
	}
	conn.SetMaxOpenConns(o.maxConns)
	conn.SetMaxIdleConns(max(1, o.maxConns/2))
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := checkPragmas(ctx, conn); err != nil {
		conn.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "database "+path, err)
	}
	return &DB{conn: conn, path: path}, nil
}

func checkPragmas(ctx context.Context, conn *sql.DB) error {
	want := []struct{ pragma, value string }{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
	}
	for _, w := range want {
		var got string
		if err := conn.QueryRowContext(ctx, "PRAGMA "+w.pragma).Scan(&got); err != nil {
			return fmt.Errorf("read %s: %w", w.pragma, err)
		}
		if got != w.value {
			return fmt.Errorf("%s is %q, want %q", w.pragma, got, w.value)
		}
	}
	return nil
}

// Close folds the write-ahead log back into the main file and closes the
// pool, so an exported database is a single self-contained file. Later
// calls are no-ops.
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cpErr := db.Checkpoint(ctx)
	conn := db.conn
	db.conn = nil
	return errors.Join(cpErr, conn.Close())
}

func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Health runs a trivial query; registered as the "database" component.
func (db *DB) Health(ctx context.Context) types.HealthStatus {
	var one int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return types.Unhealthy(fmt.Sprintf("%s: %v", db.path, err))
	}
	return types.Healthy(db.path)
}

// WithTx runs fn in a transaction and commits when it returns nil. A panic
// in fn rolls back and is re-raised.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && err != nil {
			err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// InitSchema runs the pending migrations.
func (db *DB) InitSchema(ctx context.Context) error {
	if err := NewMigrator(db).Migrate(ctx); err != nil {
		return types.WrapError(types.DB_MIGRATION_FAILED, "failed to run migrations", err)
	}
	return nil
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

func sqliteCode(err error) sqlite3.ErrNoExtended {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return 0
	}
	return sqliteErr.ExtendedCode
}

// IsUniqueViolation reports a primary key or unique constraint failure.
func IsUniqueViolation(err error) bool {
	code := sqliteCode(err)
	return code == sqlite3.ErrConstraintPrimaryKey || code == sqlite3.ErrConstraintUnique
}

func IsForeignKeyViolation(err error) bool {
	return sqliteCode(err) == sqlite3.ErrConstraintForeignKey
}
