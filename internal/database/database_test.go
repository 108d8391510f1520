package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/crucible/internal/types"
)

// setupTestDB opens a migrated database in a per-test temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.InitSchema(context.Background()))
	return db
}

func TestOpen_EnablesWALAndForeignKeys(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	assert.True(t, db.Health(context.Background()).IsHealthy())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.True(t, types.HasCode(err, types.DB_OPEN_FAILED))
}

func TestClose_CheckpointsWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, WithBusyTimeout(time.Second), WithMaxConns(2))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(context.Background()))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	info, err := os.Stat(path + "-wal")
	if err == nil {
		assert.Zero(t, info.Size())
	}
}

func TestMigrator_MigrateIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	m := NewMigrator(db)

	require.NoError(t, m.Migrate(ctx))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	applied, err := m.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "initial_schema", applied[0].Name)
	assert.Equal(t, "embeddings", applied[1].Name)
}

func TestMigrator_Rollback(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	m := NewMigrator(db)

	require.NoError(t, m.Rollback(ctx, 1))

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='embeddings'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, m.Migrate(ctx))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='embeddings'").Scan(&name))

	assert.Error(t, m.Rollback(ctx, 5))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO prompt_pieces (
			id, role, conversation_id, sequence, timestamp,
			original_value_data_type, original_value, original_value_sha256,
			converted_value_data_type, converted_value, converted_value_sha256
		) VALUES ('p1', 'user', 'c1', 0, '2024-01-01T00:00:00Z', 'text', 'hi', 'x', 'text', 'hi', 'x')`)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM prompt_pieces").Scan(&count))
	assert.Zero(t, count)
}

func TestConstraintClassification(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	insert := `INSERT INTO prompt_pieces (
		id, role, conversation_id, sequence, timestamp,
		original_value_data_type, original_value, original_value_sha256,
		converted_value_data_type, converted_value, converted_value_sha256
	) VALUES ('dup', 'user', 'c1', 0, '2024-01-01T00:00:00Z', 'text', 'hi', 'x', 'text', 'hi', 'x')`

	_, err := db.ExecContext(ctx, insert)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsForeignKeyViolation(err))

	_, err = db.ExecContext(ctx, `INSERT INTO scores (
		id, score_value, score_type, prompt_request_response_id, timestamp
	) VALUES ('s1', 'True', 'true_false', 'missing-piece', '2024-01-01T00:00:00Z')`)
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err))
	assert.False(t, IsUniqueViolation(err))
}

func TestStatements(t *testing.T) {
	script := `
-- leading comment; with a semicolon
CREATE TABLE a (x TEXT DEFAULT 'a;b'); -- trailing
INSERT INTO a VALUES ('--not a comment');
`
	assert.Equal(t, []string{
		"CREATE TABLE a (x TEXT DEFAULT 'a;b')",
		"INSERT INTO a VALUES ('--not a comment')",
	}, statements(script))
	assert.Empty(t, statements("-- only a comment\n"))
}

func TestLoadMigrations(t *testing.T) {
	loaded, err := loadMigrations(migrationFiles)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "initial_schema", loaded[0].name)
	assert.Contains(t, loaded[1].down, "DROP TABLE IF EXISTS embeddings")

	_, err = loadMigrations(fstest.MapFS{
		"migrations/0002_late.up.sql":   {Data: []byte("SELECT 1;")},
		"migrations/0002_late.down.sql": {Data: []byte("SELECT 1;")},
	})
	assert.ErrorContains(t, err, "want 0001_<name>.up.sql")

	_, err = loadMigrations(fstest.MapFS{
		"migrations/0001_orphan.up.sql": {Data: []byte("SELECT 1;")},
	})
	assert.ErrorContains(t, err, "no down script")
}
