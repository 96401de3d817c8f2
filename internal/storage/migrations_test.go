package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var found string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&found)
	if err == sql.ErrNoRows {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestApplyMigrations(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)

	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", version)

	require.NoError(t, ApplyMigrations(ctx, db))
	for _, table := range []string{"schema_version", "projects", "files", "chunks", "index_runs"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	version, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Re-applying is a no-op
	require.NoError(t, ApplyMigrations(ctx, db))
	var rows int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows))
	assert.Equal(t, len(AllMigrations), rows)
}

func TestChunksSchema_UniquePosition(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	require.NoError(t, ApplyMigrations(ctx, db))

	var ddl string
	require.NoError(t, db.QueryRow("SELECT sql FROM sqlite_master WHERE type='index' AND name='idx_chunks_position'").Scan(&ddl))
	assert.Contains(t, ddl, "UNIQUE INDEX")
	assert.Contains(t, ddl, "chunks(file_id, chunk_index)")
}

func TestRollbackMigration(t *testing.T) {
	ctx := context.Background()
	db := openRawDB(t)
	require.NoError(t, ApplyMigrations(ctx, db))

	require.NoError(t, RollbackMigration(ctx, db))
	assert.False(t, tableExists(t, db, "index_runs"))
	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", version)

	require.NoError(t, RollbackMigration(ctx, db))
	assert.False(t, tableExists(t, db, "chunks"))
	assert.False(t, tableExists(t, db, "schema_version"))

	err = RollbackMigration(ctx, db)
	assert.Error(t, err)

	// Everything can be applied again from scratch
	require.NoError(t, ApplyMigrations(ctx, db))
	version, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
