package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragchunk/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func createProject(t *testing.T, s Storage, id string) *Project {
	t.Helper()
	project := &Project{ID: id, UserID: "u1", RootPath: "/test/" + id, IndexVersion: CurrentSchemaVersion}
	require.NoError(t, s.UpsertProject(context.Background(), project))
	return project
}

func createFile(t *testing.T, s Storage, projectID, path, class string) *File {
	t.Helper()
	file := &File{
		ProjectID:    projectID,
		FilePath:     path,
		ContentClass: class,
		ContentHash:  sha256.Sum256([]byte(path)),
		ModTime:      time.Now(),
		SizeBytes:    100,
	}
	require.NoError(t, s.UpsertFile(context.Background(), file))
	return file
}

func newChunk(projectID, path string, index int, content string) *types.Chunk {
	meta := types.NewMetadata().
		Set(types.MetaProjectID, projectID).
		Set(types.MetaFilePath, path).
		Set(types.MetaChunkIndex, fmt.Sprint(index))
	return types.NewChunk(content, path, index, len(content)/4, meta)
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage.db)

	version, err := SchemaVersion(context.Background(), storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestNewSQLiteStorage_File(t *testing.T) {
	path := t.TempDir() + "/index.db"
	storage, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	createProject(t, storage, "p1")
	require.NoError(t, storage.Close())

	// Reopening applies no migrations twice and keeps the data
	storage, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	defer storage.Close()

	project, err := storage.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", project.UserID)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestUpsertProject(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := createProject(t, storage, "p1")
	assert.False(t, project.CreatedAt.IsZero())

	// Upserting again updates in place
	again := &Project{ID: "p1", UserID: "u2", RootPath: "/moved", IndexVersion: CurrentSchemaVersion}
	require.NoError(t, storage.UpsertProject(ctx, again))

	retrieved, err := storage.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "u2", retrieved.UserID)
	assert.Equal(t, "/moved", retrieved.RootPath)
	assert.True(t, retrieved.LastIndexedAt.IsZero())
}

func TestGetProject_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	_, err := storage.GetProject(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProject(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	project := createProject(t, storage, "p1")

	project.TotalFiles = 10
	project.TotalChunks = 42
	project.LastIndexedAt = time.Now()
	require.NoError(t, storage.UpdateProject(ctx, project))

	retrieved, err := storage.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, retrieved.TotalFiles)
	assert.Equal(t, 42, retrieved.TotalChunks)
	assert.False(t, retrieved.LastIndexedAt.IsZero())

	err = storage.UpdateProject(ctx, &Project{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertFile(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")

	file := createFile(t, storage, "p1", "main.go", "code")
	assert.Greater(t, file.ID, int64(0))
	originalID := file.ID

	// Update same file
	msg := "boom"
	file.SizeBytes = 5678
	file.ChunkError = &msg
	require.NoError(t, storage.UpsertFile(ctx, file))
	assert.Equal(t, originalID, file.ID) // ID should remain the same

	retrieved, err := storage.GetFileByID(ctx, originalID)
	require.NoError(t, err)
	assert.Equal(t, int64(5678), retrieved.SizeBytes)
	require.NotNil(t, retrieved.ChunkError)
	assert.Equal(t, "boom", *retrieved.ChunkError)
	assert.Equal(t, sha256.Sum256([]byte("main.go")), retrieved.ContentHash)
}

func TestGetFile(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")
	file := createFile(t, storage, "p1", "docs/readme.md", "markdown")

	retrieved, err := storage.GetFile(ctx, "p1", "docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, file.ID, retrieved.ID)
	assert.Equal(t, "markdown", retrieved.ContentClass)
	assert.Nil(t, retrieved.ChunkError)

	_, err = storage.GetFile(ctx, "p1", "nonexistent.go")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetFileByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFiles(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")
	createProject(t, storage, "p2")

	for _, path := range []string{"c.go", "a.go", "b.go"} {
		createFile(t, storage, "p1", path, "code")
	}
	createFile(t, storage, "p2", "other.go", "code")

	files, err := storage.ListFiles(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.go", files[0].FilePath)
	assert.Equal(t, "c.go", files[2].FilePath)
}

func TestDeleteFile_CascadesChunks(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")
	file := createFile(t, storage, "p1", "delete.go", "code")

	chunk := FromTypesChunk(newChunk("p1", "delete.go", 0, "package main"), file.ID)
	_, err := storage.UpsertChunk(ctx, chunk)
	require.NoError(t, err)

	require.NoError(t, storage.DeleteFile(ctx, file.ID))

	_, err = storage.GetFile(ctx, "p1", "delete.go")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = storage.GetChunk(ctx, chunk.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertChunk_DeterministicID(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")
	file := createFile(t, storage, "p1", "src/app.py", "code")

	first := FromTypesChunk(newChunk("p1", "src/app.py", 0, "original content"), file.ID)
	assert.Equal(t, "p1_src_app_py_0", first.ID)

	changed, err := storage.UpsertChunk(ctx, first)
	require.NoError(t, err)
	assert.True(t, changed, "first insert writes the row")

	// Same content and metadata: the row is left alone
	changed, err = storage.UpsertChunk(ctx, FromTypesChunk(newChunk("p1", "src/app.py", 0, "original content"), file.ID))
	require.NoError(t, err)
	assert.False(t, changed)

	// Same position, new content: overwritten, not duplicated
	changed, err = storage.UpsertChunk(ctx, FromTypesChunk(newChunk("p1", "src/app.py", 0, "updated content here"), file.ID))
	require.NoError(t, err)
	assert.True(t, changed)

	chunks, err := storage.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "updated content here", chunks[0].Content)
	assert.Equal(t, 5, chunks[0].TokenCount)
	assert.Equal(t, sha256.Sum256([]byte("updated content here")), chunks[0].ContentHash)
}

func TestUpsertChunk_MetadataRoundTrip(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")
	file := createFile(t, storage, "p1", "guide.md", "markdown")

	c := newChunk("p1", "guide.md", 0, "# Intro\n\nhello")
	c.Metadata.Set(types.MetaH1Context, "Intro").Set(types.MetaH2Context, "").Set(types.MetaH3Context, "")
	_, err := storage.UpsertChunk(ctx, FromTypesChunk(c, file.ID))
	require.NoError(t, err)

	stored, err := storage.GetChunk(ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, c.Metadata.Keys(), stored.Metadata.Keys())
	assert.Equal(t, "Intro", stored.Metadata.Value(types.MetaH1Context))

	back := stored.ToTypesChunk("guide.md")
	assert.Equal(t, c.Content, back.Content)
	assert.Equal(t, c.ID(), back.ID())
	assert.Equal(t, c.ContentHash, back.ContentHash)
}

func TestDeleteChunksFrom(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")
	file := createFile(t, storage, "p1", "notes.txt", "text")

	for i := 0; i < 5; i++ {
		_, err := storage.UpsertChunk(ctx, FromTypesChunk(newChunk("p1", "notes.txt", i, fmt.Sprintf("chunk %d", i)), file.ID))
		require.NoError(t, err)
	}

	// The file now yields three chunks
	deleted, err := storage.DeleteChunksFrom(ctx, file.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	chunks, err := storage.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}

	require.NoError(t, storage.DeleteChunksByFile(ctx, file.ID))
	chunks, err = storage.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIndexRuns(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")

	_, err := storage.LatestRun(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	start := time.Now().Add(-time.Minute)
	older := &IndexRun{ID: "run-1", ProjectID: "p1", StartedAt: start, FinishedAt: start.Add(time.Second), FilesIndexed: 1}
	msg := "partial"
	newer := &IndexRun{ID: "run-2", ProjectID: "p1", StartedAt: start, FinishedAt: start.Add(time.Minute), FilesFailed: 2, ErrorMessage: &msg}
	require.NoError(t, storage.RecordRun(ctx, older))
	require.NoError(t, storage.RecordRun(ctx, newer))

	latest, err := storage.LatestRun(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.ID)
	assert.Equal(t, 2, latest.FilesFailed)
	require.NotNil(t, latest.ErrorMessage)
	assert.Equal(t, "partial", *latest.ErrorMessage)
	assert.Equal(t, time.Minute, latest.Duration())
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")

	code := createFile(t, storage, "p1", "main.go", "code")
	doc := createFile(t, storage, "p1", "README.md", "markdown")
	broken := createFile(t, storage, "p1", "bad.json", "json")
	msg := "unreadable"
	broken.ChunkError = &msg
	require.NoError(t, storage.UpsertFile(ctx, broken))

	for i := 0; i < 3; i++ {
		_, err := storage.UpsertChunk(ctx, FromTypesChunk(newChunk("p1", "main.go", i, "func x() {}"), code.ID))
		require.NoError(t, err)
	}
	_, err := storage.UpsertChunk(ctx, FromTypesChunk(newChunk("p1", "README.md", 0, "# Title"), doc.ID))
	require.NoError(t, err)

	status, err := storage.GetStatus(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, status.FilesCount)
	assert.Equal(t, 4, status.ChunksCount)
	assert.Equal(t, 3*2+1, status.TokensTotal)
	assert.Equal(t, map[string]int{"code": 3, "markdown": 1}, status.ChunksByClass)
	assert.Equal(t, 1, status.FailedFiles)
	assert.Nil(t, status.LastRun)
	assert.Greater(t, status.IndexSizeMB, 0.0)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.Equal(t, CurrentSchemaVersion, status.Health.SchemaVersion)

	_, err = storage.GetStatus(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	createProject(t, storage, "p1")

	// Rolled back writes are discarded
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	createFile(t, tx, "p1", "rolled.go", "code")
	require.NoError(t, tx.Rollback())

	_, err = storage.GetFile(ctx, "p1", "rolled.go")
	assert.ErrorIs(t, err, ErrNotFound)

	// Committed writes are visible, including status read inside the tx
	tx, err = storage.BeginTx(ctx)
	require.NoError(t, err)
	file := createFile(t, tx, "p1", "kept.go", "code")
	_, err = tx.UpsertChunk(ctx, FromTypesChunk(newChunk("p1", "kept.go", 0, "package kept"), file.ID))
	require.NoError(t, err)

	status, err := tx.GetStatus(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.ChunksCount)

	_, err = tx.BeginTx(ctx)
	assert.ErrorIs(t, err, ErrNestedTx)
	assert.NoError(t, tx.Close())
	require.NoError(t, tx.Commit())

	chunks, err := storage.ListChunksByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}
