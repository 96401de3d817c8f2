package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/ragchunk/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrNestedTx is returned by BeginTx on a transaction
	ErrNestedTx = errors.New("nested transactions not supported")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Project operations

func (s *SQLiteStorage) upsertProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		INSERT INTO projects (id, user_id, root_path, index_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			root_path = excluded.root_path,
			index_version = excluded.index_version,
			updated_at = excluded.updated_at
		RETURNING created_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		project.ID, project.UserID, project.RootPath, project.IndexVersion, now, now,
	).Scan(&project.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertProject(ctx context.Context, project *Project) error {
	return s.upsertProjectWithQuerier(ctx, s.querier(), project)
}

func (s *SQLiteStorage) getProjectWithQuerier(ctx context.Context, q querier, projectID string) (*Project, error) {
	query := `
		SELECT id, user_id, root_path, total_files, total_chunks,
		       index_version, last_indexed_at, created_at, updated_at
		FROM projects
		WHERE id = ?
	`
	var project Project
	var rootPath sql.NullString
	var lastIndexedAt sql.NullTime
	err := q.QueryRowContext(ctx, query, projectID).Scan(
		&project.ID, &project.UserID, &rootPath, &project.TotalFiles, &project.TotalChunks,
		&project.IndexVersion, &lastIndexedAt, &project.CreatedAt, &project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	project.RootPath = rootPath.String
	if lastIndexedAt.Valid {
		project.LastIndexedAt = lastIndexedAt.Time
	}
	return &project, nil
}

func (s *SQLiteStorage) GetProject(ctx context.Context, projectID string) (*Project, error) {
	return s.getProjectWithQuerier(ctx, s.querier(), projectID)
}

func (s *SQLiteStorage) updateProjectWithQuerier(ctx context.Context, q querier, project *Project) error {
	query := `
		UPDATE projects
		SET root_path = ?, total_files = ?, total_chunks = ?,
		    last_indexed_at = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		project.RootPath, project.TotalFiles, project.TotalChunks,
		project.LastIndexedAt, now, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	project.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateProject(ctx context.Context, project *Project) error {
	return s.updateProjectWithQuerier(ctx, s.querier(), project)
}

// File operations

const fileColumns = `
	id, project_id, file_path, content_class, language, content_hash, mod_time,
	size_bytes, chunk_count, chunk_error, last_indexed_at, created_at, updated_at
`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (*File, error) {
	var file File
	var hash []byte
	var language, chunkError sql.NullString
	err := row.Scan(
		&file.ID, &file.ProjectID, &file.FilePath, &file.ContentClass, &language,
		&hash, &file.ModTime, &file.SizeBytes, &file.ChunkCount, &chunkError,
		&file.LastIndexedAt, &file.CreatedAt, &file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(file.ContentHash[:], hash)
	file.Language = language.String
	if chunkError.Valid {
		file.ChunkError = &chunkError.String
	}
	return &file, nil
}

func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (project_id, file_path, content_class, language, content_hash, mod_time,
		                   size_bytes, chunk_count, chunk_error, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, file_path) DO UPDATE SET
			content_class = excluded.content_class,
			language = excluded.language,
			content_hash = excluded.content_hash,
			mod_time = excluded.mod_time,
			size_bytes = excluded.size_bytes,
			chunk_count = excluded.chunk_count,
			chunk_error = excluded.chunk_error,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		file.ProjectID, file.FilePath, file.ContentClass, file.Language, file.ContentHash[:],
		file.ModTime, file.SizeBytes, file.ChunkCount, file.ChunkError, now, now, now).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	file.LastIndexedAt = now
	file.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, projectID string, filePath string) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? AND file_path = ?`
	file, err := scanFile(q.QueryRowContext(ctx, query, projectID, filePath))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return file, err
}

func (s *SQLiteStorage) GetFile(ctx context.Context, projectID string, filePath string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), projectID, filePath)
}

func (s *SQLiteStorage) getFileByIDWithQuerier(ctx context.Context, q querier, fileID int64) (*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ?`
	file, err := scanFile(q.QueryRowContext(ctx, query, fileID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return file, err
}

func (s *SQLiteStorage) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return s.getFileByIDWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	return err
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, projectID string) ([]*File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = ? ORDER BY file_path`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, projectID string) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), projectID)
}

// Chunk operations

const chunkColumns = `
	id, file_id, chunk_index, content, content_hash, token_count, metadata, created_at, updated_at
`

func scanChunk(row rowScanner) (*Chunk, error) {
	var chunk Chunk
	var hash []byte
	var metadata string
	err := row.Scan(
		&chunk.ID, &chunk.FileID, &chunk.ChunkIndex, &chunk.Content, &hash,
		&chunk.TokenCount, &metadata, &chunk.CreatedAt, &chunk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(chunk.ContentHash[:], hash)

	chunk.Metadata = types.NewMetadata()
	if err := json.Unmarshal([]byte(metadata), chunk.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for chunk %s: %w", chunk.ID, err)
	}
	return &chunk, nil
}

// upsertChunkWithQuerier writes a chunk by its deterministic id. Rows whose
// content hash and metadata are unchanged are left untouched.
func (s *SQLiteStorage) upsertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) (bool, error) {
	metadata, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to encode metadata for chunk %s: %w", chunk.ID, err)
	}

	query := `
		INSERT INTO chunks (
			id, file_id, chunk_index, content, content_hash, token_count, metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id)
		DO UPDATE SET
			file_id = excluded.file_id,
			chunk_index = excluded.chunk_index,
			content = excluded.content,
			content_hash = excluded.content_hash,
			token_count = excluded.token_count,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		WHERE chunks.content_hash != excluded.content_hash
		   OR chunks.metadata != excluded.metadata
		   OR chunks.file_id != excluded.file_id
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		chunk.ID, chunk.FileID, chunk.ChunkIndex, chunk.Content, chunk.ContentHash[:],
		chunk.TokenCount, string(metadata), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		chunk.UpdatedAt = now
	}
	return n > 0, nil
}

func (s *SQLiteStorage) UpsertChunk(ctx context.Context, chunk *Chunk) (bool, error) {
	return s.upsertChunkWithQuerier(ctx, s.querier(), chunk)
}

func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID string) (*Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id = ?`
	chunk, err := scanChunk(q.QueryRowContext(ctx, query, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

func (s *SQLiteStorage) listChunksByFileWithQuerier(ctx context.Context, q querier, fileID int64) ([]*Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE file_id = ? ORDER BY chunk_index`
	rows, err := q.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error) {
	return s.listChunksByFileWithQuerier(ctx, s.querier(), fileID)
}

// deleteChunksFromWithQuerier removes the chunks at fromIndex and beyond,
// left over when a file now produces fewer chunks than before.
func (s *SQLiteStorage) deleteChunksFromWithQuerier(ctx context.Context, q querier, fileID int64, fromIndex int) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ? AND chunk_index >= ?`, fileID, fromIndex)
	if err != nil {
		return 0, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

func (s *SQLiteStorage) DeleteChunksFrom(ctx context.Context, fileID int64, fromIndex int) (int, error) {
	return s.deleteChunksFromWithQuerier(ctx, s.querier(), fileID, fromIndex)
}

func (s *SQLiteStorage) deleteChunksByFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID)
	return err
}

func (s *SQLiteStorage) DeleteChunksByFile(ctx context.Context, fileID int64) error {
	return s.deleteChunksByFileWithQuerier(ctx, s.querier(), fileID)
}

// Index run operations

func (s *SQLiteStorage) recordRunWithQuerier(ctx context.Context, q querier, run *IndexRun) error {
	query := `
		INSERT INTO index_runs (id, project_id, started_at, finished_at, files_indexed,
		                        files_skipped, files_failed, chunks_created, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		run.ID, run.ProjectID, run.StartedAt, run.FinishedAt, run.FilesIndexed,
		run.FilesSkipped, run.FilesFailed, run.ChunksCreated, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to record index run: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RecordRun(ctx context.Context, run *IndexRun) error {
	return s.recordRunWithQuerier(ctx, s.querier(), run)
}

func (s *SQLiteStorage) latestRunWithQuerier(ctx context.Context, q querier, projectID string) (*IndexRun, error) {
	query := `
		SELECT id, project_id, started_at, finished_at, files_indexed,
		       files_skipped, files_failed, chunks_created, error_message
		FROM index_runs
		WHERE project_id = ?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1
	`
	var run IndexRun
	var errorMessage sql.NullString
	err := q.QueryRowContext(ctx, query, projectID).Scan(
		&run.ID, &run.ProjectID, &run.StartedAt, &run.FinishedAt, &run.FilesIndexed,
		&run.FilesSkipped, &run.FilesFailed, &run.ChunksCreated, &errorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	return &run, nil
}

func (s *SQLiteStorage) LatestRun(ctx context.Context, projectID string) (*IndexRun, error) {
	return s.latestRunWithQuerier(ctx, s.querier(), projectID)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, projectID string) (*ProjectStatus, error) {
	project, err := s.getProjectWithQuerier(ctx, q, projectID)
	if err != nil {
		return nil, err
	}

	status := &ProjectStatus{
		Project:       project,
		LastIndexedAt: project.LastIndexedAt,
		ChunksByClass: make(map[string]int),
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN chunk_error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM files WHERE project_id = ?
	`, projectID).Scan(&status.FilesCount, &status.FailedFiles)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT f.content_class, COUNT(c.id), COALESCE(SUM(c.token_count), 0)
		FROM chunks c
		JOIN files f ON c.file_id = f.id
		WHERE f.project_id = ?
		GROUP BY f.content_class
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var class string
		var count, tokens int
		if err := rows.Scan(&class, &count, &tokens); err != nil {
			return nil, err
		}
		status.ChunksByClass[class] = count
		status.ChunksCount += count
		status.TokensTotal += tokens
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	run, err := s.latestRunWithQuerier(ctx, q, projectID)
	switch {
	case err == nil:
		status.LastRun = run
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{DatabaseAccessible: true}
	if v, err := SchemaVersion(ctx, q); err == nil {
		status.Health.SchemaVersion = v
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, projectID string) (*ProjectStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), projectID)
}

// Transaction implementations delegate to the storage helpers with the
// transaction as querier.

func (t *sqliteTx) UpsertProject(ctx context.Context, project *Project) error {
	return t.storage.upsertProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) GetProject(ctx context.Context, projectID string) (*Project, error) {
	return t.storage.getProjectWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) UpdateProject(ctx context.Context, project *Project) error {
	return t.storage.updateProjectWithQuerier(ctx, t.querier(), project)
}

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, projectID string, filePath string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), projectID, filePath)
}

func (t *sqliteTx) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return t.storage.getFileByIDWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) ListFiles(ctx context.Context, projectID string) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) UpsertChunk(ctx context.Context, chunk *Chunk) (bool, error) {
	return t.storage.upsertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error) {
	return t.storage.listChunksByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) DeleteChunksFrom(ctx context.Context, fileID int64, fromIndex int) (int, error) {
	return t.storage.deleteChunksFromWithQuerier(ctx, t.querier(), fileID, fromIndex)
}

func (t *sqliteTx) DeleteChunksByFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteChunksByFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) RecordRun(ctx context.Context, run *IndexRun) error {
	return t.storage.recordRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) LatestRun(ctx context.Context, projectID string) (*IndexRun, error) {
	return t.storage.latestRunWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) GetStatus(ctx context.Context, projectID string) (*ProjectStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), projectID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, ErrNestedTx
}
