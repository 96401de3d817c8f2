package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/ragchunk/internal/chunker"
	"github.com/dshills/ragchunk/internal/metrics"
	"github.com/dshills/ragchunk/internal/storage"
	"github.com/dshills/ragchunk/pkg/types"
)

var (
	// ErrIndexInProgress is returned when another run holds the index lock
	ErrIndexInProgress = errors.New("indexing already in progress")
	// ErrFileTooLarge is returned for files above the configured size cap
	ErrFileTooLarge = errors.New("file exceeds maximum size")
)

// DefaultMaxFileSizeBytes is used when Config.MaxFileSizeBytes is unset
const DefaultMaxFileSizeBytes = 10 * 1024 * 1024

// skippedDirs are never descended into, in addition to hidden directories.
var skippedDirs = map[string]bool{
	"vendor":       true,
	"node_modules": true,
}

// Indexer coordinates the indexing pipeline: discover -> chunk -> store
type Indexer struct {
	router  *chunker.Router
	storage storage.Storage
	logger  *zap.Logger
	metrics *metrics.Metrics

	lock    IndexLock
	writeMu sync.Mutex // serialises database writes across workers
}

// Config contains configuration for one indexing run
type Config struct {
	Workers          int   // Number of concurrent workers (default: runtime.NumCPU())
	MaxFileSizeBytes int64 // Files above this size are skipped (default: 10 MiB)
	Force            bool  // Re-chunk files whose content hash is unchanged
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	RunID         string
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	FilesRemoved  int
	ChunksCreated int
	ChunksByClass map[string]int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer instance. A nil logger or metrics is allowed.
func New(store storage.Storage, router *chunker.Router, logger *zap.Logger, m *metrics.Metrics) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		router:  router,
		storage: store,
		logger:  logger,
		metrics: m,
	}
}

// candidate is a discovered file worth chunking
type candidate struct {
	absPath string
	relPath string // slash-separated, relative to the project root
	size    int64
}

// runState accumulates statistics across workers
type runState struct {
	indexed atomic.Int32
	skipped atomic.Int32
	failed  atomic.Int32
	chunks  atomic.Int32

	mu       sync.Mutex
	byClass  map[string]int
	messages []string
}

func (rs *runState) fail(relPath string, err error) {
	rs.failed.Add(1)
	rs.mu.Lock()
	rs.messages = append(rs.messages, fmt.Sprintf("%s: %v", relPath, err))
	rs.mu.Unlock()
}

func (rs *runState) addChunks(class chunker.Class, n int) {
	rs.chunks.Add(int32(n))
	rs.mu.Lock()
	rs.byClass[string(class)] += n
	rs.mu.Unlock()
}

// IndexProject chunks every supported file under rootPath and persists the
// chunks for projectID. A file that fails is recorded in the statistics and
// never stops the others. Cancellation is honoured between files.
func (idx *Indexer) IndexProject(ctx context.Context, rootPath, projectID, userID string, config *Config) (*Statistics, error) {
	if projectID == "" || userID == "" {
		return nil, fmt.Errorf("%w: project id and user id are required", types.ErrInvalidRequest)
	}
	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	maxSize := config.MaxFileSizeBytes
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSizeBytes
	}

	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	startTime := time.Now()
	runID := uuid.NewString()
	logger := idx.logger.With(zap.String("run_id", runID), zap.String("project_id", projectID))
	logger.Info("indexing started", zap.String("root", absRoot), zap.Int("workers", workers))
	defer idx.metrics.RunStarted()()

	project, err := idx.upsertProject(ctx, absRoot, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert project: %w", err)
	}

	files, oversized, err := discoverFiles(absRoot, maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	for _, rel := range oversized {
		logger.Debug("skipping oversized file", zap.String("file", rel), zap.Int64("max_bytes", maxSize))
		idx.metrics.FileProcessed(metrics.OutcomeSkipped, string(chunker.Classify(rel)), 0)
	}

	rs := &runState{byClass: make(map[string]int)}
	rs.skipped.Add(int32(len(oversized)))

	runErr := idx.indexFiles(ctx, logger, project, files, workers, config.Force, rs)

	var removed int
	if runErr == nil {
		removed, err = idx.pruneRemoved(ctx, projectID, files)
		if err != nil {
			return nil, fmt.Errorf("failed to prune removed files: %w", err)
		}
	}

	stats := &Statistics{
		RunID:         runID,
		FilesIndexed:  int(rs.indexed.Load()),
		FilesSkipped:  int(rs.skipped.Load()),
		FilesFailed:   int(rs.failed.Load()),
		FilesRemoved:  removed,
		ChunksCreated: int(rs.chunks.Load()),
		ChunksByClass: rs.byClass,
		ErrorMessages: rs.messages,
		Duration:      time.Since(startTime),
	}
	sort.Strings(stats.ErrorMessages)

	// Record the run with a fresh context so a cancelled run is still logged
	if err := idx.finishRun(context.WithoutCancel(ctx), project, stats, startTime, runErr); err != nil {
		return nil, err
	}

	if runErr != nil {
		logger.Warn("indexing interrupted", zap.Error(runErr), zap.Int("files_indexed", stats.FilesIndexed))
		return stats, runErr
	}
	logger.Info("indexing finished",
		zap.Int("files_indexed", stats.FilesIndexed),
		zap.Int("files_skipped", stats.FilesSkipped),
		zap.Int("files_failed", stats.FilesFailed),
		zap.Int("files_removed", stats.FilesRemoved),
		zap.Int("chunks_created", stats.ChunksCreated),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// upsertProject creates the project row or refreshes its owner and root
func (idx *Indexer) upsertProject(ctx context.Context, rootPath, projectID, userID string) (*storage.Project, error) {
	project := &storage.Project{
		ID:           projectID,
		UserID:       userID,
		RootPath:     rootPath,
		IndexVersion: storage.CurrentSchemaVersion,
	}
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if err := idx.storage.UpsertProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// discoverFiles finds all supported files under rootPath. Files above
// maxSize are returned separately as relative paths.
func discoverFiles(rootPath string, maxSize int64) ([]candidate, []string, error) {
	var files []candidate
	var oversized []string

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path == rootPath {
				return nil
			}
			// Skip hidden and dependency directories
			if strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if !chunker.IsSupported(path) || chunker.IsIgnored(path) {
			return nil
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxSize {
			oversized = append(oversized, rel)
			return nil
		}

		files = append(files, candidate{absPath: path, relPath: rel, size: info.Size()})
		return nil
	})

	return files, oversized, err
}

// indexFiles chunks files concurrently. Only cancellation aborts the run.
func (idx *Indexer) indexFiles(ctx context.Context, logger *zap.Logger, project *storage.Project,
	files []candidate, workers int, force bool, rs *runState) error {

	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)

	for _, f := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			idx.indexFile(gctx, logger, project, f, force, rs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// indexFile chunks and stores a single file, recording the outcome in rs
func (idx *Indexer) indexFile(ctx context.Context, logger *zap.Logger, project *storage.Project,
	f candidate, force bool, rs *runState) {

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	class := chunker.Classify(f.relPath)

	content, hash, modTime, err := readFile(f.absPath)
	if err != nil {
		rs.fail(f.relPath, err)
		idx.metrics.FileProcessed(metrics.OutcomeFailed, string(class), time.Since(start))
		logger.Warn("failed to read file", zap.String("file", f.relPath), zap.Error(err))
		return
	}

	if !force {
		existing, err := idx.storage.GetFile(ctx, project.ID, f.relPath)
		if err == nil && existing.ContentHash == hash && existing.ChunkError == nil {
			rs.skipped.Add(1)
			idx.metrics.FileProcessed(metrics.OutcomeSkipped, string(class), 0)
			return
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			rs.fail(f.relPath, err)
			idx.metrics.FileProcessed(metrics.OutcomeFailed, string(class), time.Since(start))
			return
		}
	}

	file := &storage.File{
		ProjectID:    project.ID,
		FilePath:     f.relPath,
		ContentClass: string(class),
		Language:     chunker.LanguageFor(filepath.Ext(f.relPath)),
		ContentHash:  hash,
		ModTime:      modTime,
		SizeBytes:    f.size,
	}

	chunks, err := idx.router.Chunk(chunker.Request{
		Content:   string(content),
		FilePath:  f.relPath,
		ProjectID: project.ID,
		UserID:    project.UserID,
	})
	if err != nil {
		msg := err.Error()
		file.ChunkError = &msg
		rs.fail(f.relPath, err)
		idx.metrics.FileProcessed(metrics.OutcomeFailed, string(class), time.Since(start))
		logger.Warn("failed to chunk file", zap.String("file", f.relPath), zap.Error(err))

		// Keep the row so status reports the failure; the old chunks stay
		if err := idx.storeFile(ctx, file, nil, false); err != nil {
			logger.Warn("failed to record chunk error", zap.String("file", f.relPath), zap.Error(err))
		}
		return
	}

	if err := idx.storeFile(ctx, file, chunks, true); err != nil {
		rs.fail(f.relPath, err)
		idx.metrics.FileProcessed(metrics.OutcomeFailed, string(class), time.Since(start))
		logger.Warn("failed to store chunks", zap.String("file", f.relPath), zap.Error(err))
		return
	}

	rs.indexed.Add(1)
	rs.addChunks(class, len(chunks))
	idx.metrics.ObserveChunks(string(class), chunks)
	idx.metrics.FileProcessed(metrics.OutcomeIndexed, string(class), time.Since(start))
	logger.Debug("file indexed", zap.String("file", f.relPath), zap.Int("chunks", len(chunks)))
}

// storeFile writes the file row and its chunks in one transaction. Chunks
// overwrite their previous rows by deterministic id and the stale tail left
// by a shrinking file is deleted. When replace is false only the file row is
// written and its existing chunks are kept.
func (idx *Indexer) storeFile(ctx context.Context, file *storage.File, chunks []*types.Chunk, replace bool) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	return retryBusy(ctx, idx.logger, func() error {
		return idx.writeFile(ctx, file, chunks, replace)
	})
}

func (idx *Indexer) writeFile(ctx context.Context, file *storage.File, chunks []*types.Chunk, replace bool) error {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		file.ChunkCount = len(chunks)
	} else if existing, err := tx.GetFile(ctx, file.ProjectID, file.FilePath); err == nil {
		file.ChunkCount = existing.ChunkCount
	}

	if err := tx.UpsertFile(ctx, file); err != nil {
		return err
	}

	if replace {
		for _, c := range chunks {
			if _, err := tx.UpsertChunk(ctx, storage.FromTypesChunk(c, file.ID)); err != nil {
				return fmt.Errorf("failed to store chunk: %w", err)
			}
		}
		if _, err := tx.DeleteChunksFrom(ctx, file.ID, len(chunks)); err != nil {
			return fmt.Errorf("failed to delete stale chunks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pruneRemoved deletes files (and by cascade their chunks) that are no
// longer present or no longer eligible for indexing.
func (idx *Indexer) pruneRemoved(ctx context.Context, projectID string, files []candidate) (int, error) {
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.relPath] = true
	}

	stored, err := idx.storage.ListFiles(ctx, projectID)
	if err != nil {
		return 0, err
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	removed := 0
	for _, f := range stored {
		if present[f.FilePath] {
			continue
		}
		if err := idx.storage.DeleteFile(ctx, f.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// finishRun updates the project totals and records the run history row
func (idx *Indexer) finishRun(ctx context.Context, project *storage.Project, stats *Statistics,
	startTime time.Time, runErr error) error {

	status, err := idx.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to read project status: %w", err)
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	project.TotalFiles = status.FilesCount
	project.TotalChunks = status.ChunksCount
	project.LastIndexedAt = time.Now()
	if err := idx.storage.UpdateProject(ctx, project); err != nil {
		return fmt.Errorf("failed to update project stats: %w", err)
	}

	run := &storage.IndexRun{
		ID:            stats.RunID,
		ProjectID:     project.ID,
		StartedAt:     startTime,
		FinishedAt:    startTime.Add(stats.Duration),
		FilesIndexed:  stats.FilesIndexed,
		FilesSkipped:  stats.FilesSkipped,
		FilesFailed:   stats.FilesFailed,
		ChunksCreated: stats.ChunksCreated,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.ErrorMessage = &msg
	}
	if err := idx.storage.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record index run: %w", err)
	}
	return nil
}

// ChunkContent chunks content in memory without persisting anything. An
// empty class routes by the file extension.
func (idx *Indexer) ChunkContent(ctx context.Context, class chunker.Class, req chunker.Request) ([]*types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if class == "" {
		return idx.router.Chunk(req)
	}
	return idx.router.ChunkAs(class, req)
}

// ChunkFile reads a file from disk and chunks it in memory. req.FilePath
// names the file in chunk metadata; when empty the base name of path is used.
func (idx *Indexer) ChunkFile(ctx context.Context, path string, maxSize int64, req chunker.Request) ([]*types.Chunk, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSizeBytes
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, info.Size(), maxSize)
	}

	content, _, _, err := readFile(path)
	if err != nil {
		return nil, err
	}
	req.Content = string(content)
	if req.FilePath == "" {
		req.FilePath = filepath.Base(path)
	}
	return idx.ChunkContent(ctx, "", req)
}

// readFile reads a file and computes its SHA-256 hash
func readFile(filePath string) ([]byte, [32]byte, time.Time, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, [32]byte{}, time.Time{}, err
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, [32]byte{}, time.Time{}, err
	}
	return content, sha256.Sum256(content), info.ModTime(), nil
}
