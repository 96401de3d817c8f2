package storage

import (
	"context"
	"time"

	"github.com/dshills/ragchunk/pkg/types"
)

// Storage defines the interface for persisting chunked project data
type Storage interface {
	// Project operations
	UpsertProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, projectID string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID string, filePath string) (*File, error)
	GetFileByID(ctx context.Context, fileID int64) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
	ListFiles(ctx context.Context, projectID string) ([]*File, error)

	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *Chunk) (changed bool, err error)
	GetChunk(ctx context.Context, chunkID string) (*Chunk, error)
	ListChunksByFile(ctx context.Context, fileID int64) ([]*Chunk, error)
	DeleteChunksFrom(ctx context.Context, fileID int64, fromIndex int) (deletedCount int, err error)
	DeleteChunksByFile(ctx context.Context, fileID int64) error

	// Index run operations
	RecordRun(ctx context.Context, run *IndexRun) error
	LatestRun(ctx context.Context, projectID string) (*IndexRun, error)

	// Status operations
	GetStatus(ctx context.Context, projectID string) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project is a caller-identified set of indexed files
type Project struct {
	ID            string
	UserID        string
	RootPath      string
	TotalFiles    int
	TotalChunks   int
	IndexVersion  string
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File represents a tracked source file
type File struct {
	ID            int64
	ProjectID     string
	FilePath      string // Relative to project root
	ContentClass  string
	Language      string
	ContentHash   [32]byte
	ModTime       time.Time
	SizeBytes     int64
	ChunkCount    int
	ChunkError    *string // Nullable
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Chunk is a persisted chunk. ID is the deterministic chunk identifier, so
// re-indexing an unchanged position overwrites the same row.
type Chunk struct {
	ID          string
	FileID      int64
	ChunkIndex  int
	Content     string
	ContentHash [32]byte
	TokenCount  int
	Metadata    *types.Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IndexRun records the outcome of one indexing pass over a project
type IndexRun struct {
	ID            string // uuid
	ProjectID     string
	StartedAt     time.Time
	FinishedAt    time.Time
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	ChunksCreated int
	ErrorMessage  *string // Nullable
}

// Duration returns how long the run took.
func (r *IndexRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project       *Project
	FilesCount    int
	ChunksCount   int
	TokensTotal   int
	ChunksByClass map[string]int
	FailedFiles   int
	IndexSizeMB   float64
	LastIndexedAt time.Time
	LastRun       *IndexRun
	Health        HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible bool
	SchemaVersion      string
}

// FromTypesChunk converts a chunker result into its storage row.
func FromTypesChunk(c *types.Chunk, fileID int64) *Chunk {
	return &Chunk{
		ID:          c.ID(),
		FileID:      fileID,
		ChunkIndex:  c.ChunkIndex,
		Content:     c.Content,
		ContentHash: c.ContentHash,
		TokenCount:  c.EstimatedTokenCount,
		Metadata:    c.Metadata,
	}
}

// ToTypesChunk converts a storage row back into a chunk. filePath is the
// original path of the owning file.
func (c *Chunk) ToTypesChunk(filePath string) *types.Chunk {
	meta := c.Metadata
	if meta == nil {
		meta = types.NewMetadata()
	}
	return &types.Chunk{
		Content:             c.Content,
		Metadata:            meta,
		OriginalFilePath:    filePath,
		ChunkIndex:          c.ChunkIndex,
		EstimatedTokenCount: c.TokenCount,
		ContentHash:         c.ContentHash,
	}
}
