package types

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// Well-known metadata keys. Every chunk carries the first six; the rest are
// added by the chunker that produced it.
const (
	MetaUserID     = "userId"
	MetaProjectID  = "projectId"
	MetaFilePath   = "filePath"
	MetaFileName   = "fileName"
	MetaFileType   = "fileType"
	MetaChunkIndex = "chunkIndex"

	MetaLanguage       = "language"
	MetaBlockType      = "blockType"
	MetaBlockName      = "blockName"
	MetaChunkType      = "chunkType"
	MetaJSONPath       = "jsonPath"
	MetaValueKind      = "valueKind"
	MetaFormat         = "format"
	MetaH1Context      = "h1_context"
	MetaH2Context      = "h2_context"
	MetaH3Context      = "h3_context"
	MetaIsSubChunk     = "isSubChunk"
	MetaIsForceChunked = "isForceChunked"
	MetaIsLargeSection = "isLargeSection"
)

// requiredMetadata lists the keys Validate insists on.
var requiredMetadata = []string{
	MetaUserID, MetaProjectID, MetaFilePath, MetaFileName, MetaFileType, MetaChunkIndex,
}

// Chunk is a bounded slice of a source file ready for embedding.
// Chunks are immutable once returned by a chunker.
type Chunk struct {
	Content             string
	Metadata            *Metadata
	OriginalFilePath    string
	ChunkIndex          int
	EstimatedTokenCount int
	ContentHash         [32]byte // SHA-256 of Content
}

// NewChunk builds a chunk and computes its content hash. A nil metadata
// argument yields an empty mapping.
func NewChunk(content, filePath string, index, tokens int, meta *Metadata) *Chunk {
	if meta == nil {
		meta = NewMetadata()
	}
	c := &Chunk{
		Content:             content,
		Metadata:            meta,
		OriginalFilePath:    filePath,
		ChunkIndex:          index,
		EstimatedTokenCount: tokens,
	}
	c.ComputeContentHash()
	return c
}

// ComputeContentHash computes the SHA-256 hash of the chunk content
func (c *Chunk) ComputeContentHash() {
	c.ContentHash = sha256.Sum256([]byte(c.Content))
}

// ID returns the deterministic identifier of the chunk, derived from the
// projectId metadata, the original path and the chunk index.
func (c *Chunk) ID() string {
	projectID, _ := c.Metadata.Get(MetaProjectID)
	return ChunkID(projectID, c.OriginalFilePath, c.ChunkIndex)
}

// Flag reports whether a boolean metadata key is set to "true".
func (c *Chunk) Flag(key string) bool {
	v, ok := c.Metadata.Get(key)
	return ok && v == "true"
}

// Validate checks that the chunk satisfies the data model invariants.
func (c *Chunk) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return ErrEmptyContent
	}
	if c.ChunkIndex < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkIndex, c.ChunkIndex)
	}
	if c.EstimatedTokenCount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTokenCount, c.EstimatedTokenCount)
	}
	if c.Metadata == nil {
		return fmt.Errorf("%w: metadata is nil", ErrMissingMetadata)
	}
	for _, key := range requiredMetadata {
		if _, ok := c.Metadata.Get(key); !ok {
			return fmt.Errorf("%w: %s", ErrMissingMetadata, key)
		}
	}
	if idx, _ := c.Metadata.Get(MetaChunkIndex); idx != strconv.Itoa(c.ChunkIndex) {
		return fmt.Errorf("%w: chunkIndex metadata %q does not match %d", ErrInvalidChunkIndex, idx, c.ChunkIndex)
	}
	if sha256.Sum256([]byte(c.Content)) != c.ContentHash {
		return ErrHashMismatch
	}
	return nil
}

var idReplacer = strings.NewReplacer("/", "_", `\`, "_", ".", "_")

// ChunkID derives the stable identifier {projectId}_{path}_{index}, with path
// separators and dots replaced by underscores. Re-chunking the same file
// yields the same ids at the same positions.
func ChunkID(projectID, filePath string, index int) string {
	return projectID + "_" + idReplacer.Replace(filePath) + "_" + strconv.Itoa(index)
}
