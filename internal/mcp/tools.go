package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/chunker"
	"github.com/dshills/ragchunk/internal/indexer"
	"github.com/dshills/ragchunk/internal/storage"
	"github.com/dshills/ragchunk/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeFileTooLarge       = -32001 // File exceeds the configured size cap
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Project or file not indexed
)

// maxErrorsReported caps the per-file errors echoed by index_project
const maxErrorsReported = 5

// handleChunkContent handles the chunk_content tool invocation
func (s *Server) handleChunkContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	content, ok := args["content"].(string)
	if !ok {
		return nil, missingParam("content")
	}
	req, err := chunkRequest(args, true)
	if err != nil {
		return nil, err
	}
	req.Content = content

	class, err := contentClass(args)
	if err != nil {
		return nil, err
	}

	chunks, err := s.indexer.ChunkContent(ctx, class, req)
	if err != nil {
		return nil, chunkingError(err)
	}
	return mcp.NewToolResultText(formatJSON(chunksResponse(req.FilePath, chunks))), nil
}

// handleChunkFile handles the chunk_file tool invocation
func (s *Server) handleChunkFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, missingParam("path")
	}
	if err := validateFile(path); err != nil {
		return nil, invalidParam("path", err)
	}

	req, err := chunkRequest(args, false)
	if err != nil {
		return nil, err
	}
	if req.FilePath == "" {
		req.FilePath = filepath.Base(path)
	}

	chunks, err := s.indexer.ChunkFile(ctx, path, s.cfg.MaxFileSizeBytes, req)
	if errors.Is(err, indexer.ErrFileTooLarge) {
		return nil, newMCPError(ErrorCodeFileTooLarge, "file too large", map[string]interface{}{
			"path":      path,
			"max_bytes": s.cfg.MaxFileSizeBytes,
		})
	}
	if err != nil {
		return nil, chunkingError(err)
	}
	return mcp.NewToolResultText(formatJSON(chunksResponse(req.FilePath, chunks))), nil
}

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, missingParam("path")
	}
	if err := validateDir(path); err != nil {
		return nil, invalidParam("path", err)
	}
	projectID, userID, err := owner(args)
	if err != nil {
		return nil, err
	}

	workers := getIntDefault(args, "workers", s.cfg.Workers)
	if workers < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "workers must be >= 0", map[string]interface{}{
			"param": "workers",
			"value": workers,
		})
	}

	config := &indexer.Config{
		Workers:          workers,
		MaxFileSizeBytes: s.cfg.MaxFileSizeBytes,
		Force:            getBoolDefault(args, "force", false),
	}

	stats, err := s.indexer.IndexProject(ctx, path, projectID, userID, config)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		s.logger.Warn("index_project failed", zap.String("project_id", projectID), zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":         true,
		"run_id":          stats.RunID,
		"project_id":      projectID,
		"files_indexed":   stats.FilesIndexed,
		"files_skipped":   stats.FilesSkipped,
		"files_failed":    stats.FilesFailed,
		"files_removed":   stats.FilesRemoved,
		"chunks_created":  stats.ChunksCreated,
		"chunks_by_class": stats.ChunksByClass,
		"duration_ms":     stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxErrorsReported {
			response["errors"] = stats.ErrorMessages[:maxErrorsReported]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParam("project_id")
	}

	status, err := s.storage.GetStatus(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		// Project not indexed
		response := map[string]interface{}{
			"indexed":    false,
			"project_id": projectID,
			"message":    "Project not indexed. Use the index_project tool to index it.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	project := status.Project
	response := map[string]interface{}{
		"indexed": true,
		"project": map[string]interface{}{
			"id":              project.ID,
			"user_id":         project.UserID,
			"root_path":       project.RootPath,
			"index_version":   project.IndexVersion,
			"last_indexed_at": formatTime(project.LastIndexedAt),
		},
		"statistics": map[string]interface{}{
			"files_count":     status.FilesCount,
			"failed_files":    status.FailedFiles,
			"chunks_count":    status.ChunksCount,
			"tokens_total":    status.TokensTotal,
			"chunks_by_class": status.ChunksByClass,
			"index_size_mb":   fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"schema_version":      status.Health.SchemaVersion,
		},
	}
	if run := status.LastRun; run != nil {
		lastRun := map[string]interface{}{
			"run_id":         run.ID,
			"finished_at":    formatTime(run.FinishedAt),
			"duration_ms":    run.Duration().Milliseconds(),
			"files_indexed":  run.FilesIndexed,
			"files_skipped":  run.FilesSkipped,
			"files_failed":   run.FilesFailed,
			"chunks_created": run.ChunksCreated,
		}
		if run.ErrorMessage != nil {
			lastRun["error"] = *run.ErrorMessage
		}
		response["last_run"] = lastRun
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListChunks handles the list_chunks tool invocation
func (s *Server) handleListChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return nil, missingParam("project_id")
	}
	filePath, ok := args["file_path"].(string)
	if !ok || filePath == "" {
		return nil, missingParam("file_path")
	}

	file, err := s.storage.GetFile(ctx, projectID, filepath.ToSlash(filePath))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "file not indexed", map[string]interface{}{
			"project_id": projectID,
			"file_path":  filePath,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get file", map[string]interface{}{
			"error": err.Error(),
		})
	}

	rows, err := s.storage.ListChunksByFile(ctx, file.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list chunks", map[string]interface{}{
			"error": err.Error(),
		})
	}
	chunks := make([]*types.Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, row.ToTypesChunk(file.FilePath))
	}

	response := chunksResponse(file.FilePath, chunks)
	response["content_class"] = file.ContentClass
	if file.ChunkError != nil {
		response["chunk_error"] = *file.ChunkError
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleEstimateTokens handles the estimate_tokens tool invocation
func (s *Server) handleEstimateTokens(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	text, ok := args["text"].(string)
	if !ok {
		return nil, missingParam("text")
	}

	response := map[string]interface{}{
		"tokens":     s.tok.EstimateTokenCount(text),
		"tokenizer":  s.tok.ModelName(),
		"characters": len([]rune(text)),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func missingParam(name string) error {
	return newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
		"param":  name,
		"reason": "missing or empty",
	})
}

func invalidParam(name string, err error) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid "+name, map[string]interface{}{
		"param":  name,
		"reason": err.Error(),
	})
}

// chunkingError maps a chunker failure onto an MCP error
func chunkingError(err error) error {
	if errors.Is(err, types.ErrInvalidRequest) {
		return newMCPError(ErrorCodeInvalidParams, "invalid chunk request", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	return newMCPError(ErrorCodeInternalError, "chunking failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// arguments extracts the argument map of a tool call
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// owner extracts the required project_id and user_id parameters
func owner(args map[string]interface{}) (string, string, error) {
	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return "", "", missingParam("project_id")
	}
	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return "", "", missingParam("user_id")
	}
	return projectID, userID, nil
}

// chunkRequest builds a chunker request from tool arguments. file_path is
// mandatory when requirePath is set.
func chunkRequest(args map[string]interface{}, requirePath bool) (chunker.Request, error) {
	projectID, userID, err := owner(args)
	if err != nil {
		return chunker.Request{}, err
	}
	filePath := getStringDefault(args, "file_path", "")
	if requirePath && filePath == "" {
		return chunker.Request{}, missingParam("file_path")
	}
	return chunker.Request{
		FilePath:  filepath.ToSlash(filePath),
		ProjectID: projectID,
		UserID:    userID,
		Language:  getStringDefault(args, "language", ""),
	}, nil
}

// contentClass reads the optional content_class override
func contentClass(args map[string]interface{}) (chunker.Class, error) {
	raw := getStringDefault(args, "content_class", "")
	if raw == "" {
		return "", nil
	}
	for _, c := range chunker.Classes {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", newMCPError(ErrorCodeInvalidParams, "invalid content_class", map[string]interface{}{
		"param":   "content_class",
		"value":   raw,
		"allowed": chunker.Classes,
	})
}

// chunksResponse renders chunks for a tool result
func chunksResponse(filePath string, chunks []*types.Chunk) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(chunks))
	totalTokens := 0
	for _, c := range chunks {
		totalTokens += c.EstimatedTokenCount
		items = append(items, map[string]interface{}{
			"id":          c.ID(),
			"chunk_index": c.ChunkIndex,
			"tokens":      c.EstimatedTokenCount,
			"content":     c.Content,
			"metadata":    c.Metadata,
		})
	}
	return map[string]interface{}{
		"file_path":    filePath,
		"chunk_count":  len(chunks),
		"total_tokens": totalTokens,
		"chunks":       items,
	}
}

// validateDir checks that a path is an absolute, readable directory
func validateDir(path string) error {
	info, err := statAbsolute(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	// Check if directory is readable
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// validateFile checks that a path is an absolute regular file
func validateFile(path string) error {
	info, err := statAbsolute(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return ErrNotRegularFile
	}
	return nil
}

func statAbsolute(path string) (os.FileInfo, error) {
	if path == "" {
		return nil, ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}
	return info, nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

func formatTime(t interface{ IsZero() bool }) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNotRegularFile  = errors.New("path is not a regular file")
)
