package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/chunker"
	"github.com/dshills/ragchunk/internal/config"
	"github.com/dshills/ragchunk/internal/indexer"
	"github.com/dshills/ragchunk/internal/metrics"
	"github.com/dshills/ragchunk/internal/storage"
	"github.com/dshills/ragchunk/internal/tokenizer"
)

const (
	// ServerName is the MCP server name
	ServerName = "ragchunk"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	indexer *indexer.Indexer
	tok     tokenizer.Tokenizer
	cfg     *config.Config
	logger  *zap.Logger
}

// NewServer creates a new MCP server instance. A nil logger or metrics is
// allowed.
func NewServer(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbPath, err := cfg.ResolvedDBPath()
	if err != nil {
		return nil, err
	}
	if dbPath != ":memory:" {
		// Create directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Initialize storage
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	tok, err := tokenizer.New(cfg.TokenizerOptions(logger.Named("tokenizer")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	router, err := chunker.NewRouter(tok, cfg.Limits(), logger.Named("chunker"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize chunkers: %w", err)
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage: store,
		indexer: indexer.New(store, router, logger.Named("indexer"), m),
		tok:     tok,
		cfg:     cfg,
		logger:  logger,
	}

	// Register tools
	s.registerTools()

	logger.Info("mcp server initialised",
		zap.String("db_path", dbPath),
		zap.String("tokenizer", tok.ModelName()),
		zap.String("build_mode", storage.BuildMode))
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// Close releases the storage
func (s *Server) Close() error {
	return s.storage.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(chunkContentTool(), s.handleChunkContent)
	s.mcp.AddTool(chunkFileTool(), s.handleChunkFile)
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(listChunksTool(), s.handleListChunks)
	s.mcp.AddTool(estimateTokensTool(), s.handleEstimateTokens)
}
