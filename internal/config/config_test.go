package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragchunk/internal/chunker"
	"github.com/dshills/ragchunk/internal/tokenizer"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ragchunk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1500, cfg.MaxCodeChunkTokens)
	assert.Equal(t, 3, cfg.CodeOverlapLines)
	assert.Equal(t, 1000, cfg.MaxMarkdownChunkTokens)
	assert.Equal(t, 100, cfg.MarkdownOverlapTokens)
	assert.Equal(t, 750, cfg.MaxConfigChunkTokens)
	assert.Equal(t, 500, cfg.MaxTextChunkTokens)
	assert.Equal(t, 50, cfg.TextOverlapTokens)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFileSizeBytes)
	assert.Equal(t, chunker.DefaultLimits(), cfg.Limits())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
max_code_chunk_tokens: 800
code_overlap_lines: 5
max_file_size_bytes: 2048
json_keep_array_items: 5
tokenizer: tiktoken
model: gpt-4o
db_path: /tmp/chunks.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.MaxCodeChunkTokens)
	assert.Equal(t, 5, cfg.CodeOverlapLines)
	assert.Equal(t, int64(2048), cfg.MaxFileSizeBytes)
	assert.Equal(t, 5, cfg.Limits().JSONKeepArrayItems)
	assert.Equal(t, "/tmp/chunks.db", cfg.DBPath)

	// Untouched keys keep their defaults
	assert.Equal(t, 1000, cfg.MaxMarkdownChunkTokens)

	opts := cfg.TokenizerOptions(nil)
	assert.Equal(t, tokenizer.ProviderTiktoken, opts.Provider)
	assert.Equal(t, "gpt-4o", opts.Model)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().MaxTextChunkTokens, cfg.MaxTextChunkTokens)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().MaxCodeChunkTokens, cfg.MaxCodeChunkTokens)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "max_code_tokens: 10\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	_, err := Load(writeConfig(t, "max_text_chunk_tokens: 0\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, chunker.ErrInvalidLimits)

	_, err = Load(writeConfig(t, "tokenizer: sentencepiece\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RAGCHUNK_DB_PATH", "/env/index.db")
	t.Setenv("RAGCHUNK_WORKERS", "3")
	t.Setenv("RAGCHUNK_MAX_FILE_SIZE_BYTES", "4096")
	t.Setenv("RAGCHUNK_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "db_path: /file/index.db\nworkers: 8\n"))
	require.NoError(t, err)

	// Environment takes precedence over the file
	assert.Equal(t, "/env/index.db", cfg.DBPath)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, int64(4096), cfg.MaxFileSizeBytes)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyEnv_BadInteger(t *testing.T) {
	t.Setenv("RAGCHUNK_WORKERS", "many")
	err := Default().ApplyEnv()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero file size", func(c *Config) { c.MaxFileSizeBytes = 0 }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"negative cache", func(c *Config) { c.CacheSize = -1 }},
		{"negative overlap", func(c *Config) { c.CodeOverlapLines = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestResolvedDBPath(t *testing.T) {
	cfg := Default()
	cfg.DBPath = "/abs/index.db"
	path, err := cfg.ResolvedDBPath()
	require.NoError(t, err)
	assert.Equal(t, "/abs/index.db", path)

	cfg.DBPath = "~/idx/index.db"
	path, err = cfg.ResolvedDBPath()
	require.NoError(t, err)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "idx/index.db"), path)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1)) // debug
	assert.True(t, logger.Core().Enabled(1))   // warn
}
