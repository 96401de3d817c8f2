// Package config loads ragchunk settings from a YAML file and the
// environment.
//
// Precedence, lowest first: Default, the YAML file, RAGCHUNK_* environment
// variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/dshills/ragchunk/internal/chunker"
	"github.com/dshills/ragchunk/internal/tokenizer"
)

// ErrInvalidConfig is returned by Validate and Load for unusable settings.
var ErrInvalidConfig = errors.New("invalid config")

const (
	// DefaultDBPath is the default location for the chunk index
	DefaultDBPath = "~/.ragchunk/index.db"

	// DefaultMaxFileSizeBytes skips files larger than 10 MiB
	DefaultMaxFileSizeBytes = 10 * 1024 * 1024

	envPrefix = "RAGCHUNK_"
)

// Config represents the ragchunk configuration
type Config struct {
	// Chunking budgets
	MaxCodeChunkTokens     int `yaml:"max_code_chunk_tokens"`
	CodeOverlapLines       int `yaml:"code_overlap_lines"`
	MaxMarkdownChunkTokens int `yaml:"max_markdown_chunk_tokens"`
	MarkdownOverlapTokens  int `yaml:"markdown_overlap_tokens"`
	MaxConfigChunkTokens   int `yaml:"max_config_chunk_tokens"`
	MaxTextChunkTokens     int `yaml:"max_text_chunk_tokens"`
	TextOverlapTokens      int `yaml:"text_overlap_tokens"`

	// JSON traversal
	JSONKeepObjectProperties int `yaml:"json_keep_object_properties"`
	JSONKeepArrayItems       int `yaml:"json_keep_array_items"`
	JSONArraySplitFactor     int `yaml:"json_array_split_factor"`

	// Indexing
	MaxFileSizeBytes int64  `yaml:"max_file_size_bytes"`
	Workers          int    `yaml:"workers"` // 0 uses GOMAXPROCS
	DBPath           string `yaml:"db_path"`

	// Token estimation
	Tokenizer string `yaml:"tokenizer"` // charratio or tiktoken
	Model     string `yaml:"model"`
	CacheSize int    `yaml:"cache_size"`

	// Operations
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the endpoint
	LogLevel    string `yaml:"log_level"`
}

// Default returns default configuration
func Default() *Config {
	l := chunker.DefaultLimits()
	return &Config{
		MaxCodeChunkTokens:       l.MaxCodeTokens,
		CodeOverlapLines:         l.CodeOverlapLines,
		MaxMarkdownChunkTokens:   l.MaxMarkdownTokens,
		MarkdownOverlapTokens:    l.MarkdownOverlapTokens,
		MaxConfigChunkTokens:     l.MaxConfigTokens,
		MaxTextChunkTokens:       l.MaxTextTokens,
		TextOverlapTokens:        l.TextOverlapTokens,
		JSONKeepObjectProperties: l.JSONKeepObjectProperties,
		JSONKeepArrayItems:       l.JSONKeepArrayItems,
		JSONArraySplitFactor:     l.JSONArraySplitFactor,
		MaxFileSizeBytes:         DefaultMaxFileSizeBytes,
		DBPath:                   DefaultDBPath,
		Tokenizer:                tokenizer.ProviderCharRatio,
		CacheSize:                4096,
		LogLevel:                 "info",
	}
}

// Load reads configuration from a YAML file, then applies environment
// overrides and validates the result. An empty path skips the file.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		cleanPath := filepath.Clean(configFile)
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected so typos do not
// silently fall back to defaults.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from RAGCHUNK_* environment variables.
// Environment variables take precedence over file values.
func (c *Config) ApplyEnv() error {
	if v := getEnv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := getEnv("TOKENIZER"); v != "" {
		c.Tokenizer = v
	}
	if v := getEnv("MODEL"); v != "" {
		c.Model = v
	}
	if v := getEnv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	ints := map[string]*int{
		"WORKERS":                   &c.Workers,
		"CACHE_SIZE":                &c.CacheSize,
		"MAX_CODE_CHUNK_TOKENS":     &c.MaxCodeChunkTokens,
		"MAX_MARKDOWN_CHUNK_TOKENS": &c.MaxMarkdownChunkTokens,
		"MAX_CONFIG_CHUNK_TOKENS":   &c.MaxConfigChunkTokens,
		"MAX_TEXT_CHUNK_TOKENS":     &c.MaxTextChunkTokens,
	}
	for key, dst := range ints {
		v := getEnv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalidConfig, envPrefix, key, v)
		}
		*dst = n
	}

	if v := getEnv("MAX_FILE_SIZE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_FILE_SIZE_BYTES=%q is not an integer", ErrInvalidConfig, envPrefix, v)
		}
		c.MaxFileSizeBytes = n
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Limits().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MaxFileSizeBytes < 1 {
		return fmt.Errorf("%w: max_file_size_bytes must be >= 1, got %d", ErrInvalidConfig, c.MaxFileSizeBytes)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("%w: cache_size must be >= 0, got %d", ErrInvalidConfig, c.CacheSize)
	}
	switch strings.ToLower(c.Tokenizer) {
	case "", tokenizer.ProviderCharRatio, tokenizer.ProviderTiktoken:
	default:
		return fmt.Errorf("%w: unknown tokenizer %q", ErrInvalidConfig, c.Tokenizer)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Limits returns the chunker budgets.
func (c *Config) Limits() chunker.Limits {
	return chunker.Limits{
		MaxCodeTokens:            c.MaxCodeChunkTokens,
		CodeOverlapLines:         c.CodeOverlapLines,
		MaxMarkdownTokens:        c.MaxMarkdownChunkTokens,
		MarkdownOverlapTokens:    c.MarkdownOverlapTokens,
		MaxConfigTokens:          c.MaxConfigChunkTokens,
		MaxTextTokens:            c.MaxTextChunkTokens,
		TextOverlapTokens:        c.TextOverlapTokens,
		JSONKeepObjectProperties: c.JSONKeepObjectProperties,
		JSONKeepArrayItems:       c.JSONKeepArrayItems,
		JSONArraySplitFactor:     c.JSONArraySplitFactor,
	}
}

// TokenizerOptions returns the options for tokenizer.New.
func (c *Config) TokenizerOptions(logger *zap.Logger) tokenizer.Options {
	return tokenizer.Options{
		Provider:  strings.ToLower(c.Tokenizer),
		Model:     c.Model,
		CacheSize: c.CacheSize,
		Logger:    logger,
	}
}

// ResolvedDBPath expands a leading ~ to the user's home directory.
func (c *Config) ResolvedDBPath() (string, error) {
	if c.DBPath == ":memory:" || !strings.HasPrefix(c.DBPath, "~") {
		return c.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(c.DBPath, "~")), nil
}

// NewLogger builds a production zap logger at the configured level writing
// to stderr. Stdout is reserved for the MCP protocol.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}
