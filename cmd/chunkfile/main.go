// Command chunkfile chunks a single file and prints the chunks as JSON.
// It reads from stdin when the path is "-".
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/chunker"
	"github.com/dshills/ragchunk/internal/config"
	"github.com/dshills/ragchunk/internal/tokenizer"
	"github.com/dshills/ragchunk/pkg/types"
)

// cliConfig holds flag values for the chunkfile CLI.
type cliConfig struct {
	ConfigPath string
	ProjectID  string
	UserID     string
	FilePath   string
	Class      string
	Language   string
}

// chunkOutput is the JSON form of one chunk.
type chunkOutput struct {
	ID       string          `json:"id"`
	Index    int             `json:"chunk_index"`
	Tokens   int             `json:"tokens"`
	Content  string          `json:"content"`
	Metadata *types.Metadata `json:"metadata"`
}

func parseFlags() (cliConfig, []string) {
	var cfg cliConfig
	flag.StringVar(&cfg.ConfigPath, "config", os.Getenv("RAGCHUNK_CONFIG"), "path to a YAML config file")
	flag.StringVar(&cfg.ProjectID, "project", "local", "project id written to chunk metadata")
	flag.StringVar(&cfg.UserID, "user", "local", "user id written to chunk metadata")
	flag.StringVar(&cfg.FilePath, "as", "", "file path recorded in metadata (defaults to the input path)")
	flag.StringVar(&cfg.Class, "class", "", "force a content class: code, markdown, json, yaml or text")
	flag.StringVar(&cfg.Language, "language", "", "override the detected language for code")
	flag.Parse()
	return cfg, flag.Args()
}

func main() {
	cli, args := parseFlags()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: chunkfile [flags] <file|->")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(cli, args[0], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "chunkfile: %v\n", err)
		os.Exit(1)
	}
}

func run(cli cliConfig, path string, out io.Writer) error {
	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	content, err := readInput(path, cfg.MaxFileSizeBytes)
	if err != nil {
		return err
	}

	tok, err := tokenizer.New(cfg.TokenizerOptions(logger.Named("tokenizer")))
	if err != nil {
		return err
	}
	router, err := chunker.NewRouter(tok, cfg.Limits(), logger.Named("chunker"))
	if err != nil {
		return err
	}

	filePath := cli.FilePath
	if filePath == "" {
		filePath = "stdin.txt"
		if path != "-" {
			filePath = filepath.ToSlash(path)
		}
	}
	req := chunker.Request{
		Content:   string(content),
		FilePath:  filePath,
		ProjectID: cli.ProjectID,
		UserID:    cli.UserID,
		Language:  cli.Language,
	}

	var chunks []*types.Chunk
	if cli.Class != "" {
		chunks, err = router.ChunkAs(chunker.Class(cli.Class), req)
	} else {
		chunks, err = router.Chunk(req)
	}
	if err != nil {
		return err
	}

	outputs := make([]chunkOutput, 0, len(chunks))
	for _, c := range chunks {
		outputs = append(outputs, chunkOutput{
			ID:       c.ID(),
			Index:    c.ChunkIndex,
			Tokens:   c.EstimatedTokenCount,
			Content:  c.Content,
			Metadata: c.Metadata,
		})
	}

	logger.Debug("chunked file",
		zap.String("file_path", filePath),
		zap.Int("chunks", len(chunks)))

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(outputs)
}

// readInput reads path, or stdin for "-", refusing inputs over maxSize bytes.
func readInput(path string, maxSize int64) ([]byte, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("input exceeds %d bytes", maxSize)
	}
	return data, nil
}
