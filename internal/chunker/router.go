package chunker

import (
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/ragchunk/internal/tokenizer"
	"github.com/dshills/ragchunk/pkg/types"
)

// Class is the content class a file is chunked as.
type Class string

const (
	ClassCode     Class = "code"
	ClassMarkdown Class = "markdown"
	ClassJSON     Class = "json"
	ClassYAML     Class = "yaml"
	ClassText     Class = "text"
)

// Classes lists every content class.
var Classes = []Class{ClassCode, ClassMarkdown, ClassJSON, ClassYAML, ClassText}

// webExtensions are chunked as code but have no block patterns, so they go
// straight to line windows.
var webExtensions = map[string]bool{
	".html": true, ".htm": true, ".css": true, ".scss": true, ".sass": true, ".less": true, ".vue": true, ".svelte": true,
}

var configExtensions = map[string]bool{
	".json": true, ".xml": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".env": true,
}

var docExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true, ".rst": true, ".adoc": true,
}

// ignoredFiles are never indexed even when their extension is supported.
var ignoredFiles = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"composer.lock":     true,
	"cargo.lock":        true,
	"go.sum":            true,
	".gitignore":        true,
	".gitattributes":    true,
	".eslintrc":         true,
	".prettierrc":       true,
	".editorconfig":     true,
}

var ignoredSuffixes = []string{".min.js", ".min.css", ".map"}

var languageNames = map[string]string{
	".cs": "csharp", ".java": "java", ".py": "python", ".pyi": "python",
	".js": "javascript", ".mjs": "javascript", ".cjs": "javascript", ".jsx": "jsx",
	".ts": "typescript", ".tsx": "tsx", ".go": "go", ".rs": "rust",
	".c": "c", ".h": "cpp", ".cc": "cpp", ".cpp": "cpp", ".cxx": "cpp", ".hpp": "cpp", ".hh": "cpp",
	".kt": "kotlin", ".kts": "kotlin",
	".html": "html", ".htm": "html", ".css": "css", ".scss": "scss", ".sass": "scss", ".less": "less",
	".vue": "vue", ".svelte": "svelte",
	".md": "markdown", ".markdown": "markdown", ".json": "json", ".xml": "xml",
	".yaml": "yaml", ".yml": "yaml", ".toml": "toml", ".ini": "ini",
}

// LanguageFor maps an extension to a language name, "text" when unknown.
func LanguageFor(ext string) string {
	if name, ok := languageNames[strings.ToLower(ext)]; ok {
		return name
	}
	return "text"
}

// Classify returns the content class for a path.
func Classify(filePath string) Class {
	ext := fileType(filePath)
	switch {
	case ext == ".md" || ext == ".markdown":
		return ClassMarkdown
	case ext == ".json":
		return ClassJSON
	case ext == ".yaml" || ext == ".yml":
		return ClassYAML
	case patternFor(ext) != nil || webExtensions[ext]:
		return ClassCode
	default:
		return ClassText
	}
}

// IsSupported reports whether a path has an extension worth indexing.
func IsSupported(filePath string) bool {
	ext := fileType(filePath)
	return patternFor(ext) != nil || webExtensions[ext] || configExtensions[ext] || docExtensions[ext]
}

// IsIgnored reports whether a file is excluded by name.
func IsIgnored(filePath string) bool {
	name := strings.ToLower(path.Base(strings.ReplaceAll(filePath, `\`, "/")))
	if ignoredFiles[name] {
		return true
	}
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Router dispatches a request to the chunker for its content class.
type Router struct {
	strategies map[Class]Strategy
	logger     *zap.Logger
}

// NewRouter builds one chunker per content class sharing tok and limits.
func NewRouter(tok tokenizer.Tokenizer, limits Limits, logger *zap.Logger) (*Router, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		logger: logger,
		strategies: map[Class]Strategy{
			ClassCode:     NewCode(tok, limits, logger.Named("code")),
			ClassMarkdown: NewMarkdown(tok, limits, logger.Named("markdown")),
			ClassJSON:     NewJSON(tok, limits, logger.Named("json")),
			ClassYAML:     NewYAML(tok, limits, logger.Named("yaml")),
			ClassText:     NewPlainText(tok, limits.MaxTextTokens, limits.TextOverlapTokens, logger.Named("text")),
		},
	}, nil
}

// Chunk implements Strategy.
func (r *Router) Chunk(req Request) ([]*types.Chunk, error) {
	return r.ChunkAs(Classify(req.FilePath), req)
}

// ChunkAs chunks req with the chunker for class, ignoring the extension.
func (r *Router) ChunkAs(class Class, req Request) ([]*types.Chunk, error) {
	s, ok := r.strategies[class]
	if !ok {
		s = r.strategies[ClassText]
	}
	return s.Chunk(req)
}
