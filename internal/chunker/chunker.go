// Package chunker splits source files into searchable code units.
//
// A Registry maps file extensions to structural extractors. Files with no
// registered extractor, files a parser rejects, and files with no definitions
// all become a single whole-file unit, so Extract never fails.
package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"go.uber.org/zap"
)

// Extractor produces code units for one language. An error means the source
// could not be parsed; the registry then falls back to the whole file.
type Extractor interface {
	Extract(path string, src []byte) ([]codesearch.CodeUnit, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(path string, src []byte) ([]codesearch.CodeUnit, error)

// Extract calls f.
func (f ExtractorFunc) Extract(path string, src []byte) ([]codesearch.CodeUnit, error) {
	return f(path, src)
}

// Registry dispatches on lower-cased file extension.
type Registry struct {
	byExt  map[string]Extractor
	logger *zap.Logger
}

// NewRegistry returns a registry with the Python and Go extractors installed.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		byExt:  make(map[string]Extractor),
		logger: logger,
	}
	r.Register(".py", ExtractorFunc(ExtractPython))
	r.Register(".go", ExtractorFunc(ExtractGo))
	return r
}

// Register installs e for ext (with or without the leading dot).
func (r *Registry) Register(ext string, e Extractor) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.byExt[ext] = e
}

// Supports reports whether ext has a structural extractor.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.byExt[strings.ToLower(ext)]
	return ok
}

// Extract returns the code units of one file. Empty or whitespace-only input
// yields no units; any other input yields at least one.
func (r *Registry) Extract(path string, src []byte) []codesearch.CodeUnit {
	if len(strings.TrimSpace(string(src))) == 0 {
		return nil
	}

	e, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return WholeFile(src)
	}

	units, err := safeExtract(e, path, src)
	if err != nil {
		r.logger.Debug("structural extraction failed, using whole file",
			zap.String("file", path), zap.Error(err))
		return WholeFile(src)
	}
	if len(units) == 0 {
		return WholeFile(src)
	}
	return units
}

// WholeFile is the fallback unit: the entire source, no name, no line range.
func WholeFile(src []byte) []codesearch.CodeUnit {
	return []codesearch.CodeUnit{{Code: string(src)}}
}

// safeExtract converts parser panics into errors.
func safeExtract(e Extractor, path string, src []byte) (units []codesearch.CodeUnit, err error) {
	defer func() {
		if p := recover(); p != nil {
			units, err = nil, fmt.Errorf("parser panic: %v", p)
		}
	}()
	return e.Extract(path, src)
}

var languages = map[string]string{
	".py":    "python",
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "bash",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
}

// LanguageFor guesses a language tag from the file extension; "text" when unknown.
func LanguageFor(path string) string {
	if lang, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}
