// Package codesearch defines the domain model shared by every codesearch component:
// repositories, snippets, search results and history entries, plus the error taxonomy.
package codesearch

import "time"

// Repository is a registered local source tree.
//
// Description and Files are fixed at registration. Indexed becomes true once
// an index build for the repository succeeds.
type Repository struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Description string    `json:"description"`
	Files       []string  `json:"files"`
	FileCount   int       `json:"file_count"`
	Indexed     bool      `json:"indexed"`
	AnalyzedAt  time.Time `json:"analyzed_at"`
	Branch      string    `json:"branch,omitempty"`
	Commit      string    `json:"commit,omitempty"`
}

// CodeUnit is one extracted piece of a source file. Name and line range are
// nil when the unit is a whole-file fallback.
type CodeUnit struct {
	Name      *string
	Code      string
	StartLine *int
	EndLine   *int
}

// Snippet is a persisted code unit. Snippets never change after creation and
// are removed only together with their repository.
type Snippet struct {
	ID             int64   `json:"id"`
	RepositoryID   int64   `json:"repository_id"`
	RepositoryName string  `json:"repository_name,omitempty"`
	FilePath       string  `json:"file_path"`
	Code           string  `json:"code"`
	Name           *string `json:"name,omitempty"`
	StartLine      *int    `json:"start_line,omitempty"`
	EndLine        *int    `json:"end_line,omitempty"`
	Language       string  `json:"language"`
}

// NewSnippet builds an unsaved snippet from an extracted unit.
func NewSnippet(repoID int64, filePath, language string, u CodeUnit) Snippet {
	return Snippet{
		RepositoryID: repoID,
		FilePath:     filePath,
		Code:         u.Code,
		Name:         u.Name,
		StartLine:    u.StartLine,
		EndLine:      u.EndLine,
		Language:     language,
	}
}

// SearchResult is one hydrated hit. Distance is lower-is-better.
type SearchResult struct {
	ID           int64   `json:"id"`
	RepositoryID int64   `json:"repository_id"`
	FilePath     string  `json:"file_path"`
	Name         *string `json:"name,omitempty"`
	StartLine    *int    `json:"start_line,omitempty"`
	EndLine      *int    `json:"end_line,omitempty"`
	Language     string  `json:"language"`
	Distance     float64 `json:"similarity_score"`
	CodePreview  string  `json:"code_preview"`
}

// SearchHistoryEntry records one executed search.
type SearchHistoryEntry struct {
	ID          int64     `json:"id"`
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	SearchedAt  time.Time `json:"searched_at"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
