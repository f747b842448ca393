package http

import (
	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

// AddRepositoryRequest is the request body for POST /api/repositories.
// Type is accepted for frontend compatibility; only "local" is supported.
type AddRepositoryRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type,omitempty"`
}

// RepositoryResponse adds the camel-case file count the frontend cards read.
type RepositoryResponse struct {
	*codesearch.Repository
	FileCountCamel int `json:"fileCount"`
}

func newRepositoryResponse(r *codesearch.Repository) RepositoryResponse {
	return RepositoryResponse{Repository: r, FileCountCamel: r.FileCount}
}

// SnippetResponse adds the repository name under the key the snippet page reads.
type SnippetResponse struct {
	*codesearch.Snippet
	Repository string `json:"repository"`
}

// SearchResponse is the response body for GET /api/search.
type SearchResponse struct {
	Results []codesearch.SearchResult `json:"results"`
}

// IndexResponse is the response body for POST /api/repositories/:id/index.
type IndexResponse struct {
	RepositoryID    int64  `json:"repository_id"`
	SnippetsIndexed int    `json:"snippets_indexed"`
	Message         string `json:"message"`
}

// ExplainResponse is the response body for POST /api/code/:id/explain.
type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
