package codesearch

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrInvalidPath means a repository root or file path is missing or escapes its root.
	ErrInvalidPath = errors.New("invalid path")

	// ErrEmptyCorpus means an index build extracted zero code units.
	ErrEmptyCorpus = errors.New("no code units to index")

	// ErrIndexNotFound means no persisted vector index exists yet.
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvalidQuery means the search query is below the minimum length.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound means a repository, snippet, history entry or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCollaboratorUnavailable means the embedding or generative-text service
	// failed, timed out or is not configured.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// Stable error codes used at transport boundaries.
const (
	CodeInvalidPath             = "invalid_path"
	CodeEmptyCorpus             = "empty_corpus"
	CodeIndexNotFound           = "index_not_found"
	CodeInvalidQuery            = "invalid_query"
	CodeNotFound                = "not_found"
	CodeCollaboratorUnavailable = "collaborator_unavailable"
	CodeInternal                = "internal"
)

// Code maps err to its taxonomy code; unknown errors are CodeInternal.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidPath):
		return CodeInvalidPath
	case errors.Is(err, ErrEmptyCorpus):
		return CodeEmptyCorpus
	case errors.Is(err, ErrIndexNotFound):
		return CodeIndexNotFound
	case errors.Is(err, ErrInvalidQuery):
		return CodeInvalidQuery
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrCollaboratorUnavailable):
		return CodeCollaboratorUnavailable
	default:
		return CodeInternal
	}
}
