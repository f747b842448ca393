package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

type searchCodeInput struct {
	Query        string `json:"query" jsonschema:"Natural-language or identifier query, at least 3 characters"`
	RepositoryID int64  `json:"repository_id,omitempty" jsonschema:"Restrict results to one repository; omit to search all"`
}

type searchCodeOutput struct {
	Results []codesearch.SearchResult `json:"results" jsonschema:"Hits ordered by distance, lower is closer"`
	Count   int                       `json:"count" jsonschema:"Number of results"`
}

type getSnippetInput struct {
	ID int64 `json:"id" jsonschema:"Snippet id from a search result"`
}

type getSnippetOutput struct {
	Snippet codesearch.Snippet `json:"snippet" jsonschema:"The snippet with its full code"`
}

type listRepositoriesInput struct{}

type repositorySummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
	FileCount   int    `json:"file_count"`
	Indexed     bool   `json:"indexed"`
	Branch      string `json:"branch,omitempty"`
}

type listRepositoriesOutput struct {
	Repositories []repositorySummary `json:"repositories" jsonschema:"Registered repositories ordered by id"`
	Count        int                 `json:"count" jsonschema:"Number of repositories"`
}

type indexRepositoryInput struct {
	RepositoryID int64 `json:"repository_id" jsonschema:"Repository to index"`
}

type indexRepositoryOutput struct {
	RepositoryID    int64 `json:"repository_id"`
	SnippetsIndexed int   `json:"snippets_indexed"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code",
		Description: "Semantic search over indexed code. Returns the closest snippets with a short code preview.",
	}, instrument(s, "search_code", s.searchCode))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_snippet",
		Description: "Fetch one snippet with its full code, file path and line range.",
	}, instrument(s, "get_snippet", s.getSnippet))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_repositories",
		Description: "List registered repositories and whether each has been indexed.",
	}, instrument(s, "list_repositories", s.listRepositories))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_repository",
		Description: "Extract and embed a repository's code so it can be searched. Replaces the current index unless scoped rebuilds are configured.",
	}, instrument(s, "index_repository", s.indexRepository))
}

func (s *Server) searchCode(ctx context.Context, _ *mcp.CallToolRequest, args searchCodeInput) (*mcp.CallToolResult, searchCodeOutput, error) {
	var repoID *int64
	if args.RepositoryID > 0 {
		repoID = &args.RepositoryID
	}
	results, err := s.svc.Search(ctx, args.Query, repoID)
	if err != nil {
		return nil, searchCodeOutput{}, err
	}
	for i := range results {
		results[i].CodePreview = s.scrub(results[i].CodePreview)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d results for %q", len(results), args.Query)
	for _, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s", r.ID, location(r.FilePath, r.StartLine, r.EndLine))
		if r.Name != nil {
			fmt.Fprintf(&b, " %s", *r.Name)
		}
		fmt.Fprintf(&b, " (distance %.4f)", r.Distance)
	}

	return textResult(b.String()), searchCodeOutput{Results: results, Count: len(results)}, nil
}

func (s *Server) getSnippet(ctx context.Context, _ *mcp.CallToolRequest, args getSnippetInput) (*mcp.CallToolResult, getSnippetOutput, error) {
	sn, err := s.svc.GetSnippet(ctx, args.ID)
	if err != nil {
		return nil, getSnippetOutput{}, err
	}
	sn.Code = s.scrub(sn.Code)

	text := fmt.Sprintf("%s (%s)\n\n%s", location(sn.FilePath, sn.StartLine, sn.EndLine), sn.RepositoryName, sn.Code)
	return textResult(text), getSnippetOutput{Snippet: *sn}, nil
}

func (s *Server) listRepositories(ctx context.Context, _ *mcp.CallToolRequest, _ listRepositoriesInput) (*mcp.CallToolResult, listRepositoriesOutput, error) {
	repos, err := s.svc.ListRepositories(ctx)
	if err != nil {
		return nil, listRepositoriesOutput{}, err
	}

	out := listRepositoriesOutput{Repositories: make([]repositorySummary, 0, len(repos))}
	var b strings.Builder
	fmt.Fprintf(&b, "%d repositories", len(repos))
	for _, r := range repos {
		out.Repositories = append(out.Repositories, repositorySummary{
			ID:          r.ID,
			Name:        r.Name,
			Path:        r.Path,
			Description: r.Description,
			FileCount:   r.FileCount,
			Indexed:     r.Indexed,
			Branch:      r.Branch,
		})
		fmt.Fprintf(&b, "\n[%d] %s %s (%d files, indexed=%t)", r.ID, r.Name, r.Path, r.FileCount, r.Indexed)
	}
	out.Count = len(out.Repositories)
	return textResult(b.String()), out, nil
}

func (s *Server) indexRepository(ctx context.Context, _ *mcp.CallToolRequest, args indexRepositoryInput) (*mcp.CallToolResult, indexRepositoryOutput, error) {
	n, err := s.svc.IndexRepository(ctx, args.RepositoryID)
	if err != nil {
		return nil, indexRepositoryOutput{}, err
	}
	return textResult(fmt.Sprintf("Indexed %d snippets from repository %d", n, args.RepositoryID)),
		indexRepositoryOutput{RepositoryID: args.RepositoryID, SnippetsIndexed: n}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// location formats path:start-end, or just path for whole-file snippets.
func location(path string, start, end *int) string {
	if start == nil || end == nil {
		return path
	}
	return fmt.Sprintf("%s:%d-%d", path, *start, *end)
}
