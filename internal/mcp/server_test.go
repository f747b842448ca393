package mcp

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

type fakeService struct {
	results  []codesearch.SearchResult
	snippets map[int64]*codesearch.Snippet
	repos    []*codesearch.Repository
	indexed  map[int64]int
	err      error

	gotQuery  string
	gotRepoID *int64
}

func (f *fakeService) Search(_ context.Context, query string, repoID *int64) ([]codesearch.SearchResult, error) {
	f.gotQuery, f.gotRepoID = query, repoID
	if f.err != nil {
		return nil, f.err
	}
	if len(query) < 3 {
		return nil, fmt.Errorf("%w: query too short", codesearch.ErrInvalidQuery)
	}
	out := make([]codesearch.SearchResult, len(f.results))
	copy(out, f.results)
	return out, nil
}

func (f *fakeService) GetSnippet(_ context.Context, id int64) (*codesearch.Snippet, error) {
	sn, ok := f.snippets[id]
	if !ok {
		return nil, fmt.Errorf("%w: snippet %d", codesearch.ErrNotFound, id)
	}
	cp := *sn
	return &cp, nil
}

func (f *fakeService) ListRepositories(context.Context) ([]*codesearch.Repository, error) {
	return f.repos, f.err
}

func (f *fakeService) IndexRepository(_ context.Context, id int64) (int, error) {
	n, ok := f.indexed[id]
	if !ok {
		return 0, fmt.Errorf("%w: repository %d", codesearch.ErrNotFound, id)
	}
	return n, nil
}

type redactScrubber struct{}

func (redactScrubber) ScrubString(s string) string {
	return strings.ReplaceAll(s, "hunter2", "[REDACTED]")
}

func newFake() *fakeService {
	return &fakeService{
		results: []codesearch.SearchResult{
			{ID: 1, RepositoryID: 1, FilePath: "app/config.py", Name: codesearch.Ptr("load_config"), StartLine: codesearch.Ptr(1), EndLine: codesearch.Ptr(2), Distance: 0.12, CodePreview: "password = 'hunter2'"},
			{ID: 2, RepositoryID: 1, FilePath: "README.md", Distance: 0.4, CodePreview: "# demo"},
		},
		snippets: map[int64]*codesearch.Snippet{
			1: {ID: 1, RepositoryID: 1, RepositoryName: "demo", FilePath: "app/config.py", Code: "password = 'hunter2'", StartLine: codesearch.Ptr(1), EndLine: codesearch.Ptr(2), Language: "python"},
		},
		repos: []*codesearch.Repository{
			{ID: 1, Name: "demo", Path: "/src/demo", FileCount: 2, Indexed: true, Files: []string{"a.py", "b.py"}},
		},
		indexed: map[int64]int{1: 7},
	}
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil)
	require.Error(t, err)

	s, err := NewServer(&Config{}, newFake())
	require.NoError(t, err)
	assert.NotNil(t, s.mcp)
}

func TestSearchCode(t *testing.T) {
	fake := newFake()
	s, err := NewServer(&Config{Scrubber: redactScrubber{}}, fake)
	require.NoError(t, err)
	ctx := context.Background()

	res, out, err := s.searchCode(ctx, nil, searchCodeInput{Query: "load config"})
	require.NoError(t, err)
	assert.Nil(t, fake.gotRepoID)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "password = '[REDACTED]'", out.Results[0].CodePreview)

	text := res.Content[0].(*mcp.TextContent).Text
	assert.Contains(t, text, "2 results")
	assert.Contains(t, text, "[1] app/config.py:1-2 load_config")
	assert.Contains(t, text, "[2] README.md (distance")

	_, _, err = s.searchCode(ctx, nil, searchCodeInput{Query: "load config", RepositoryID: 1})
	require.NoError(t, err)
	require.NotNil(t, fake.gotRepoID)
	assert.Equal(t, int64(1), *fake.gotRepoID)

	// The fake's stored previews stay untouched.
	assert.Equal(t, "password = 'hunter2'", fake.results[0].CodePreview)
}

func TestGetSnippet(t *testing.T) {
	s, err := NewServer(&Config{Scrubber: redactScrubber{}}, newFake())
	require.NoError(t, err)
	ctx := context.Background()

	res, out, err := s.getSnippet(ctx, nil, getSnippetInput{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "password = '[REDACTED]'", out.Snippet.Code)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, "app/config.py:1-2 (demo)")

	_, _, err = s.getSnippet(ctx, nil, getSnippetInput{ID: 99})
	assert.ErrorIs(t, err, codesearch.ErrNotFound)
}

func TestListAndIndexRepositories(t *testing.T) {
	s, err := NewServer(nil, newFake())
	require.NoError(t, err)
	ctx := context.Background()

	_, list, err := s.listRepositories(ctx, nil, listRepositoriesInput{})
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "demo", list.Repositories[0].Name)
	assert.True(t, list.Repositories[0].Indexed)

	_, out, err := s.indexRepository(ctx, nil, indexRepositoryInput{RepositoryID: 1})
	require.NoError(t, err)
	assert.Equal(t, 7, out.SnippetsIndexed)

	_, _, err = s.indexRepository(ctx, nil, indexRepositoryInput{RepositoryID: 5})
	assert.ErrorIs(t, err, codesearch.ErrNotFound)
}

func TestInstrument_PrefixesErrorCode(t *testing.T) {
	fake := newFake()
	fake.err = codesearch.ErrIndexNotFound
	s, err := NewServer(nil, fake)
	require.NoError(t, err)

	h := instrument(s, "search_code", s.searchCode)
	_, _, err = h(context.Background(), nil, searchCodeInput{Query: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, codesearch.ErrIndexNotFound)
	assert.True(t, strings.HasPrefix(err.Error(), codesearch.CodeIndexNotFound+": "))
}

func TestServer_InMemorySession(t *testing.T) {
	ctx := context.Background()
	s, err := NewServer(nil, newFake())
	require.NoError(t, err)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := s.Connect(ctx, serverTransport)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_code", "get_snippet", "list_repositories", "index_repository"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_code",
		Arguments: map[string]any{"query": "load config"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_code",
		Arguments: map[string]any{"query": "ab"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	assert.Contains(t, res.Content[0].(*mcp.TextContent).Text, codesearch.CodeInvalidQuery)
}
