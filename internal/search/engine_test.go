package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/embeddings"
	"github.com/fyrsmithlabs/codesearch/internal/indexer"
	"github.com/fyrsmithlabs/codesearch/internal/store"
	"github.com/fyrsmithlabs/codesearch/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== FAKES =====

type fakeHandle struct {
	hits []vectorstore.Hit
	gotK int
}

func (h *fakeHandle) Query(_ context.Context, _ []float32, k int) ([]vectorstore.Hit, error) {
	h.gotK = k
	if len(h.hits) > k {
		return h.hits[:k], nil
	}
	return h.hits, nil
}

func (h *fakeHandle) Count(context.Context) (int, error) { return len(h.hits), nil }

type fakeIndex struct {
	handle   *fakeHandle
	manifest *indexer.IndexManifest
}

func (f *fakeIndex) Load(context.Context) (vectorstore.Handle, error) {
	if f.handle == nil {
		return nil, fmt.Errorf("%w: empty", codesearch.ErrIndexNotFound)
	}
	return f.handle, nil
}

func (f *fakeIndex) Manifest() (*indexer.IndexManifest, error) {
	if f.manifest == nil {
		return nil, codesearch.ErrIndexNotFound
	}
	return f.manifest, nil
}

type brokenEmbedder struct{ embeddings.Embedder }

func (brokenEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("503 from upstream")
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Options{
		Driver: store.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "codesearch.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seed creates a repository with n snippets and returns their ids.
func seed(t *testing.T, st *store.Store, name string, n int) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	repo := &codesearch.Repository{Name: name, Path: "/src/" + name}
	require.NoError(t, st.CreateRepository(ctx, repo))

	snippets := make([]codesearch.Snippet, n)
	for i := range snippets {
		snippets[i] = codesearch.NewSnippet(repo.ID, fmt.Sprintf("f%d.py", i), "python", codesearch.CodeUnit{
			Name: codesearch.Ptr(fmt.Sprintf("fn_%s_%d", name, i)),
			Code: fmt.Sprintf("def fn_%s_%d():\n    pass\n", name, i),
		})
	}
	require.NoError(t, st.CreateSnippets(ctx, snippets))

	ids := make([]int64, n)
	for i, sn := range snippets {
		ids[i] = sn.ID
	}
	return repo.ID, ids
}

func newEngine(st *store.Store, idx Index) *Engine {
	return NewEngine(st, idx, embeddings.NewHashProvider(32), "hash-32", Config{}, nil)
}

func historyCounts(t *testing.T, st *store.Store) []int {
	t.Helper()
	entries, err := st.ListHistory(context.Background())
	require.NoError(t, err)
	counts := make([]int, len(entries))
	for i, e := range entries {
		counts[i] = e.ResultCount
	}
	return counts
}

// ===== TESTS =====

func TestSearch_QueryLengthBoundary(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	repoID, ids := seed(t, st, "a", 1)
	e := newEngine(st, &fakeIndex{handle: &fakeHandle{hits: []vectorstore.Hit{{SnippetID: ids[0], RepositoryID: repoID}}}})

	_, err := e.Search(ctx, "ab", nil)
	assert.ErrorIs(t, err, codesearch.ErrInvalidQuery)
	assert.Empty(t, historyCounts(t, st), "rejected queries are not recorded")

	results, err := e.Search(ctx, "abc", nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = e.Search(ctx, "éé", nil)
	assert.ErrorIs(t, err, codesearch.ErrInvalidQuery, "length is counted in characters")

	// Whitespace is not trimmed before counting.
	_, err = e.Search(ctx, " a ", nil)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 1}, historyCounts(t, st))
}

func TestLookup_DoesNotRecordHistory(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	repoID, ids := seed(t, st, "a", 1)
	e := newEngine(st, &fakeIndex{handle: &fakeHandle{hits: []vectorstore.Hit{{SnippetID: ids[0], RepositoryID: repoID}}}})

	results, err := e.Lookup(ctx, "abc", nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Empty(t, historyCounts(t, st))

	_, err = e.Lookup(ctx, "ab", nil)
	assert.ErrorIs(t, err, codesearch.ErrInvalidQuery)

	_, err = e.Search(ctx, "abc", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, historyCounts(t, st))
}

func TestSearch_NoIndex(t *testing.T) {
	st := openStore(t)
	e := newEngine(st, &fakeIndex{})

	_, err := e.Search(context.Background(), "parse config", nil)
	assert.ErrorIs(t, err, codesearch.ErrIndexNotFound)
}

func TestSearch_FilterAfterRetrievalWithoutBackfill(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	repoA, idsA := seed(t, st, "a", 10)
	repoB, idsB := seed(t, st, "b", 2)

	// The five nearest entries are four of A's and one of B's; B's second
	// snippet ranks sixth and must not be backfilled.
	handle := &fakeHandle{hits: []vectorstore.Hit{
		{SnippetID: idsA[0], RepositoryID: repoA, Distance: 0.10},
		{SnippetID: idsA[1], RepositoryID: repoA, Distance: 0.11},
		{SnippetID: idsB[0], RepositoryID: repoB, Distance: 0.12},
		{SnippetID: idsA[2], RepositoryID: repoA, Distance: 0.13},
		{SnippetID: idsA[3], RepositoryID: repoA, Distance: 0.14},
		{SnippetID: idsB[1], RepositoryID: repoB, Distance: 0.15},
	}}
	e := newEngine(st, &fakeIndex{handle: handle})

	results, err := e.Search(ctx, "function", &repoB)
	require.NoError(t, err)
	assert.Equal(t, 5, handle.gotK)
	require.Len(t, results, 1)
	assert.Equal(t, idsB[0], results[0].ID)
	assert.Equal(t, repoB, results[0].RepositoryID)
	assert.InDelta(t, 0.12, results[0].Distance, 1e-9)

	all, err := e.Search(ctx, "function", nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Distance, all[i].Distance)
	}

	assert.Equal(t, []int{5, 1}, historyCounts(t, st))
}

func TestSearch_DropsStaleHits(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	repoID, ids := seed(t, st, "a", 2)
	e := newEngine(st, &fakeIndex{handle: &fakeHandle{hits: []vectorstore.Hit{
		{SnippetID: ids[0], RepositoryID: repoID},
		{SnippetID: 9999, RepositoryID: repoID},
		{SnippetID: ids[1], RepositoryID: repoID},
	}}})

	results, err := e.Search(ctx, "function", nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[0], results[0].ID)
	assert.Equal(t, ids[1], results[1].ID)
	assert.Equal(t, []int{2}, historyCounts(t, st))
}

func TestSearch_RecordsZeroResults(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	e := newEngine(st, &fakeIndex{handle: &fakeHandle{}})

	results, err := e.Search(ctx, "nothing here", nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Equal(t, []int{0}, historyCounts(t, st))
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	st := openStore(t)
	e := NewEngine(st, &fakeIndex{handle: &fakeHandle{}}, brokenEmbedder{}, "", Config{}, nil)

	_, err := e.Search(context.Background(), "anything", nil)
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
	assert.Empty(t, historyCounts(t, st))
}

func TestSearch_PreviewIsTruncated(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	repo := &codesearch.Repository{Name: "r", Path: "/r"}
	require.NoError(t, st.CreateRepository(ctx, repo))
	code := strings.Repeat("ü", 450)
	snippets := []codesearch.Snippet{codesearch.NewSnippet(repo.ID, "long.txt", "text", codesearch.CodeUnit{Code: code})}
	require.NoError(t, st.CreateSnippets(ctx, snippets))

	e := newEngine(st, &fakeIndex{handle: &fakeHandle{hits: []vectorstore.Hit{{SnippetID: snippets[0].ID, RepositoryID: repo.ID}}}})
	results, err := e.Search(ctx, "umlaut", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 300, utf8.RuneCountInString(results[0].CodePreview))
	assert.True(t, utf8.ValidString(results[0].CodePreview))
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 300, "short"},
		{"abcdef", 3, "abc"},
		{"héllo", 2, "hé"},
		{"", 5, ""},
		{"exact", 5, "exact"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Preview(tt.in, tt.n))
	}
}

// buildFixture wires a real store, chromem index and overwrite-policy
// manager in a temp dir.
type buildFixture struct {
	dir      string
	store    *store.Store
	manager  *indexer.Manager
	provider embeddings.Provider
}

func newBuildFixture(t *testing.T) *buildFixture {
	t.Helper()
	dir := t.TempDir()
	st := openStore(t)
	provider := embeddings.NewHashProvider(128)

	idx, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dir: filepath.Join(dir, "index")}, nil)
	require.NoError(t, err)
	mgr, err := indexer.NewManager(st, idx, provider, nil, indexer.Config{
		ManifestPath: indexer.ManifestPathIn(filepath.Join(dir, "index")),
	}, nil)
	require.NoError(t, err)
	return &buildFixture{dir: dir, store: st, manager: mgr, provider: provider}
}

func (f *buildFixture) repo(t *testing.T, name, file, code string) *codesearch.Repository {
	t.Helper()
	root := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, file), []byte(code), 0644))
	repo := &codesearch.Repository{Name: name, Path: root}
	require.NoError(t, f.store.CreateRepository(context.Background(), repo))
	return repo
}

func (f *buildFixture) engine() *Engine {
	return NewEngine(f.store, f.manager, f.provider, f.provider.Model(), Config{}, nil)
}

func TestSearch_OverwriteScenario(t *testing.T) {
	ctx := context.Background()
	f := newBuildFixture(t)

	a := f.repo(t, "A", "tokens.py", `def tokenize_input(text):
    return text.split()


def strip_tokens(tokens):
    return [t.strip() for t in tokens]


def count_tokens(tokens):
    return len(tokens)
`)
	b := f.repo(t, "B", "server.py", `def start_server(port):
    listen(port)


def stop_server(handle):
    handle.close()
`)

	n, err := f.manager.Build(ctx, a)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = f.manager.Build(ctx, b)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	e := f.engine()

	results, err := e.Search(ctx, "tokenize_input text", nil)
	require.NoError(t, err)
	assert.Len(t, results, 2, "only B's two vectors remain")
	for _, r := range results {
		assert.Equal(t, b.ID, r.RepositoryID, "A's vectors were replaced by B's build")
	}

	results, err = e.Search(ctx, "tokenize_input text", &a.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	count, err := f.store.CountSnippets(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "A's snippets stay in the store")

	results, err = e.Search(ctx, "start_server port", &b.ID)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "server.py", results[0].FilePath)
	require.NotNil(t, results[0].Name)
	assert.Equal(t, "start_server", *results[0].Name)
}

func TestSearch_ExactCodeFindsItsSnippet(t *testing.T) {
	ctx := context.Background()
	f := newBuildFixture(t)

	units := map[string]string{
		"load_config":  "def load_config(path):\n    with open(path) as fh:\n        return parse(fh.read())",
		"save_report":  "def save_report(report, target):\n    target.write(render(report))",
		"retry_failed": "def retry_failed(jobs, limit):\n    return [j for j in jobs if j.attempts < limit]",
	}
	src := units["load_config"] + "\n\n\n" + units["save_report"] + "\n\n\n" + units["retry_failed"] + "\n"
	repo := f.repo(t, "tools", "tools.py", src)

	_, err := f.manager.Build(ctx, repo)
	require.NoError(t, err)

	e := f.engine()
	for name, code := range units {
		results, err := e.Search(ctx, code, nil)
		require.NoError(t, err)
		require.NotEmpty(t, results, name)
		require.NotNil(t, results[0].Name, name)
		assert.Equal(t, name, *results[0].Name)

		sn, err := f.store.GetSnippet(ctx, results[0].ID)
		require.NoError(t, err)
		assert.Equal(t, code, sn.Code, "stored code reproduces the source span")
	}
	assert.Len(t, historyCounts(t, f.store), len(units))
}
