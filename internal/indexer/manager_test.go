package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/embeddings"
	"github.com/fyrsmithlabs/codesearch/internal/store"
	"github.com/fyrsmithlabs/codesearch/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== FIXTURES =====

type fixture struct {
	store   *store.Store
	index   *vectorstore.ChromemStore
	manager *Manager
	dir     string
}

func newFixture(t *testing.T, policy string) *fixture {
	return newFixtureWith(t, policy, embeddings.NewHashProvider(64))
}

func newFixtureWith(t *testing.T, policy string, provider embeddings.Provider) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	st, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, Path: filepath.Join(dir, "codesearch.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	idx, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Dir: filepath.Join(dir, "index")}, nil)
	require.NoError(t, err)

	m, err := NewManager(st, idx, provider, nil, Config{
		Policy:       policy,
		ManifestPath: ManifestPathIn(filepath.Join(dir, "index")),
		BatchSize:    2,
	}, nil)
	require.NoError(t, err)

	return &fixture{store: st, index: idx, manager: m, dir: dir}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func (f *fixture) addRepo(t *testing.T, name string, files map[string]string) *codesearch.Repository {
	t.Helper()
	repo := &codesearch.Repository{Name: name, Path: writeTree(t, files), Files: []string{}}
	require.NoError(t, f.store.CreateRepository(context.Background(), repo))
	return repo
}

// indexedSnippets returns the snippet ids currently in the index.
func (f *fixture) indexedSnippets(t *testing.T) []int64 {
	t.Helper()
	ctx := context.Background()
	h, err := f.manager.Load(ctx)
	require.NoError(t, err)
	n, err := h.Count(ctx)
	require.NoError(t, err)
	if n == 0 {
		return []int64{}
	}
	hits, err := h.Query(ctx, embeddings.HashVector("anything", 64), n)
	require.NoError(t, err)
	ids := make([]int64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.SnippetID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type failingProvider struct {
	embeddings.Provider
	err error
}

func (p failingProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, p.err
}

// ===== TESTS =====

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(nil, nil, nil, nil, Config{Policy: "append", ManifestPath: "m.json"}, nil)
	assert.Error(t, err)

	_, err = NewManager(nil, nil, nil, nil, Config{}, nil)
	assert.Error(t, err)

	m, err := NewManager(nil, nil, nil, nil, Config{ManifestPath: "m.json"}, nil)
	require.NoError(t, err)
	assert.Equal(t, PolicyOverwrite, m.Policy())
	assert.Equal(t, int64(defaultMaxFileSize), m.cfg.MaxFileSize)
}

func TestBuild_ExtractsAndIndexes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyOverwrite)
	repo := f.addRepo(t, "demo", map[string]string{
		"a.py":                "def alpha():\n    return 1\n\n\ndef beta():\n    return 2\n",
		"b.py":                "def broken(:\n",
		"node_modules/c.py":   "def hidden():\n    pass\n",
		"README.md":           "# demo\n",
		"empty.txt":           "",
		"assets/logo.bin":     "\xff\xfe\x00binary",
		".git/objects/x.py":   "def git(): pass\n",
		"__pycache__/a.pyc":   "compiled",
		"pkg/deep/helpers.go": "package deep\n\nfunc Helper() int { return 1 }\n",
	})

	n, err := f.manager.Build(ctx, repo)
	require.NoError(t, err)
	// alpha, beta, broken (whole file), README (whole file), Helper.
	assert.Equal(t, 5, n)

	ids := f.indexedSnippets(t)
	require.Len(t, ids, 5)

	snippets, err := f.store.GetSnippets(ctx, ids)
	require.NoError(t, err)
	paths := map[string]int{}
	for _, sn := range snippets {
		paths[sn.FilePath]++
		assert.Equal(t, repo.ID, sn.RepositoryID)
	}
	assert.Equal(t, map[string]int{"a.py": 2, "b.py": 1, "README.md": 1, "pkg/deep/helpers.go": 1}, paths)

	got, err := f.store.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.True(t, got.Indexed)

	manifest, err := f.manager.Manifest()
	require.NoError(t, err)
	assert.Equal(t, PolicyOverwrite, manifest.Policy)
	assert.Equal(t, "hash-64", manifest.Model)
	assert.Equal(t, 64, manifest.Dimension)
	assert.Equal(t, 5, manifest.Entries)
	assert.Equal(t, []int64{repo.ID}, manifest.Repositories)
	assert.NotEmpty(t, manifest.BuildID)
}

func TestBuild_SkipsLargeFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyOverwrite)
	f.manager.cfg.MaxFileSize = 64
	repo := f.addRepo(t, "big", map[string]string{
		"small.py": "def small():\n    pass\n",
		"large.py": "def large():\n    x = '" + strings.Repeat("a", 200) + "'\n",
	})

	n, err := f.manager.Build(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBuild_EmptyCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyOverwrite)
	repo := f.addRepo(t, "empty", map[string]string{
		"blank.py":          "   \n",
		"node_modules/x.js": "module.exports = 1",
	})

	_, err := f.manager.Build(ctx, repo)
	assert.ErrorIs(t, err, codesearch.ErrEmptyCorpus)

	_, err = f.manager.Load(ctx)
	assert.ErrorIs(t, err, codesearch.ErrIndexNotFound)

	got, err := f.store.GetRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.False(t, got.Indexed)
}

func TestBuild_MissingPath(t *testing.T) {
	f := newFixture(t, PolicyOverwrite)
	repo := &codesearch.Repository{Name: "gone", Path: filepath.Join(t.TempDir(), "nope")}
	require.NoError(t, f.store.CreateRepository(context.Background(), repo))

	_, err := f.manager.Build(context.Background(), repo)
	assert.ErrorIs(t, err, codesearch.ErrInvalidPath)
}

func TestBuild_EmbeddingFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWith(t, PolicyOverwrite, failingProvider{
		Provider: embeddings.NewHashProvider(64),
		err:      errors.New("connection refused"),
	})
	repo := f.addRepo(t, "demo", map[string]string{"a.py": "def a():\n    pass\n"})

	_, err := f.manager.Build(ctx, repo)
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)

	// Snippets are persisted before embedding starts.
	count, err := f.store.CountSnippets(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = f.manager.Load(ctx)
	assert.ErrorIs(t, err, codesearch.ErrIndexNotFound)
}

func TestBuild_OverwriteKeepsOnlyLatestRepository(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyOverwrite)
	a := f.addRepo(t, "A", map[string]string{"a.py": "def a_one():\n    pass\n\n\ndef a_two():\n    pass\n"})
	b := f.addRepo(t, "B", map[string]string{"b.py": "def b_one():\n    pass\n"})

	_, err := f.manager.Build(ctx, a)
	require.NoError(t, err)
	_, err = f.manager.Build(ctx, b)
	require.NoError(t, err)

	ids := f.indexedSnippets(t)
	snippets, err := f.store.GetSnippets(ctx, ids)
	require.NoError(t, err)
	for _, sn := range snippets {
		assert.Equal(t, b.ID, sn.RepositoryID)
	}
	assert.Len(t, ids, 1)

	// A's snippets remain in the store without vectors.
	count, err := f.store.CountSnippets(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	manifest, err := f.manager.Manifest()
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, manifest.Repositories)
}

func TestBuild_RebuildSameRepository(t *testing.T) {
	for _, policy := range []string{PolicyOverwrite, PolicyScoped} {
		t.Run(policy, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, policy)
			repo := f.addRepo(t, "A", map[string]string{
				"a.py": "def a_one():\n    pass\n\n\ndef a_two():\n    pass\n",
				"b.py": "def b_one():\n    pass\n",
			})

			first, err := f.manager.Build(ctx, repo)
			require.NoError(t, err)
			require.Equal(t, 3, first)
			oldIDs := f.indexedSnippets(t)
			require.Len(t, oldIDs, 3)

			second, err := f.manager.Build(ctx, repo)
			require.NoError(t, err)
			assert.Equal(t, first, second)

			count, err := f.store.CountSnippets(ctx, repo.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, count, "rebuild replaces the repository's rows")

			newIDs := f.indexedSnippets(t)
			assert.Len(t, newIDs, 3)
			for _, id := range oldIDs {
				assert.NotContains(t, newIDs, id)
				_, err := f.store.GetSnippet(ctx, id)
				assert.ErrorIs(t, err, codesearch.ErrNotFound)
			}

			found, err := f.store.GetSnippets(ctx, newIDs)
			require.NoError(t, err)
			assert.Len(t, found, 3)

			manifest, err := f.manager.Manifest()
			require.NoError(t, err)
			assert.Equal(t, []int64{repo.ID}, manifest.Repositories)
			assert.Equal(t, 3, manifest.Entries)
		})
	}
}

func TestBuild_ScopedKeepsOtherRepositories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyScoped)
	a := f.addRepo(t, "A", map[string]string{"a.py": "def a_one():\n    pass\n\n\ndef a_two():\n    pass\n"})
	b := f.addRepo(t, "B", map[string]string{"b.py": "def b_one():\n    pass\n"})

	_, err := f.manager.Build(ctx, a)
	require.NoError(t, err)
	_, err = f.manager.Build(ctx, b)
	require.NoError(t, err)
	assert.Len(t, f.indexedSnippets(t), 3)

	// Rebuilding A replaces only A's vectors.
	_, err = f.manager.Build(ctx, a)
	require.NoError(t, err)
	assert.Len(t, f.indexedSnippets(t), 3)

	manifest, err := f.manager.Manifest()
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, manifest.Repositories)
	assert.Equal(t, 3, manifest.Entries)
}

func TestForget_OverwriteDropsIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyOverwrite)
	a := f.addRepo(t, "A", map[string]string{"a.py": "def a():\n    pass\n"})
	_, err := f.manager.Build(ctx, a)
	require.NoError(t, err)

	require.NoError(t, f.manager.Forget(ctx, a.ID))

	_, err = f.manager.Load(ctx)
	assert.ErrorIs(t, err, codesearch.ErrIndexNotFound)
	_, err = f.manager.Manifest()
	assert.ErrorIs(t, err, codesearch.ErrIndexNotFound)

	require.NoError(t, f.manager.Forget(ctx, a.ID), "missing index is not an error")
}

func TestForget_ScopedPrunes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, PolicyScoped)
	a := f.addRepo(t, "A", map[string]string{"a.py": "def a():\n    pass\n"})
	b := f.addRepo(t, "B", map[string]string{"b.py": "def b():\n    pass\n\n\ndef c():\n    pass\n"})
	_, err := f.manager.Build(ctx, a)
	require.NoError(t, err)
	_, err = f.manager.Build(ctx, b)
	require.NoError(t, err)

	require.NoError(t, f.manager.Forget(ctx, a.ID))

	assert.Len(t, f.indexedSnippets(t), 2)
	manifest, err := f.manager.Manifest()
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, manifest.Repositories)
	assert.Equal(t, 2, manifest.Entries)
}

func TestPrune_WithoutIndex(t *testing.T) {
	f := newFixture(t, PolicyScoped)
	assert.NoError(t, f.manager.Prune(context.Background(), 42))
}
