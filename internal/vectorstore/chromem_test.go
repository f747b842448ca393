package vectorstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axis returns a unit vector along dimension i.
func axis(i int) []float32 {
	v := make([]float32, 4)
	v[i] = 1
	return v
}

func newChromem(t *testing.T, cfg vectorstore.ChromemConfig) *vectorstore.ChromemStore {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	s, err := vectorstore.NewChromemStore(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func query(t *testing.T, s vectorstore.Store, v []float32, k int) []vectorstore.Hit {
	t.Helper()
	h, err := s.Open(context.Background())
	require.NoError(t, err)
	hits, err := h.Query(context.Background(), v, k)
	require.NoError(t, err)
	return hits
}

func snippetIDs(hits []vectorstore.Hit) []int64 {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.SnippetID
	}
	return ids
}

func TestChromemConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     vectorstore.ChromemConfig
		wantErr bool
	}{
		{name: "valid", cfg: vectorstore.ChromemConfig{Dir: "/tmp/x"}},
		{name: "missing dir", cfg: vectorstore.ChromemConfig{}, wantErr: true},
		{name: "short key", cfg: vectorstore.ChromemConfig{Dir: "/tmp/x", EncryptionKey: "short"}, wantErr: true},
		{name: "32 byte key", cfg: vectorstore.ChromemConfig{Dir: "/tmp/x", EncryptionKey: "0123456789abcdef0123456789abcdef"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := vectorstore.New(vectorstore.Config{Backend: "faiss"}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

func TestNew_DefaultsToChromem(t *testing.T) {
	s, err := vectorstore.New(vectorstore.Config{Chromem: vectorstore.ChromemConfig{Dir: t.TempDir()}}, nil)
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.(*vectorstore.ChromemStore)
	assert.True(t, ok)
}

func TestChromemStore_OpenMissingIndex(t *testing.T) {
	s := newChromem(t, vectorstore.ChromemConfig{})

	_, err := s.Open(context.Background())
	assert.ErrorIs(t, err, codesearch.ErrIndexNotFound)
}

func TestChromemStore_ReplaceAndQuery(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, vectorstore.ChromemConfig{})

	require.NoError(t, s.Replace(ctx, []vectorstore.Entry{
		{SnippetID: 1, RepositoryID: 10, Vector: axis(0)},
		{SnippetID: 2, RepositoryID: 10, Vector: []float32{0.9, 0.1, 0, 0}},
		{SnippetID: 3, RepositoryID: 20, Vector: axis(2)},
	}))

	hits := query(t, s, axis(0), 2)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].SnippetID)
	assert.Equal(t, int64(10), hits[0].RepositoryID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
	assert.Equal(t, int64(2), hits[1].SnippetID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
}

func TestChromemStore_QueryCapsAtCount(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, vectorstore.ChromemConfig{})
	require.NoError(t, s.Replace(ctx, []vectorstore.Entry{{SnippetID: 1, RepositoryID: 1, Vector: axis(1)}}))

	hits := query(t, s, axis(1), 5)
	assert.Len(t, hits, 1)
}

func TestChromemStore_ReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, vectorstore.ChromemConfig{})

	require.NoError(t, s.Replace(ctx, []vectorstore.Entry{{SnippetID: 1, RepositoryID: 1, Vector: axis(0)}}))
	require.NoError(t, s.Replace(ctx, []vectorstore.Entry{{SnippetID: 7, RepositoryID: 2, Vector: axis(0)}}))

	hits := query(t, s, axis(0), 5)
	assert.Equal(t, []int64{7}, snippetIDs(hits))
}

func TestChromemStore_ReplaceRepository(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, vectorstore.ChromemConfig{})

	require.NoError(t, s.ReplaceRepository(ctx, 1, []vectorstore.Entry{
		{SnippetID: 1, RepositoryID: 1, Vector: axis(0)},
		{SnippetID: 2, RepositoryID: 1, Vector: axis(1)},
	}))
	require.NoError(t, s.ReplaceRepository(ctx, 2, []vectorstore.Entry{
		{SnippetID: 3, RepositoryID: 2, Vector: axis(2)},
	}))
	require.NoError(t, s.ReplaceRepository(ctx, 1, []vectorstore.Entry{
		{SnippetID: 4, RepositoryID: 1, Vector: axis(3)},
	}))

	h, err := s.Open(ctx)
	require.NoError(t, err)
	n, err := h.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ElementsMatch(t, []int64{3, 4}, snippetIDs(query(t, s, axis(3), 5)))
}

func TestChromemStore_DeleteRepository(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, vectorstore.ChromemConfig{})

	require.NoError(t, s.DeleteRepository(ctx, 1), "missing index is not an error")

	require.NoError(t, s.Replace(ctx, []vectorstore.Entry{
		{SnippetID: 1, RepositoryID: 1, Vector: axis(0)},
		{SnippetID: 2, RepositoryID: 2, Vector: axis(1)},
	}))
	require.NoError(t, s.DeleteRepository(ctx, 1))
	assert.Equal(t, []int64{2}, snippetIDs(query(t, s, axis(0), 5)))

	require.NoError(t, s.DeleteRepository(ctx, 2))
	assert.Empty(t, query(t, s, axis(0), 5), "pruned index still opens and returns nothing")
}

func TestChromemStore_Drop(t *testing.T) {
	ctx := context.Background()
	s := newChromem(t, vectorstore.ChromemConfig{})
	require.NoError(t, s.Replace(ctx, []vectorstore.Entry{{SnippetID: 1, RepositoryID: 1, Vector: axis(0)}}))

	require.NoError(t, s.Drop(ctx))
	_, err := s.Open(ctx)
	assert.ErrorIs(t, err, codesearch.ErrIndexNotFound)
	require.NoError(t, s.Drop(ctx), "dropping twice is fine")
}

func TestChromemStore_SeesWritesFromAnotherInstance(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writer := newChromem(t, vectorstore.ChromemConfig{Dir: dir})
	reader := newChromem(t, vectorstore.ChromemConfig{Dir: dir})

	require.NoError(t, writer.Replace(ctx, []vectorstore.Entry{{SnippetID: 1, RepositoryID: 1, Vector: axis(0)}}))
	assert.Equal(t, []int64{1}, snippetIDs(query(t, reader, axis(0), 5)))

	require.NoError(t, writer.Replace(ctx, []vectorstore.Entry{
		{SnippetID: 5, RepositoryID: 1, Vector: axis(0)},
		{SnippetID: 6, RepositoryID: 1, Vector: axis(1)},
	}))
	assert.ElementsMatch(t, []int64{5, 6}, snippetIDs(query(t, reader, axis(0), 5)))
}

func TestChromemStore_CompressedAndEncrypted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := "0123456789abcdef0123456789abcdef"
	s := newChromem(t, vectorstore.ChromemConfig{Dir: dir, Compress: true, EncryptionKey: key})

	require.NoError(t, s.Replace(ctx, []vectorstore.Entry{{SnippetID: 9, RepositoryID: 3, Vector: axis(2)}}))
	assert.Equal(t, filepath.Join(dir, "snippets.gob.gz.enc"), s.Path())
	_, err := os.Stat(s.Path())
	require.NoError(t, err)

	reopened := newChromem(t, vectorstore.ChromemConfig{Dir: dir, Compress: true, EncryptionKey: key})
	assert.Equal(t, []int64{9}, snippetIDs(query(t, reopened, axis(2), 1)))

	wrongKey := newChromem(t, vectorstore.ChromemConfig{Dir: dir, Compress: true, EncryptionKey: "ffffffffffffffffffffffffffffffff"})
	_, err = wrongKey.Open(ctx)
	assert.Error(t, err)
}

func TestChromemStore_RejectsMissingVector(t *testing.T) {
	s := newChromem(t, vectorstore.ChromemConfig{})
	err := s.Replace(context.Background(), []vectorstore.Entry{{SnippetID: 1, RepositoryID: 1}})
	assert.Error(t, err)
}
