package embeddings

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashVector_Deterministic(t *testing.T) {
	a := HashVector("def parse_config(path):", 64)
	b := HashVector("def parse_config(path):", 64)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
}

func TestHashVector_SimilarTextIsCloser(t *testing.T) {
	q := HashVector("parse config file", DefaultHashDimension)
	near := HashVector("def parse_config_file(): parse config file", DefaultHashDimension)
	far := HashVector("class HttpServer: listen and serve requests", DefaultHashDimension)

	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestHashVector_NoTokens(t *testing.T) {
	v := HashVector("((( )))", 8)
	assert.Equal(t, float32(1), v[0])
	assert.InDelta(t, 1.0, norm(v), 1e-6)
}

func TestHashProvider(t *testing.T) {
	p := NewHashProvider(32)
	ctx := context.Background()

	assert.Equal(t, 32, p.Dimension())
	assert.Equal(t, "hash-32", p.Model())

	docs, err := p.EmbedDocuments(ctx, []string{"alpha beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	q, err := p.EmbedQuery(ctx, "alpha beta")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dot(q, docs[0]), 1e-5)

	_, err = p.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.NoError(t, p.Close())
}

func TestHashProvider_KeepsNewlines(t *testing.T) {
	p := NewHashProvider(16)
	texts := []string{"line one\nline two"}

	_, err := p.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", texts[0], "caller slice must not be rewritten")
}

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("hash", func(t *testing.T) {
		p, err := NewProvider(ctx, ProviderConfig{Provider: ProviderHash}, nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultHashDimension, p.Dimension())
	})

	t.Run("fastembed unavailable falls back to hash", func(t *testing.T) {
		saved := fastEmbedAvailable
		fastEmbedAvailable = false
		t.Cleanup(func() { fastEmbedAvailable = saved })

		core, logs := observer.New(zap.WarnLevel)
		p, err := NewProvider(ctx, ProviderConfig{Provider: ProviderFastEmbed, Model: "BAAI/bge-small-en-v1.5"}, zap.New(core))
		require.NoError(t, err)
		assert.Equal(t, NewHashProvider(DefaultHashDimension).Model(), p.Model())
		assert.Equal(t, DefaultHashDimension, p.Dimension())
		assert.Equal(t, 1, logs.FilterMessageSnippet("falling back to hash").Len())

		_, err = NewProvider(ctx, ProviderConfig{}, zap.New(core))
		require.NoError(t, err, "the default provider falls back too")
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewProvider(ctx, ProviderConfig{Provider: "tei"}, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("openai without key", func(t *testing.T) {
		_, err := NewProvider(ctx, ProviderConfig{Provider: ProviderOpenAI}, nil)
		assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
	})

	t.Run("googleai without key", func(t *testing.T) {
		_, err := NewProvider(ctx, ProviderConfig{Provider: ProviderGoogleAI}, nil)
		assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
	})
}

func TestClientProvider_LearnsDimension(t *testing.T) {
	client := lcembeddings.EmbedderClientFunc(func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 0, 0, 0, 0}
		}
		return out, nil
	})
	p, err := newClientProvider(client, "custom-model", 2, nil)
	require.NoError(t, err)
	assert.Zero(t, p.Dimension())

	vecs, err := p.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, 5, p.Dimension())
}

func TestClientProvider_KnownModelDimension(t *testing.T) {
	client := lcembeddings.EmbedderClientFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, nil
	})
	p, err := newClientProvider(client, "text-embedding-3-small", 8, nil)
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())
}

// ===== TIMEOUT / ERROR MAPPING =====

type stubProvider struct {
	docs  func(ctx context.Context, texts []string) ([][]float32, error)
	query func(ctx context.Context, text string) ([]float32, error)
}

func (s *stubProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return s.docs(ctx, texts)
}

func (s *stubProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.query(ctx, text)
}

func (s *stubProvider) Dimension() int { return 3 }
func (s *stubProvider) Model() string { return "stub" }
func (s *stubProvider) Close() error { return nil }

func TestWithTimeout_DeadlineIsUnavailable(t *testing.T) {
	slow := &stubProvider{
		query: func(ctx context.Context, _ string) ([]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := WithTimeout(slow, 20*time.Millisecond)

	_, err := p.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "timed out")
}

func TestWithTimeout_FailureIsUnavailable(t *testing.T) {
	failing := &stubProvider{
		docs: func(context.Context, []string) ([][]float32, error) {
			return nil, errors.New("401 unauthorized")
		},
	}
	p := WithTimeout(failing, time.Second)

	_, err := p.EmbedDocuments(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "401")
}

func TestWithTimeout_EmptyInputPassesThrough(t *testing.T) {
	p := WithTimeout(NewHashProvider(8), time.Second)
	_, err := p.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.NotErrorIs(t, err, codesearch.ErrCollaboratorUnavailable)
}

func TestWithTimeout_Success(t *testing.T) {
	p := WithTimeout(NewHashProvider(8), 0)
	assert.Equal(t, "hash-8", p.Model())
	assert.Equal(t, 8, p.Dimension())

	v, err := p.EmbedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}

func TestWithTimeout_DoesNotDoubleWrap(t *testing.T) {
	inner := NewHashProvider(8)
	p := WithTimeout(WithTimeout(inner, time.Second), time.Minute)
	g, ok := p.(*guarded)
	require.True(t, ok)
	assert.Same(t, inner, g.Provider)
	assert.Equal(t, time.Minute, g.timeout)
}
