package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
)

// DefaultHashDimension is the vector size of the hash provider.
const DefaultHashDimension = 384

// NewHashProvider returns a deterministic bag-of-tokens embedder. Identical
// texts map to identical unit vectors and texts sharing identifiers land
// close together. It needs no network or model files, which makes it
// suitable for offline use and tests.
func NewHashProvider(dim int) Provider {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	client := lcembeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = HashVector(t, dim)
		}
		return out, nil
	})
	// NewEmbedder never fails for a non-nil client.
	p, _ := newClientProvider(client, fmt.Sprintf("hash-%d", dim), 64, nil)
	p.dim.Store(int64(dim))
	return p
}

// HashVector embeds text by hashing each lower-cased identifier token into
// one of dim buckets, with a sign bit to reduce collisions, then
// L2-normalizing. Text without tokens maps to a fixed unit vector.
func HashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(dim))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
