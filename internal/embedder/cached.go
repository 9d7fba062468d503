package embedder

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/candidex/search/internal/cache"
)

// providerID identifies the embedding provider in cache keys so that
// switching providers never serves a stale vector.
const providerID = "ollama"

// Cached wraps an Embedder with cache-through memoization. Vectors are
// stored in a fixed binary encoding so a hit returns the exact bytes of the
// original computation.
type Cached struct {
	inner Embedder
	cache cache.Cache
}

// NewCached creates a cached embedder on top of the shared TTL cache.
func NewCached(inner Embedder, c cache.Cache) *Cached {
	return &Cached{inner: inner, cache: c}
}

// key derives the cache key from the normalized text, the provider, and the
// model, per the cache-key contract.
func (c *Cached) key(text string) string {
	return cache.Key(normalizeText(text), providerID, c.inner.ModelName())
}

// EmbedQuery embeds a single query text and reports whether it was served
// from cache.
func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, bool, error) {
	key := c.key(text)

	if raw, ok := c.cache.Get(key); ok {
		vec, err := decodeVector(raw)
		if err == nil {
			return vec, true, nil
		}
		// Corrupt entry: fall through and recompute.
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, false, err
	}

	c.cache.Set(key, encodeVector(vec))
	return vec, false, nil
}

// Embed implements Embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, _, err := c.EmbedQuery(ctx, text)
	return vec, err
}

// EmbedBatch checks the cache per text and only sends the misses to the
// inner embedder.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var missIndices []int
	var missTexts []string

	for i, text := range texts {
		if raw, ok := c.cache.Get(c.key(text)); ok {
			if vec, err := decodeVector(raw); err == nil {
				results[i] = vec
				continue
			}
		}
		missIndices = append(missIndices, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIndices {
		results[idx] = computed[j]
		c.cache.Set(c.key(texts[idx]), encodeVector(computed[j]))
	}

	return results, nil
}

// Dimension returns the embedding dimension (passthrough to inner).
func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *Cached) ModelName() string {
	return c.inner.ModelName()
}

// normalizeText collapses whitespace and case so trivially reformatted
// queries share one cache entry.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("malformed cached vector: %d bytes", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}

// Ensure Cached implements Embedder interface.
var _ Embedder = (*Cached)(nil)
