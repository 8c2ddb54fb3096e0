// Package embedding turns text into vectors through a content-addressed cache.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/TobiSchelling/painscout/internal/llm"
	"github.com/TobiSchelling/painscout/internal/metrics"
)

// MaxBatch is the most texts sent to the provider per call.
const MaxBatch = 100

// PreviewLength bounds the text stored next to a cached vector.
const PreviewLength = 200

// Vector is a fixed-length embedding.
type Vector []float32

// Entry is one cached embedding.
type Entry struct {
	Hash      string
	Model     string
	Preview   string
	Vector    Vector
	CreatedAt time.Time
}

// Cache stores vectors keyed by (hash, model). Put must be an idempotent upsert.
type Cache interface {
	Get(ctx context.Context, model string, hashes []string) (map[string]Vector, error)
	Put(ctx context.Context, entries []Entry) error
}

// Service embeds text, consulting the cache before calling the provider.
type Service struct {
	embedder llm.Embedder
	cache    Cache
	model    string
}

// NewService creates an embedding service. cache may be nil.
func NewService(embedder llm.Embedder, cache Cache, model string) *Service {
	return &Service{embedder: embedder, cache: cache, model: model}
}

// Model returns the model identifier vectors are cached under.
func (s *Service) Model() string {
	return s.model
}

// Normalize trims and case-folds text; identical normalized text shares one vector.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Hash returns the hex SHA-256 of already-normalized text.
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Embed returns one vector per input text, aligned by index. Empty texts get nil.
// Each distinct normalized text is sent to the provider at most once, and only on a cache miss.
func (s *Service) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	hashes := make([]string, len(texts))
	normalized := make(map[string]string) // hash -> normalized text
	var order []string
	for i, t := range texts {
		n := Normalize(t)
		if n == "" {
			continue
		}
		h := Hash(n)
		hashes[i] = h
		if _, ok := normalized[h]; !ok {
			normalized[h] = n
			order = append(order, h)
		}
	}

	found := s.lookup(ctx, order)
	var missing []string
	for _, h := range order {
		if _, ok := found[h]; !ok {
			missing = append(missing, h)
		}
	}
	metrics.EmbeddingCache.WithLabelValues("hit").Add(float64(len(order) - len(missing)))
	metrics.EmbeddingCache.WithLabelValues("miss").Add(float64(len(missing)))

	dim := 0
	for _, v := range found {
		dim = len(v)
		break
	}

	for start := 0; start < len(missing); start += MaxBatch {
		batch := missing[start:min(start+MaxBatch, len(missing))]
		inputs := make([]string, len(batch))
		for i, h := range batch {
			inputs[i] = normalized[h]
		}

		raw, err := s.embedder.Embed(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("embedding %d texts: %w", len(inputs), err)
		}
		if len(raw) != len(batch) {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(raw), len(batch))
		}

		entries := make([]Entry, len(batch))
		for i, h := range batch {
			v := toVector(raw[i])
			if len(v) == 0 {
				return nil, fmt.Errorf("provider returned an empty vector")
			}
			if dim == 0 {
				dim = len(v)
			} else if len(v) != dim {
				return nil, fmt.Errorf("dimension mismatch: got %d, want %d (model %s)", len(v), dim, s.model)
			}
			found[h] = v
			entries[i] = Entry{Hash: h, Model: s.model, Preview: preview(inputs[i]), Vector: v, CreatedAt: time.Now().UTC()}
		}
		s.store(ctx, entries)
	}

	for i, h := range hashes {
		if h != "" {
			out[i] = found[h]
		}
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) (Vector, error) {
	vs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if vs[0] == nil {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	return vs[0], nil
}

func (s *Service) lookup(ctx context.Context, hashes []string) map[string]Vector {
	found := make(map[string]Vector, len(hashes))
	if s.cache == nil || len(hashes) == 0 {
		return found
	}
	cached, err := s.cache.Get(ctx, s.model, hashes)
	if err != nil {
		log.Printf("Embedding cache read failed, treating as cold: %v", err)
		return found
	}
	for h, v := range cached {
		found[h] = v
	}
	return found
}

func (s *Service) store(ctx context.Context, entries []Entry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, entries); err != nil {
		log.Printf("Embedding cache write failed: %v", err)
	}
}

func toVector(f []float64) Vector {
	v := make(Vector, len(f))
	for i, x := range f {
		v[i] = float32(x)
	}
	return v
}

func preview(s string) string {
	if len(s) <= PreviewLength {
		return s
	}
	cut := PreviewLength
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
