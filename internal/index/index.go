// Package index is a flat L2 nearest-neighbour index over textbook chunks.
//
// Chunk vectors are embedded once by Build and reused by every Search, whatever
// chapter filter is active. Vectors are stored unit-normalised.
package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"textbook-rag/internal/embedding"
	"textbook-rag/internal/models"
)

// DefaultTopK is used when Search is called with topK <= 0.
const DefaultTopK = 5

const serviceName = "embedding"

// VectorCache persists chunk vectors between builds.
type VectorCache interface {
	Lookup(ctx context.Context, chunks []models.Chunk) [][]float32
	Store(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
}

// Index answers nearest-neighbour queries over a fixed chunk set.
type Index struct {
	embedder embeddings.Embedder
	cache    VectorCache
	logger   zerolog.Logger

	mu       sync.RWMutex
	chunks   []models.Chunk
	vectors  [][]float32
	chapters []string
}

type Option func(*Index)

// WithCache reuses vectors from c and writes newly computed ones back to it.
func WithCache(c VectorCache) Option {
	return func(ix *Index) { ix.cache = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

func New(embedder embeddings.Embedder, opts ...Option) *Index {
	ix := &Index{
		embedder: embedder,
		logger:   log.Logger.With().Str("component", "index").Logger(),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Build embeds chunks and replaces the index contents. It must not overlap with
// in-flight searches that expect the old contents.
func (ix *Index) Build(ctx context.Context, chunks []models.Chunk) error {
	vectors := make([][]float32, len(chunks))
	if ix.cache != nil {
		copy(vectors, ix.cache.Lookup(ctx, chunks))
	}

	var missing []int
	for i := range chunks {
		if vectors[i] == nil {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		ix.logger.Info().Int("chunks", len(chunks)).Int("to_embed", len(missing)).Msg("Computing embeddings")
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = chunks[i].Text
		}
		computed, err := ix.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return &models.ExternalServiceError{Service: serviceName, Op: "embed documents", Err: err}
		}
		if len(computed) != len(texts) {
			return &models.ExternalServiceError{
				Service: serviceName,
				Op:      "embed documents",
				Err:     fmt.Errorf("got %d vectors for %d texts", len(computed), len(texts)),
			}
		}
		fresh := make([]models.Chunk, len(missing))
		freshVecs := make([][]float32, len(missing))
		for j, i := range missing {
			vectors[i] = embedding.Normalize(computed[j])
			fresh[j] = chunks[i]
			freshVecs[j] = vectors[i]
		}
		if ix.cache != nil {
			if err := ix.cache.Store(ctx, fresh, freshVecs); err != nil {
				return fmt.Errorf("cache vectors: %w", err)
			}
		}
	}

	if err := checkDimensions(vectors); err != nil {
		return err
	}

	stored := slices.Clone(chunks)
	chapters := make([]string, 0)
	seen := make(map[string]struct{})
	for _, c := range stored {
		if _, ok := seen[c.ChapterTitle]; !ok {
			seen[c.ChapterTitle] = struct{}{}
			chapters = append(chapters, c.ChapterTitle)
		}
	}
	slices.Sort(chapters)

	ix.mu.Lock()
	ix.chunks = stored
	ix.vectors = vectors
	ix.chapters = chapters
	ix.mu.Unlock()

	ix.logger.Info().Int("chunks", len(stored)).Int("chapters", len(chapters)).Msg("Index built")
	return nil
}

func checkDimensions(vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}

// Search returns up to topK chunks closest to question, ordered by ascending distance.
//
// When chapterFilter is non-empty only chunks whose chapter title contains one of the
// keywords (case-insensitive) are candidates; if none match, the whole corpus is used.
func (ix *Index) Search(ctx context.Context, question string, topK int, chapterFilter []string) ([]models.RetrievalResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.chunks) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	candidates := ix.filter(chapterFilter)

	q, err := ix.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, &models.ExternalServiceError{Service: serviceName, Op: "embed query", Err: err}
	}
	q = embedding.Normalize(q)

	results := make([]models.RetrievalResult, 0, len(candidates))
	for _, i := range candidates {
		d, err := embedding.L2Distance(q, ix.vectors[i])
		if err != nil {
			return nil, fmt.Errorf("query vector: %w", err)
		}
		results = append(results, models.RetrievalResult{Chunk: ix.chunks[i], Distance: d})
	}
	// Candidates are in corpus order, so a stable sort breaks ties by position.
	slices.SortStableFunc(results, func(a, b models.RetrievalResult) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
	if len(results) > topK {
		results = results[:topK]
	}

	ix.logger.Debug().
		Strs("filter", chapterFilter).
		Int("candidates", len(candidates)).
		Int("results", len(results)).
		Msg("Search")
	return results, nil
}

// filter returns the positions of eligible chunks in corpus order.
func (ix *Index) filter(keywords []string) []int {
	all := make([]int, len(ix.chunks))
	for i := range all {
		all[i] = i
	}
	if len(keywords) == 0 {
		return all
	}

	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		lowered = append(lowered, strings.ToLower(k))
	}
	var matched []int
	for i, c := range ix.chunks {
		title := strings.ToLower(c.ChapterTitle)
		for _, k := range lowered {
			if strings.Contains(title, k) {
				matched = append(matched, i)
				break
			}
		}
	}
	if len(matched) == 0 {
		ix.logger.Debug().Strs("filter", keywords).Msg("Chapter filter matched nothing, searching full corpus")
		return all
	}
	return matched
}

// Chapters returns the sorted distinct chapter titles of the indexed chunks.
func (ix *Index) Chapters() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return slices.Clone(ix.chapters)
}

// Len is the number of indexed chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}
