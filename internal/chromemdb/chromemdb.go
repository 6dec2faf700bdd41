package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"textbook-rag/internal/models"
)

// chunkNamespace scopes the content-derived document IDs.
var chunkNamespace = uuid.MustParse("4f1c6a52-93c2-4b7e-9c55-0e8f0c2f7d11")

// VectorDBManager caches chunk embeddings in a chromem-go collection so an index
// rebuild only embeds chunks it has not seen before.
type VectorDBManager struct {
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	model          string
}

// NewVectorDBManager opens a persistent database at dbPath, or an in-memory one when dbPath is empty.
func NewVectorDBManager(dbPath, collectionName string, compress bool) (*VectorDBManager, error) {
	var db *chromem.DB
	if dbPath == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(dbPath, compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector cache at %s: %w", dbPath, err)
		}
	}
	m := &VectorDBManager{db: db, collectionName: collectionName}
	if _, err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) getOrCreateCollection() (*chromem.Collection, error) {
	// Embeddings are always supplied by the caller, so the collection never embeds on its own.
	c, err := m.db.GetOrCreateCollection(m.collectionName, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection %s: %w", m.collectionName, err)
	}
	m.collection = c
	return c, nil
}

func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("vector cache does not compute embeddings")
}

// ForModel returns a view of the cache whose entries belong to one embedding model.
// Vectors stored under one model are never returned for another.
func (m *VectorDBManager) ForModel(model string) *VectorDBManager {
	scoped := *m
	scoped.model = model
	return &scoped
}

// ChunkID derives a stable cache key from the embedding model and the chunk's book,
// chapter, page and text.
func ChunkID(model string, c models.Chunk) string {
	key := model + "\x00" + c.SourceBook + "\x00" + c.ChapterTitle + "\x00" + strconv.Itoa(c.PageNumber) + "\x00" + c.Text
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

// Lookup returns the cached vectors for chunks, aligned by position. Misses are nil.
func (m *VectorDBManager) Lookup(ctx context.Context, chunks []models.Chunk) [][]float32 {
	out := make([][]float32, len(chunks))
	hits := 0
	for i, c := range chunks {
		doc, err := m.collection.GetByID(ctx, ChunkID(m.model, c))
		if err != nil {
			continue
		}
		out[i] = doc.Embedding
		hits++
	}
	log.Debug().Str("model", m.model).Int("chunks", len(chunks)).Int("hits", hits).Msg("Vector cache lookup")
	return out
}

// Store adds vectors for chunks. vectors must align with chunks and be unit length.
func (m *VectorDBManager) Store(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        ChunkID(m.model, c),
			Content:   c.Text,
			Metadata:  createMetadata(m.model, c),
			Embedding: vectors[i],
		}
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Int("documents", len(docs)).Msg("Stored vectors in cache")
	return nil
}

// Count is the number of cached vectors.
func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Reset drops the collection and starts an empty one.
func (m *VectorDBManager) Reset() error {
	if err := m.db.DeleteCollection(m.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", m.collectionName, err)
	}
	_, err := m.getOrCreateCollection()
	return err
}

func createMetadata(model string, c models.Chunk) map[string]string {
	return map[string]string{
		"model":   model,
		"chapter": c.ChapterTitle,
		"page":    strconv.Itoa(c.PageNumber),
		"book":    c.SourceBook,
	}
}
