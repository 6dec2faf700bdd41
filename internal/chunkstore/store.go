// Package chunkstore holds the textbook chunks the index is built from.
package chunkstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"textbook-rag/internal/models"
)

const chunkFileExt = ".json"

// Store is an ordered, immutable set of chunks.
type Store struct {
	chunks   []models.Chunk
	chapters []string
}

// New builds a store from records grouped by source book, in the given book order.
// Records with blank text are dropped.
func New(books []string, records map[string][]models.ChunkRecord) *Store {
	s := &Store{}
	for _, book := range books {
		for _, r := range records[book] {
			s.add(book, r)
		}
	}
	s.chapters = distinctChapters(s.chunks)
	return s
}

// FromChunks builds a store from already-formed chunks, renumbering IDs by position.
func FromChunks(chunks []models.Chunk) *Store {
	s := &Store{}
	for _, c := range chunks {
		s.add(c.SourceBook, c.Record())
	}
	s.chapters = distinctChapters(s.chunks)
	return s
}

func (s *Store) add(book string, r models.ChunkRecord) {
	text := strings.TrimSpace(r.ChunkText)
	if text == "" {
		log.Warn().Str("book", book).Int("page", r.PageNum).Msg("Skipping chunk with empty text")
		return
	}
	s.chunks = append(s.chunks, models.Chunk{
		ID:           len(s.chunks),
		Text:         text,
		ChapterTitle: r.ChapterTitle,
		PageNumber:   r.PageNum,
		SourceBook:   book,
	})
}

// LoadDir reads every chunk file in dir in file-name order.
func LoadDir(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chunk dir %s: %w", dir, err)
	}
	var books []string
	records := make(map[string][]models.ChunkRecord)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), chunkFileExt) {
			continue
		}
		recs, err := ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		books = append(books, e.Name())
		records[e.Name()] = recs
		log.Info().Str("book", e.Name()).Int("records", len(recs)).Msg("Loaded chunk file")
	}
	return New(books, records), nil
}

// ReadFile decodes one chunk file.
func ReadFile(path string) ([]models.ChunkRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	var recs []models.ChunkRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode chunk file %s: %w", path, err)
	}
	return recs, nil
}

// WriteFile writes records as an indented JSON array.
func WriteFile(path string, recs []models.ChunkRecord) error {
	if recs == nil {
		recs = []models.ChunkRecord{}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write chunk file: %w", err)
	}
	return nil
}

// Chunks returns the chunks in store order. Callers must not modify the slice.
func (s *Store) Chunks() []models.Chunk { return s.chunks }

// Chapters returns the sorted distinct chapter titles.
func (s *Store) Chapters() []string { return slices.Clone(s.chapters) }

func (s *Store) Len() int { return len(s.chunks) }

func distinctChapters(chunks []models.Chunk) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range chunks {
		if _, ok := seen[c.ChapterTitle]; ok {
			continue
		}
		seen[c.ChapterTitle] = struct{}{}
		out = append(out, c.ChapterTitle)
	}
	slices.Sort(out)
	return out
}
