// Package parser turns textbook PDFs into chapter-attributed chunk records.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"textbook-rag/internal/chunkstore"
	"textbook-rag/internal/config"
	"textbook-rag/internal/models"
)

const (
	charsPerToken = 4
	minChunkChars = 64
)

// Book is the parse result of one PDF. Name is the chunk file name the book is known by.
type Book struct {
	Name    string
	Path    string
	Records []models.ChunkRecord
}

type Parser struct {
	chapterRe *regexp.Regexp
	maxChars  int
	logger    zerolog.Logger
}

func New(cfg *config.RAGConfig) (*Parser, error) {
	pattern := cfg.ChapterPattern
	if pattern == "" {
		pattern = models.ChapterRegex
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid chapter pattern %q: %w", pattern, err)
	}
	return &Parser{
		chapterRe: re,
		maxChars:  max(cfg.MaxTokens*charsPerToken, minChunkChars),
		logger:    log.Logger.With().Str("component", "parser").Logger(),
	}, nil
}

// ChunkPages chunks already-extracted pages.
func (p *Parser) ChunkPages(pages []Page) []models.ChunkRecord {
	return chunkPages(pages, p.chapterRe, p.maxChars)
}

// ParseBook reads the PDF at path and chunks its text.
func (p *Parser) ParseBook(path string) (*Book, error) {
	pages, err := readPages(path)
	if err != nil {
		return nil, err
	}
	recs := p.ChunkPages(pages)
	p.logger.Info().Str("file", path).Int("pages", len(pages)).Int("chunks", len(recs)).Msg("Parsed book")
	return &Book{
		Name:    filepath.Base(path) + ".json",
		Path:    path,
		Records: recs,
	}, nil
}

// ParseFiles parses each PDF in order and stops at the first failure.
func (p *Parser) ParseFiles(paths []string) ([]*Book, error) {
	books := make([]*Book, 0, len(paths))
	for _, path := range paths {
		b, err := p.ParseBook(path)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, nil
}

// ParseDir parses every PDF in dir, in file-name order.
func (p *Parser) ParseDir(dir string) ([]*Book, error) {
	paths, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		p.logger.Warn().Str("dir", dir).Msg("No PDF files found")
	}
	return p.ParseFiles(paths)
}

// ListPDFs returns the *.pdf files directly inside dir.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// WriteBook stores the book's records next to the PDF and returns the file written.
func WriteBook(b *Book) (string, error) {
	out := filepath.Join(filepath.Dir(b.Path), b.Name)
	if err := chunkstore.WriteFile(out, b.Records); err != nil {
		return "", err
	}
	return out, nil
}

func readPages(path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}

	var pages []Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d of %s: %w", i, path, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
