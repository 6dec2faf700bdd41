package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"textbook-rag/internal/llmservice"
	"textbook-rag/internal/models"
)

// Temperature is the sampling temperature for every model call made by the loop.
const Temperature = 0

// ChapterSelector asks the model which chapters are worth consulting.
type ChapterSelector struct {
	llm llmservice.Completer
}

func NewChapterSelector(llm llmservice.Completer) *ChapterSelector {
	return &ChapterSelector{llm: llm}
}

// Select returns the chapter titles the model picked. Titles are not checked against
// available. A response without a usable JSON array yields a *SelectionParseError.
func (s *ChapterSelector) Select(ctx context.Context, question string, available []string) ([]string, error) {
	listing, err := json.Marshal(available)
	if err != nil {
		return nil, fmt.Errorf("encode chapter list: %w", err)
	}
	prompt := fmt.Sprintf(models.SelectChaptersPromptTemplate, question, listing)
	resp, err := s.llm.Complete(ctx, prompt, Temperature)
	if err != nil {
		return nil, err
	}
	return ParseChapterList(resp)
}
