package rag

import (
	"context"
	"fmt"
	"strings"

	"textbook-rag/internal/llmservice"
	"textbook-rag/internal/models"
)

// AnswerSynthesizer writes an answer grounded in retrieved excerpts.
type AnswerSynthesizer struct {
	llm llmservice.Completer
}

func NewAnswerSynthesizer(llm llmservice.Completer) *AnswerSynthesizer {
	return &AnswerSynthesizer{llm: llm}
}

func (s *AnswerSynthesizer) Synthesize(ctx context.Context, question string, chunks []models.RetrievalResult) (string, error) {
	return s.llm.Complete(ctx, BuildSynthesisPrompt(question, chunks), Temperature)
}

// BuildSynthesisPrompt lays out each excerpt under a chapter/page header, in order, followed by the question.
func BuildSynthesisPrompt(question string, chunks []models.RetrievalResult) string {
	var excerpts strings.Builder
	for _, r := range chunks {
		fmt.Fprintf(&excerpts, models.ChunkHeaderTemplate, r.Chunk.ChapterTitle, r.Chunk.PageNumber)
		excerpts.WriteString(r.Chunk.Text)
		excerpts.WriteString("\n\n")
	}
	return fmt.Sprintf(models.SynthesizePromptTemplate, excerpts.String(), question)
}
