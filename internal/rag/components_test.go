package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textbook-rag/internal/models"
)

type call struct {
	prompt      string
	temperature float64
}

// scriptedLLM answers each kind of prompt from its own queue; the last reply repeats.
type scriptedLLM struct {
	selections []string
	answers    []string
	verdicts   []string
	err        error
	calls      []call
}

func next(q *[]string) string {
	if len(*q) == 0 {
		return ""
	}
	r := (*q)[0]
	if len(*q) > 1 {
		*q = (*q)[1:]
	}
	return r
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string, temperature float64) (string, error) {
	s.calls = append(s.calls, call{prompt: prompt, temperature: temperature})
	if s.err != nil {
		return "", s.err
	}
	switch {
	case strings.HasPrefix(prompt, "You are planning"):
		return next(&s.selections), nil
	case strings.HasPrefix(prompt, "Evaluate the following"):
		return next(&s.verdicts), nil
	default:
		return next(&s.answers), nil
	}
}

func (s *scriptedLLM) promptsLike(prefix string) []string {
	var out []string
	for _, c := range s.calls {
		if strings.HasPrefix(c.prompt, prefix) {
			out = append(out, c.prompt)
		}
	}
	return out
}

func TestChapterSelectorPromptAndParse(t *testing.T) {
	llm := &scriptedLLM{selections: []string{`Here is the list: ["Chapter 2: Methods"]`}}
	sel := NewChapterSelector(llm)

	got, err := sel.Select(context.Background(), "What is regression?", []string{"Chapter 1: Introduction", "Chapter 2: Methods"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Chapter 2: Methods"}, got)

	require.Len(t, llm.calls, 1)
	prompt := llm.calls[0].prompt
	assert.Contains(t, prompt, "What is regression?")
	assert.Contains(t, prompt, `["Chapter 1: Introduction","Chapter 2: Methods"]`)
	assert.Contains(t, prompt, "Return ONLY a JSON array")
	assert.Zero(t, llm.calls[0].temperature)
}

func TestChapterSelectorToleratesUnknownTitles(t *testing.T) {
	sel := NewChapterSelector(&scriptedLLM{selections: []string{`["Chapter 42: Not Real"]`}})
	got, err := sel.Select(context.Background(), "q", []string{"Chapter 1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Chapter 42: Not Real"}, got)
}

func TestChapterSelectorParseError(t *testing.T) {
	sel := NewChapterSelector(&scriptedLLM{selections: []string{"chapter two, probably"}})
	_, err := sel.Select(context.Background(), "q", []string{"Chapter 1"})
	var perr *SelectionParseError
	assert.ErrorAs(t, err, &perr)
}

func TestChapterSelectorServiceErrorIsNotParseError(t *testing.T) {
	cause := &models.ExternalServiceError{Service: "llm", Op: "complete", Err: errors.New("timeout")}
	sel := NewChapterSelector(&scriptedLLM{err: cause})
	_, err := sel.Select(context.Background(), "q", nil)
	var perr *SelectionParseError
	assert.False(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, cause)
}

func TestBuildSynthesisPrompt(t *testing.T) {
	chunks := []models.RetrievalResult{
		{Chunk: models.Chunk{Text: "Regression fits a line.", ChapterTitle: "Chapter 2: Methods", PageNumber: 10}},
		{Chunk: models.Chunk{Text: "Data are facts.", ChapterTitle: "Chapter 1: Introduction", PageNumber: 2}},
	}
	prompt := BuildSynthesisPrompt("What is regression?", chunks)

	first := strings.Index(prompt, "[Chapter 2: Methods | Page 10]\nRegression fits a line.")
	second := strings.Index(prompt, "[Chapter 1: Introduction | Page 2]\nData are facts.")
	question := strings.Index(prompt, "What is regression?")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
	assert.Less(t, second, question)
	assert.Contains(t, prompt, "Use only the following textbook excerpts")
}

func TestAnswerSynthesizerUsesZeroTemperature(t *testing.T) {
	llm := &scriptedLLM{answers: []string{"A line of best fit."}}
	out, err := NewAnswerSynthesizer(llm).Synthesize(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "A line of best fit.", out)
	assert.Zero(t, llm.calls[0].temperature)
}

func TestAnswerEvaluator(t *testing.T) {
	tests := []struct {
		response string
		want     Verdict
	}{
		{"YES", Accept},
		{" YES \n", Accept},
		{"NO", Reject},
		{"yes", Reject},
		{"Yes please", Reject},
		{"", Reject},
		{"YES and NO", Reject},
	}
	for _, tt := range tests {
		llm := &scriptedLLM{verdicts: []string{tt.response}}
		got, err := NewAnswerEvaluator(llm).Evaluate(context.Background(), "q", "a")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "response %q", tt.response)
		assert.Contains(t, llm.calls[0].prompt, "Respond with ONLY one word: YES or NO.")
	}
}

func TestAnswerEvaluatorPropagatesServiceError(t *testing.T) {
	cause := errors.New("boom")
	_, err := NewAnswerEvaluator(&scriptedLLM{err: cause}).Evaluate(context.Background(), "q", "a")
	assert.ErrorIs(t, err, cause)
}
