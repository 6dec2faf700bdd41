package rag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textbook-rag/internal/index"
	"textbook-rag/internal/models"
)

type wordEmbedder struct{}

func (wordEmbedder) vector(text string) []float32 {
	v := make([]float32, 16)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%16]++
	}
	v[0] += 0.01
	return v
}

func (e wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func textbook() []models.Chunk {
	return []models.Chunk{
		{ID: 0, Text: "This is a sample text chunk about statistics.", ChapterTitle: "Chapter 1: Introduction", PageNumber: 1, SourceBook: "book.pdf.json"},
		{ID: 1, Text: "Another chunk of text about data analysis.", ChapterTitle: "Chapter 1: Introduction", PageNumber: 2, SourceBook: "book.pdf.json"},
		{ID: 2, Text: "Regression models the relationship between variables.", ChapterTitle: "Chapter 2: Methods", PageNumber: 10, SourceBook: "book.pdf.json"},
	}
}

func newIndex(t *testing.T, chunks []models.Chunk) *index.Index {
	t.Helper()
	ix := index.New(wordEmbedder{})
	require.NoError(t, ix.Build(context.Background(), chunks))
	return ix
}

func newOrchestrator(ix Retriever, llm *scriptedLLM, opts ...Option) *Orchestrator {
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return NewOrchestrator(ix, NewChapterSelector(llm), NewAnswerSynthesizer(llm), NewAnswerEvaluator(llm), opts...)
}

func chunkIDs(rs []models.RetrievalResult) []int {
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = r.Chunk.ID
	}
	return ids
}

func TestAnswerQuestionAcceptedOnFirstPass(t *testing.T) {
	llm := &scriptedLLM{
		selections: []string{`["Chapter 2: Methods"]`},
		answers:    []string{"Regression relates variables."},
		verdicts:   []string{"YES"},
	}
	o := newOrchestrator(newIndex(t, textbook()), llm)

	answer, chunks, err := o.AnswerQuestion(context.Background(), "What is regression?", 5)
	require.NoError(t, err)
	assert.Equal(t, "Regression relates variables.", answer)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].Chunk.ID)
	assert.Equal(t, "Chapter 2: Methods", chunks[0].Chunk.ChapterTitle)
	assert.Len(t, llm.promptsLike("You are planning"), 1)
	assert.Len(t, llm.promptsLike("Evaluate the following"), 1)
}

func TestReselectingConsultedChapterStops(t *testing.T) {
	llm := &scriptedLLM{
		selections: []string{`["Chapter 1: Introduction"]`, `["Chapter 1: Introduction"]`},
		answers:    []string{"first answer", "should not be produced"},
		verdicts:   []string{"NO"},
	}
	o := newOrchestrator(newIndex(t, textbook()), llm)

	s, err := o.Run(context.Background(), "What is data?", 5)
	require.NoError(t, err)
	assert.Equal(t, "first answer", s.Answer)
	assert.ElementsMatch(t, []int{0, 1}, chunkIDs(s.Chunks))
	assert.Equal(t, []string{"Chapter 1: Introduction"}, s.Consulted)
	assert.Len(t, s.Steps, 1)
	assert.Len(t, llm.promptsLike("You are planning"), 2)
	assert.Len(t, llm.promptsLike("Evaluate the following"), 1)
}

func TestAlwaysRejectStopsAtMaxSteps(t *testing.T) {
	llm := &scriptedLLM{
		selections: []string{`["Chapter 1: Introduction"]`, `["Chapter 2: Methods"]`, `["Chapter 3: Extra"]`},
		answers:    []string{"first answer", "second answer", "third answer"},
		verdicts:   []string{"NO"},
	}
	o := newOrchestrator(newIndex(t, textbook()), llm, WithMaxSteps(2))

	answer, chunks, err := o.AnswerQuestion(context.Background(), "Explain regression", 5)
	require.NoError(t, err)
	assert.Equal(t, "second answer", answer)
	assert.Equal(t, []int{0, 1, 2}, sortedCopy(chunkIDs(chunks)))

	assert.Len(t, llm.promptsLike("You are planning"), 2)
	assert.Len(t, llm.promptsLike("Evaluate the following"), 2)
	synth := llm.promptsLike("You are a helpful teaching assistant")
	require.Len(t, synth, 2)
	assert.NotContains(t, synth[0], "Regression models")
	assert.Contains(t, synth[1], "Regression models")
	assert.Contains(t, synth[1], "sample text chunk about statistics")
}

func sortedCopy(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

func TestSelectionParseFailureFallsBackToRemainingChapters(t *testing.T) {
	var buf bytes.Buffer
	llm := &scriptedLLM{
		selections: []string{"I would look at the methods chapter."},
		answers:    []string{"best effort"},
		verdicts:   []string{"NO"},
	}
	o := NewOrchestrator(newIndex(t, textbook()), NewChapterSelector(llm), NewAnswerSynthesizer(llm), NewAnswerEvaluator(llm),
		WithLogger(zerolog.New(&buf)))

	s, err := o.Run(context.Background(), "What is regression?", 5)
	require.NoError(t, err)
	assert.Equal(t, "best effort", s.Answer)
	assert.Equal(t, []string{"Chapter 1: Introduction", "Chapter 2: Methods"}, s.Consulted)
	require.Len(t, s.Steps, 1)
	assert.True(t, s.Steps[0].UsedFallback)
	assert.Len(t, s.Chunks, 3)
	assert.Contains(t, buf.String(), `"selector_fallback":true`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestNothingRetrievableReturnsEmpty(t *testing.T) {
	t.Run("no chapters selected", func(t *testing.T) {
		llm := &scriptedLLM{selections: []string{`[]`}}
		answer, chunks, err := newOrchestrator(newIndex(t, textbook()), llm).AnswerQuestion(context.Background(), "q", 5)
		require.NoError(t, err)
		assert.Empty(t, answer)
		assert.Empty(t, chunks)
		assert.Empty(t, llm.promptsLike("You are a helpful teaching assistant"))
	})

	t.Run("empty corpus", func(t *testing.T) {
		llm := &scriptedLLM{selections: []string{`["Chapter 1"]`}}
		answer, chunks, err := newOrchestrator(newIndex(t, nil), llm).AnswerQuestion(context.Background(), "q", 5)
		require.NoError(t, err)
		assert.Empty(t, answer)
		assert.Empty(t, chunks)
		assert.Empty(t, llm.promptsLike("You are a helpful teaching assistant"))
	})
}

func TestConsultedChaptersGrowWithoutDuplicates(t *testing.T) {
	llm := &scriptedLLM{
		selections: []string{
			`["Chapter 1: Introduction", "Chapter 1: Introduction"]`,
			`["Chapter 1: Introduction", "Chapter 2: Methods", "Chapter 2: Methods"]`,
			`["Chapter 2: Methods"]`,
		},
		answers:  []string{"a1", "a2"},
		verdicts: []string{"NO"},
	}
	s, err := newOrchestrator(newIndex(t, textbook()), llm, WithMaxSteps(5)).Run(context.Background(), "q", 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"Chapter 1: Introduction", "Chapter 2: Methods"}, s.Consulted)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, []string{"Chapter 1: Introduction"}, s.Steps[0].NewChapters)
	assert.Equal(t, []string{"Chapter 2: Methods"}, s.Steps[1].NewChapters)

	var seen []string
	for _, st := range s.Steps {
		for _, c := range st.NewChapters {
			assert.NotContains(t, seen, c)
			seen = append(seen, c)
		}
	}
	assert.Equal(t, seen, s.Consulted)
	assert.Equal(t, "a2", s.Answer)
}

func TestFallbackSearchDoesNotRepeatChunks(t *testing.T) {
	llm := &scriptedLLM{
		selections: []string{`["Chapter 1: Introduction"]`, `["Chapter 9: Not In This Book"]`},
		answers:    []string{"a1", "a2"},
		verdicts:   []string{"NO"},
	}
	s, err := newOrchestrator(newIndex(t, textbook()), llm, WithMaxSteps(2)).Run(context.Background(), "q", 5)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, sortedCopy(chunkIDs(s.Chunks)))
	require.Len(t, s.Steps, 2)
	assert.Equal(t, 2, s.Steps[0].Retrieved)
	assert.Equal(t, 1, s.Steps[1].Retrieved)

	synth := llm.promptsLike("You are a helpful teaching assistant")
	require.Len(t, synth, 2)
	assert.Equal(t, 1, strings.Count(synth[1], "sample text chunk about statistics"))
}

type endlessSelector struct{ calls int }

func (e *endlessSelector) Select(context.Context, string, []string) ([]string, error) {
	e.calls++
	return []string{fmt.Sprintf("Chapter %d", e.calls)}, nil
}

type countingSynth struct{ calls int }

func (c *countingSynth) Synthesize(context.Context, string, []models.RetrievalResult) (string, error) {
	c.calls++
	return fmt.Sprintf("answer %d", c.calls), nil
}

type rejectAll struct{}

func (rejectAll) Evaluate(context.Context, string, string) (Verdict, error) { return Reject, nil }

func TestLoopTerminatesWithinMaxSteps(t *testing.T) {
	ix := newIndex(t, textbook())
	for maxSteps := 1; maxSteps <= 5; maxSteps++ {
		sel := &endlessSelector{}
		syn := &countingSynth{}
		o := NewOrchestrator(ix, sel, syn, rejectAll{}, WithMaxSteps(maxSteps), WithLogger(zerolog.Nop()))

		s, err := o.Run(context.Background(), "q", 1)
		require.NoError(t, err)
		assert.Equal(t, maxSteps, syn.calls)
		assert.Equal(t, maxSteps, sel.calls)
		assert.Equal(t, maxSteps, s.StepCount)
		assert.Equal(t, fmt.Sprintf("answer %d", maxSteps), s.Answer)
		assert.Equal(t, Reject, s.Verdict)
	}
}

func TestMaxStepsDefault(t *testing.T) {
	o := NewOrchestrator(nil, nil, nil, nil, WithMaxSteps(0))
	assert.Equal(t, DefaultMaxSteps, o.MaxSteps())
}

type failingRetriever struct{ err error }

func (f failingRetriever) Search(context.Context, string, int, []string) ([]models.RetrievalResult, error) {
	return nil, f.err
}

func (failingRetriever) Chapters() []string { return []string{"Chapter 1"} }

func TestServiceErrorsPropagateUnchanged(t *testing.T) {
	svcErr := &models.ExternalServiceError{Service: "llm", Op: "complete", Err: errors.New("503")}

	llm := &scriptedLLM{err: svcErr}
	_, _, err := newOrchestrator(newIndex(t, textbook()), llm).AnswerQuestion(context.Background(), "q", 5)
	assert.Same(t, svcErr, err)

	embErr := &models.ExternalServiceError{Service: "embedding", Op: "embed query", Err: errors.New("down")}
	llm = &scriptedLLM{selections: []string{`["Chapter 1"]`}}
	_, _, err = newOrchestrator(failingRetriever{err: embErr}, llm).AnswerQuestion(context.Background(), "q", 5)
	assert.Same(t, embErr, err)
}

func TestSessionsAreIndependent(t *testing.T) {
	llm := &scriptedLLM{
		selections: []string{`["Chapter 2: Methods"]`},
		answers:    []string{"answer"},
		verdicts:   []string{"YES"},
	}
	o := newOrchestrator(newIndex(t, textbook()), llm)

	first, err := o.Run(context.Background(), "q1", 5)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), "q2", 5)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{"Chapter 2: Methods"}, second.Consulted)
	assert.Len(t, second.Chunks, 1)
}
