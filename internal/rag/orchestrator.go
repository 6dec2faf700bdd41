// Package rag answers a question by iterating chapter selection, retrieval,
// synthesis and self-evaluation until the answer is accepted or the step budget runs out.
package rag

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"textbook-rag/internal/models"
)

// DefaultMaxSteps bounds the loop when no positive limit is configured.
const DefaultMaxSteps = 3

type State string

const (
	StateSelecting    State = "SELECTING"
	StateRetrieving   State = "RETRIEVING"
	StateSynthesizing State = "SYNTHESIZING"
	StateEvaluating   State = "EVALUATING"
	StateDone         State = "DONE"
)

// Retriever is the read side of the embedding index.
type Retriever interface {
	Search(ctx context.Context, question string, topK int, chapterFilter []string) ([]models.RetrievalResult, error)
	Chapters() []string
}

type Selector interface {
	Select(ctx context.Context, question string, available []string) ([]string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, question string, chunks []models.RetrievalResult) (string, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, question, answer string) (Verdict, error)
}

// StepRecord describes one pass through the loop.
type StepRecord struct {
	Step         int
	NewChapters  []string
	Retrieved    int
	Verdict      Verdict
	UsedFallback bool
}

// Session is the state of answering one question. It is never shared between questions.
type Session struct {
	ID        string
	Question  string
	Consulted []string
	Chunks    []models.RetrievalResult
	StepCount int
	Answer    string
	Verdict   Verdict
	Steps     []StepRecord

	consulted map[string]struct{}
	collected map[int]struct{}
}

func newSession(question string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Question:  question,
		consulted: make(map[string]struct{}),
		collected: make(map[int]struct{}),
	}
}

// collect appends results not already held by the session and returns how many were new.
// A chapter filter that matches nothing searches the whole corpus, which can return
// chunks an earlier step already collected.
func (s *Session) collect(results []models.RetrievalResult) int {
	added := 0
	for _, r := range results {
		if _, ok := s.collected[r.Chunk.ID]; ok {
			continue
		}
		s.collected[r.Chunk.ID] = struct{}{}
		s.Chunks = append(s.Chunks, r)
		added++
	}
	return added
}

func (s *Session) isConsulted(chapter string) bool {
	_, ok := s.consulted[chapter]
	return ok
}

func (s *Session) consult(chapters []string) {
	for _, c := range chapters {
		if !s.isConsulted(c) {
			s.consulted[c] = struct{}{}
			s.Consulted = append(s.Consulted, c)
		}
	}
}

// unconsulted keeps the order of chapters and drops duplicates and consulted titles.
func (s *Session) unconsulted(chapters []string) []string {
	seen := make(map[string]struct{}, len(chapters))
	var out []string
	for _, c := range chapters {
		if _, dup := seen[c]; dup || s.isConsulted(c) {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Orchestrator drives the answer loop. Its collaborators are created by the caller
// and shared across questions; all per-question state lives in a Session.
type Orchestrator struct {
	retriever   Retriever
	selector    Selector
	synthesizer Synthesizer
	evaluator   Evaluator
	maxSteps    int
	logger      zerolog.Logger
}

type Option func(*Orchestrator)

func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func NewOrchestrator(retriever Retriever, selector Selector, synthesizer Synthesizer, evaluator Evaluator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retriever:   retriever,
		selector:    selector,
		synthesizer: synthesizer,
		evaluator:   evaluator,
		maxSteps:    DefaultMaxSteps,
		logger:      log.Logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) MaxSteps() int { return o.maxSteps }

// AnswerQuestion returns the final answer and every chunk it was built from.
// An empty answer with no chunks means nothing relevant could be retrieved.
func (o *Orchestrator) AnswerQuestion(ctx context.Context, question string, topK int) (string, []models.RetrievalResult, error) {
	s, err := o.Run(ctx, question, topK)
	if err != nil {
		return "", nil, err
	}
	return s.Answer, s.Chunks, nil
}

// Run answers question and returns the whole session. Only collaborator failures are
// returned as errors; failing to reach an accepted answer is not one.
func (o *Orchestrator) Run(ctx context.Context, question string, topK int) (*Session, error) {
	s := newSession(question)
	logger := o.logger.With().Str("session", s.ID).Logger()
	available := o.retriever.Chapters()
	logger.Info().Str("question", question).Int("chapters", len(available)).Int("max_steps", o.maxSteps).Msg("Answering question")

	for s.StepCount < o.maxSteps {
		rec := StepRecord{Step: s.StepCount + 1}
		stepLog := logger.With().Int("step", rec.Step).Logger()

		stepLog.Debug().Str("state", string(StateSelecting)).Msg("Selecting chapters")
		selected, err := o.selector.Select(ctx, question, available)
		var perr *SelectionParseError
		switch {
		case errors.As(err, &perr):
			selected = available
			rec.UsedFallback = true
			stepLog.Warn().Err(err).Bool("selector_fallback", true).Msg("Could not parse chapter selection, consulting all remaining chapters")
		case err != nil:
			return nil, err
		}

		rec.NewChapters = s.unconsulted(selected)
		if len(rec.NewChapters) == 0 {
			stepLog.Info().Str("state", string(StateDone)).Msg("No new chapters to consult")
			break
		}

		stepLog.Info().Str("state", string(StateRetrieving)).Strs("chapters", rec.NewChapters).Msg("Consulting chapters")
		results, err := o.retriever.Search(ctx, question, topK, rec.NewChapters)
		if err != nil {
			return nil, err
		}
		rec.Retrieved = s.collect(results)
		s.consult(rec.NewChapters)
		if len(s.Chunks) == 0 {
			s.Steps = append(s.Steps, rec)
			stepLog.Info().Str("state", string(StateDone)).Msg("Nothing retrieved")
			break
		}

		stepLog.Debug().Str("state", string(StateSynthesizing)).Int("chunks", len(s.Chunks)).Msg("Synthesizing answer")
		answer, err := o.synthesizer.Synthesize(ctx, question, s.Chunks)
		if err != nil {
			return nil, err
		}
		s.Answer = answer

		stepLog.Debug().Str("state", string(StateEvaluating)).Msg("Evaluating answer")
		verdict, err := o.evaluator.Evaluate(ctx, question, answer)
		if err != nil {
			return nil, err
		}
		s.Verdict = verdict
		rec.Verdict = verdict
		s.Steps = append(s.Steps, rec)
		stepLog.Info().Stringer("verdict", verdict).Msg("Self-evaluation")

		if verdict == Accept {
			break
		}
		s.StepCount++
	}

	logger.Info().
		Str("state", string(StateDone)).
		Stringer("verdict", s.Verdict).
		Int("steps", len(s.Steps)).
		Strs("consulted", slices.Clone(s.Consulted)).
		Int("chunks", len(s.Chunks)).
		Msg("Finished")
	return s, nil
}
