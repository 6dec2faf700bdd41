package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"textbook-rag/internal/llmservice"
	"textbook-rag/internal/models"
)

// AnswerEvaluator asks the model whether an answer is complete and well supported.
type AnswerEvaluator struct {
	llm    llmservice.Completer
	logger zerolog.Logger
}

func NewAnswerEvaluator(llm llmservice.Completer) *AnswerEvaluator {
	return &AnswerEvaluator{
		llm:    llm,
		logger: log.Logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate returns Accept only for an exact YES. Any other output is a Reject.
func (e *AnswerEvaluator) Evaluate(ctx context.Context, question, answer string) (Verdict, error) {
	resp, err := e.llm.Complete(ctx, fmt.Sprintf(models.EvaluatePromptTemplate, question, answer), Temperature)
	if err != nil {
		return Reject, err
	}
	v, err := ParseVerdict(resp)
	if errors.Is(err, ErrAmbiguousVerdict) {
		e.logger.Debug().Str("response", truncate(resp, 80)).Msg("Ambiguous verdict treated as reject")
	}
	return v, nil
}
