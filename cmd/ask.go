package main

import (
	"cmp"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"textbook-rag/internal/rag"
)

var errNoAnswer = errors.New("no answer could be produced")

type askOptions struct {
	topK     int
	maxSteps int
	verbose  bool
	raw      bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer a question from the indexed textbooks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().IntVar(&opts.topK, "top-k", 0, "chunks retrieved per step (default rag.top_k)")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "maximum rejected answers before giving up (default rag.max_steps)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print the step trace and retrieved chunks")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print the answer without markdown rendering")
	return cmd
}

func runAsk(cmd *cobra.Command, question string, opts askOptions) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return errors.New("question is empty")
	}
	ctx := cmd.Context()

	store, err := loadChunks(ctx, cfg)
	if err != nil {
		return err
	}
	cache, err := openCache(cfg)
	if err != nil {
		return err
	}
	ix, err := buildIndex(ctx, cfg, store, cache)
	if err != nil {
		return err
	}
	o, err := newOrchestrator(cfg, ix, cmp.Or(opts.maxSteps, cfg.RAG.MaxSteps))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.QuestionTimeout())
	defer cancel()
	session, err := o.Run(runCtx, question, cmp.Or(opts.topK, cfg.RAG.TopK))
	if err != nil {
		return err
	}

	return reportSession(cmd.OutOrStdout(), session, opts)
}

func reportSession(out io.Writer, session *rag.Session, opts askOptions) error {
	if opts.verbose {
		printTrace(out, session)
	}
	switch {
	case len(session.Chunks) == 0:
		warnColor.Fprintln(out, "No relevant textbook content was found for this question.")
		return errNoAnswer
	case strings.TrimSpace(session.Answer) == "":
		warnColor.Fprintln(out, "The model returned an empty answer.")
		printSources(out, session.Chunks)
		return errNoAnswer
	}
	printAnswer(out, session.Answer, opts.raw)
	printSources(out, session.Chunks)
	return nil
}
