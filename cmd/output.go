package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"textbook-rag/internal/helper"
	"textbook-rag/internal/models"
	"textbook-rag/internal/rag"
)

const previewChars = 200

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	acceptColor = color.New(color.FgGreen, color.Bold)
	rejectColor = color.New(color.FgRed)
	warnColor   = color.New(color.FgYellow)
)

func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

func printAnswer(w io.Writer, answer string, raw bool) {
	headerColor.Fprintln(w, "Answer")
	if raw {
		fmt.Fprintln(w, answer)
		return
	}
	fmt.Fprint(w, renderMarkdown(answer))
}

// printSources lists each chapter/page/book the answer drew on once, in retrieval order.
func printSources(w io.Writer, chunks []models.RetrievalResult) {
	headerColor.Fprintln(w, "Sources")
	seen := make(map[string]struct{})
	for _, r := range chunks {
		line := fmt.Sprintf("%s, page %d (%s)", r.Chunk.ChapterTitle, r.Chunk.PageNumber, r.Chunk.SourceBook)
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		fmt.Fprintf(w, "  - %s\n", line)
	}
}

func printTrace(w io.Writer, s *rag.Session) {
	headerColor.Fprintf(w, "Session %s\n", s.ID)
	for _, st := range s.Steps {
		verdict := rejectColor.Sprint(st.Verdict)
		if st.Verdict == rag.Accept {
			verdict = acceptColor.Sprint(st.Verdict)
		}
		fmt.Fprintf(w, "Step %d: %d new chunk(s) from %v -> %s", st.Step, st.Retrieved, st.NewChapters, verdict)
		if st.UsedFallback {
			warnColor.Fprint(w, " (selection unparsable, consulted all remaining chapters)")
		}
		fmt.Fprintln(w)
	}
	headerColor.Fprintln(w, "Retrieved chunks")
	for _, r := range s.Chunks {
		fmt.Fprintf(w, "  [%s | page %d | %s | distance %.4f]\n    %s\n",
			r.Chunk.ChapterTitle, r.Chunk.PageNumber, r.Chunk.SourceBook, r.Distance,
			helper.Preview(r.Chunk.Text, previewChars))
	}
	fmt.Fprintln(w)
}
