package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textbook-rag/internal/chunkstore"
	"textbook-rag/internal/config"
	"textbook-rag/internal/models"
	"textbook-rag/internal/rag"
)

func init() {
	color.NoColor = true
}

// workspace writes a config pointing at a data dir holding one chunk file.
func workspace(t *testing.T) string {
	t.Helper()
	t.Setenv(config.DataDirEnv, "")
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(data, 0o755))
	require.NoError(t, chunkstore.WriteFile(filepath.Join(data, "stats.pdf.json"), []models.ChunkRecord{
		{ChapterTitle: "Chapter 2: Methods", PageNum: 10, ChunkText: "Regression fits a line."},
		{ChapterTitle: "Chapter 1: Introduction", PageNum: 1, ChunkText: "Data are facts."},
	}))
	conf := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("data_dir: "+data+"\nlog:\n  level: error\n"), 0o644))
	return conf
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestChaptersCommand(t *testing.T) {
	conf := workspace(t)

	out, err := execute(t, "--config", conf, "chapters")
	require.NoError(t, err)
	assert.Equal(t, "Chapter 1: Introduction\nChapter 2: Methods\n", out)

	out, err = execute(t, "--config", conf, "chapters", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `["Chapter 1: Introduction","Chapter 2: Methods"]`, out)
}

func TestIngestDryRunWithoutPDFs(t *testing.T) {
	out, err := execute(t, "--config", workspace(t), "ingest", "--dry-run")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestIngestResetNeedsToDB(t *testing.T) {
	_, err := execute(t, "--config", workspace(t), "ingest", "--reset")
	assert.EqualError(t, err, "--reset only applies together with --to-db")
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	_, err := execute(t, "--config", workspace(t), "ask", "   ")
	assert.EqualError(t, err, "question is empty")
}

func TestInvalidConfigFails(t *testing.T) {
	conf := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(conf, []byte("chunk_source: sqlite\n"), 0o644))
	_, err := execute(t, "--config", conf, "chapters")
	assert.ErrorContains(t, err, "unsupported chunk_source")
}

func TestPrintTraceAndSources(t *testing.T) {
	chunk := models.RetrievalResult{
		Chunk:    models.Chunk{Text: "Regression fits a line.", ChapterTitle: "Chapter 2: Methods", PageNumber: 10, SourceBook: "stats.pdf.json"},
		Distance: 0.25,
	}
	s := &rag.Session{
		ID:     "abc",
		Chunks: []models.RetrievalResult{chunk, chunk},
		Steps: []rag.StepRecord{
			{Step: 1, NewChapters: []string{"Chapter 2: Methods"}, Retrieved: 2, Verdict: rag.Reject, UsedFallback: true},
			{Step: 2, NewChapters: []string{"Chapter 3"}, Retrieved: 0, Verdict: rag.Accept},
		},
	}

	var buf bytes.Buffer
	printTrace(&buf, s)
	trace := buf.String()
	assert.Contains(t, trace, "Session abc")
	assert.Contains(t, trace, "Step 1: 2 new chunk(s) from [Chapter 2: Methods] -> REJECT (selection unparsable")
	assert.Contains(t, trace, "Step 2: 0 new chunk(s) from [Chapter 3] -> ACCEPT\n")
	assert.Contains(t, trace, "[Chapter 2: Methods | page 10 | stats.pdf.json | distance 0.2500]")

	buf.Reset()
	printSources(&buf, s.Chunks)
	assert.Equal(t, "Sources\n  - Chapter 2: Methods, page 10 (stats.pdf.json)\n", buf.String())

	buf.Reset()
	printAnswer(&buf, "**bold**", true)
	assert.Equal(t, "Answer\n**bold**\n", buf.String())
}

func TestReportSession(t *testing.T) {
	chunk := models.RetrievalResult{Chunk: models.Chunk{Text: "Regression fits a line.", ChapterTitle: "Chapter 2: Methods", PageNumber: 10, SourceBook: "stats.pdf.json"}}

	var buf bytes.Buffer
	err := reportSession(&buf, &rag.Session{}, askOptions{raw: true})
	assert.ErrorIs(t, err, errNoAnswer)
	assert.Contains(t, buf.String(), "No relevant textbook content was found")

	buf.Reset()
	err = reportSession(&buf, &rag.Session{Chunks: []models.RetrievalResult{chunk}}, askOptions{raw: true})
	assert.ErrorIs(t, err, errNoAnswer)
	assert.Contains(t, buf.String(), "The model returned an empty answer.")
	assert.NotContains(t, buf.String(), "No relevant textbook content")
	assert.Contains(t, buf.String(), "Chapter 2: Methods, page 10 (stats.pdf.json)")

	buf.Reset()
	err = reportSession(&buf, &rag.Session{Answer: "A line.", Chunks: []models.RetrievalResult{chunk}}, askOptions{raw: true})
	require.NoError(t, err)
	assert.Equal(t, "Answer\nA line.\nSources\n  - Chapter 2: Methods, page 10 (stats.pdf.json)\n", buf.String())
}
