package main

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"textbook-rag/internal/db"
	"textbook-rag/internal/parser"
)

func newIngestCmd() *cobra.Command {
	var dryRun, toDB, reset bool
	cmd := &cobra.Command{
		Use:   "ingest [PDF...]",
		Short: "Extract chapter-attributed chunks from textbook PDFs",
		Long: `Parses the given PDFs, or every PDF in data_dir, and writes <file>.json chunk
files next to them. With --to-db the chunks are also stored in Postgres;
--reset first drops every stored chunk, including books not ingested in this run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset && !toDB {
				return errors.New("--reset only applies together with --to-db")
			}
			return runIngest(cmd, args, dryRun, toDB, reset)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report chunk counts without writing anything")
	cmd.Flags().BoolVar(&toDB, "to-db", false, "also store chunks in the configured Postgres database")
	cmd.Flags().BoolVar(&reset, "reset", false, "with --to-db, drop all stored chunks before storing")
	return cmd
}

func runIngest(cmd *cobra.Command, paths []string, dryRun, toDB, reset bool) error {
	ctx := cmd.Context()
	p, err := parser.New(&cfg.RAG)
	if err != nil {
		return err
	}

	var books []*parser.Book
	if len(paths) > 0 {
		books, err = p.ParseFiles(paths)
	} else {
		books, err = p.ParseDir(cfg.DataDir)
	}
	if err != nil {
		return err
	}

	var bdb *bun.DB
	if toDB && !dryRun {
		if cfg.Database.DSN == "" {
			return errors.New("--to-db needs database.dsn in the config")
		}
		bdb, err = db.Open(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer bdb.Close()
		if reset {
			if err := db.ResetChunks(ctx, bdb); err != nil {
				return err
			}
		}
	}

	out := cmd.OutOrStdout()
	for _, b := range books {
		fmt.Fprintf(out, "%s: %d chunks in %d chapters\n", b.Name, len(b.Records), countChapters(b))
		if dryRun {
			continue
		}
		written, err := parser.WriteBook(b)
		if err != nil {
			return err
		}
		log.Info().Str("file", written).Msg("Wrote chunk file")
		if bdb != nil {
			if err := db.StoreChunks(ctx, bdb, b.Name, b.Records); err != nil {
				return err
			}
		}
	}
	return nil
}

func countChapters(b *parser.Book) int {
	seen := make(map[string]struct{})
	for _, r := range b.Records {
		seen[r.ChapterTitle] = struct{}{}
	}
	return len(seen)
}
