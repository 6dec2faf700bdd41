package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"textbook-rag/internal/chromemdb"
	"textbook-rag/internal/chunkstore"
	"textbook-rag/internal/config"
	"textbook-rag/internal/db"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/helper"
	"textbook-rag/internal/index"
	"textbook-rag/internal/llmservice"
	"textbook-rag/internal/rag"
)

// loadChunks reads the corpus from the configured chunk source.
func loadChunks(ctx context.Context, cfg *config.Config) (*chunkstore.Store, error) {
	if cfg.ChunkSource == config.SourcePostgres {
		bdb, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		defer bdb.Close()
		chunks, err := db.LoadChunks(ctx, bdb)
		if err != nil {
			return nil, err
		}
		store := chunkstore.FromChunks(chunks)
		log.Info().Int("chunks", store.Len()).Msg("Loaded chunks from database")
		return store, nil
	}

	store, err := chunkstore.LoadDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", cfg.DataDir).Int("chunks", store.Len()).Int("chapters", len(store.Chapters())).Msg("Loaded chunks")
	return store, nil
}

func openCache(cfg *config.Config) (*chromemdb.VectorDBManager, error) {
	if cfg.Cache.Path != "" {
		if err := helper.CreateFolder(cfg.Cache.Path); err != nil {
			return nil, err
		}
	}
	cache, err := chromemdb.NewVectorDBManager(cfg.Cache.Path, cfg.Cache.Collection, cfg.Cache.Compress)
	if err != nil {
		return nil, err
	}
	return cache.ForModel(cfg.EmbedLLM.Provider + "/" + cfg.EmbedLLM.Model), nil
}

// buildIndex embeds the corpus, reusing vectors already held by cache.
func buildIndex(ctx context.Context, cfg *config.Config, store *chunkstore.Store, cache *chromemdb.VectorDBManager) (*index.Index, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	ix := index.New(embedder, index.WithCache(cache))
	if err := ix.Build(ctx, store.Chunks()); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	return ix, nil
}

func newOrchestrator(cfg *config.Config, ix *index.Index, maxSteps int) (*rag.Orchestrator, error) {
	client, err := llmservice.NewClient(&cfg.LLM)
	if err != nil {
		return nil, err
	}
	return rag.NewOrchestrator(
		ix,
		rag.NewChapterSelector(client),
		rag.NewAnswerSynthesizer(client),
		rag.NewAnswerEvaluator(client),
		rag.WithMaxSteps(maxSteps),
	), nil
}
