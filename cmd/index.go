package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"textbook-rag/internal/helper"
)

func newChaptersCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chapters",
		Short: "List the chapters known to the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadChunks(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return helper.PrettyPrint(out, store.Chapters())
			}
			for _, c := range store.Chapters() {
				fmt.Fprintln(out, c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the chapter list as a JSON array")
	return cmd
}

func newIndexCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed the corpus into the vector cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cache, err := openCache(cfg)
			if err != nil {
				return err
			}
			if reset {
				if err := cache.Reset(); err != nil {
					return err
				}
				log.Info().Str("collection", cfg.Cache.Collection).Msg("Vector cache cleared")
			}
			store, err := loadChunks(ctx, cfg)
			if err != nil {
				return err
			}
			ix, err := buildIndex(ctx, cfg, store, cache)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks in %d chapters (%d cached vectors)\n",
				ix.Len(), len(ix.Chapters()), cache.Count())
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop cached vectors before indexing")
	return cmd
}
