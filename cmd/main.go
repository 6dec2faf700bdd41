package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"textbook-rag/internal/config"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, errNoAnswer):
		stop()
		os.Exit(1)
	default:
		log.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "textbook-rag",
		Short:         "Answer questions from textbooks with chapter-guided retrieval",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			setupLogging(zerolog.InfoLevel)

			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			level, err := zerolog.ParseLevel(cfg.Log.Level)
			if err != nil {
				log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, using info")
				level = zerolog.InfoLevel
			}
			setupLogging(level)
			log.Debug().Str("path", configPath).Str("chunk_source", cfg.ChunkSource).Msg("Loaded config")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML config file")
	root.AddCommand(newAskCmd(), newIngestCmd(), newChaptersCmd(), newIndexCmd())
	return root
}

// setupLogging points the global logger at stderr so stdout only carries command output.
func setupLogging(level zerolog.Level) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
