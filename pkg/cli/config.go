package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/engram/pkg/adapter"
	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/repository"
	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Store
	dbPath           string
	maxContentLength int64

	// Embedding provider
	geminiAPIKey string
	geminiModel  string

	// Logging
	logLevel string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-path",
			Aliases:     []string{"d"},
			Usage:       "Path to the SQLite database file",
			Value:       "engram.db",
			Sources:     cli.EnvVars("ENGRAM_DB_PATH"),
			Destination: &cfg.dbPath,
		},
		&cli.IntFlag{
			Name:        "max-content-length",
			Usage:       "Deployment profile limit for memory content length (1000-2000)",
			Value:       model.MaxContentLength,
			Sources:     cli.EnvVars("ENGRAM_MAX_CONTENT_LENGTH"),
			Destination: &cfg.maxContentLength,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key for embeddings; without it the store runs text-only",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini embedding model",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("ENGRAM_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("ENGRAM_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// setup configures logging and returns a context carrying the logger.
func (cfg *config) setup(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository opens the record store
func (cfg *config) newRepository(ctx context.Context) (*repository.SQLite, error) {
	if cfg.dbPath == "" {
		return nil, goerr.New("db-path is required")
	}

	repo, err := repository.New(ctx, cfg.dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open repository")
	}
	return repo, nil
}

// newUseCase assembles the memory use case with an optional embedding
// provider. A provider that cannot be constructed is logged and skipped;
// its absence is a supported mode, not an error.
func (cfg *config) newUseCase(ctx context.Context) (*memory.UseCase, *repository.SQLite, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []memory.Option{
		memory.WithContentLimit(int(cfg.maxContentLength)),
	}

	if cfg.geminiAPIKey != "" {
		embedder, err := adapter.NewGemini(ctx, cfg.geminiAPIKey,
			adapter.WithEmbeddingModel(cfg.geminiModel))
		if err != nil {
			logging.From(ctx).Warn("embedding provider unavailable, continuing without vectors",
				"error", err)
		} else {
			opts = append(opts, memory.WithEmbedder(embedder))
		}
	} else {
		logging.From(ctx).Debug("no Gemini API key, vector ranking disabled")
	}

	return memory.New(repo, opts...), repo, nil
}
