package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonathan/applier/internal/application"
	"github.com/jonathan/applier/internal/automation"
	"github.com/jonathan/applier/internal/config"
	"github.com/jonathan/applier/internal/db"
	"github.com/jonathan/applier/internal/documents"
	"github.com/jonathan/applier/internal/embedding"
	"github.com/jonathan/applier/internal/llm"
	"github.com/jonathan/applier/internal/logging"
	"github.com/jonathan/applier/internal/matching"
	"github.com/jonathan/applier/internal/store"
	"github.com/jonathan/applier/internal/types"
	"github.com/jonathan/applier/internal/vectorindex"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the configuration, logger and the resources a command opened
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	closers []func()
}

// flagKeys maps persistent flags onto config keys
var flagKeys = map[string]string{
	"debug":       "log.debug",
	"json":        "log.json",
	"profile":     "profile_path",
	"storage-dir": "storage_dir",
}

// loadApp reads configuration with command-line overrides and builds the logger
func loadApp(cmd *cobra.Command) (*app, error) {
	v := config.New()
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}

	cfg, err := config.LoadWith(v, configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

// openDB connects to PostgreSQL
func (a *app) openDB(ctx context.Context) (*db.DB, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	database, err := db.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, database.Close)
	return database, nil
}

// newEngine builds the matching engine over s and loads stored embeddings into its index
func (a *app) newEngine(ctx context.Context, s store.Store) (*matching.Engine, error) {
	if err := a.cfg.RequireGemini(); err != nil {
		return nil, err
	}
	provider, err := embedding.NewGeminiProvider(ctx, a.cfg.GeminiAPIKey, a.cfg.Embedding.Model)
	if err != nil {
		return nil, err
	}

	index := vectorindex.New(vectorindex.Options{
		Dimension:  types.EmbeddingDimension,
		Partitions: a.cfg.Index.Partitions,
		Probes:     a.cfg.Index.Probes,
		Iterations: a.cfg.Index.Iterations,
		Seed:       1,
	})
	engine := matching.New(s, index, provider, matching.Options{
		Concurrency:          a.cfg.Matching.Concurrency,
		EmbedTimeout:         a.cfg.Matching.EmbedTimeout,
		MaxEmbeddingAttempts: a.cfg.Matching.MaxEmbeddingAttempts,
	}, a.logger.Named("matching"))

	if _, err := engine.LoadIndex(ctx); err != nil {
		return nil, err
	}
	return engine, nil
}

// errEmbeddingDisabled is returned by the provider of an offline engine
var errEmbeddingDisabled = errors.New("embedding is not available in this command")

// offlineEngine builds an engine for status changes that never embed
func (a *app) offlineEngine(s store.Store) *matching.Engine {
	provider := embedding.ProviderFunc(func(context.Context, string) ([]float32, error) {
		return nil, errEmbeddingDisabled
	})
	index := vectorindex.New(vectorindex.DefaultOptions())
	return matching.New(s, index, provider, matching.DefaultOptions(), a.logger.Named("matching"))
}

// readProfile returns the candidate's base resume text
func (a *app) readProfile() (string, error) {
	if a.cfg.ProfilePath == "" {
		return "", errors.New("no resume configured (set profile_path or pass --profile)")
	}
	data, err := os.ReadFile(a.cfg.ProfilePath)
	if err != nil {
		return "", fmt.Errorf("failed to read resume: %w", err)
	}
	return string(data), nil
}

func (a *app) newService(s store.Store) *application.Service {
	return application.NewService(s, application.Options{MaxPerJob: a.cfg.Applications.MaxPerJob}, a.logger.Named("applications"))
}

// newPreparer wires document generation, artifact storage and, when enabled,
// the browser into a Preparer
func (a *app) newPreparer(ctx context.Context, s store.Store, service *application.Service, autoSubmit, browser bool) (*application.Preparer, error) {
	if err := a.cfg.RequireGemini(); err != nil {
		return nil, err
	}
	profile, err := a.readProfile()
	if err != nil {
		return nil, err
	}

	gen := a.cfg.Generation
	llmCfg := llm.DefaultConfig().WithModels(map[llm.Task]string{
		llm.TaskHighlights:  gen.HighlightsModel,
		llm.TaskResume:      gen.ResumeModel,
		llm.TaskCoverLetter: gen.CoverLetterModel,
	})
	llmCfg.Temperature = gen.Temperature
	llmCfg.MaxRetries = gen.MaxRetries

	client, err := llm.NewClient(ctx, llmCfg, a.cfg.GeminiAPIKey, a.logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	artifacts, err := documents.NewFileStore(a.cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	var auto application.Automation
	if browser {
		auto = automation.NewBrowser(automation.Options{
			Timeout:     a.cfg.Browser.Timeout,
			SettleDelay: automation.DefaultOptions().SettleDelay,
		}, a.logger.Named("browser"))
	}

	return application.NewPreparer(
		service,
		s,
		documents.NewGenerator(client, a.logger.Named("documents")),
		artifacts,
		auto,
		application.PreparerOptions{Profile: profile, AutoSubmit: autoSubmit},
		a.logger.Named("preparer"),
	), nil
}
