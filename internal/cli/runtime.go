package cli

import (
	"context"
	"log/slog"
	"os"

	"mastery-quiz/internal/app"
	"mastery-quiz/internal/archive"
	"mastery-quiz/internal/catalog"
	"mastery-quiz/internal/config"
	"mastery-quiz/internal/generator"
	"mastery-quiz/internal/history"
	"mastery-quiz/internal/migration"
	"mastery-quiz/internal/results"
	"mastery-quiz/internal/seed"
)

// runtime is the fully wired application shared by every subcommand.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	backend  *backend
	catalog  *catalog.Catalog
	archive  *archive.Store
	history  *history.Tracker
	results  *results.Ledger
	seeder   *seed.Seeder
	migrator *migration.Runner
	service  *app.QuizService
}

func openRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, os.Stderr)

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, backend: b, catalog: catalog.Default()}
	rt.archive = archive.NewStore(b.kv, logger)
	rt.history = history.NewTracker(b.kv, logger)
	rt.results = results.NewLedger(b.kv, rt.catalog, logger)
	rt.migrator = migration.NewRunner(b.kv, migration.DefaultSteps(rt.history, rt.archive, rt.catalog.Topics()), logger)
	rt.seeder, err = seed.NewSeeder(rt.archive, rt.catalog.Topics(), cfg.Seed.Target, logger)
	if err != nil {
		b.Close()
		return nil, err
	}

	selector := app.NewSelector(rt.archive, rt.history, app.SelectorConfig{
		SingleSize:      cfg.Quiz.SingleSize,
		SingleThreshold: cfg.Quiz.SingleThreshold,
		MixedSize:       cfg.Quiz.MixedSize,
		MixedThreshold:  cfg.Quiz.MixedThreshold,
	}, logger)

	rt.service = app.NewQuizService(app.Dependencies{
		Archive:       rt.archive,
		History:       rt.history,
		Results:       rt.results,
		Sessions:      b.sessions,
		Generator:     newGenerator(ctx, cfg, logger),
		Seeder:        rt.seeder,
		Topics:        rt.catalog,
		Selector:      selector,
		Logger:        logger,
		GenerateCount: cfg.Quiz.GenerateCount,
	})
	return rt, nil
}

func (rt *runtime) Close() {
	rt.backend.Close()
}

// newGenerator falls back to a disabled provider so that a missing API key
// only disables generation instead of blocking startup.
func newGenerator(ctx context.Context, cfg config.Config, logger *slog.Logger) *generator.BatchGenerator {
	timeout := config.TTLDuration(cfg.Generator.Timeout, 0)
	var provider generator.Provider = generator.Disabled{}
	if cfg.Generator.Provider == config.ProviderGemini {
		gemini, err := generator.NewGeminiProvider(ctx, cfg.APIKey(), cfg.Generator.Model)
		if err != nil {
			logger.Warn("question generation disabled", "provider", cfg.Generator.Provider, "err", err)
		} else {
			provider = gemini
		}
	}
	return generator.NewBatchGenerator(provider, timeout, logger)
}

// bootstrap runs pending migrations and then tops up the archives, so a
// fresh seed is never wiped by a destructive migration step.
func (rt *runtime) bootstrap(ctx context.Context) error {
	applied, err := rt.migrator.Run(ctx)
	if err != nil {
		return err
	}
	added, err := rt.seeder.Run(ctx, nil)
	if err != nil {
		return err
	}
	rt.logger.Info("bootstrap complete", "migrations", applied, "seeded", added)
	return nil
}
