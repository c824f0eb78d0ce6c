package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rcliao/brightmatter/internal/brightmatter"
	"github.com/rcliao/brightmatter/internal/cache"
	"github.com/rcliao/brightmatter/internal/config"
	"github.com/rcliao/brightmatter/internal/cost"
	"github.com/rcliao/brightmatter/internal/embedding"
	"github.com/rcliao/brightmatter/internal/logging"
	"github.com/rcliao/brightmatter/internal/memory"
	"github.com/rcliao/brightmatter/internal/model"
	"github.com/rcliao/brightmatter/internal/optimizer"
	"github.com/rcliao/brightmatter/internal/pruning"
	"github.com/rcliao/brightmatter/internal/session"
	"github.com/rcliao/brightmatter/internal/signal"
	"github.com/rcliao/brightmatter/internal/store"
	"github.com/rcliao/brightmatter/internal/veriscore"
)

// app holds every service wired from one configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.SQLiteStore
	cache    *cache.Manager
	ledger   *cost.Ledger
	usage    *cost.Async
	engine   *signal.Engine
	calc     *veriscore.Calculator
	opt      *optimizer.Optimizer
	bm       *brightmatter.Orchestrator
	memory   *memory.Core
	sessions *session.Manager
	pruner   *pruning.Pruner
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.DBPath, store.WithHistoryLimit(cfg.VeriScore.HistorySize))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: st}
	a.cache = cache.NewFromConfig(ctx, cfg.Cache, logger)
	a.ledger = cost.NewLedger(st,
		cost.WithEnabled(cfg.Cost.Enabled),
		cost.WithBudgets(cfg.Cost.DailyBudgets),
		cost.WithLogger(logger))
	a.usage = cost.NewAsync(a.ledger, 0, logger)

	a.engine = signal.New(
		signal.WithWeights(cfg.Signal.Weights),
		signal.WithHistorySize(cfg.Signal.HistorySize),
		signal.WithStore(st),
		signal.WithLogger(logger))
	a.calc = veriscore.New(
		veriscore.WithWeights(cfg.VeriScore.Weights),
		veriscore.WithDecayRate(cfg.VeriScore.DecayRate),
		veriscore.WithHistorySize(cfg.VeriScore.HistorySize),
		veriscore.WithStore(st),
		veriscore.WithLogger(logger))

	embedder := a.buildEmbedder()
	a.opt = optimizer.New(a.engine,
		optimizer.WithEnrichment(a.buildEnrichment(embedder)),
		optimizer.WithCache(a.cache),
		optimizer.WithCacheTTL(cfg.Cache.DefaultTTL),
		optimizer.WithLogger(logger))
	a.bm = brightmatter.New(a.engine, a.calc, a.opt,
		brightmatter.WithCache(a.cache),
		brightmatter.WithCacheTTL(cfg.Cache.DefaultTTL),
		brightmatter.WithLogger(logger))

	memOpts := []memory.Option{
		memory.WithRepository(st),
		memory.WithCompressionThreshold(cfg.Memory.CompressionThreshold),
		memory.WithMaxChunks(cfg.Memory.MaxChunks),
		memory.WithLogger(logger),
	}
	if embedder != nil {
		memOpts = append(memOpts,
			memory.WithEmbedder(embedder),
			memory.WithRetriever(memory.SemanticRetriever{Embedder: embedder}))
	}
	a.memory = memory.New(memOpts...)

	a.sessions = session.NewManager(a.memory,
		session.WithWindow(cfg.Session.WindowMinutes),
		session.WithMaxActiveContexts(cfg.Session.MaxActiveContexts),
		session.WithSwitchThreshold(cfg.Session.SwitchThreshold),
		session.WithLogger(logger))

	pruneOpts := []pruning.Option{
		pruning.WithDecayConfig(cfg.Pruning.DecayConfig),
		pruning.WithLogger(logger),
	}
	if len(cfg.Pruning.Policies) > 0 {
		pruneOpts = append(pruneOpts, pruning.WithPolicies(cfg.Pruning.Policies...))
	}
	a.pruner = pruning.New(a.memory, pruneOpts...)
	return a, nil
}

// buildEmbedder returns the configured embedder wrapped with a hash
// fallback, or nil when embeddings are disabled.
func (a *app) buildEmbedder() embedding.Embedder {
	ec := a.cfg.Enrichment.Config
	if ec.Provider == "openai" && ec.APIKey == "" {
		ec.APIKey = a.cfg.Enrichment.APIKey
	}
	e, err := embedding.NewFromConfig(ec)
	if err != nil {
		a.logger.Warn("embedding provider unavailable, using hash embedder", "err", err)
		return embedding.NewHashEmbedder(embedding.DefaultHashDims)
	}
	if e == nil {
		return nil
	}
	if oe, ok := e.(*embedding.OpenAIEmbedder); ok {
		oe.OnUsage(func(ctx context.Context, name string, tokens int64) {
			a.usage.TrackUsage(ctx, cost.Usage{Service: "openai", Endpoint: "embeddings/" + name, TokensUsed: tokens})
		})
	}
	if _, ok := e.(*embedding.HashEmbedder); ok {
		return e
	}
	return embedding.WithFallback(e, a.logger)
}

func (a *app) buildEnrichment(embedder embedding.Embedder) optimizer.Enrichment {
	ec := a.cfg.Enrichment
	if !ec.Enabled {
		return optimizer.FallbackEnrichment{}
	}
	completer, err := optimizer.NewOpenAICompleter(optimizer.OpenAIConfig{
		APIKey:    ec.APIKey,
		BaseURL:   ec.BaseURL,
		Model:     ec.Model,
		MaxTokens: ec.MaxTokens,
	})
	if err != nil {
		a.logger.Warn("language model unavailable, rewrites use the deterministic path", "err", err)
		return optimizer.NewLiveEnrichment(embedder, nil, a.usage, a.logger)
	}
	return optimizer.NewLiveEnrichment(embedder, completer, a.usage, a.logger)
}

// loadUser restores a user's persisted score and signal history into the
// in-process services.
func (a *app) loadUser(ctx context.Context, userID int64) error {
	if len(a.calc.History(userID)) == 0 {
		scores, err := a.store.ScoreHistory(ctx, userID)
		if err != nil {
			return fmt.Errorf("load score history: %w", err)
		}
		a.calc.SeedHistory(userID, scores...)
	}
	if len(a.engine.UserSignals(userID)) == 0 {
		signals, err := a.store.UserSignals(ctx, userID)
		if err != nil {
			return fmt.Errorf("load signal history: %w", err)
		}
		for _, cs := range signals {
			a.engine.Restore(cs)
		}
	}
	return nil
}

// profileOrEmpty returns the stored profile, or an empty one for new users.
func (a *app) profileOrEmpty(ctx context.Context, userID int64) model.CreatorProfile {
	p, err := a.store.Profile(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrProfileNotFound) {
			a.logger.Warn("load profile failed", "user_id", userID, "err", err)
		}
		return model.CreatorProfile{UserID: userID}
	}
	return p
}

func (a *app) Close() {
	a.memory.Close()
	a.usage.Close()
	a.cache.Close()
	a.store.Close()
}

// mustApp opens the app or exits.
func mustApp(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		exitErr("init", err)
	}
	return a
}
