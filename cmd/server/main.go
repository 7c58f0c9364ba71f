package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classpulse/clo-analysis/internal/ai"
	"github.com/classpulse/clo-analysis/internal/analysis"
	"github.com/classpulse/clo-analysis/internal/closet"
	"github.com/classpulse/clo-analysis/internal/platform/cache"
	"github.com/classpulse/clo-analysis/internal/platform/config"
	"github.com/classpulse/clo-analysis/internal/platform/database"
	"github.com/classpulse/clo-analysis/internal/scoring"
	"github.com/classpulse/clo-analysis/internal/segment"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	srv, cleanup, err := buildServer(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute, // generative analyze runs are slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildServer wires the store, cache, providers and scorers into a server.
// The returned cleanup closes whatever connections were opened.
func buildServer(ctx context.Context, cfg *config.Config) (*server, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var store analysis.Store
	var ready []healthChecker
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, cleanup, fmt.Errorf("database: %w", err)
		}
		cleanups = append(cleanups, db.Close)
		ready = append(ready, db)

		pg, err := analysis.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, cleanup, err
		}
		if err := pg.Migrate(ctx); err != nil {
			return nil, cleanup, err
		}
		store = pg
		slog.Info("using postgres store")
	} else {
		store = analysis.NewMemoryStore()
		slog.Warn("no database configured, documents will not survive a restart")
	}

	var coverageCache analysis.CoverageCache
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("cache: %w", err)
		}
		cleanups = append(cleanups, func() { _ = c.Close() })
		ready = append(ready, c)
		coverageCache = cache.NewReportCache(c)
		slog.Info("coverage cache enabled")
	}

	router, err := buildRouter(cfg.AI)
	if err != nil {
		return nil, cleanup, err
	}

	timeout := time.Duration(cfg.AI.TimeoutS) * time.Second
	scorers := []analysis.Scorer{scoring.NewHeuristic()}
	var segmenter analysis.Segmenter
	if router.HasProvider() {
		budget := ai.NewInMemoryBudgetWithDefault(cfg.Budget.TokensPerSet)
		scorers = append(scorers, scoring.NewGenerative(router,
			scoring.WithTimeout(timeout),
			scoring.WithBudget(budget),
		))
		segmenter = segment.NewGenerative(router, segment.WithTimeout(timeout))
		if cfg.Budget.TokensPerSet > 0 {
			slog.Info("per-set token budget active", "tokens", cfg.Budget.TokensPerSet)
		}
	} else {
		slog.Info("no generative provider configured, heuristic scoring and pattern segmentation only")
	}

	manager := analysis.NewManager(analysis.ManagerConfig{
		Store:     store,
		Scorers:   scorers,
		Segmenter: segmenter,
		Cache:     coverageCache,
	})

	if cfg.CLOSetPath != "" {
		sets, err := closet.LoadDir(cfg.CLOSetPath)
		if err != nil {
			return nil, cleanup, fmt.Errorf("CLO set import: %w", err)
		}
		if _, err := closet.Import(ctx, store, sets); err != nil {
			return nil, cleanup, fmt.Errorf("CLO set import: %w", err)
		}
	}

	return newServer(manager, ready...), cleanup, nil
}

func buildRouter(cfg config.AIConfig) (*ai.Router, error) {
	router := ai.NewRouter()
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey))
	}
	if cfg.Anthropic.APIKey != "" {
		p, err := ai.NewAnthropicProvider(cfg.Anthropic.APIKey)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		router.Register("anthropic", p)
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL))
	}
	return router, nil
}
