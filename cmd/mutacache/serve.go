package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/revittco/mutacache/internal/aggregate"
	"github.com/revittco/mutacache/internal/api"
	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/config"
	"github.com/revittco/mutacache/internal/eventbus"
	"github.com/revittco/mutacache/internal/journal"
	"github.com/revittco/mutacache/internal/metrics"
	"github.com/revittco/mutacache/internal/mutation"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/provider/memory"
	"github.com/revittco/mutacache/internal/query"
	"github.com/revittco/mutacache/internal/record"
	"github.com/revittco/mutacache/internal/store"
	"github.com/revittco/mutacache/internal/store/sqlite"
	"github.com/revittco/mutacache/internal/tick"
	"github.com/revittco/mutacache/internal/undo"
)

const pruneInterval = time.Hour

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.FileConfig) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	db, err := openJournal(ctx, cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	m := metrics.New(prometheus.DefaultRegisterer)

	cs := cache.New(cfg.Cache, cache.WithLogger(logger))
	m.RegisterCache(cs)

	base := memory.New(config.SeedResources(cfg), memory.WithCancellation())
	dp := provider.Chain(
		provider.WithLifecycleCallbacks(base, []provider.ResourceCallbacks{stampUpdatedAt()}),
		provider.Logging(logger),
		m.Provider(),
		provider.ValidateResponse(),
		provider.Prefetched(query.NewPrefetcher(cs)),
	)

	agg := aggregate.New(dp, cs, tick.NewWindow(cfg.Aggregation.Window),
		aggregate.WithLogger(logger),
		aggregate.WithObserver(m.ObserveFlush),
		aggregate.WithContext(ctx),
	)
	reader := query.NewReader(dp, cs, agg)

	undoBus := eventbus.New[undo.Event]()
	um := undo.NewManager(undoBus, undo.WithAutoConfirm(cfg.Mutation.AutoConfirm))
	m.RegisterUndo(um)

	journalBus := eventbus.New[store.MutationEntry]()
	j := journal.New(db, journalBus,
		journal.WithLogger(logger),
		journal.WithRedactionHints(cfg.Journal.RedactionHints...),
	)
	engine := mutation.New(dp, cs, um, tick.NewWindow(0),
		mutation.WithJournal(j),
		mutation.WithLogger(logger),
		mutation.WithObserver(m.ObserveMutation),
		mutation.WithDefaultMode(cfg.Mode()),
		mutation.WithGraceWindow(cfg.Mutation.GraceWindow),
	)

	api.Version = version
	router := api.NewRouter(api.RouterDeps{
		Engine:     engine,
		Reader:     reader,
		DB:         db,
		JournalBus: journalBus,
		UndoBus:    undoBus,
		Metrics:    promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening",
			"addr", cfg.HTTP.Addr,
			"url", apiURL(cfg.HTTP.Addr),
			"default_mode", cfg.Mode(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		pruneLoop(gctx, db, cfg.Journal.Retention, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Nothing pending may commit without a decision.
		um.Shutdown()
		return err
	})
	return g.Wait()
}

func openJournal(ctx context.Context, path string) (*sqlite.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sqlite.New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return db, nil
}

// pruneLoop drops settled journal entries older than retention. Zero
// retention keeps everything.
func pruneLoop(ctx context.Context, db store.MutationStore, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		if n, err := db.PruneMutations(ctx, time.Now().UTC().Add(-retention)); err != nil {
			if ctx.Err() == nil {
				logger.Warn("journal prune failed", "error", err)
			}
		} else if n > 0 {
			logger.Info("pruned journal", "entries", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// stampUpdatedAt sets updated_at on every record saved through the
// provider.
func stampUpdatedAt() provider.ResourceCallbacks {
	return provider.ResourceCallbacks{
		Resource: "*",
		BeforeSave: []provider.Callback[record.Record]{
			func(_ context.Context, r record.Record, _ provider.DataProvider, _ string) (record.Record, error) {
				out := r.Clone()
				out["updated_at"] = time.Now().UTC().Format(time.RFC3339)
				return out, nil
			},
		},
	}
}
