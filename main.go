package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reviewdraft/config"
	"reviewdraft/config/database"
	"reviewdraft/internal/draft/lifecycle"
	"reviewdraft/internal/draft/repository"
	"reviewdraft/internal/draft/service"
	"reviewdraft/pkg/logger"
	"reviewdraft/pkg/metrics"
	"reviewdraft/router"
	"reviewdraft/socket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, loaded, err := config.Load()
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	if err != nil {
		logger.Sugar.Fatalf("Invalid configuration: %v", err)
	}
	if !loaded {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, decisions, db, err := openStore(ctx, cfg)
	if err != nil {
		logger.Sugar.Fatalf("Could not open the draft store: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	hub := socket.NewHub(socket.Deps{
		Store:     st,
		Decisions: decisions,
		Config: lifecycle.Config{
			Debounce:      cfg.Draft.Debounce,
			FlushInterval: cfg.Draft.FlushInterval,
		},
		Metrics: metrics.New(reg),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Setup(hub, service.NewDraftService(st), reg, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Sugar.Infof("Review draft backend listening on %s (store: %s)", cfg.ListenAddr, cfg.Draft.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Sugar.Info("Shutting down, flushing open drafts")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Sugar.Errorf("Server stopped with error: %v", err)
	}
}

// openStore picks the draft backend. The postgres store also records review
// decisions; the memory store keeps them in process.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, repository.DecisionRecorder, *sql.DB, error) {
	if cfg.Draft.Store == config.StoreMemory {
		logger.Sugar.Warn("Using the in-memory draft store, drafts will not survive a restart")
		mem := repository.NewMemoryStore(cfg.Draft.KeyPrefix,
			repository.WithLatency(repository.DefaultLatency),
			repository.WithFailureRate(cfg.Draft.FailureRate),
		)
		return mem, mem, nil, nil
	}

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	pg := repository.NewPostgresStore(db, cfg.Draft.KeyPrefix)
	return pg, pg, db, nil
}
