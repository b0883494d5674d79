package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/recommender-service/internal/api"
	"jobmate/recommender-service/internal/catalog"
	"jobmate/recommender-service/internal/config"
	"jobmate/recommender-service/internal/db"
	"jobmate/recommender-service/internal/events"
	"jobmate/recommender-service/internal/extract"
	"jobmate/recommender-service/internal/grpcserver"
	"jobmate/recommender-service/internal/recommender"
	"jobmate/recommender-service/internal/refresher"
	"jobmate/recommender-service/internal/snapshot"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations and keep the index fresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(v)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		return serve(cmd.Context(), cfg, log)
	},
}

func serve(parent context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	log.Info("connecting to postgres")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// ── Redis (optional) ─────────────────────────────────────────────────────
	var (
		notifiers   = events.Multi{}
		bus         *events.RedisBus
		broadcaster api.Broadcaster
	)
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		bus = events.NewRedisBus(rdb, uuid.NewString(), log)
		notifiers = append(notifiers, bus)
		broadcaster = bus
		log.Info("redis connected", zap.String("origin", bus.Origin()))
	} else {
		log.Warn("REDIS_URL not set, reload events are local only")
	}

	// ── Index sources ────────────────────────────────────────────────────────
	rs, err := newRemoteStore(cfg, log)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(ctx, cfg, cfg.EmbedCacheSize, log)
	if err != nil {
		return err
	}
	extractor, err := extract.NewDefaultExtractor(cfg.SkillsFile)
	if err != nil {
		return err
	}

	// ── gRPC health ──────────────────────────────────────────────────────────
	grpcSrv := grpcserver.NewServer(log)
	notifiers = append(notifiers, grpcSrv)
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go func() {
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Error("grpc server stopped", zap.Error(err))
		}
	}()

	// ── Refresher ────────────────────────────────────────────────────────────
	store := snapshot.NewStore()
	ref, err := refresher.New(store, rs, catalog.NewPostgresSource(pool), notifiers, refresher.Config{
		DataDir:        cfg.DataDir,
		Interval:       cfg.RefreshInterval,
		RemoteTimeout:  cfg.RemoteTimeout,
		FetchTimeout:   cfg.FetchTimeout,
		CatalogTimeout: cfg.CatalogTimeout,
		MaxShrinkRatio: cfg.MaxShrinkRatio,
		IndexOptions:   indexOptions(cfg),
	}, log)
	if err != nil {
		return err
	}
	if err := ref.Start(ctx); err != nil {
		return err
	}
	defer ref.Stop()

	if bus != nil {
		go func() {
			if err := ref.Listen(ctx, bus); err != nil && ctx.Err() == nil {
				log.Error("reload listener stopped", zap.Error(err))
			}
		}()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	svc := recommender.NewService(store, embedder, extractor, recommender.Options{
		TopN:    cfg.TopN,
		SearchK: cfg.SearchK,
	}, log)

	mux := http.NewServeMux()
	api.NewHandler(svc, ref, broadcaster, version, log).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listening", zap.String("version", version), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("http server error", zap.Error(err))
		cancel()
		grpcSrv.Stop()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}
	cancel()
	grpcSrv.Stop()
	log.Info("stopped")
	return nil
}
