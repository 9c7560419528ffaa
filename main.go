package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alimasry/go-notebook/assets"
	"github.com/alimasry/go-notebook/config"
	"github.com/alimasry/go-notebook/logging"
	"github.com/alimasry/go-notebook/metrics"
	"github.com/alimasry/go-notebook/server"
	"github.com/alimasry/go-notebook/store"
)

func main() {
	cfg := config.Load()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flag.Parse()

	log, err := logging.New(logging.Config{
		Production: cfg.LogProduction,
		Level:      cfg.LogLevel,
		Format:     logging.Format(cfg.LogFormat),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	notebooks, closeStore, err := openStore(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer closeStore()

	assetStore, err := openAssets(ctx, cfg, log)
	if err != nil {
		return err
	}

	hub := server.NewHub(notebooks, log, m)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewHandler(hub, assetStore, metrics.Handler(reg), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("starting server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore picks Firestore, then Redis, then memory. Remote stores sit
// behind a write-behind cache; the returned func flushes and closes it.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger, m *metrics.Metrics) (store.NotebookStore, func(), error) {
	var backing store.NotebookStore
	closeBacking := func() {}

	switch {
	case cfg.FirestoreProject != "":
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		backing = store.NewFirestoreStore(client)
		closeBacking = func() { client.Close() }
		log.Info("using firestore store", zap.String("project", cfg.FirestoreProject))
	case cfg.RedisURL != "":
		rs, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		backing = rs
		closeBacking = func() { rs.Close() }
		log.Info("using redis store")
	default:
		log.Info("using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}

	cached := store.NewCachedStore(backing, cfg.FlushInterval, log, m)
	return cached, func() {
		cached.Close()
		closeBacking()
	}, nil
}

func openAssets(ctx context.Context, cfg config.Config, log *zap.Logger) (assets.Store, error) {
	if cfg.MinioEndpoint == "" {
		log.Info("using in-memory asset store")
		return assets.NewMemoryStore(), nil
	}
	s, err := assets.NewMinioStore(ctx, assets.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	log.Info("using minio asset store", zap.String("endpoint", cfg.MinioEndpoint), zap.String("bucket", cfg.MinioBucket))
	return s, nil
}
