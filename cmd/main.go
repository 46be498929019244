package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nutriscan/config"
	nhttp "nutriscan/http"
	"nutriscan/logger"
	"nutriscan/ml"
	"nutriscan/monitoring"
	"nutriscan/pipeline"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Look for config in root even if run from cmd/
	configPath := "config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = filepath.Join("..", "config.yaml")
	}

	cfg, err := config.Load(configPath, filepath.Join(filepath.Dir(configPath), ".env"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()
	zap.ReplaceGlobals(zlog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewInferenceMetrics(reg)

	p, err := buildPipeline(ctx, cfg, zlog, metrics)
	if err != nil {
		zlog.Fatal("Failed to build inference pipeline", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	var feed nhttp.Feed
	if cfg.Feed.Enabled {
		hub := monitoring.NewVerdictHub(zlog, cfg.HTTP.AllowedOrigins)
		hub.OnClientCount(func(n int) { metrics.FeedSubscribers.Set(float64(n)) })
		g.Go(func() error { return hub.Run(gctx) })
		feed = hub
	}

	if cfg.Artifacts.Watch {
		watcher, err := ml.NewArtifactWatcher(
			[]string{cfg.Artifacts.Transform, cfg.Artifacts.Model},
			zlog,
			func(string) { metrics.ArtifactChanges.Inc() },
		)
		if err != nil {
			zlog.Warn("Artifact watcher disabled", zap.Error(err))
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	handlers := nhttp.NewHandlers(p, feed, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), zlog)
	server := nhttp.NewServer(nhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, handlers, zlog)

	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zlog.Error("Server stopped with error", zap.Error(err))
		zlog.Sync()
		os.Exit(1)
	}
	zlog.Info("Exiting")
}

// buildPipeline loads both artifacts. With fail_fast off a faulty artifact
// leaves inference disabled instead of stopping startup.
func buildPipeline(ctx context.Context, cfg *config.Config, zlog *zap.Logger, metrics *monitoring.InferenceMetrics) (*pipeline.Pipeline, error) {
	src, err := ml.SourceFor(ctx, cfg.Artifacts.S3Region, cfg.Artifacts.Transform, cfg.Artifacts.Model)
	if err != nil {
		return nil, err
	}

	transform, err := ml.LoadTransform(ctx, src, cfg.Artifacts.Transform)
	if err != nil {
		if cfg.Artifacts.FailFast {
			return nil, err
		}
		zlog.Error("Transform not loaded, inference disabled", zap.Error(err))
		transform = nil
	}
	model, err := ml.LoadModel(ctx, src, cfg.Artifacts.Model)
	if err != nil {
		if cfg.Artifacts.FailFast {
			return nil, err
		}
		zlog.Error("Model not loaded, inference disabled", zap.Error(err))
		model = nil
	}

	p, err := pipeline.New(transform, model,
		pipeline.WithNegativePolicy(cfg.NegativePolicy()),
		pipeline.WithCache(cfg.Cache.Size),
		pipeline.WithLogger(zlog),
		pipeline.WithObserver(metrics),
	)
	if err != nil {
		return nil, err
	}

	if err := p.Check(); err != nil {
		if cfg.Artifacts.FailFast {
			return nil, err
		}
		zlog.Error("Inference unavailable", zap.Error(err))
		metrics.SetReady(false)
		return p, nil
	}

	tKind, _, mKind, _ := p.Artifacts()
	zlog.Info("Inference pipeline ready",
		zap.String("transform", tKind),
		zap.String("model", mKind),
		zap.String("negative_policy", string(p.Policy())),
		zap.Int("cache_size", cfg.Cache.Size),
	)
	metrics.SetReady(true)
	return p, nil
}
