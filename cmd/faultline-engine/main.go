package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/incidentstack/faultline/internal/api"
	"github.com/incidentstack/faultline/internal/cache"
	"github.com/incidentstack/faultline/internal/config"
	"github.com/incidentstack/faultline/internal/engine"
	"github.com/incidentstack/faultline/internal/generator"
	"github.com/incidentstack/faultline/internal/graph"
	"github.com/incidentstack/faultline/internal/ingest"
	"github.com/incidentstack/faultline/internal/metrics"
	"github.com/incidentstack/faultline/internal/notify"
	"github.com/incidentstack/faultline/internal/repo"
	"github.com/incidentstack/faultline/internal/services"
	"github.com/incidentstack/faultline/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting faultline-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var valkeyCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			valkeyCloser = provider
		}
	}
	if valkeyCloser != nil {
		defer valkeyCloser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := graph.NewStore(nil)
	loader := graph.NewLoader(cfg.Topology.Path, store, cacheProvider, cfg.Topology.CacheTTL, logger)
	if err := loader.Reload(ctx); err != nil {
		logger.Warn("initial topology load failed, starting with empty graph", slog.Any("error", err))
	}

	changesClient := repo.NewChangesClient(
		cfg.Changes.BaseURL,
		cfg.Changes.Path,
		cfg.Changes.Token,
		cfg.Changes.Timeout,
		cacheProvider,
		cfg.Changes.CacheTTL,
	)

	var gen engine.Generator
	if cfg.Generator.APIKey != "" {
		gen = generator.NewModelGenerator(cfg.Generator.APIKey, cfg.Generator.Model, logger)
		logger.Info("using model hypothesis generator", slog.String("model", cfg.Generator.Model))
	} else if ruleGen, err := engine.NewRuleGenerator(cfg.Generator.RulesPath, logger); err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	} else if ruleGen != nil {
		gen = ruleGen
		logger.Info("using rule-based hypothesis generator", slog.String("path", cfg.Generator.RulesPath))
	} else {
		logger.Warn("no generator configured, every group will use the fallback hypothesis")
	}

	adapter := engine.NewAdapter(gen, cfg.Generator.Timeout, logger)
	pipeline := engine.NewPipeline(logger, adapter, changesClient, cfg.Changes.Timeout, cfg.Analysis.Concurrency)
	notifier := notify.NewSlackNotifier(cfg.Notify.SlackWebhookURL, cfg.Notify.Timeout, logger)
	service := services.NewAnalysisService(logger, pipeline, store, notifier, cfg.Analysis.Environment)

	buffer := ingest.NewBuffer(logger, service, cfg.Ingest.MaxBatch, cfg.Ingest.FlushInterval)

	handler := api.NewHandler(logger, buffer)
	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		loader.Run(ctx, cfg.Topology.ReloadInterval)
	}()
	go func() {
		defer wg.Done()
		buffer.Run(ctx)
	}()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	// Wait for the buffer's final flush so accepted events are analysed.
	wg.Wait()

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	time.Sleep(100 * time.Millisecond)
	logger.Info("faultline-engine stopped")
}
