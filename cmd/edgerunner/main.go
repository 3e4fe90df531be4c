// cmd/edgerunner/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/edgerunner/internal/admin"
	"github.com/FairForge/edgerunner/internal/admission"
	"github.com/FairForge/edgerunner/internal/breaker"
	"github.com/FairForge/edgerunner/internal/cache"
	"github.com/FairForge/edgerunner/internal/config"
	"github.com/FairForge/edgerunner/internal/controlplane"
	"github.com/FairForge/edgerunner/internal/ingress"
	"github.com/FairForge/edgerunner/internal/logging"
	"github.com/FairForge/edgerunner/internal/metrics"
	"github.com/FairForge/edgerunner/internal/pool"
	"github.com/FairForge/edgerunner/internal/reconciler"
	"github.com/FairForge/edgerunner/internal/registry"
	"github.com/FairForge/edgerunner/internal/routing"
	"github.com/FairForge/edgerunner/internal/version"
)

func main() {
	cfg := config.Default()
	config.LoadFromEnv(cfg)
	if cfg.ConfigFile != "" {
		if err := config.LoadFromFile(cfg, cfg.ConfigFile); err != nil {
			panic(err)
		}
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New()
	routes := routing.NewTable()
	ledger := version.New()
	breakers := breaker.NewRegistry(cfg.BreakerFailureThreshold, log.Logger)
	admit := admission.New(cfg.AdmissionLimit, cfg.AdmissionWindow)
	metricsCollector := metrics.NewCollector()

	c, err := cache.New(cfg.CacheDir, cfg.CacheSizeBytes(), log.Logger)
	if err != nil {
		log.Fatal("cache init failed", zap.Error(err))
	}

	p := pool.New(ctx, cfg.MaxHotInstances, cfg.IdleTimeout, log.Logger)
	defer func() { _ = p.Close(context.Background()) }()

	cpClient, err := controlplane.New(controlplane.Config{
		CPURL:        cfg.CPURL,
		NodeID:       cfg.NodeID,
		PoPID:        cfg.PoPID,
		ClientID:     cfg.CPClientID,
		ClientSecret: cfg.CPClientSecret,
		TokenURL:     cfg.CPTokenURL,
		NodeSecret:   cfg.CPNodeSecret,
	}, log.Logger)
	if err != nil {
		log.Fatal("control plane client init failed", zap.Error(err))
	}
	defer cpClient.Close()

	rec := reconciler.New(cpClient, c, reg, routes, ledger, cfg.HeartbeatInterval, log.Logger)
	go rec.Run(ctx)
	go breakers.RunResetTimer(ctx, cfg.BreakerResetTimeout)

	if cfg.ConfigFile != "" {
		watcher, err := config.NewWatcher(cfg.ConfigFile, log.Logger)
		if err != nil {
			log.Warn("config watcher init failed", zap.Error(err))
		} else {
			stop := make(chan struct{})
			defer close(stop)
			go watcher.Run(stop, func(m config.Mutable) {
				cfg.ApplyMutable(m)
				_ = log.SetLevel(m.LogLevel)
				admit.SetLimit(m.AdmissionLimit)
				breakers.SetThreshold(m.BreakerFailureThreshold)
			})
		}
	}

	ingressHandler := &ingress.Handler{
		Routes:                routes,
		Admission:             admit,
		Breakers:              breakers,
		Cache:                 c,
		Pool:                  p,
		Registry:              reg,
		Ledger:                ledger,
		Metrics:               metricsCollector,
		DefaultConcurrencyCap: cfg.DefaultConcurrencyCap,
		RespCap:               cfg.ResponseCapBytes,
		Log:                   log.Logger,
	}

	ingressRouter := chi.NewRouter()
	ingressRouter.Handle("/metrics", promhttp.Handler())
	ingressRouter.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// Catch-all: registered last, matching the teacher's "specific
	// routes before the catch-all" discipline in internal/api/server.go.
	// chi's radix-tree router prioritizes /metrics and /healthz over
	// this wildcard regardless of registration order, but the ordering
	// keeps the intent explicit for a reader.
	ingressRouter.Handle("/*", ingressHandler)

	ingressSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      ingressRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	adminSrv := &http.Server{
		Addr: cfg.AdminAddr,
		Handler: (&admin.Server{
			Routes:   routes,
			Cache:    c,
			Pool:     p,
			Breakers: breakers,
			Ledger:   ledger,
		}).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		cancel()
		_ = ingressSrv.Shutdown(shutdownCtx)
		_ = adminSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info("admin surface listening", zap.String("addr", cfg.AdminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server failed", zap.Error(err))
		}
	}()

	log.Info("edge runner listening", zap.String("addr", cfg.ListenAddr), zap.String("node_id", cfg.NodeID))
	if err := ingressSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("ingress server failed", zap.Error(err))
	}
}
