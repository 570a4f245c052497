package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/analytics"
	"github.com/panelworks/adserve/internal/api"
	"github.com/panelworks/adserve/internal/config"
	"github.com/panelworks/adserve/internal/db"
	"github.com/panelworks/adserve/internal/geoip"
	"github.com/panelworks/adserve/internal/logic"
	"github.com/panelworks/adserve/internal/logic/ratelimit"
	"github.com/panelworks/adserve/internal/middleware"
	"github.com/panelworks/adserve/internal/models"
	"github.com/panelworks/adserve/internal/observability"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.OTLPEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	redisStore, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer redisStore.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	eventLog, err := analytics.InitClickHouse(cfg.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer eventLog.Close()

	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		return fmt.Errorf("failed to load geoip db: %w", err)
	}
	defer func() { _ = geoSvc.Close() }()

	adStore := models.NewInMemoryAdStore()

	limiter := ratelimit.NewAdLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefillRate,
		Enabled:    cfg.RateLimitEnabled,
	}, metricsRegistry)

	resolver := logic.NewResolver(adStore, redisStore, limiter, metricsRegistry)
	resolver.Timeout = cfg.ResolveTimeout

	recorder := analytics.NewRecorder(pg, redisStore, adStore, eventLog, metricsRegistry)

	srv := api.NewServer(logger, pg, redisStore, adStore, resolver, recorder, geoSvc, metricsRegistry, cfg)

	if err := srv.Reload(ctx); err != nil {
		return fmt.Errorf("initial snapshot load: %w", err)
	}

	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(logger))

	r.HandleFunc("/api/ads", srv.GetAdsHandler).Methods("GET")
	r.HandleFunc("/api/ads/{id}/impression", srv.ImpressionHandler).Methods("POST")
	r.HandleFunc("/api/ads/{id}/click", srv.ClickHandler).Methods("POST")
	r.HandleFunc("/api/ads/{id}/conversion", srv.ConversionHandler).Methods("POST")
	r.HandleFunc("/health", srv.HealthHandler).Methods("GET")
	r.HandleFunc("/reload", srv.ReloadHandler).Methods("POST")

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/ads", srv.ListAds).Methods("GET")
	admin.HandleFunc("/ads", srv.CreateAd).Methods("POST")
	admin.HandleFunc("/ads/bulk/active", srv.BulkSetActive).Methods("POST")
	admin.HandleFunc("/ads/{id}", srv.GetAdByID).Methods("GET")
	admin.HandleFunc("/ads/{id}", srv.UpdateAdHandler).Methods("PUT")
	admin.HandleFunc("/ads/{id}", srv.DeleteAdHandler).Methods("DELETE")
	admin.HandleFunc("/ads/{id}/performance", srv.AdPerformanceHandler).Methods("GET")
	admin.HandleFunc("/ratelimit", srv.RateLimitStatsHandler).Methods("GET")

	admin.HandleFunc("/campaigns", srv.ListCampaigns).Methods("GET")
	admin.HandleFunc("/campaigns", srv.CreateCampaign).Methods("POST")
	admin.HandleFunc("/campaigns/{id}", srv.UpdateCampaignHandler).Methods("PUT")
	admin.HandleFunc("/campaigns/{id}", srv.DeleteCampaignHandler).Methods("DELETE")

	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "adserve"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Ad server running", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.ReloadInterval > 0 {
		ticker := time.NewTicker(cfg.ReloadInterval)
		go func() {
			for {
				select {
				case <-ticker.C:
					if err := srv.Reload(ctx); err != nil {
						logger.Error("auto reload", zap.Error(err))
					}
				case <-ctx.Done():
					ticker.Stop()
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
