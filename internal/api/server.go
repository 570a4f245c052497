package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/analytics"
	"github.com/panelworks/adserve/internal/config"
	"github.com/panelworks/adserve/internal/db"
	"github.com/panelworks/adserve/internal/geoip"
	"github.com/panelworks/adserve/internal/logic"
	"github.com/panelworks/adserve/internal/models"
	"github.com/panelworks/adserve/internal/observability"
)

var tracer = otel.Tracer("adserve")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger      *zap.Logger
	PG          *db.Postgres
	Redis       *db.RedisStore
	Store       models.AdStore
	Resolver    *logic.Resolver
	Recorder    *analytics.Recorder
	GeoIP       *geoip.GeoIP
	Metrics     observability.MetricsRegistry
	Config      config.Config
	TokenSecret []byte
	TokenTTL    time.Duration
	DebugTrace  bool

	reloadMu sync.Mutex
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, pg *db.Postgres, redis *db.RedisStore, store models.AdStore, resolver *logic.Resolver, recorder *analytics.Recorder, geo *geoip.GeoIP, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:      logger,
		PG:          pg,
		Redis:       redis,
		Store:       store,
		Resolver:    resolver,
		Recorder:    recorder,
		GeoIP:       geo,
		Metrics:     metrics,
		Config:      cfg,
		TokenSecret: []byte(cfg.TokenSecret),
		TokenTTL:    cfg.TokenTTL,
		DebugTrace:  cfg.DebugTrace,
	}
}

// Reload refreshes advertisements and campaigns from Postgres and publishes
// them to the in-memory snapshot in one atomic swap.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	if s.PG == nil {
		s.Metrics.IncrementReloads("error")
		return fmt.Errorf("postgres unavailable")
	}

	ads, err := s.PG.LoadAds(ctx)
	if err != nil {
		s.Metrics.IncrementReloads("error")
		return fmt.Errorf("load advertisements: %w", err)
	}
	campaigns, err := s.PG.LoadCampaigns(ctx)
	if err != nil {
		s.Metrics.IncrementReloads("error")
		return fmt.Errorf("load campaigns: %w", err)
	}

	if err := s.Store.ReloadAll(ads, campaigns); err != nil {
		s.Metrics.IncrementReloads("error")
		return fmt.Errorf("publish snapshot: %w", err)
	}

	s.Metrics.IncrementReloads("ok")
	s.Metrics.RecordReloadDuration(time.Since(start))
	s.Logger.Info("snapshot reloaded",
		zap.Int("ads", len(ads)),
		zap.Int("campaigns", len(campaigns)),
		zap.Duration("took", time.Since(start)))
	return nil
}
