package analytics

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/db"
	"github.com/panelworks/adserve/internal/logic"
	"github.com/panelworks/adserve/internal/models"
	"github.com/panelworks/adserve/internal/observability"
)

// CounterStore is the slice of the Postgres layer the recorder writes
// through. Tests substitute a fake.
type CounterStore interface {
	IncrementImpression(ctx context.Context, adID int, cost decimal.Decimal) (db.CounterResult, error)
	IncrementClick(ctx context.Context, adID int, cost decimal.Decimal) (db.CounterResult, error)
	IncrementConversion(ctx context.Context, adID int) error
	UpsertDailyPerformance(ctx context.Context, adID int, day string, dImp, dClick, dConv int64, spend decimal.Decimal) (db.DayStats, error)
	UpsertUserImpression(ctx context.Context, adID int, viewerKey, day string) error
	AddCampaignSpend(ctx context.Context, campaignID int, amount decimal.Decimal) (bool, error)
	DeactivateCampaign(ctx context.Context, campaignID int) error
	MarkBudgetExhausted(ctx context.Context, adID int) error
}

// Recorder applies an impression, click or conversion to every store that
// cares about it: Postgres counters and history, the Redis frequency
// counter, the in-memory snapshot for budget stops, and the event log.
//
// Counter and spend updates are authoritative and their failure fails the
// call. Frequency counters and the event log are best effort; losing one
// under-counts an exposure, which errs on the side of showing an ad one time
// too many rather than rejecting the event.
//
// The recorder does not deduplicate. A network retry that re-reports the
// same render counts twice; callers that need exactly-once must de-duplicate
// before reporting.
type Recorder struct {
	PG      CounterStore
	Redis   *db.RedisStore
	Store   models.AdStore
	Sink    EventSink
	Metrics observability.MetricsRegistry
}

// NewRecorder wires a recorder.
func NewRecorder(pg CounterStore, redis *db.RedisStore, store models.AdStore, sink EventSink, metrics observability.MetricsRegistry) *Recorder {
	return &Recorder{PG: pg, Redis: redis, Store: store, Sink: sink, Metrics: metrics}
}

// RecordImpression registers one served impression for the ad.
func (r *Recorder) RecordImpression(ctx context.Context, ad *models.Advertisement, viewer models.ViewerContext, now time.Time) error {
	cost := decimal.Zero
	if ad.CostPerImpression.Valid {
		cost = ad.CostPerImpression.Decimal
	}

	res, err := r.PG.IncrementImpression(ctx, ad.ID, cost)
	if err != nil {
		r.Metrics.IncrementSpendPersistErrors()
		return err
	}

	day := logic.DayKey(now)
	stats, err := r.PG.UpsertDailyPerformance(ctx, ad.ID, day, 1, 0, 0, cost)
	if err != nil {
		r.Metrics.IncrementSpendPersistErrors()
		return err
	}

	viewerKey := viewer.Key()
	if viewerKey != "" {
		// Best effort: the hot-path counter in Redis and the durable row in
		// Postgres. Neither failure invalidates the impression itself.
		if err := logic.RecordExposure(ctx, r.Redis, ad.ID, viewerKey, now); err != nil {
			zap.L().Warn("frequency exposure not recorded", zap.Int("ad_id", ad.ID), zap.Error(err))
		}
		if err := r.PG.UpsertUserImpression(ctx, ad.ID, viewerKey, day); err != nil {
			zap.L().Warn("user impression not persisted", zap.Int("ad_id", ad.ID), zap.Error(err))
		}
	}

	r.enforceBudgets(ctx, ad, res, stats, cost, day)
	r.Metrics.IncrementEvent("impression")
	r.emit(ctx, "impression", ad, viewer, cost, now)
	return nil
}

// RecordClick registers one click on the ad.
func (r *Recorder) RecordClick(ctx context.Context, ad *models.Advertisement, viewer models.ViewerContext, now time.Time) error {
	cost := decimal.Zero
	if ad.CostPerClick.Valid {
		cost = ad.CostPerClick.Decimal
	}

	res, err := r.PG.IncrementClick(ctx, ad.ID, cost)
	if err != nil {
		r.Metrics.IncrementSpendPersistErrors()
		return err
	}

	day := logic.DayKey(now)
	stats, err := r.PG.UpsertDailyPerformance(ctx, ad.ID, day, 0, 1, 0, cost)
	if err != nil {
		r.Metrics.IncrementSpendPersistErrors()
		return err
	}

	r.enforceBudgets(ctx, ad, res, stats, cost, day)
	r.Metrics.IncrementEvent("click")
	r.emit(ctx, "click", ad, viewer, cost, now)
	return nil
}

// RecordConversion registers one conversion attributed to the ad.
func (r *Recorder) RecordConversion(ctx context.Context, ad *models.Advertisement, viewer models.ViewerContext, now time.Time) error {
	if err := r.PG.IncrementConversion(ctx, ad.ID); err != nil {
		return err
	}
	if _, err := r.PG.UpsertDailyPerformance(ctx, ad.ID, logic.DayKey(now), 0, 0, 1, decimal.Zero); err != nil {
		return err
	}
	r.Metrics.IncrementEvent("conversion")
	r.emit(ctx, "conversion", ad, viewer, decimal.Zero, now)
	return nil
}

// enforceBudgets applies the budget hard stops implied by fresh spend totals.
// Lifetime exhaustion flips the persistent flag in both Postgres and the
// snapshot; daily exhaustion sets a day-scoped stop key that expires on its
// own; campaign exhaustion deactivates the campaign.
func (r *Recorder) enforceBudgets(ctx context.Context, ad *models.Advertisement, res db.CounterResult, stats db.DayStats, cost decimal.Decimal, day string) {
	r.Metrics.SetSpendTotal(strconv.Itoa(ad.ID), res.TotalSpent.InexactFloat64())

	if res.Budget.Valid && res.TotalSpent.GreaterThanOrEqual(res.Budget.Decimal) {
		if err := r.PG.MarkBudgetExhausted(ctx, ad.ID); err != nil {
			r.Metrics.IncrementSpendPersistErrors()
			zap.L().Error("budget stop not persisted", zap.Int("ad_id", ad.ID), zap.Error(err))
		}
		if err := r.Store.MarkBudgetExhausted(ad.ID, res.TotalSpent); err != nil {
			zap.L().Warn("budget stop not mirrored to snapshot", zap.Int("ad_id", ad.ID), zap.Error(err))
		}
		r.Metrics.IncrementBudgetStops("lifetime")
		zap.L().Info("ad budget exhausted", zap.Int("ad_id", ad.ID),
			zap.String("spent", res.TotalSpent.String()))
	}

	if ad.DailyBudget.Valid && stats.Spend.GreaterThanOrEqual(ad.DailyBudget.Decimal) {
		if r.Redis != nil && r.Redis.Client != nil {
			if err := r.Redis.SetDailyStop(ctx, ad.ID, day); err != nil {
				zap.L().Warn("daily budget stop not set", zap.Int("ad_id", ad.ID), zap.Error(err))
			}
		}
		r.Metrics.IncrementBudgetStops("daily")
	}

	if ad.CampaignID != 0 && cost.IsPositive() {
		exceeded, err := r.PG.AddCampaignSpend(ctx, ad.CampaignID, cost)
		if err != nil {
			r.Metrics.IncrementSpendPersistErrors()
			zap.L().Error("campaign spend not persisted",
				zap.Int("campaign_id", ad.CampaignID), zap.Error(err))
			return
		}
		if exceeded {
			if err := r.PG.DeactivateCampaign(ctx, ad.CampaignID); err != nil {
				zap.L().Error("campaign not deactivated",
					zap.Int("campaign_id", ad.CampaignID), zap.Error(err))
			}
			if c := r.Store.GetCampaign(ad.CampaignID); c != nil {
				stopped := *c
				stopped.Active = false
				stopped.SpentAmount = stopped.SpentAmount.Add(cost)
				if err := r.Store.UpdateCampaign(stopped); err != nil {
					zap.L().Warn("campaign stop not mirrored to snapshot",
						zap.Int("campaign_id", ad.CampaignID), zap.Error(err))
				}
			}
			r.Metrics.IncrementBudgetStops("campaign")
		}
	}
}

func (r *Recorder) emit(ctx context.Context, eventType string, ad *models.Advertisement, viewer models.ViewerContext, cost decimal.Decimal, now time.Time) {
	if r.Sink == nil {
		return
	}
	ev := Event{
		Timestamp:   now,
		Type:        eventType,
		AdID:        ad.ID,
		CampaignID:  ad.CampaignID,
		Slot:        ad.Slot(),
		ViewerKey:   viewer.Key(),
		Country:     viewer.Country,
		DeviceType:  viewer.DeviceType,
		Role:        viewer.Role,
		VariantName: ad.VariantName,
		Cost:        cost.InexactFloat64(),
	}
	if err := r.Sink.RecordEvent(ctx, ev); err != nil && err != ErrUnavailable {
		zap.L().Warn("event not logged", zap.String("type", eventType),
			zap.Int("ad_id", ad.ID), zap.Error(err))
	}
}
