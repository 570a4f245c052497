package logic

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/db"
	"github.com/panelworks/adserve/internal/logic/ratelimit"
	"github.com/panelworks/adserve/internal/models"
	"github.com/panelworks/adserve/internal/observability"
)

// DefaultResolveTimeout bounds a placement resolution. A slow ad decision
// must never hold up a page render; past the deadline the resolver returns
// no ads.
const DefaultResolveTimeout = 50 * time.Millisecond

// Resolver produces the ordered list of ads to render for a slot. The filter
// stages run in a fixed order: active and budget state, schedule, targeting,
// frequency cap, daily budget stop, variant collapse, rate limit, truncate.
// Reordering them changes observable behavior, e.g. collapsing variants
// before frequency capping would let a capped arm block its sibling.
type Resolver struct {
	Store   models.AdStore
	Redis   *db.RedisStore
	Limiter *ratelimit.AdLimiter
	Metrics observability.MetricsRegistry
	Timeout time.Duration
}

// NewResolver wires a resolver with the default timeout.
func NewResolver(store models.AdStore, redis *db.RedisStore, limiter *ratelimit.AdLimiter, metrics observability.MetricsRegistry) *Resolver {
	return &Resolver{
		Store:   store,
		Redis:   redis,
		Limiter: limiter,
		Metrics: metrics,
		Timeout: DefaultResolveTimeout,
	}
}

// Resolve returns the ads to render for the slot, at most capacity entries
// (the slot's configured capacity when capacity <= 0). It never returns an
// error: every failure mode, including timeout and store unavailability,
// degrades to an empty list. Repeated calls with the same snapshot and
// viewer return identical membership and ordering.
func (r *Resolver) Resolve(ctx context.Context, key models.SlotKey, viewer models.ViewerContext, capacity int, trace *SelectionTrace) []models.Advertisement {
	if capacity <= 0 {
		capacity = key.Capacity()
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	now := time.Now()
	viewerKey := viewer.Key()

	candidates := r.Store.GetAdsBySlot(key)
	trace.AddStep("candidates", candidates)
	if len(candidates) == 0 {
		r.Metrics.IncrementNoFill("no_candidates")
		return []models.Advertisement{}
	}

	ads := r.filterEligible(candidates)
	trace.AddStep("eligible", ads)

	ads = FilterScheduled(ads, now)
	trace.AddStep("schedule", ads)

	ads = FilterTargeted(ads, viewer)
	trace.AddStep("targeting", ads)

	if timedOut(ctx) {
		r.Metrics.IncrementNoFill("timeout")
		return []models.Advertisement{}
	}

	ads = FilterUnderCap(ctx, r.Redis, ads, viewerKey, now)
	trace.AddStep("frequency_cap", ads)

	ads = r.filterDailyStops(ctx, ads, now)
	trace.AddStep("daily_budget", ads)

	if timedOut(ctx) {
		r.Metrics.IncrementNoFill("timeout")
		return []models.Advertisement{}
	}

	ads = CollapseVariants(ads, viewerKey)
	trace.AddStep("variants", ads)

	ads = r.filterRateLimited(ads)
	trace.AddStep("rate_limit", ads)

	// Candidate lists come out of the snapshot already sorted by display
	// order then creation time, and every stage preserves relative order.
	if len(ads) > capacity {
		ads = ads[:capacity]
	}
	trace.AddStepWithDetails("final", ads, map[string]string{"capacity": strconv.Itoa(capacity)})

	if len(ads) == 0 {
		r.Metrics.IncrementNoFill("filtered")
	}
	return ads
}

// filterEligible drops inactive ads, budget-exhausted ads, and ads whose
// owning campaign is inactive or exhausted.
func (r *Resolver) filterEligible(ads []models.Advertisement) []models.Advertisement {
	out := ads[:0]
	for i := range ads {
		ad := ads[i]
		if !ad.Active || ad.BudgetExhausted {
			continue
		}
		if ad.CampaignID != 0 {
			c := r.Store.GetCampaign(ad.CampaignID)
			if c == nil || !c.Active {
				continue
			}
			if c.Budget.Valid && c.SpentAmount.GreaterThanOrEqual(c.Budget.Decimal) {
				continue
			}
		}
		out = append(out, ad)
	}
	return out
}

// filterDailyStops removes ads whose daily budget has been exhausted today.
// Like the frequency filter this fails closed: if the stop keys cannot be
// read, ads carrying a daily budget are withheld.
func (r *Resolver) filterDailyStops(ctx context.Context, ads []models.Advertisement, now time.Time) []models.Advertisement {
	var budgeted []int
	for i := range ads {
		if ads[i].DailyBudget.Valid {
			budgeted = append(budgeted, ads[i].ID)
		}
	}
	if len(budgeted) == 0 {
		return ads
	}

	var stops map[int]bool
	if r.Redis != nil && r.Redis.Client != nil {
		var err error
		stops, err = r.Redis.GetDailyStops(ctx, budgeted, DayKey(now))
		if err != nil {
			zap.L().Warn("daily stop fetch failed, withholding budgeted ads", zap.Error(err))
			stops = nil
		}
	}

	out := ads[:0]
	for i := range ads {
		ad := ads[i]
		if !ad.DailyBudget.Valid {
			out = append(out, ad)
			continue
		}
		stopped, ok := stops[ad.ID]
		if !ok || stopped {
			continue
		}
		out = append(out, ad)
	}
	return out
}

func (r *Resolver) filterRateLimited(ads []models.Advertisement) []models.Advertisement {
	if r.Limiter == nil {
		return ads
	}
	out := ads[:0]
	for i := range ads {
		if r.Limiter.Allow(ads[i].ID) {
			out = append(out, ads[i])
		}
	}
	return out
}

func timedOut(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
