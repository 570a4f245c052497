package logic

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/db"
	"github.com/panelworks/adserve/internal/models"
)

// DayKey renders the UTC calendar day used to scope frequency counters and
// daily budget accounting.
func DayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// IsUnderCap reports whether the viewer may see the ad today. Ads without a
// cap always pass. The check fails closed: if Redis cannot answer, a capped
// ad is withheld rather than risking an over-exposure.
func IsUnderCap(ctx context.Context, store *db.RedisStore, ad *models.Advertisement, viewerKey string, now time.Time) (bool, error) {
	if ad.FrequencyCap <= 0 {
		return true, nil
	}
	if viewerKey == "" {
		// No stable identity means the cap cannot be enforced; withhold.
		return false, nil
	}
	if store == nil || store.Client == nil {
		return false, ErrNilRedisStore
	}

	counts, err := store.GetFrequencyCounts(ctx, viewerKey, []int{ad.ID}, DayKey(now))
	if err != nil {
		return false, err
	}
	n, ok := counts[ad.ID]
	if !ok {
		return false, nil
	}
	return n < int64(ad.FrequencyCap), nil
}

// FilterUnderCap removes ads whose daily cap the viewer has reached, using a
// single pipelined Redis round trip for the whole candidate list. Uncapped
// ads never touch Redis. On a Redis failure only the capped ads are dropped,
// so an outage degrades capped inventory without blanking the slot.
func FilterUnderCap(ctx context.Context, store *db.RedisStore, ads []models.Advertisement, viewerKey string, now time.Time) []models.Advertisement {
	var cappedIDs []int
	for i := range ads {
		if ads[i].FrequencyCap > 0 {
			cappedIDs = append(cappedIDs, ads[i].ID)
		}
	}
	if len(cappedIDs) == 0 {
		return ads
	}

	var counts map[int]int64
	if viewerKey != "" && store != nil && store.Client != nil {
		var err error
		counts, err = store.GetFrequencyCounts(ctx, viewerKey, cappedIDs, DayKey(now))
		if err != nil {
			zap.L().Warn("frequency count fetch failed, withholding capped ads", zap.Error(err))
			counts = nil
		}
	}

	out := ads[:0]
	for i := range ads {
		ad := ads[i]
		if ad.FrequencyCap <= 0 {
			out = append(out, ad)
			continue
		}
		n, ok := counts[ad.ID]
		if !ok {
			// Unknown viewer or unreadable counter: fail closed.
			continue
		}
		if n < int64(ad.FrequencyCap) {
			out = append(out, ad)
		}
	}
	return out
}

// exposureRetries bounds increment attempts against a flaky counter store.
const exposureRetries = 2

// RecordExposure increments the viewer's daily counter for an ad. Called by
// the analytics recorder after a confirmed impression, never during
// filtering. A missing viewer identity is a no-op.
func RecordExposure(ctx context.Context, store *db.RedisStore, adID int, viewerKey string, now time.Time) error {
	if viewerKey == "" {
		return nil
	}
	if store == nil || store.Client == nil {
		return ErrNilRedisStore
	}
	var err error
	for attempt := 0; attempt <= exposureRetries; attempt++ {
		if _, err = store.IncrementFrequency(ctx, viewerKey, adID, DayKey(now)); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	zap.L().Error("failed to increment frequency counter",
		zap.Int("ad_id", adID), zap.Error(err))
	return err
}
