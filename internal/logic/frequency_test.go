package logic

import (
	"context"
	"testing"
	"time"

	"github.com/panelworks/adserve/internal/models"
)

func TestIsUnderCap(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		cap       int
		viewerKey string
		preLog    int
		want      bool
	}{
		{"uncapped always passes", 0, "u:1", 5, true},
		{"no prior impressions, cap 2", 2, "u:2", 0, true},
		{"one prior impression, cap 2", 2, "u:3", 1, true},
		{"at cap", 2, "u:4", 2, false},
		{"over cap", 2, "u:5", 3, false},
		{"cap 1, one prior", 1, "u:6", 1, false},
		{"no viewer identity fails closed", 2, "", 0, false},
	}
	for i, tc := range cases {
		ad := models.Advertisement{ID: 100 + i, FrequencyCap: tc.cap}
		for n := 0; n < tc.preLog; n++ {
			if err := RecordExposure(ctx, store, ad.ID, tc.viewerKey, now); err != nil {
				t.Fatalf("%s: pre-log: %v", tc.name, err)
			}
		}
		got, err := IsUnderCap(ctx, store, &ad, tc.viewerKey, now)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: IsUnderCap = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCapResetsAtDayRollover(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	today := time.Date(2026, 8, 15, 23, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)

	ad := models.Advertisement{ID: 7, FrequencyCap: 1}
	if err := RecordExposure(ctx, store, ad.ID, "u:1", today); err != nil {
		t.Fatalf("record: %v", err)
	}

	if under, _ := IsUnderCap(ctx, store, &ad, "u:1", today); under {
		t.Fatal("expected capped today")
	}
	if under, _ := IsUnderCap(ctx, store, &ad, "u:1", tomorrow); !under {
		t.Fatal("expected fresh cap tomorrow")
	}
}

func TestFilterUnderCap(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	slot := models.SlotKey{Page: models.PageHomepage, Location: models.LocationTopBanner}

	uncapped := slotAd(1, slot, 0)
	capped := slotAd(2, slot, 1)
	capped.FrequencyCap = 2
	exhausted := slotAd(3, slot, 2)
	exhausted.FrequencyCap = 1

	for n := 0; n < 1; n++ {
		if err := RecordExposure(ctx, store, 3, "u:9", now); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got := FilterUnderCap(ctx, store, []models.Advertisement{uncapped, capped, exhausted}, "u:9", now)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("FilterUnderCap kept %v", ids(got))
	}
}

func TestFilterUnderCapRedisDownFailsClosed(t *testing.T) {
	mr, store := setupTestRedis(t)
	mr.Close()
	ctx := context.Background()
	now := time.Now()
	slot := models.SlotKey{Page: models.PageHomepage, Location: models.LocationTopBanner}

	uncapped := slotAd(1, slot, 0)
	capped := slotAd(2, slot, 1)
	capped.FrequencyCap = 3

	// With Redis unreachable only the capped ad is withheld.
	got := FilterUnderCap(ctx, store, []models.Advertisement{uncapped, capped}, "u:1", now)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("FilterUnderCap kept %v", ids(got))
	}
}

func TestRecordExposureSetsTTL(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	if err := RecordExposure(ctx, store, 42, "u:1", now); err != nil {
		t.Fatalf("record: %v", err)
	}
	key := "freqcap:u:1:42:" + DayKey(now)
	if mr.TTL(key) <= 0 {
		t.Fatalf("expected TTL on %s", key)
	}
}

func ids(ads []models.Advertisement) []int {
	out := make([]int, len(ads))
	for i := range ads {
		out[i] = ads[i].ID
	}
	return out
}
