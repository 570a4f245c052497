package logic

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/panelworks/adserve/internal/db"
	"github.com/panelworks/adserve/internal/models"
)

// setupTestRedis spins up an in-memory Redis and returns a store pointed at it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *db.RedisStore) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	store := &db.RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: s.Addr()}),
		Ctx:    context.Background(),
	}
	return s, store
}

func slotAd(id int, slot models.SlotKey, order int) models.Advertisement {
	return models.Advertisement{
		ID:           id,
		Page:         slot.Page,
		Location:     slot.Location,
		ImageURL:     "https://cdn.example.com/a.png",
		LinkURL:      "https://example.com",
		Title:        "ad",
		Type:         models.AdTypeBanner,
		Active:       true,
		DisplayOrder: order,
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, id, 0, time.UTC),
	}
}
