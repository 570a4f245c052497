package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/analytics"
	"github.com/panelworks/adserve/internal/db"
	"github.com/panelworks/adserve/internal/logic"
	"github.com/panelworks/adserve/internal/models"
	"github.com/panelworks/adserve/internal/observability"
	"github.com/panelworks/adserve/internal/token"
)

// nullCounterStore satisfies analytics.CounterStore with in-memory counters.
type nullCounterStore struct {
	impressions int
	clicks      int
}

func (n *nullCounterStore) IncrementImpression(ctx context.Context, adID int, cost decimal.Decimal) (db.CounterResult, error) {
	n.impressions++
	return db.CounterResult{}, nil
}

func (n *nullCounterStore) IncrementClick(ctx context.Context, adID int, cost decimal.Decimal) (db.CounterResult, error) {
	n.clicks++
	return db.CounterResult{}, nil
}

func (n *nullCounterStore) IncrementConversion(ctx context.Context, adID int) error { return nil }

func (n *nullCounterStore) UpsertDailyPerformance(ctx context.Context, adID int, day string, dImp, dClick, dConv int64, spend decimal.Decimal) (db.DayStats, error) {
	return db.DayStats{}, nil
}

func (n *nullCounterStore) UpsertUserImpression(ctx context.Context, adID int, viewerKey, day string) error {
	return nil
}

func (n *nullCounterStore) AddCampaignSpend(ctx context.Context, campaignID int, amount decimal.Decimal) (bool, error) {
	return false, nil
}

func (n *nullCounterStore) DeactivateCampaign(ctx context.Context, campaignID int) error { return nil }
func (n *nullCounterStore) MarkBudgetExhausted(ctx context.Context, adID int) error      { return nil }

func setupTestServer(t *testing.T, ads []models.Advertisement) (*Server, *nullCounterStore, *mux.Router) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	redisStore := &db.RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}

	store := models.NewInMemoryAdStore()
	if err := store.ReloadAll(ads, nil); err != nil {
		t.Fatalf("reload: %v", err)
	}

	metrics := &observability.MockMetricsRegistry{}
	resolver := logic.NewResolver(store, redisStore, nil, metrics)
	resolver.Timeout = time.Second

	counters := &nullCounterStore{}
	recorder := analytics.NewRecorder(counters, redisStore, store, analytics.NewMockSink(), metrics)

	srv := &Server{
		Logger:      zap.NewNop(),
		Redis:       redisStore,
		Store:       store,
		Resolver:    resolver,
		Recorder:    recorder,
		Metrics:     metrics,
		TokenSecret: []byte("test-secret"),
		TokenTTL:    time.Minute,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/ads", srv.GetAdsHandler).Methods("GET")
	r.HandleFunc("/api/ads/{id}/impression", srv.ImpressionHandler).Methods("POST")
	r.HandleFunc("/api/ads/{id}/click", srv.ClickHandler).Methods("POST")
	return srv, counters, r
}

func deliveryAd(id int) models.Advertisement {
	return models.Advertisement{
		ID:       id,
		Page:     models.PageHomepage,
		Location: models.LocationTopBanner,
		ImageURL: "https://cdn.example.com/a.png",
		LinkURL:  "https://example.com",
		Title:    "banner",
		Type:     models.AdTypeBanner,
		Active:   true,
		Notes:    "internal note",
	}
}

func TestGetAdsHandler(t *testing.T) {
	_, _, router := setupTestServer(t, []models.Advertisement{deliveryAd(1)})

	req := httptest.NewRequest("GET", "/api/ads?page=homepage&location=top_banner", nil)
	req.Header.Set("X-User-ID", "7")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Ads []models.AdSlotResponse `json:"ads"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Ads) != 1 {
		t.Fatalf("got %d ads", len(resp.Ads))
	}
	ad := resp.Ads[0]
	if ad.ID != 1 || ad.Title != "banner" {
		t.Fatalf("ad = %+v", ad)
	}
	if !strings.Contains(ad.ImpressionURL, "/api/ads/1/impression?t=") {
		t.Fatalf("impression url = %q", ad.ImpressionURL)
	}
	if !strings.Contains(ad.ClickURL, "/api/ads/1/click?t=") {
		t.Fatalf("click url = %q", ad.ClickURL)
	}
	if strings.Contains(w.Body.String(), "internal note") {
		t.Fatal("admin-only field leaked to delivery response")
	}
}

func TestGetAdsHandlerLegacyPlacement(t *testing.T) {
	_, _, router := setupTestServer(t, []models.Advertisement{deliveryAd(1)})

	req := httptest.NewRequest("GET", "/api/ads?placement=homepage_top_banner", nil)
	req.Header.Set("X-User-ID", "7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"id":1`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestGetAdsHandlerBadSlot(t *testing.T) {
	_, _, router := setupTestServer(t, nil)

	req := httptest.NewRequest("GET", "/api/ads?page=nowhere&location=top_banner", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetAdsHandlerSetsSessionCookie(t *testing.T) {
	_, _, router := setupTestServer(t, []models.Advertisement{deliveryAd(1)})

	req := httptest.NewRequest("GET", "/api/ads?page=homepage&location=top_banner", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == logic.SessionCookie && c.Value != "" {
			return
		}
	}
	t.Fatal("no session cookie set for anonymous viewer")
}

func TestImpressionHandler(t *testing.T) {
	srv, counters, router := setupTestServer(t, []models.Advertisement{deliveryAd(1)})

	tok, err := token.Generate(token.Payload{AdID: 1, ViewerKey: "u:7", Page: "homepage", Location: "top_banner"}, srv.TokenSecret)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/ads/1/impression?t="+tok, nil)
	req.Header.Set("X-User-ID", "7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if counters.impressions != 1 {
		t.Fatalf("impressions = %d, want 1", counters.impressions)
	}
}

func TestImpressionHandlerRejectsBadTokens(t *testing.T) {
	srv, counters, router := setupTestServer(t, []models.Advertisement{deliveryAd(1)})

	// Missing token.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/ads/1/impression", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d", w.Code)
	}

	// Token signed for a different ad.
	tok, _ := token.Generate(token.Payload{AdID: 2, ViewerKey: "u:7"}, srv.TokenSecret)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/ads/1/impression?t="+tok, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("mismatched token: status = %d", w.Code)
	}

	// Token signed with a different secret.
	tok, _ = token.Generate(token.Payload{AdID: 1}, []byte("other"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/ads/1/impression?t="+tok, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: status = %d", w.Code)
	}

	if counters.impressions != 0 {
		t.Fatalf("impressions = %d after rejected events", counters.impressions)
	}
}
