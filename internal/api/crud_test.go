package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/panelworks/adserve/internal/logic/ratelimit"
	"github.com/panelworks/adserve/internal/models"
)

func adminRouter(srv *Server) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/admin/ads", srv.ListAds).Methods("GET")
	r.HandleFunc("/api/admin/ads", srv.CreateAd).Methods("POST")
	r.HandleFunc("/api/admin/ads/bulk/active", srv.BulkSetActive).Methods("POST")
	r.HandleFunc("/api/admin/ads/{id}", srv.GetAdByID).Methods("GET")
	r.HandleFunc("/api/admin/ads/{id}", srv.UpdateAdHandler).Methods("PUT")
	r.HandleFunc("/api/admin/campaigns", srv.CreateCampaign).Methods("POST")
	r.HandleFunc("/api/admin/ratelimit", srv.RateLimitStatsHandler).Methods("GET")
	return r
}

func TestCreateAdValidation(t *testing.T) {
	srv, _, _ := setupTestServer(t, nil)
	router := adminRouter(srv)

	// Missing creative fields and an unknown device target.
	body := `{"page":"homepage","location":"top_banner","target_device_types":["toaster"]}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/admin/ads", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "image_url")
	assert.Contains(t, resp.Errors, "link_url")
	assert.Contains(t, resp.Errors, "title")
	assert.Contains(t, resp.Errors, "target_device_types")
}

func TestCreateAdRejectsUnknownSlot(t *testing.T) {
	srv, _, _ := setupTestServer(t, nil)
	router := adminRouter(srv)

	body := `{"placement":"basement_banner","image_url":"x","link_url":"y","title":"z"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/admin/ads", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "placement")
}

func TestCreateAdRejectsUnknownCampaign(t *testing.T) {
	srv, _, _ := setupTestServer(t, nil)
	router := adminRouter(srv)

	body := `{"page":"homepage","location":"top_banner","image_url":"x","link_url":"y","title":"z","campaign_id":99}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/admin/ads", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "campaign_id")
}

func TestGetAdByID(t *testing.T) {
	srv, _, _ := setupTestServer(t, []models.Advertisement{deliveryAd(1)})
	router := adminRouter(srv)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/admin/ads/1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	// Admin responses carry the full record, internal fields included.
	assert.Contains(t, w.Body.String(), "internal note")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/admin/ads/42", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateAdNotFound(t *testing.T) {
	srv, _, _ := setupTestServer(t, nil)
	router := adminRouter(srv)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("PUT", "/api/admin/ads/5", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkSetActiveRequiresIDs(t *testing.T) {
	srv, _, _ := setupTestServer(t, nil)
	router := adminRouter(srv)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/admin/ads/bulk/active", strings.NewReader(`{"ids":[],"active":true}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "ids")
}

func TestRateLimitStatsHandler(t *testing.T) {
	srv, _, _ := setupTestServer(t, nil)
	router := adminRouter(srv)

	limiter := ratelimit.NewAdLimiter(ratelimit.Config{Capacity: 1, RefillRate: 1, Enabled: true}, srv.Metrics)
	srv.Resolver.Limiter = limiter
	limiter.Allow(7)
	limiter.Allow(7) // second request exhausts the bucket

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/admin/ratelimit", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Ads map[string]ratelimit.Stats `json:"ads"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Ads["7"].Hits)
	assert.Equal(t, int64(2), resp.Ads["7"].Total)
}

func TestCreateCampaignValidation(t *testing.T) {
	srv, _, _ := setupTestServer(t, nil)
	router := adminRouter(srv)

	body := `{"name":"","budget":"-5"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/api/admin/campaigns", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "name")
	assert.Contains(t, resp.Errors, "budget")
}
