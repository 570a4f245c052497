package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/logic"
	"github.com/panelworks/adserve/internal/models"
)

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

// writeFieldErrors reports admin validation failures keyed by field name.
func writeFieldErrors(w http.ResponseWriter, errs map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": errs})
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	return id, err == nil
}

// ListAds handles GET /api/admin/ads, returning full records including the
// fields the delivery endpoint never exposes.
func (s *Server) ListAds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.GetAllAds())
}

// GetAdByID handles GET /api/admin/ads/{id}.
func (s *Server) GetAdByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	ad := s.Store.GetAd(id)
	if ad == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ad)
}

// CreateAd handles POST /api/admin/ads. The slot may arrive as a structured
// pair or a legacy placement; it is normalized here, before the record ever
// reaches storage, so nothing downstream branches on the legacy form.
func (s *Server) CreateAd(w http.ResponseWriter, r *http.Request) {
	var ad models.Advertisement
	if err := json.NewDecoder(r.Body).Decode(&ad); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	key, err := models.NormalizeSlot(string(ad.Page), string(ad.Location), ad.Placement)
	if err != nil {
		writeFieldErrors(w, map[string]string{"placement": err.Error()})
		return
	}
	ad.Page, ad.Location = key.Page, key.Location
	if ad.Type == "" {
		ad.Type = models.AdTypeBanner
	}

	if errs := ad.Validate(); len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	if ad.CampaignID != 0 && s.Store.GetCampaign(ad.CampaignID) == nil {
		writeFieldErrors(w, map[string]string{"campaign_id": "unknown campaign"})
		return
	}

	if err := s.PG.InsertAd(r.Context(), &ad); err != nil {
		s.Logger.Error("insert ad", zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err := s.Store.InsertAd(&ad); err != nil {
		s.Logger.Warn("ad not mirrored to snapshot", zap.Int("ad_id", ad.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, ad)
}

// UpdateAdHandler handles PUT /api/admin/ads/{id}.
func (s *Server) UpdateAdHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	existing := s.Store.GetAd(id)
	if existing == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var ad models.Advertisement
	if err := json.NewDecoder(r.Body).Decode(&ad); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ad.ID = id
	// Server-owned fields never come from the request body.
	ad.ImpressionCount = existing.ImpressionCount
	ad.ClickCount = existing.ClickCount
	ad.ConversionCount = existing.ConversionCount
	ad.TotalBudgetSpent = existing.TotalBudgetSpent
	ad.CreatedAt = existing.CreatedAt

	key, err := models.NormalizeSlot(string(ad.Page), string(ad.Location), ad.Placement)
	if err != nil {
		writeFieldErrors(w, map[string]string{"placement": err.Error()})
		return
	}
	ad.Page, ad.Location = key.Page, key.Location

	if errs := ad.Validate(); len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	if ad.CampaignID != 0 && s.Store.GetCampaign(ad.CampaignID) == nil {
		writeFieldErrors(w, map[string]string{"campaign_id": "unknown campaign"})
		return
	}

	if err := s.PG.UpdateAd(r.Context(), ad); err != nil {
		s.Logger.Error("update ad", zap.Int("ad_id", id), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err := s.Store.UpdateAd(ad); err != nil {
		s.Logger.Warn("ad update not mirrored to snapshot", zap.Int("ad_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, ad)
}

// DeleteAdHandler handles DELETE /api/admin/ads/{id}.
func (s *Server) DeleteAdHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if s.Store.GetAd(id) == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := s.PG.DeleteAd(r.Context(), id); err != nil {
		s.Logger.Error("delete ad", zap.Int("ad_id", id), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err := s.Store.DeleteAd(id); err != nil {
		s.Logger.Warn("ad delete not mirrored to snapshot", zap.Int("ad_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// bulkActiveRequest is the body of the bulk enable/disable endpoint.
type bulkActiveRequest struct {
	IDs    []int `json:"ids"`
	Active bool  `json:"active"`
}

// BulkSetActive handles POST /api/admin/ads/bulk/active, toggling many ads
// in one statement.
func (s *Server) BulkSetActive(w http.ResponseWriter, r *http.Request) {
	var req bulkActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		writeFieldErrors(w, map[string]string{"ids": "required"})
		return
	}
	if err := s.PG.SetAdsActive(r.Context(), req.IDs, req.Active); err != nil {
		s.Logger.Error("bulk set active", zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	updated := 0
	for _, id := range req.IDs {
		if err := s.Store.SetAdActive(id, req.Active); err == nil {
			updated++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// AdPerformanceHandler handles GET /api/admin/ads/{id}/performance,
// returning the daily history rows between from and to (default: the last
// 30 days).
func (s *Server) AdPerformanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if s.Store.GetAd(id) == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	now := time.Now()
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if to == "" {
		to = logic.DayKey(now)
	}
	if from == "" {
		from = logic.DayKey(now.AddDate(0, 0, -30))
	}

	rows, err := s.PG.LoadPerformanceHistory(r.Context(), id, from, to)
	if err != nil {
		s.Logger.Error("load performance history", zap.Int("ad_id", id), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ad_id": id,
		"from":  from,
		"to":    to,
		"days":  rows,
	})
}

// ListCampaigns handles GET /api/admin/campaigns.
func (s *Server) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Store.GetAllCampaigns())
}

// CreateCampaign handles POST /api/admin/campaigns.
func (s *Server) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var c models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if errs := c.Validate(); len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	if err := s.PG.InsertCampaign(r.Context(), &c); err != nil {
		s.Logger.Error("insert campaign", zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err := s.Store.InsertCampaign(&c); err != nil {
		s.Logger.Warn("campaign not mirrored to snapshot", zap.Int("campaign_id", c.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCampaignHandler handles PUT /api/admin/campaigns/{id}.
func (s *Server) UpdateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	existing := s.Store.GetCampaign(id)
	if existing == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var c models.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	c.ID = id
	c.SpentAmount = existing.SpentAmount
	c.CreatedAt = existing.CreatedAt

	if errs := c.Validate(); len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	if err := s.PG.UpdateCampaign(r.Context(), c); err != nil {
		s.Logger.Error("update campaign", zap.Int("campaign_id", id), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err := s.Store.UpdateCampaign(c); err != nil {
		s.Logger.Warn("campaign update not mirrored to snapshot", zap.Int("campaign_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCampaignHandler handles DELETE /api/admin/campaigns/{id}. Owned ads
// are detached, not deleted.
func (s *Server) DeleteCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if s.Store.GetCampaign(id) == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := s.PG.DeleteCampaign(r.Context(), id); err != nil {
		s.Logger.Error("delete campaign", zap.Int("campaign_id", id), zap.Error(err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if err := s.Store.DeleteCampaign(id); err != nil {
		s.Logger.Warn("campaign delete not mirrored to snapshot", zap.Int("campaign_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
