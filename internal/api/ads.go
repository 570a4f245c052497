package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/logic"
	"github.com/panelworks/adserve/internal/middleware"
	"github.com/panelworks/adserve/internal/models"
	"github.com/panelworks/adserve/internal/observability"
	"github.com/panelworks/adserve/internal/token"
)

// adsResponse is the envelope the delivery endpoint returns.
type adsResponse struct {
	Ads   []models.AdSlotResponse `json:"ads"`
	Debug interface{}             `json:"debug,omitempty"`
}

// GetAdsHandler handles GET /api/ads requests from page renders. The slot is
// named either by page and location or by a legacy placement value; the
// viewer context is derived entirely from the request. The endpoint always
// answers 200 with a (possibly empty) ad list so a page render never breaks
// on ad trouble.
func (s *Server) GetAdsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "GetAdsHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/api/ads"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "ads"
	const method = "GET"

	q := r.URL.Query()
	key, err := models.NormalizeSlot(q.Get("page"), q.Get("location"), q.Get("placement"))
	if err != nil {
		logger.Warn("bad slot", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("slot.page", string(key.Page)),
		attribute.String("slot.location", string(key.Location)),
	)

	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	viewer := logic.ResolveViewer(s.GeoIP, r)
	viewer.SessionID = s.ensureSession(w, r, viewer)

	var tr *logic.SelectionTrace
	if s.DebugTrace || q.Get("debug") == "1" {
		tr = &logic.SelectionTrace{}
	}

	ads := s.Resolver.Resolve(ctx, key, viewer, limit, tr)

	resp := adsResponse{Ads: make([]models.AdSlotResponse, 0, len(ads))}
	for i := range ads {
		pub := models.PublicAd(ads[i])
		pub.ImpressionURL, pub.ClickURL = s.renderURLs(&ads[i], viewer)
		resp.Ads = append(resp.Ads, pub)
	}
	if tr != nil {
		resp.Debug = map[string]interface{}{"trace": tr}
	}

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("ads served",
			zap.String("slot", key.String()),
			zap.Int("count", len(resp.Ads)),
			zap.String("viewer", viewer.Key()))
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}

// ensureSession returns the viewer's session id, minting and setting a new
// cookie for anonymous viewers so frequency capping and variant assignment
// have a stable identity from the first request on.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request, viewer models.ViewerContext) string {
	if viewer.SessionID != "" {
		return viewer.SessionID
	}
	if viewer.UserID != "" || viewer.IsBot {
		return ""
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     logic.SessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// renderURLs builds the signed impression and click URLs for one delivery.
func (s *Server) renderURLs(ad *models.Advertisement, viewer models.ViewerContext) (impressionURL, clickURL string) {
	pl := token.Payload{
		AdID:      ad.ID,
		ViewerKey: viewer.Key(),
		Page:      string(ad.Page),
		Location:  string(ad.Location),
		Variant:   ad.VariantName,
	}
	tok, err := token.Generate(pl, s.TokenSecret)
	if err != nil {
		s.Logger.Error("render token", zap.Int("ad_id", ad.ID), zap.Error(err))
		return "", ""
	}
	esc := url.QueryEscape(tok)
	impressionURL = fmt.Sprintf("/api/ads/%d/impression?t=%s", ad.ID, esc)
	clickURL = fmt.Sprintf("/api/ads/%d/click?t=%s", ad.ID, esc)
	return impressionURL, clickURL
}
