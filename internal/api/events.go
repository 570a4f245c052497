package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/panelworks/adserve/internal/logic"
	"github.com/panelworks/adserve/internal/middleware"
	"github.com/panelworks/adserve/internal/models"
	"github.com/panelworks/adserve/internal/observability"
	"github.com/panelworks/adserve/internal/token"
)

// ImpressionHandler handles POST /api/ads/{id}/impression.
func (s *Server) ImpressionHandler(w http.ResponseWriter, r *http.Request) {
	s.handleEvent(w, r, "impression")
}

// ClickHandler handles POST /api/ads/{id}/click.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
	s.handleEvent(w, r, "click")
}

// ConversionHandler handles POST /api/ads/{id}/conversion.
func (s *Server) ConversionHandler(w http.ResponseWriter, r *http.Request) {
	s.handleEvent(w, r, "conversion")
}

// handleEvent verifies the render token, resolves the ad, and hands the
// event to the recorder. The token binds the event to a delivery this server
// actually made, so counters cannot be driven by hand-built requests.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request, eventType string) {
	ctx, span := tracer.Start(r.Context(), "EventHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("event.type", eventType),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	endpoint := eventType
	const method = "POST"

	adID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.eventReject(w, endpoint, start, http.StatusBadRequest, "invalid ad id")
		return
	}

	tok := r.URL.Query().Get("t")
	if tok == "" {
		tok = r.PostFormValue("t")
	}
	if tok == "" {
		logger.Warn("missing token", zap.String("event_type", eventType))
		s.eventReject(w, endpoint, start, http.StatusUnauthorized, "token required")
		return
	}

	payload, err := token.Verify(tok, s.TokenSecret, s.TokenTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token")
		logger.Warn("token verify", zap.String("event_type", eventType), zap.Error(err))
		s.eventReject(w, endpoint, start, http.StatusUnauthorized, "invalid token")
		return
	}
	if payload.AdID != adID {
		logger.Warn("token ad mismatch",
			zap.Int("url_ad_id", adID), zap.Int("token_ad_id", payload.AdID))
		s.eventReject(w, endpoint, start, http.StatusUnauthorized, "invalid token")
		return
	}

	ad := s.Store.GetAd(adID)
	if ad == nil {
		s.eventReject(w, endpoint, start, http.StatusNotFound, "unknown ad")
		return
	}

	viewer := logic.ResolveViewer(s.GeoIP, r)
	if viewer.Key() == "" {
		// The identity the ad was delivered under outlives the cookie in the
		// signed payload.
		viewer = viewerFromKey(payload.ViewerKey, viewer)
	}
	if viewer.IsBot {
		// Bots see ads but never move counters or spend.
		s.Metrics.IncrementRequests(endpoint, method, "204")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	now := time.Now()
	switch eventType {
	case "impression":
		err = s.Recorder.RecordImpression(ctx, ad, viewer, now)
	case "click":
		err = s.Recorder.RecordClick(ctx, ad, viewer, now)
	case "conversion":
		err = s.Recorder.RecordConversion(ctx, ad, viewer, now)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record failed")
		logger.Error("record event", zap.String("event_type", eventType),
			zap.Int("ad_id", adID), zap.Error(err))
		s.eventReject(w, endpoint, start, http.StatusInternalServerError, "record failed")
		return
	}

	if eventType == "impression" {
		s.Metrics.IncrementImpressions("204")
	}
	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("event recorded",
			zap.String("event_type", eventType),
			zap.Int("ad_id", adID),
			zap.String("viewer", viewer.Key()))
	}

	s.Metrics.IncrementRequests(endpoint, method, "204")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) eventReject(w http.ResponseWriter, endpoint string, start time.Time, status int, msg string) {
	s.Metrics.IncrementRequests(endpoint, "POST", strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, "POST", time.Since(start))
	http.Error(w, msg, status)
}

// viewerFromKey reconstructs the capping identity from a token payload key.
func viewerFromKey(key string, base models.ViewerContext) models.ViewerContext {
	switch {
	case len(key) > 2 && key[:2] == "u:":
		base.UserID = key[2:]
	case len(key) > 2 && key[:2] == "s:":
		base.SessionID = key[2:]
	}
	return base
}
