package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"retail-pulse/internal/errors"
	"retail-pulse/internal/services"
)

const cacheControl = "public, max-age=300"

type APIHandlers struct {
	analytics      *services.Analytics
	defaultHorizon int
	logger         *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, defaultHorizon int, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics:      analytics,
		defaultHorizon: defaultHorizon,
		logger:         logger,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, r, h.logger, err)
}

func (h *APIHandlers) HandleHistorical(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.Historical(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, data, map[string]string{"Cache-Control": cacheControl})
}

func (h *APIHandlers) HandleKPIs(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.KPIs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, data, map[string]string{"Cache-Control": cacheControl})
}

func (h *APIHandlers) HandleForecast(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizon(r.URL.Query().Get("horizon"), h.defaultHorizon)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	data, err := h.analytics.Forecast(r.Context(), horizon)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, data, map[string]string{
		"Cache-Control":      cacheControl,
		"X-Forecast-Horizon": strconv.Itoa(horizon),
	})
}

func (h *APIHandlers) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.Scenarios(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, data, map[string]string{"Cache-Control": cacheControl})
}

func (h *APIHandlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	data, err := h.analytics.ChannelMix(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	errors.WriteSuccessWithHeaders(w, data, map[string]string{"Cache-Control": cacheControl})
}

func (h *APIHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.Refresh(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "data regenerated", "run_id", report.RunID)
	errors.WriteStatus(w, http.StatusCreated, report)
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {

	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}

// parseHorizon reads a horizon value, falling back to def when raw is empty.
// Range checks are left to the service.
func parseHorizon(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	horizon, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.BadRequestWrap(err, "horizon must be an integer")
	}
	return horizon, nil
}
