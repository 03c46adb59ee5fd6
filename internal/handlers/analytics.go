package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/requestdata"
	"github.com/homehero/pulse/internal/services"
)

type AnalyticsHandler struct {
	log          *logger.Logger
	analyticsSvc services.AnalyticsService
	forecastSvc  services.ForecastService
	campaignSvc  services.CampaignService
}

func NewAnalyticsHandler(log *logger.Logger, analyticsSvc services.AnalyticsService, forecastSvc services.ForecastService, campaignSvc services.CampaignService) *AnalyticsHandler {
	return &AnalyticsHandler{
		log:          log.With("handler", "AnalyticsHandler"),
		analyticsSvc: analyticsSvc,
		forecastSvc:  forecastSvc,
		campaignSvc:  campaignSvc,
	}
}

// GET /api/analytics/business?subject=&period=
// Subject defaults to the caller's own identity.
func (h *AnalyticsHandler) GetBusinessAnalytics(c *gin.Context) {
	subjectID := c.Query("subject")
	if subjectID == "" {
		subjectID = requestdata.GetRequestData(c.Request.Context()).SubjectKey()
	}
	if subjectID == "" {
		RespondError(c, http.StatusBadRequest, "invalid_query", errMissingField("subject"))
		return
	}

	result, err := h.analyticsSvc.GetBusinessAnalytics(c.Request.Context(), subjectID, c.Query("period"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/analytics/forecast?subject=&days=
// Empty subject means the marketplace-wide series.
func (h *AnalyticsHandler) GetDemandForecast(c *gin.Context) {
	daysAhead := 0
	if v := c.Query("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_query", err)
			return
		}
		daysAhead = parsed
	}

	result, err := h.forecastSvc.GetDemandForecast(c.Request.Context(), c.Query("subject"), daysAhead)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/analytics/campaigns?period=
func (h *AnalyticsHandler) GetCampaignAnalytics(c *gin.Context) {
	result, err := h.campaignSvc.GetCampaignAnalytics(c.Request.Context(), c.Query("period"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}
