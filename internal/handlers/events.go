package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/requestdata"
	"github.com/homehero/pulse/internal/services"
)

type EventsHandler struct {
	log       *logger.Logger
	ingestSvc services.IngestService
}

func NewEventsHandler(log *logger.Logger, ingestSvc services.IngestService) *EventsHandler {
	return &EventsHandler{
		log:       log.With("handler", "EventsHandler"),
		ingestSvc: ingestSvc,
	}
}

// POST /api/events
func (h *EventsHandler) RecordEvent(c *gin.Context) {
	var input services.EventInput
	if err := c.ShouldBindJSON(&input); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	id, err := h.ingestSvc.Record(c.Request.Context(), nil, input)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"event_id": id})
}

// POST /api/events/batch
// { events: [...] }
func (h *EventsHandler) RecordBatch(c *gin.Context) {
	var body struct {
		Events []services.EventInput `json:"events"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	ids, err := h.ingestSvc.RecordBatch(c.Request.Context(), nil, body.Events)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"event_ids": ids})
}

// POST /api/track/profile-view
// { viewed_user_id, referrer }
// Fire-and-forget: the event is queued and the request returns immediately.
func (h *EventsHandler) TrackProfileView(c *gin.Context) {
	var body struct {
		ViewedUserID string `json:"viewed_user_id"`
		Referrer     string `json:"referrer"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if body.ViewedUserID == "" {
		RespondError(c, http.StatusBadRequest, "invalid_body", errMissingField("viewed_user_id"))
		return
	}
	rd := requestdata.GetRequestData(c.Request.Context())
	h.ingestSvc.TrackProfileView(c.Request.Context(), body.ViewedUserID, rd.SubjectKey(), body.Referrer)
	c.Status(http.StatusAccepted)
}
