package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homehero/pulse/internal/logger"
	"github.com/homehero/pulse/internal/requestdata"
	"github.com/homehero/pulse/internal/services"
)

type ExperimentsHandler struct {
	log           *logger.Logger
	experimentSvc services.ExperimentService
}

func NewExperimentsHandler(log *logger.Logger, experimentSvc services.ExperimentService) *ExperimentsHandler {
	return &ExperimentsHandler{
		log:           log.With("handler", "ExperimentsHandler"),
		experimentSvc: experimentSvc,
	}
}

// POST /api/experiments
// { key, name, variants } — get-or-create on key.
func (h *ExperimentsHandler) CreateTest(c *gin.Context) {
	var body struct {
		Key      string   `json:"key"`
		Name     string   `json:"name"`
		Variants []string `json:"variants"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	test, err := h.experimentSvc.CreateTest(c.Request.Context(), body.Key, body.Name, body.Variants)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, test)
}

// POST /api/experiments/:key/start
// The path segment accepts the test id or its key.
func (h *ExperimentsHandler) StartTest(c *gin.Context) {
	test, err := h.experimentSvc.StartTest(c.Request.Context(), c.Param("key"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, test)
}

// POST /api/experiments/:key/end
func (h *ExperimentsHandler) EndTest(c *gin.Context) {
	test, err := h.experimentSvc.EndTest(c.Request.Context(), c.Param("key"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, test)
}

// GET /api/experiments/:key/variant?subject=
// Subject defaults to the caller's identity so browser clients need no
// extra plumbing.
func (h *ExperimentsHandler) GetVariant(c *gin.Context) {
	subjectID := c.Query("subject")
	if subjectID == "" {
		subjectID = requestdata.GetRequestData(c.Request.Context()).SubjectKey()
	}
	if subjectID == "" {
		RespondError(c, http.StatusBadRequest, "invalid_query", errMissingField("subject"))
		return
	}

	variant, err := h.experimentSvc.GetVariant(c.Request.Context(), c.Param("key"), subjectID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"variant": variant})
}

// POST /api/experiments/:key/convert
// { subject_id?, conversion_key, value? }
func (h *ExperimentsHandler) TrackConversion(c *gin.Context) {
	var body struct {
		SubjectID     string   `json:"subject_id"`
		ConversionKey string   `json:"conversion_key"`
		Value         *float64 `json:"value"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	subjectID := body.SubjectID
	if subjectID == "" {
		subjectID = requestdata.GetRequestData(c.Request.Context()).SubjectKey()
	}
	if subjectID == "" {
		RespondError(c, http.StatusBadRequest, "invalid_body", errMissingField("subject_id"))
		return
	}

	if err := h.experimentSvc.TrackConversion(c.Request.Context(), c.Param("key"), subjectID, body.ConversionKey, body.Value); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/experiments/:key/results
func (h *ExperimentsHandler) GetTestResults(c *gin.Context) {
	results, err := h.experimentSvc.GetTestResults(c.Request.Context(), c.Param("key"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, results)
}
