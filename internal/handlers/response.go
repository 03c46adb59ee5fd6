package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homehero/pulse/internal/services"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondServiceError maps the service error taxonomy onto HTTP statuses.
func RespondServiceError(c *gin.Context, err error) {
	switch {
	case services.IsValidation(err):
		RespondError(c, http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, services.ErrTestNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrPolicyViolation):
		RespondError(c, http.StatusConflict, "policy_violation", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}

func errMissingField(field string) error {
	return fmt.Errorf("%s is required", field)
}
