package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homehero/pulse/internal/services"
)

func TestRespondServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "validation",
			err:    fmt.Errorf("event at index 1: %w", &services.ValidationError{Field: "type", Reason: "unknown"}),
			status: http.StatusBadRequest,
			code:   "validation_error",
		},
		{
			name:   "not_found",
			err:    fmt.Errorf("resolve test: %w", services.ErrTestNotFound),
			status: http.StatusNotFound,
			code:   "not_found",
		},
		{
			name:   "policy",
			err:    services.ErrPolicyViolation,
			status: http.StatusConflict,
			code:   "policy_violation",
		},
		{
			name:   "internal",
			err:    errors.New("connection refused"),
			status: http.StatusInternalServerError,
			code:   "internal_error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(recorder)

			RespondServiceError(c, tc.err)

			assert.Equal(t, tc.status, recorder.Code)
			var envelope ErrorEnvelope
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
			assert.Equal(t, tc.code, envelope.Error.Code)
			assert.NotEmpty(t, envelope.Error.Message)
		})
	}
}
