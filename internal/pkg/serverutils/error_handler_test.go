package serverutils

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"repochat-be/internal/pkg/logger"
	"repochat-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantType    string
		wantMessage string
	}{
		{
			name:        "unknown session",
			err:         apperror.SessionNotFound("nonexistent-id"),
			wantStatus:  404,
			wantType:    "SessionNotFound",
			wantMessage: `session "nonexistent-id" expired or invalid`,
		},
		{
			name:        "ingestion",
			err:         apperror.IngestionFailed("fetch repository acme/ghost: repository or branch not found", errors.New("404")),
			wantStatus:  503,
			wantType:    "IngestionFailed",
			wantMessage: "fetch repository acme/ghost: repository or branch not found",
		},
		{
			name:        "validation",
			err:         apperror.InvalidRequest("query failed on 'required'", nil),
			wantStatus:  400,
			wantType:    "InvalidRequest",
			wantMessage: "query failed on 'required'",
		},
		{
			name:        "model failure hides the cause",
			err:         apperror.ModelCallFailed("generate failed after 3 attempt(s)", errors.New("api key sk-123 rejected")),
			wantStatus:  500,
			wantType:    "ModelCallFailed",
			wantMessage: genericErrorMessage,
		},
		{
			name:        "unclassified",
			err:         errors.New("pq: connection refused"),
			wantStatus:  500,
			wantType:    "InternalProcessingError",
			wantMessage: genericErrorMessage,
		},
		{
			name:        "fiber error passes through",
			err:         fiber.NewError(fiber.StatusMethodNotAllowed, "Method Not Allowed"),
			wantStatus:  405,
			wantMessage: "Method Not Allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger.NewNopLogger())})
			app.Get("/", func(ctx *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body BaseResponse[any]
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantStatus, body.Code)
			assert.Equal(t, tt.wantType, body.ErrorType)
			assert.Equal(t, tt.wantMessage, body.Message)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type request struct {
		SessionId string `json:"session_id" validate:"required"`
		Query     string `json:"query" validate:"required,max=5"`
	}

	assert.NoError(t, ValidateRequest(request{SessionId: "a", Query: "hi"}))

	err := ValidateRequest(request{Query: "too long"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "sessionid failed on 'required'")
	assert.Contains(t, err.Error(), "query failed on 'max'")
}
