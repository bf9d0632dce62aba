package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formscout/formscout/internal/core"
	"github.com/formscout/formscout/internal/server/middleware"
)

func TestFromLookupErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"source not found", &core.LookupError{Kind: core.KindSourceNotFound, Jurisdiction: "Oregon"}, CodeSourceNotFound},
		{"rate limited", &core.LookupError{Kind: core.KindRateLimited, Organization: "Texas REALTORS"}, CodeRateLimited},
		{"not found", &core.LookupError{Kind: core.KindNotFound, Form: "RPA"}, CodeNotFound},
		{"deadline", context.DeadlineExceeded, CodeTimeout},
		{"canceled", fmt.Errorf("resolve: %w", context.Canceled), CodeCanceled},
		{"other", fmt.Errorf("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope := FromLookupError(context.Background(), tt.err)
			require.NotNil(t, envelope)
			assert.Equal(t, tt.code, envelope.Code)
			assert.NotEmpty(t, envelope.CorrelationID)
		})
	}
	assert.Nil(t, FromLookupError(context.Background(), nil))
}

func TestFromLookupErrorContext(t *testing.T) {
	err := &core.LookupError{
		Kind:         core.KindRateLimited,
		Form:         "RPA",
		Jurisdiction: "California",
		Organization: "California Association of REALTORS",
		RetryAfter:   1500 * time.Millisecond,
	}
	envelope := FromLookupError(context.Background(), err)
	require.NotNil(t, envelope)
	assert.Equal(t, "RPA", envelope.Context["form"])
	assert.Equal(t, "California", envelope.Context["jurisdiction"])
	assert.EqualValues(t, 2, envelope.Context["retry_after_seconds"])
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(nil))
	assert.Equal(t, 1, RetryAfterSeconds(&core.LookupError{}))
	assert.Equal(t, 1, RetryAfterSeconds(&core.LookupError{RetryAfter: 10 * time.Millisecond}))
	assert.Equal(t, 3, RetryAfterSeconds(&core.LookupError{RetryAfter: 3 * time.Second}))
	assert.Equal(t, 4, RetryAfterSeconds(&core.LookupError{RetryAfter: 3*time.Second + time.Millisecond}))
}

func TestHTTPStatusFromCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromCode(CodeSourceNotFound))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatusFromCode(CodeRateLimited))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromCode(CodeTimeout))
	assert.Equal(t, 499, HTTPStatusFromCode(CodeCanceled))
	assert.Equal(t, http.StatusBadGateway, HTTPStatusFromCode(CodeExternalService))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}

func TestEnsureEnvelope(t *testing.T) {
	env := EnsureEnvelope(nil)
	assert.Equal(t, CodeInternal, env.Code)
	assert.NotEmpty(t, env.Severity)

	original := NewInvalidInputError("bad")
	assert.Same(t, original, EnsureEnvelope(original))

	env = EnsureEnvelope(&core.LookupError{Kind: core.KindNotFound, Form: "RPA"})
	assert.Equal(t, CodeNotFound, env.Code)

	env = EnsureEnvelope(fmt.Errorf("disk on fire"))
	assert.Equal(t, CodeInternal, env.Code)
	assert.Equal(t, "disk on fire", env.Context["wrapped_error"])
}

func TestResponseDetailsHidesWrappedError(t *testing.T) {
	env := WrapInternal(context.Background(), fmt.Errorf("secret path /var/db"), "lookup failed")
	assert.Nil(t, ResponseDetails(env))

	env = withContext(NewNotFoundError("missing"), map[string]interface{}{
		"form":          "RPA",
		"wrapped_error": "x",
	})
	details := ResponseDetails(env)
	assert.Equal(t, "RPA", details["form"])
	assert.NotContains(t, details, "wrapped_error")
}

func TestWrapConfigInvalid(t *testing.T) {
	env := WrapConfigInvalid(context.Background(), fmt.Errorf("bad yaml"), "config reload failed")
	assert.Equal(t, CodeConfigInvalid, env.Code)
	assert.Equal(t, "config reload failed", env.Message)
}

func TestRespondWithErrorRateLimited(t *testing.T) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RespondWithError(w, r, &core.LookupError{
			Kind:         core.KindRateLimited,
			Organization: "Texas REALTORS",
			RetryAfter:   2 * time.Second,
		})
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/forms/resolve", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeRateLimited, body.Error.Code)
	assert.Equal(t, "req-42", body.Error.RequestID)
	assert.Equal(t, "Texas REALTORS", body.Error.Details["organization"])
}

func TestRespondWithErrorGeneratesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/forms/sources", nil)
	rec := httptest.NewRecorder()
	RespondWithError(rec, req, NewServiceUnavailableError("store down"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error.RequestID)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
