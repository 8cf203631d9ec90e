package problem

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/ingest/runs", nil)

	Write(rec, req, 400, "https://stridelab.io/problems/validation-error", "Invalid request",
		errors.New("empty batch"), "development")

	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid request", body.Title)
	assert.Equal(t, "empty batch", body.Detail)
	assert.Equal(t, "/api/v1/ingest/runs", body.Instance)
}

func TestWriteHidesDetailInProduction(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/analytics/overview", nil)

	Write(rec, req, 500, "https://stridelab.io/problems/server-error", "Server error",
		errors.New("pool exhausted"), "production")

	var body ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body.Detail)
}

func TestWriteWithErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/inventory", nil)

	Write(rec, req, 422, "https://stridelab.io/problems/validation-error", "Invalid request",
		nil, "test", WithErrors(map[string]interface{}{"quantity": "must be positive"}))

	var body ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "must be positive", body.Errors["quantity"])
}
