package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestack/tablestack-backend/pkg/actor"
	"github.com/tablestack/tablestack-backend/pkg/auth"
	"github.com/tablestack/tablestack-backend/pkg/config"
	"github.com/tablestack/tablestack-backend/pkg/errors"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestError_MapsAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, errors.Mismatch("allocations do not sum to the sale total", "10.00", "9.00"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
	assert.Equal(t, "10.00", resp.Error.Details["expected"])
	assert.Equal(t, "9.00", resp.Error.Details["actual"])
}

func TestError_HidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeResponse(t, rec).Error.Code)
}

type allocationInput struct {
	Amount string `json:"amount" validate:"required"`
}

type splitInput struct {
	Allocations []allocationInput `json:"allocations" validate:"required,min=1,dive"`
}

func TestValidate_UsesJSONFieldPaths(t *testing.T) {
	err := Validate(splitInput{Allocations: []allocationInput{{Amount: "1"}, {}}})

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Details, "allocations[1].amount")

	assert.NoError(t, Validate(splitInput{Allocations: []allocationInput{{Amount: "1"}}}))
}

func TestAuthenticate(t *testing.T) {
	tokens := auth.NewManager(&config.JWTConfig{Secret: "s", Issuer: "tablestack"})
	var seen *actor.Actor
	h := Authenticate(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = actor.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("health is public", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/restaurants", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token attaches caller", func(t *testing.T) {
		token, err := tokens.Sign(&actor.Actor{ID: "user-7"}, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/restaurants", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "user-7", seen.ID)
	})
}

func TestRequestID_EchoesHeader(t *testing.T) {
	var got string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", got)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}
