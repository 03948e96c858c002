package responses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/packfinderz-cart/pkg/errors"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/angelmondragon/packfinderz-cart/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body.Error
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"sessionId": "cart_1_abc"})

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body types.SuccessEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "cart_1_abc", body.Data.(map[string]any)["sessionId"])
}

func TestWriteErrorMapsCartCodes(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{pkgerrors.New(pkgerrors.CodeInvalidQty, "quantity must be at least 1"), http.StatusBadRequest, "quantity must be at least 1"},
		{pkgerrors.New(pkgerrors.CodeNoStock, "only 2 left"), http.StatusConflict, "only 2 left"},
		{pkgerrors.New(pkgerrors.CodeItemMissing, "item item_x not in cart"), http.StatusNotFound, "item item_x not in cart"},
		{pkgerrors.New(pkgerrors.CodeSavedMissing, "saved_x not found"), http.StatusNotFound, "saved_x not found"},
		{pkgerrors.New(pkgerrors.CodeBulkBusy, "busy"), http.StatusConflict, "busy"},
		{pkgerrors.New(pkgerrors.CodeCartLocked, "cart is locked for checkout"), http.StatusLocked, "cart is locked for checkout"},
		{pkgerrors.New(pkgerrors.CodeRateLimit, "slow down"), http.StatusTooManyRequests, "slow down"},
		{pkgerrors.New(pkgerrors.CodeStorage, "redis: connection refused"), http.StatusServiceUnavailable, "storage unavailable"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		WriteError(t.Context(), logger.Nop(), w, tc.err)

		typed := pkgerrors.As(tc.err)
		assert.Equal(t, tc.status, w.Code, typed.Code())
		body := decodeError(t, w)
		assert.Equal(t, string(typed.Code()), body.Code)
		assert.Equal(t, tc.message, body.Message)
	}
}

func TestWriteErrorIncludesAllowedDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"quantity": "is required"})
	WriteError(t.Context(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "bad input", body.Message)
	assert.NotNil(t, body.Details)
}

func TestWriteErrorDefaultsToInternalForUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(t.Context(), logger.Nop(), w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeInternal), body.Code)
	assert.Equal(t, "internal server error", body.Message)
	assert.Nil(t, body.Details)
}

func TestWriteErrorEchoesRequestIDAndRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set(RequestIDHeader, "req-42")
	WriteError(t.Context(), logger.Nop(), w, pkgerrors.New(pkgerrors.CodeDependency, "catalog down"))

	body := decodeError(t, w)
	assert.Equal(t, "req-42", body.RequestID)
	assert.True(t, body.Retryable)
}
