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

	"github.com/javajoker/sevenfour-backend/internal/services"
)

func respondWith(t *testing.T, err error) (int, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/test", nil)

	respondError(c, err, "product")

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body.Error.Code
}

func TestRespondErrorMapsUniqueViolationToConflict(t *testing.T) {
	status, code := respondWith(t, fmt.Errorf("failed to create product: %w",
		errors.New("UNIQUE constraint failed: products.id")))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", code)
}

func TestRespondErrorMappings(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: proof already sent", services.ErrPaymentPending), http.StatusConflict, "PAYMENT_PENDING"},
		{services.ErrInsufficientStock, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{services.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{services.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("connection reset"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		status, code := respondWith(t, tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		if tc.code != "" {
			assert.Equal(t, tc.code, code, tc.err.Error())
		}
	}
}
