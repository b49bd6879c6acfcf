package common_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pharma-quote/internal/common"
)

type sampleRequest struct {
	Code  string `json:"code" validate:"required,max=3"`
	Delta int    `json:"delta" validate:"min=-5,max=5"`
}

func decode(t *testing.T, body string) (sampleRequest, *common.AppError) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest sampleRequest
	err := common.DecodeJSONBody(req, &dest)
	if err == nil {
		return dest, nil
	}
	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	return dest, appErr
}

func TestDecodeJSONBodyValid(t *testing.T) {
	dest, appErr := decode(t, `{"code":"USD","delta":2}`)
	require.Nil(t, appErr)
	require.Equal(t, "USD", dest.Code)
	require.Equal(t, 2, dest.Delta)
}

func TestDecodeJSONBodyMalformed(t *testing.T) {
	for _, body := range []string{``, `{"code":`, `{"code":"USD","extra":1}`} {
		_, appErr := decode(t, body)
		require.NotNil(t, appErr, body)
		require.Equal(t, "BAD_REQUEST", appErr.Code)
		require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	}
}

func TestDecodeJSONBodyValidationDetails(t *testing.T) {
	_, appErr := decode(t, `{"code":"","delta":9}`)
	require.NotNil(t, appErr)
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)
	require.Equal(t, "is required", details["code"])
	require.Equal(t, "must be at most 5", details["delta"])
}
