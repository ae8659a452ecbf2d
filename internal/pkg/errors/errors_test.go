package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeDecode, "bad image", errors.New("unexpected EOF")),
			want: "DECODE_ERROR: bad image: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeDataFormat, http.StatusBadRequest},
		{CodeDecode, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnsupported, http.StatusNotImplemented},
		{CodeMLError, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, New(tt.code, "test").HTTPStatus())
		})
	}
}

func TestCodeOf_WrappedChain(t *testing.T) {
	base := DataFormatError("no 'y' in token")
	wrapped := fmt.Errorf("loading label.csv: %w", base)

	assert.Equal(t, CodeDataFormat, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeDataFormat))
	assert.False(t, Is(errors.New("plain"), CodeDataFormat))
}

func TestWriteError(t *testing.T) {
	t.Run("app error keeps code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, fmt.Errorf("ctx: %w", NotFoundError("sample 7")))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, CodeNotFound, resp.Code)
		assert.Equal(t, "sample 7 not found", resp.Error)
	})

	t.Run("server errors are sanitized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, MLError("session run", errors.New("cuda oom at 0x1f")))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "cuda")
	})

	t.Run("plain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), CodeInternal)
	})
}

func TestRateLimitedError(t *testing.T) {
	err := RateLimitedError(2)
	assert.Equal(t, "2", err.Details["retry_after"])
	assert.Nil(t, RateLimitedError(0).Details)
}
