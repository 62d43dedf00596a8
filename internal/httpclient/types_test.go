package httpclient_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonAks/TaskFromTal/internal/httpclient"
)

func TestHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		statusCode    int
		url           string
		message       string
		expectedError string
	}{
		{
			name:          "not found",
			statusCode:    404,
			url:           "http://example.com/studies",
			message:       "404 Not Found",
			expectedError: "HTTP 404 for URL http://example.com/studies: 404 Not Found",
		},
		{
			name:          "server error",
			statusCode:    500,
			url:           "http://api.example.com/v2/studies",
			message:       "500 Internal Server Error",
			expectedError: "HTTP 500 for URL http://api.example.com/v2/studies: 500 Internal Server Error",
		},
		{
			name:          "empty message",
			statusCode:    429,
			url:           "http://example.com",
			message:       "",
			expectedError: "HTTP 429 for URL http://example.com: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := httpclient.NewHTTPError(tt.statusCode, tt.url, tt.message)

			require.NotNil(t, err)
			assert.Equal(t, tt.expectedError, err.Error())
			assert.Equal(t, tt.statusCode, err.StatusCode)
		})
	}
}

func TestHTTPError_ErrorsAs(t *testing.T) {
	t.Parallel()

	var wrapped error = httpclient.NewHTTPError(503, "http://example.com", "503 Service Unavailable")

	var httpErr *httpclient.HTTPError
	require.True(t, errors.As(wrapped, &httpErr))
	assert.Equal(t, 503, httpErr.StatusCode)
}
