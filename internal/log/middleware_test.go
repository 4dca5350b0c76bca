package log

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// captureLogs points the package logger at a buffer for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, &Config{Format: "text"}, slog.LevelInfo))

	mu.Lock()
	prev := defaultLogger
	defaultLogger = logger
	mu.Unlock()

	t.Cleanup(func() {
		mu.Lock()
		defaultLogger = prev
		mu.Unlock()
	})
	return &buf
}

func TestRequestLogger(t *testing.T) {
	buf := captureLogs(t)

	wrapped := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("GET", "/api/v1/rooms", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	output := buf.String()
	assert.Contains(t, output, "http request")
	assert.Contains(t, output, "method=GET")
	assert.Contains(t, output, "path=/api/v1/rooms")
	assert.Contains(t, output, "status=200")
	assert.Contains(t, output, "bytes=2")
}

func TestRequestLogger_ErrorStatus(t *testing.T) {
	buf := captureLogs(t)

	wrapped := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/error", nil))

	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestRequestLogger_ClientErrorIsWarn(t *testing.T) {
	buf := captureLogs(t)

	wrapped := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))

	assert.Contains(t, buf.String(), "level=WARN")
}

func TestGetRequestID(t *testing.T) {
	captureLogs(t)

	var reqID string
	wrapped := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID = GetRequestID(r.Context())
	}))

	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Len(t, reqID, 8)
}
