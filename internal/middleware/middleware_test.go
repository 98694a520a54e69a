package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureID(id *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*id = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		headerID string
		wantNew  bool
	}{
		{name: "absent", headerID: "", wantNew: true},
		{name: "alphanumeric_with_hyphens", headerID: "abc-123_DEF"},
		{name: "newline", headerID: "fake-id\nINJECTED: malicious", wantNew: true},
		{name: "spaces", headerID: "id with spaces", wantNew: true},
		{name: "markup", headerID: "id<script>", wantNew: true},
		{name: "max_length", headerID: strings.Repeat("a", 128)},
		{name: "too_long", headerID: strings.Repeat("a", 129), wantNew: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.headerID != "" {
				req.Header.Set(RequestIDHeader, tt.headerID)
			}
			rec := httptest.NewRecorder()
			RequestID(captureID(&got)).ServeHTTP(rec, req)

			require.NotEmpty(t, got)
			assert.Equal(t, got, rec.Header().Get(RequestIDHeader))
			if tt.wantNew {
				assert.NotEqual(t, tt.headerID, got)
			} else {
				assert.Equal(t, tt.headerID, got)
			}
		})
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestID(AccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream"))
	})))
	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/runs", entry["path"])
	assert.InDelta(t, 502, entry["status"], 0)
	assert.InDelta(t, 8, entry["bytes"], 0)
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestThrottle(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("rejects_over_burst", func(t *testing.T) {
		h := Throttle(ThrottleConfig{RequestsPerSecond: 0.01, Burst: 2})(ok)
		for range 2 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "rate limit exceeded", body["message"])
	})

	t.Run("shared_across_clients", func(t *testing.T) {
		h := Throttle(ThrottleConfig{RequestsPerSecond: 0.01, Burst: 1})(ok)
		first := httptest.NewRequest(http.MethodPost, "/runs", nil)
		first.RemoteAddr = "10.0.0.1:1234"
		second := httptest.NewRequest(http.MethodPost, "/runs", nil)
		second.RemoteAddr = "10.0.0.2:1234"

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, first)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, second)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		h := Throttle(ThrottleConfig{})(ok)
		for range 5 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}
