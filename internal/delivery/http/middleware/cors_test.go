package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	handler := CORS([]string{"http://localhost:3000/", " https://buzz.dk "}, next)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"allowed origin", http.MethodGet, "http://localhost:3000", http.StatusOK, "http://localhost:3000"},
		{"trimmed origin", http.MethodGet, "https://buzz.dk", http.StatusOK, "https://buzz.dk"},
		{"unknown origin", http.MethodGet, "https://evil.example", http.StatusOK, ""},
		{"preflight allowed", http.MethodOptions, "https://buzz.dk", http.StatusNoContent, "https://buzz.dk"},
		{"preflight unknown", http.MethodOptions, "https://evil.example", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "http://test/events", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestWrappersFlush(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		_, _ = w.Write([]byte("data: x\n\n"))
		f.Flush()
	})
	handler := CORS([]string{"https://buzz.dk"}, LoggingMiddleware(testLogger(), next))

	req := httptest.NewRequest(http.MethodGet, "http://test/events/stream", nil)
	req.Header.Set("Origin", "https://buzz.dk")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, rr.Flushed)
	assert.Equal(t, "https://buzz.dk", rr.Header().Get("Access-Control-Allow-Origin"))
}
