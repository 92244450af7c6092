package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestCorrelationIDMiddlewareGeneratesID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Context().Value("correlation_id"); v != nil {
			seen = v.(string)
		}
	})
	mw := CorrelationIDMiddleware(zap.NewNop())(inner)

	req := httptest.NewRequest(http.MethodGet, "/forecast", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if seen == "" {
		t.Error("no correlation id in request context")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestCorrelationIDMiddlewarePropagatesHeader(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context().Value("correlation_id").(string)
	})
	mw := CorrelationIDMiddleware(zap.NewNop())(inner)

	req := httptest.NewRequest(http.MethodGet, "/forecast", nil)
	req.Header.Set("X-Correlation-ID", "incoming-id")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if seen != "incoming-id" {
		t.Errorf("correlation id = %q, want incoming-id", seen)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(0.001), 2)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := RateLimitMiddleware(limiter)(inner)

	// The burst admits two requests, the third is denied.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forecast", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forecast", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "max-age=0" {
		t.Errorf("Cache-Control = %q, want max-age=0", got)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != "RATE_LIMITED" {
		t.Errorf("error code = %q, want RATE_LIMITED", body.Error.Code)
	}
}

func TestRateLimitMiddlewareNilLimiter(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := RateLimitMiddleware(nil)(inner)

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forecast", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200 with limiting disabled", i+1, rec.Code)
		}
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	var gotDeadline bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotDeadline = r.Context().Deadline()
	})
	mw := TimeoutMiddleware(50 * time.Millisecond)(inner)

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forecast", nil))
	if !gotDeadline {
		t.Error("request context has no deadline")
	}
}

func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/forecast", "/forecast"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/unknown", "other"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if got := getRoute(r); got != tt.want {
			t.Errorf("getRoute(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
