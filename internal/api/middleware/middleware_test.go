package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CaioWing/iotgateway/internal/auth"
	"github.com/CaioWing/iotgateway/internal/domain"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestWebhookAuth(t *testing.T) {
	h := WebhookAuth("secret")(okHandler)

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"valid key", "secret", http.StatusOK},
		{"wrong key", "nope", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestManagementAuth(t *testing.T) {
	mgr := auth.NewJWTManager("secret", time.Hour)
	token, _, _ := mgr.Generate("admin")

	var gotUser string
	h := ManagementAuth(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = r.Context().Value(UserIDKey).(string)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || gotUser != "admin" {
		t.Fatalf("expected authenticated admin, got %d %q", rec.Code, gotUser)
	}

	for _, header := range []string{"", token, "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("expected burst of 2 to pass")
	}
	if rl.allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !rl.allow("b") {
		t.Fatal("expected other client to pass")
	}

	now = now.Add(time.Second)
	if !rl.allow("a") {
		t.Fatal("expected refill after one second")
	}
}

func TestRateLimiter_KeysByHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewRateLimiter(ctx, 0, 1).Middleware(okHandler)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:" + []string{"4000", "4001"}[i]
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
}

func TestMetrics_Dispatch(t *testing.T) {
	m := NewMetrics()
	m.ObserveDispatch(domain.EventKindSmokeTriggerCall, domain.ResultSuccess, "sensor-1", 20*time.Millisecond)
	m.ObserveDispatch(domain.EventKindSmokeTriggerCall, domain.ResultSuccess, "sensor-1", 20*time.Millisecond)
	m.ObserveDispatch(domain.EventKindIncomingCallNotify, domain.ResultFailure, "", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`iotgw_dispatch_total{kind="smoke_trigger_call",result="success"} 2`,
		`iotgw_dispatch_total{kind="incoming_call_notify",result="failure"} 1`,
		`iotgw_dispatch_duration_seconds_count{kind="smoke_trigger_call"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_MiddlewareCountsStatus(t *testing.T) {
	m := NewMetrics()
	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", nil))

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `iotgw_http_requests_total{method="POST",status="503"} 1`) {
		t.Fatalf("unexpected metrics output:\n%s", rec.Body.String())
	}
}

func TestNormalizeMetricsPath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/management/rules/42":               "/api/v1/management/rules/{id}",
		"/api/v1/management/devices/speaker-kitchen": "/api/v1/management/devices/{id}",
		"/api/v1/management/devices":                "/api/v1/management/devices",
		"/webhook":                                  "/webhook",
	}
	for in, want := range tests {
		if got := normalizeMetricsPath(in); got != want {
			t.Errorf("normalizeMetricsPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLogger_PassesThrough(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()
	Logger(log)(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
