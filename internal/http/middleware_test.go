package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/wind-widget-service/internal/observability"
)

func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var ctxID string
	var hasLogger bool
	h := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID, _ = r.Context().Value(observability.CorrelationIDKey).(string)
		hasLogger = observability.LoggerFromContext(r.Context(), nil) != nil
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reading", nil))

	header := rec.Header().Get("X-Correlation-ID")
	if header == "" {
		t.Fatal("X-Correlation-ID header not set")
	}
	if ctxID != header {
		t.Errorf("context id = %q, header = %q", ctxID, header)
	}
	if !hasLogger {
		t.Error("request logger not in context")
	}
}

func TestCorrelationIDMiddleware_PropagatesID(t *testing.T) {
	h := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/reading", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("X-Correlation-ID = %q, want abc-123", got)
	}
}

func TestGetRoute_UsesTemplate(t *testing.T) {
	var route string
	router := mux.NewRouter()
	router.HandleFunc("/widgets/{id}/reading", func(w http.ResponseWriter, r *http.Request) {
		route = getRoute(r)
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/widgets/99/reading", nil))
	if route != "/widgets/{id}/reading" {
		t.Errorf("getRoute() = %q, want template", route)
	}
	if got := getRoute(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != "unmatched" {
		t.Errorf("getRoute() without route = %q, want unmatched", got)
	}
}

func TestStatusCodeString(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusCodeString(code); got != want {
			t.Errorf("statusCodeString(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := 0
	h := RateLimitMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ }))
	for range 5 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/refresh", nil))
	}
	if called != 5 {
		t.Errorf("handler called %d times, want 5", called)
	}
}

func TestRateLimitMiddleware_Denies(t *testing.T) {
	h := RateLimitMiddleware(rate.NewLimiter(rate.Limit(0.001), 2))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))
		codes[i] = rec.Code
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}
