package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/wind-widget-service/internal/observability"
)

// NewRouter wires the routes. limiter throttles forced refreshes only; nil disables it.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	router.HandleFunc("/reading", h.GetReading).Methods(http.MethodGet)
	router.HandleFunc("/widgets/{id}/reading", h.GetReading).Methods(http.MethodGet)
	router.HandleFunc("/credentials", h.PutCredentials).Methods(http.MethodPut)
	router.HandleFunc("/widgets/{id}/credentials", h.PutCredentials).Methods(http.MethodPut)

	refresh := RateLimitMiddleware(limiter)
	router.Handle("/refresh", refresh(http.HandlerFunc(h.PostRefresh))).Methods(http.MethodPost)
	router.Handle("/widgets/{id}/refresh", refresh(http.HandlerFunc(h.PostRefresh))).Methods(http.MethodPost)

	return router
}
