package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/observability"
	"github.com/kjstillabower/wind-widget-service/internal/service"
	"github.com/kjstillabower/wind-widget-service/internal/validation"
)

// maxBodyBytes caps request bodies on write endpoints.
const maxBodyBytes = 16 << 10

// WidgetService is implemented by service.Registry.
type WidgetService interface {
	FetchWidget(ctx context.Context, instance string, force bool) (models.WindReading, error)
	SaveCredentials(ctx context.Context, instance string, creds models.Credentials) error
}

// HealthConfig holds the inputs of the health handler.
type HealthConfig struct {
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// StorageEncrypted reports whether credentials are encrypted at rest.
	StorageEncrypted bool
	StartTime        time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	widgets          WidgetService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(widgets WidgetService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		widgets:      widgets,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// BeginShutdown makes /health report shutting-down so load balancers drain traffic.
func (h *Handler) BeginShutdown() {
	h.shuttingDown.Store(true)
}

// readingResponse is a WindReading plus the values a renderer derives from it.
type readingResponse struct {
	models.WindReading
	MaxSpeed        float64 `json:"maxSpeed"`
	MaxGust         float64 `json:"maxGust"`
	CurrentCardinal string  `json:"currentCardinal"`
	CurrentBeaufort int     `json:"currentBeaufort"`
	LastUpdated     string  `json:"lastUpdated"`
}

func newReadingResponse(r models.WindReading) readingResponse {
	return readingResponse{
		WindReading:     r,
		MaxSpeed:        r.MaxSpeed(),
		MaxGust:         r.MaxGust(),
		CurrentCardinal: models.Cardinal(r.CurrentDirection),
		CurrentBeaufort: models.Beaufort(r.CurrentSpeed),
		LastUpdated:     time.UnixMilli(r.LastUpdatedMillis).UTC().Format(time.RFC3339),
	}
}

// GetReading handles GET /reading and GET /widgets/{id}/reading.
func (h *Handler) GetReading(w http.ResponseWriter, r *http.Request) {
	h.serveReading(w, r, false)
}

// PostRefresh handles POST /refresh and POST /widgets/{id}/refresh.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	h.serveReading(w, r, true)
}

func (h *Handler) serveReading(w http.ResponseWriter, r *http.Request, force bool) {
	id, ok := instanceID(w, r)
	if !ok {
		return
	}
	reading, err := h.widgets.FetchWidget(r.Context(), id, force)
	if errors.Is(err, service.ErrUnknownWidget) {
		writeError(w, r, http.StatusNotFound, "WIDGET_NOT_FOUND", "Unknown widget")
		return
	}
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("widget lookup failed", zap.String("widget", id), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Unable to load widget")
		return
	}
	writeJSON(w, http.StatusOK, newReadingResponse(reading))
}

// PutCredentials handles PUT /credentials and PUT /widgets/{id}/credentials.
func (h *Handler) PutCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceID(w, r)
	if !ok {
		return
	}
	var req validation.CredentialsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be a credentials JSON object")
		return
	}
	if err := validation.ValidateCredentials(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	creds := models.Credentials{
		ApplicationKey: req.ApplicationKey,
		APIKey:         req.APIKey,
		MACAddress:     req.MACAddress,
		LocationName:   req.LocationName,
	}
	if err := h.widgets.SaveCredentials(r.Context(), id, creds); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Error("save credentials failed", zap.String("widget", id), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Unable to save credentials")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// instanceID reads and validates the {id} path variable. Routes without it
// address the shared widget. Writes a 400 and returns false when invalid.
func instanceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := validation.ValidateInstanceID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_WIDGET_ID", err.Error())
		return "", false
	}
	return id, true
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode := "healthy", http.StatusOK
	checks := make(map[string]string)

	if h.healthConfig != nil {
		if h.healthConfig.StorageEncrypted {
			checks["storage"] = "encrypted"
		} else {
			checks["storage"] = "plain"
		}
		if h.healthConfig.CachePing != nil {
			if err := h.healthConfig.CachePing(); err == nil {
				checks["cache"] = "healthy"
			} else {
				checks["cache"] = "unhealthy"
				status, statusCode = "degraded", http.StatusServiceUnavailable
			}
		}
	}
	if h.shuttingDown.Load() {
		status, statusCode = "shutting-down", http.StatusServiceUnavailable
	}

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    status,
		"service":   "wind-widget-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptimeSeconds"] = int64(time.Since(h.healthConfig.StartTime).Seconds())
	}
	writeJSON(w, statusCode, resp)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r.Context()),
		},
	})
}

func correlationID(ctx context.Context) string {
	if v, ok := ctx.Value(observability.CorrelationIDKey).(string); ok {
		return v
	}
	return ""
}
