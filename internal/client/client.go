package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/observability"
)

// WindClient fetches raw Ecowitt payloads for one station.
type WindClient interface {
	History(ctx context.Context, creds models.Credentials, start, end time.Time) ([]byte, error)
	Realtime(ctx context.Context, creds models.Credentials) ([]byte, error)
}

var (
	ErrUpstreamStatus     = errors.New("upstream returned non-2xx status")
	ErrMissingCredentials = errors.New("credentials not configured")
)

const (
	EndpointHistory  = "history"
	EndpointRealtime = "real_time"

	// windSpeedKnots is the Ecowitt wind_speed_unitid for knots.
	windSpeedKnots  = "8"
	historyCycle    = "5min"
	queryTimeLayout = "2006-01-02 15:04:05"

	headerApplicationKey = "X-Application-Key"
	headerAPIKey         = "X-API-Key"
)

// BreakerConfig enables a circuit breaker per endpoint. Zero Threshold disables it.
type BreakerConfig struct {
	Threshold int
	Timeout   time.Duration
}

type EcowittClient struct {
	baseURL   string
	transport *RetryTransport
	breakers  map[string]*gobreaker.CircuitBreaker
	logger    *zap.Logger
}

// NewEcowittClient builds a client for baseURL (e.g. https://api.ecowitt.net/api/v3/device).
// Each request goes through transport; the HTTP timeout lives on the Doer it wraps.
func NewEcowittClient(baseURL string, transport *RetryTransport, breaker BreakerConfig, logger *zap.Logger) (*EcowittClient, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &EcowittClient{
		baseURL:   baseURL,
		transport: transport,
		logger:    logger,
	}
	if breaker.Threshold > 0 {
		c.breakers = map[string]*gobreaker.CircuitBreaker{
			EndpointHistory:  newBreaker(EndpointHistory, breaker, logger),
			EndpointRealtime: newBreaker(EndpointRealtime, breaker, logger),
		}
	}
	return c, nil
}

func newBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := uint32(cfg.Threshold)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("endpoint", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			observability.SetCircuitBreakerState(name, int(to))
		},
	})
}

// History fetches the 5-minute wind series between start and end.
func (c *EcowittClient) History(ctx context.Context, creds models.Credentials, start, end time.Time) ([]byte, error) {
	params := url.Values{}
	params.Set("mac", creds.MACAddress)
	params.Set("start_date", start.Format(queryTimeLayout))
	params.Set("end_date", end.Format(queryTimeLayout))
	params.Set("cycle_type", historyCycle)
	params.Set("wind_speed_unitid", windSpeedKnots)
	return c.call(ctx, EndpointHistory, creds, params)
}

// Realtime fetches the current wind snapshot.
func (c *EcowittClient) Realtime(ctx context.Context, creds models.Credentials) ([]byte, error) {
	params := url.Values{}
	params.Set("mac", creds.MACAddress)
	params.Set("wind_speed_unitid", windSpeedKnots)
	return c.call(ctx, EndpointRealtime, creds, params)
}

func (c *EcowittClient) call(ctx context.Context, endpoint string, creds models.Credentials, params url.Values) ([]byte, error) {
	if !creds.Configured() {
		return nil, ErrMissingCredentials
	}
	breaker := c.breakers[endpoint]
	if breaker == nil {
		return c.callAPI(ctx, endpoint, creds, params)
	}
	body, err := breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, endpoint, creds, params)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

func (c *EcowittClient) callAPI(ctx context.Context, endpoint string, creds models.Credentials, params url.Values) ([]byte, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, endpoint, creds, params)
	if err != nil {
		observability.WindAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.transport.Execute(req)
	if err != nil {
		observability.WindAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WindAPIDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WindAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WindAPIDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s HTTP %d", ErrUpstreamStatus, endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response body: %w", endpoint, err)
	}
	return body, nil
}

func (c *EcowittClient) buildRequest(ctx context.Context, endpoint string, creds models.Credentials, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	u = u.JoinPath(endpoint)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerApplicationKey, creds.ApplicationKey)
	req.Header.Set(headerAPIKey, creds.APIKey)
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value(observability.CorrelationIDKey); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
