package client

import (
	"context"
	"errors"
	"strings"

	"github.com/sony/gobreaker"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (windFetchErrorsTotal).
const (
	ErrorCategoryTimeout        ErrorCategory = "timeout"
	ErrorCategoryNetwork        ErrorCategory = "network"
	ErrorCategoryCircuitOpen    ErrorCategory = "circuit_open"
	ErrorCategoryUpstreamStatus ErrorCategory = "upstream_status"
	ErrorCategoryCredentials    ErrorCategory = "credentials"
	ErrorCategoryParsing        ErrorCategory = "parsing"
	ErrorCategoryStorage        ErrorCategory = "storage"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorCategoryCircuitOpen
	}

	if errors.Is(err, ErrNetwork) {
		return ErrorCategoryNetwork
	}

	if errors.Is(err, ErrUpstreamStatus) {
		return ErrorCategoryUpstreamStatus
	}

	if errors.Is(err, ErrMissingCredentials) {
		return ErrorCategoryCredentials
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return ErrorCategoryTimeout
	}

	if strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	}

	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}

	if strings.Contains(errStr, "store") || strings.Contains(errStr, "badger") || strings.Contains(errStr, "memcache") {
		return ErrorCategoryStorage
	}

	return ErrorCategoryUnknown
}
