package fetch

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/kjstillabower/spacewx-feed-service/internal/circuitbreaker"
	"github.com/kjstillabower/spacewx-feed-service/internal/workerpool"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

// Error category constants used as metric labels (fetchRequestsTotal, fetchRejectedTotal).
const (
	ErrorCategoryTimeout        ErrorCategory = "timeout"
	ErrorCategoryNetwork        ErrorCategory = "network"
	ErrorCategoryUpstreamStatus ErrorCategory = "upstream_status"
	ErrorCategoryCircuitOpen    ErrorCategory = "circuit_open"
	ErrorCategoryQueueFull      ErrorCategory = "queue_full"
	ErrorCategoryClosed         ErrorCategory = "closed"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory. Returns "" for nil.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUpstreamStatus):
		return ErrorCategoryUpstreamStatus
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, workerpool.ErrQueueFull):
		return ErrorCategoryQueueFull
	case errors.Is(err, workerpool.ErrClosed):
		return ErrorCategoryClosed
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "no such host") {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
