package store

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

// RetryConfig defines retry behavior for transient store failures.
type RetryConfig struct {
	MaxAttempts   int           // Maximum number of attempts, including the first
	BaseDelay     time.Duration // Base delay between retries
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Exponential backoff multiplier
	JitterFactor  float64       // Jitter factor to prevent thundering herd
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// isRetryable reports whether a storage error is worth retrying.
// Validation and not-found conditions never are.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return false
	}

	var throughput *types.ProvisionedThroughputExceededException
	var requestLimit *types.RequestLimitExceeded
	var internal *types.InternalServerError
	if errors.As(err, &throughput) || errors.As(err, &requestLimit) || errors.As(err, &internal) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ServiceUnavailable", "ThrottlingException", "Throttling", "RequestTimeout":
			return true
		}
	}

	return false
}

// retryWithBackoff executes op with exponential backoff on transient errors.
// Exhaustion surfaces as a StorageUnavailable error.
func retryWithBackoff(ctx context.Context, config RetryConfig, op func() error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(config.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return appErrors.NewStorageUnavailable("store operation failed after retries", lastErr)
}

// delay calculates the backoff delay for the given attempt number.
func (c RetryConfig) delay(attempt int) time.Duration {
	backoff := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	jitter := backoff * c.JitterFactor * (rand.Float64() - 0.5) * 2
	d := time.Duration(backoff + jitter)
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}
