package presetkit

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 100 * time.Millisecond
	defaultJitterFactor = 0.3
)

// Metric names recorded by Retry when WithMetrics is set.
const (
	RetryAttemptsMetric  = "subsystem_preset_retries_total"
	RetryDelayMetric     = "subsystem_preset_retry_delay_seconds"
	RetryExhaustedMetric = "subsystem_preset_retries_exhausted_total"
)

const (
	retryLabelOperation = "operation"
	retryLabelAttempt   = "attempt"
	retryLabelErrorType = "error_type"

	errorTypeCanceled = "context_canceled"
	errorTypeDeadline = "context_deadline_exceeded"
	errorTypeOther    = "other"
)

var (
	// ErrNilMetricsCollector is returned when a nil metrics collector is provided to WithMetrics.
	ErrNilMetricsCollector = errors.New("metrics collector must not be nil")

	// ErrEmptyOperation is returned when an empty operation name is provided to WithMetrics.
	ErrEmptyOperation = errors.New("operation must not be empty")

	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	retryIf          func(error) bool
	metricsCollector subsystem.MetricsCollector
	operation        string
}

// RetryOption configures Retry.
type RetryOption func(*retryConfig) error

// Retry runs fn until it succeeds, returns a permanent error or the attempts are used up.
//
// Delays grow as baseDelay * 2^(attempt-1) plus jitter: 0, 100ms, 200ms, 400ms, 800ms by default.
// Every error is retried unless WithRetryIf says otherwise; context errors never are.
func Retry(ctx context.Context, fn func(ctx context.Context) error, opts ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
		retryIf:      func(error) bool { return true },
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.baseDelay * time.Duration(1<<(attempt-1))
			delay += time.Duration(rand.Float64() * float64(delay) * config.jitterFactor) //nolint:gosec // jitter only

			config.recordDuration(ctx, RetryDelayMetric, delay, map[string]string{
				retryLabelOperation: config.operation,
				retryLabelAttempt:   strconv.Itoa(attempt),
			})

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if isContextError(lastErr) || !config.retryIf(lastErr) {
			return lastErr
		}

		if attempt < config.maxAttempts-1 {
			config.incrementCounter(ctx, RetryAttemptsMetric, map[string]string{
				retryLabelOperation: config.operation,
				retryLabelAttempt:   strconv.Itoa(attempt + 1),
				retryLabelErrorType: errorType(lastErr),
			})
		}
	}

	config.incrementCounter(ctx, RetryExhaustedMetric, map[string]string{
		retryLabelOperation: config.operation,
		retryLabelErrorType: errorType(lastErr),
	})

	return lastErr
}

func (c *retryConfig) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(subsystem.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	c.metricsCollector.RecordDuration(metric, duration, labels)
}

func (c *retryConfig) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(subsystem.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return errorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeDeadline
	default:
		return errorTypeOther
	}
}

// WithMaxAttempts sets the maximum number of attempts, including the first one.
func WithMaxAttempts(attempts int) RetryOption {
	return func(config *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		config.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the delay before the second attempt.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(config *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		config.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the jitter added to each delay, as a fraction of it. Valid range: 0.0 to 1.0.
func WithJitterFactor(factor float64) RetryOption {
	return func(config *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		config.jitterFactor = factor

		return nil
	}
}

// WithRetryIf retries only errors for which retryable returns true.
func WithRetryIf(retryable func(error) bool) RetryOption {
	return func(config *retryConfig) error {
		if retryable != nil {
			config.retryIf = retryable
		}

		return nil
	}
}

// WithMetrics records retry metrics labeled with operation.
func WithMetrics(collector subsystem.MetricsCollector, operation string) RetryOption {
	return func(config *retryConfig) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		if operation == "" {
			return ErrEmptyOperation
		}

		config.metricsCollector = collector
		config.operation = operation

		return nil
	}
}
