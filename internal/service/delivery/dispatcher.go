package delivery

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
	"github.com/clearledger/compliance-backend/internal/service/export"
)

// Channel delivers an artifact over one mechanism. Implementations
// classify their failures: transient errors are retryable, permanent
// ones (bad config, rejected payload) abort the retry loop.
type Channel interface {
	Method() report.DeliveryMethod
	Deliver(ctx context.Context, cfg report.DeliveryConfig, req *Request) (*Receipt, error)
}

// Request carries the artifact and its report context to a channel.
type Request struct {
	ReportName  string
	ReportType  report.ReportType
	OrgID       string
	ExecutionID string
	Artifact    *export.Artifact
}

// Receipt describes where a delivered artifact ended up. Location is
// channel-specific: an object URL for storage, empty for email.
type Receipt struct {
	Location    string
	DeliveredAt time.Time
}

// RetryPolicy is exponential backoff with a delay ceiling.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// Delay returns the backoff before retry attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if delay > p.MaxDelay || delay < 0 {
		return p.MaxDelay
	}
	return delay
}

// Dispatcher routes artifacts to the channel matching the config's
// delivery method and drives the retry loop around it.
type Dispatcher struct {
	channels map[report.DeliveryMethod]Channel
	policy   RetryPolicy
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(policy RetryPolicy, logger *zap.Logger, channels ...Channel) *Dispatcher {
	byMethod := make(map[report.DeliveryMethod]Channel, len(channels))
	for _, ch := range channels {
		byMethod[ch.Method()] = ch
	}
	return &Dispatcher{
		channels: byMethod,
		policy:   policy,
		logger:   logger,
	}
}

// Deliver sends the artifact through the configured channel, retrying
// transient failures with exponential backoff. Permanent failures and
// retry exhaustion both surface the last underlying error.
func (d *Dispatcher) Deliver(ctx context.Context, cfg report.DeliveryConfig, req *Request) (*Receipt, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	channel, ok := d.channels[cfg.Method]
	if !ok {
		return nil, errors.NewDeliveryError("CHANNEL_UNAVAILABLE",
			"no delivery channel registered for method "+string(cfg.Method), false)
	}

	var lastErr error
	for attempt := 0; attempt <= d.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := d.policy.Delay(attempt - 1)
			d.logger.Info("retrying delivery",
				zap.String("execution_id", req.ExecutionID),
				zap.String("method", string(cfg.Method)),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, errors.NewDeliveryError("DELIVERY_CANCELLED",
					"delivery cancelled during backoff", false).WithCause(ctx.Err())
			}
		}

		receipt, err := channel.Deliver(ctx, cfg, req)
		if err == nil {
			d.logger.Info("artifact delivered",
				zap.String("execution_id", req.ExecutionID),
				zap.String("method", string(cfg.Method)),
				zap.String("filename", req.Artifact.Filename),
				zap.Int("attempt", attempt))
			return receipt, nil
		}

		lastErr = err
		if !errors.IsRetryable(err) {
			d.logger.Error("delivery failed permanently",
				zap.String("execution_id", req.ExecutionID),
				zap.String("method", string(cfg.Method)),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return nil, err
		}
	}

	d.logger.Error("delivery retries exhausted",
		zap.String("execution_id", req.ExecutionID),
		zap.String("method", string(cfg.Method)),
		zap.Int("max_retries", d.policy.MaxRetries),
		zap.Error(lastErr))
	return nil, errors.NewDeliveryError("RETRIES_EXHAUSTED",
		"delivery failed after all retry attempts", false).WithCause(lastErr)
}
