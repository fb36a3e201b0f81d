package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
	"github.com/clearledger/compliance-backend/internal/infrastructure/config"
)

// Signature header carrying the hex HMAC-SHA256 of the request body,
// keyed with the webhook's shared secret.
const signatureHeader = "X-Signature-SHA256"

// WebhookChannel POSTs report artifacts to a configured endpoint. A
// process-wide rate limiter keeps burst deliveries from hammering
// receiver endpoints.
type WebhookChannel struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewWebhookChannel creates an HTTP delivery channel
func NewWebhookChannel(cfg config.WebhookConfig, logger *zap.Logger) *WebhookChannel {
	return &WebhookChannel{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

func (c *WebhookChannel) Method() report.DeliveryMethod {
	return report.DeliveryWebhook
}

func (c *WebhookChannel) Deliver(ctx context.Context, cfg report.DeliveryConfig, req *Request) (*Receipt, error) {
	wc := cfg.Webhook

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.NewDeliveryError("DELIVERY_CANCELLED",
			"webhook delivery cancelled while rate limited", false).WithCause(err)
	}

	method := wc.MethodOverride
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, wc.URL, bytes.NewReader(req.Artifact.Data))
	if err != nil {
		return nil, errors.NewDeliveryError("INVALID_WEBHOOK_REQUEST",
			"failed to build webhook request", false).WithCause(err)
	}

	httpReq.Header.Set("Content-Type", req.Artifact.ContentType)
	httpReq.Header.Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", req.Artifact.Filename))
	httpReq.Header.Set("X-Report-Name", req.ReportName)
	httpReq.Header.Set("X-Report-Type", string(req.ReportType))
	httpReq.Header.Set("X-Execution-ID", req.ExecutionID)
	for k, v := range wc.Headers {
		httpReq.Header.Set(k, v)
	}

	if wc.Secret != "" {
		mac := hmac.New(sha256.New, []byte(wc.Secret))
		mac.Write(req.Artifact.Data)
		httpReq.Header.Set(signatureHeader, hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Network errors and timeouts are transient.
		return nil, errors.NewDeliveryError("WEBHOOK_UNREACHABLE",
			"webhook request failed", true).WithCause(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Debug("webhook delivered",
			zap.String("url", wc.URL),
			zap.Int("status", resp.StatusCode),
			zap.String("filename", req.Artifact.Filename))
		// The artifact was pushed to the receiver; like email, there is
		// no retrievable location to report.
		return &Receipt{DeliveredAt: time.Now().UTC()}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.NewDeliveryError("WEBHOOK_REJECTED",
			fmt.Sprintf("webhook returned status %d", resp.StatusCode), true)

	default:
		// 4xx (other than 429) means the receiver will never accept this
		// request; retrying cannot help.
		return nil, errors.NewDeliveryError("WEBHOOK_REJECTED",
			fmt.Sprintf("webhook returned status %d", resp.StatusCode), false)
	}
}
