package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
	"github.com/clearledger/compliance-backend/internal/infrastructure/config"
)

func newTestWebhookChannel(t *testing.T) *WebhookChannel {
	return NewWebhookChannel(config.WebhookConfig{
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
	}, zaptest.NewLogger(t))
}

func webhookConfig(url, secret string, headers map[string]string) report.DeliveryConfig {
	return report.DeliveryConfig{
		Method: report.DeliveryWebhook,
		Webhook: &report.WebhookDeliveryConfig{
			URL:     url,
			Secret:  secret,
			Headers: headers,
		},
	}
}

func TestWebhookChannel_Deliver(t *testing.T) {
	t.Run("posts artifact with report headers", func(t *testing.T) {
		var gotBody []byte
		var gotHeaders http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotHeaders = r.Header.Clone()
			assert.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		ch := newTestWebhookChannel(t)
		req := testRequest()

		receipt, err := ch.Deliver(context.Background(), webhookConfig(srv.URL, "", map[string]string{
			"X-Custom": "custom-value",
		}), req)
		require.NoError(t, err)
		assert.Empty(t, receipt.Location, "push delivery has no retrievable location")
		assert.False(t, receipt.DeliveredAt.IsZero())

		assert.Equal(t, req.Artifact.Data, gotBody)
		assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
		assert.Equal(t, "monthly-hipaa", gotHeaders.Get("X-Report-Name"))
		assert.Equal(t, "exec-1", gotHeaders.Get("X-Execution-ID"))
		assert.Equal(t, "custom-value", gotHeaders.Get("X-Custom"))
		assert.Empty(t, gotHeaders.Get(signatureHeader), "no signature without a secret")
	})

	t.Run("signs the body with the shared secret", func(t *testing.T) {
		var gotSignature string
		var gotBody []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotSignature = r.Header.Get(signatureHeader)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		ch := newTestWebhookChannel(t)
		_, err := ch.Deliver(context.Background(), webhookConfig(srv.URL, "shared-secret", nil), testRequest())
		require.NoError(t, err)

		mac := hmac.New(sha256.New, []byte("shared-secret"))
		mac.Write(gotBody)
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSignature)
	})

	t.Run("5xx responses are transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		ch := newTestWebhookChannel(t)
		_, err := ch.Deliver(context.Background(), webhookConfig(srv.URL, "", nil), testRequest())
		require.Error(t, err)
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("429 responses are transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		ch := newTestWebhookChannel(t)
		_, err := ch.Deliver(context.Background(), webhookConfig(srv.URL, "", nil), testRequest())
		require.Error(t, err)
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("other 4xx responses are permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		ch := newTestWebhookChannel(t)
		_, err := ch.Deliver(context.Background(), webhookConfig(srv.URL, "", nil), testRequest())
		require.Error(t, err)
		assert.False(t, errors.IsRetryable(err))
	})

	t.Run("unreachable endpoint is transient", func(t *testing.T) {
		ch := newTestWebhookChannel(t)
		_, err := ch.Deliver(context.Background(),
			webhookConfig("http://127.0.0.1:1/hook", "", nil), testRequest())
		require.Error(t, err)
		assert.True(t, errors.IsRetryable(err))
	})
}

func TestWebhookChannel_ThroughDispatcher(t *testing.T) {
	// Endpoint fails twice with 503 then accepts: the dispatcher's retry
	// loop should land the delivery on the third attempt.
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := newTestWebhookChannel(t)
	d := NewDispatcher(testPolicy(), zaptest.NewLogger(t), ch)

	receipt, err := d.Deliver(context.Background(), webhookConfig(srv.URL, "", nil), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Empty(t, receipt.Location)
}
