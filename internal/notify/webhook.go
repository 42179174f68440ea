package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-sync/internal/resilience"
)

// Webhook posts events as JSON to a URL.
type Webhook struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

// NewWebhook creates a webhook notifier. Transient failures are retried
// once.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retry := resilience.WithAttempts(2)
	retry.OnRetry = resilience.RetryLogger("webhook", "notify")
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		retry:  retry,
	}
}

func (w *Webhook) Notify(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}
	return resilience.Do(ctx, w.retry, func(ctx context.Context) error {
		return w.post(ctx, payload)
	})
}

func (w *Webhook) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "notify: webhook request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		err := eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}
