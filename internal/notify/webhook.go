package notify

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
)

// WebhookNotifier POSTs alert payloads to subscriber-configured URLs.
type WebhookNotifier struct {
	client *resty.Client
}

func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

func (w *WebhookNotifier) Channel() models.Channel { return models.ChannelWebhook }

type webhookPayload struct {
	Event     string        `json:"event"`
	Timestamp time.Time     `json:"timestamp"`
	Alert     *models.Alert `json:"alert,omitempty"`
}

func (w *WebhookNotifier) post(urls []string, payload webhookPayload) (map[string]string, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: webhook: no urls", errs.ErrMisconfigured)
	}

	delivered := 0
	for _, url := range urls {
		resp, err := w.client.R().SetBody(payload).Post(url)
		if err != nil {
			return nil, fmt.Errorf("webhook %s failed: %w", url, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("webhook %s returned %d", url, resp.StatusCode())
		}
		delivered++
	}
	return map[string]string{"delivered": fmt.Sprintf("%d", delivered)}, nil
}

func (w *WebhookNotifier) Send(alert *models.Alert, settings models.ChannelSettings) (map[string]string, error) {
	return w.post(settings.WebhookURLs, webhookPayload{
		Event:     "alert",
		Timestamp: time.Now(),
		Alert:     alert,
	})
}

func (w *WebhookNotifier) Test(settings models.ChannelSettings) (map[string]string, error) {
	return w.post(settings.WebhookURLs, webhookPayload{
		Event:     "test",
		Timestamp: time.Now(),
	})
}
