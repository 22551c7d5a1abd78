package notify

import (
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
)

// SMSNotifier delivers the sms channel through an HTTP SMS gateway.
type SMSNotifier struct {
	client     *resty.Client
	gatewayURL string
	from       string
}

func NewSMSNotifier(cfg config.SMSConfig) *SMSNotifier {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &SMSNotifier{
		client:     client,
		gatewayURL: cfg.GatewayURL,
		from:       cfg.From,
	}
}

func (s *SMSNotifier) Channel() models.Channel { return models.ChannelSMS }

func (s *SMSNotifier) validate(settings models.ChannelSettings) error {
	if s.gatewayURL == "" {
		return fmt.Errorf("%w: sms: no gateway url", errs.ErrMisconfigured)
	}
	if len(settings.PhoneNumbers) == 0 {
		return fmt.Errorf("%w: sms: no phone numbers", errs.ErrMisconfigured)
	}
	return nil
}

func (s *SMSNotifier) deliver(settings models.ChannelSettings, text string) (map[string]string, error) {
	if err := s.validate(settings); err != nil {
		return nil, err
	}

	sent := 0
	for _, number := range settings.PhoneNumbers {
		resp, err := s.client.R().
			SetBody(map[string]string{"to": number, "from": s.from, "message": text}).
			Post(s.gatewayURL)
		if err != nil {
			return nil, fmt.Errorf("gateway request to %s failed: %w", number, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("gateway returned %d for %s", resp.StatusCode(), number)
		}
		sent++
	}
	return map[string]string{"sent": fmt.Sprintf("%d", sent)}, nil
}

func (s *SMSNotifier) Send(alert *models.Alert, settings models.ChannelSettings) (map[string]string, error) {
	text := fmt.Sprintf("CradleEye [%s] %s: %s", alert.Priority, alert.Title, alert.Message)
	return s.deliver(settings, text)
}

func (s *SMSNotifier) Test(settings models.ChannelSettings) (map[string]string, error) {
	return s.deliver(settings, "CradleEye test notification")
}
