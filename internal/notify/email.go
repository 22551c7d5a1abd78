package notify

import (
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
)

// EmailNotifier delivers the email channel over SMTP.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
	host   string
}

func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.From, cfg.Password),
		from:   cfg.From,
		host:   cfg.Host,
	}
}

func (e *EmailNotifier) Channel() models.Channel { return models.ChannelEmail }

func (e *EmailNotifier) validate(settings models.ChannelSettings) error {
	if e.host == "" || e.from == "" {
		return fmt.Errorf("%w: email: smtp not configured", errs.ErrMisconfigured)
	}
	if len(settings.Addresses) == 0 {
		return fmt.Errorf("%w: email: no recipient addresses", errs.ErrMisconfigured)
	}
	return nil
}

func (e *EmailNotifier) Send(alert *models.Alert, settings models.ChannelSettings) (map[string]string, error) {
	if err := e.validate(settings); err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", settings.Addresses...)
	m.SetHeader("Subject", fmt.Sprintf("CradleEye Alert [%s]: %s", alert.Priority, alert.Title))

	body := fmt.Sprintf(`Alert: %s
Type: %s
Priority: %s
Message: %s
Time: %s
`, alert.Title, alert.Type, alert.Priority, alert.Message, alert.CreatedAt.Format(time.RFC3339))
	m.SetBody("text/plain", body)

	if err := e.dialer.DialAndSend(m); err != nil {
		return nil, err
	}
	return map[string]string{"recipients": fmt.Sprintf("%d", len(settings.Addresses))}, nil
}

func (e *EmailNotifier) Test(settings models.ChannelSettings) (map[string]string, error) {
	if err := e.validate(settings); err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", settings.Addresses...)
	m.SetHeader("Subject", "CradleEye test notification")
	m.SetBody("text/plain", "This is a test notification from your CradleEye appliance.")

	if err := e.dialer.DialAndSend(m); err != nil {
		return nil, err
	}
	return map[string]string{"recipients": fmt.Sprintf("%d", len(settings.Addresses))}, nil
}
