package notify

import (
	"fmt"
	"time"

	"github.com/slack-go/slack"

	"github.com/cradleeye/internal/config"
	"github.com/cradleeye/internal/errs"
	"github.com/cradleeye/internal/models"
)

// PushNotifier delivers the push channel to a Slack workspace.
type PushNotifier struct {
	client         *slack.Client
	defaultChannel string
	configured     bool
}

func NewPushNotifier(cfg config.SlackConfig) *PushNotifier {
	return &PushNotifier{
		client:         slack.New(cfg.Token),
		defaultChannel: cfg.Channel,
		configured:     cfg.Token != "",
	}
}

func (p *PushNotifier) Channel() models.Channel { return models.ChannelPush }

func (p *PushNotifier) target(settings models.ChannelSettings) (string, error) {
	if !p.configured {
		return "", fmt.Errorf("%w: push: no slack token", errs.ErrMisconfigured)
	}
	target := settings.PushTarget
	if target == "" {
		target = p.defaultChannel
	}
	if target == "" {
		return "", fmt.Errorf("%w: push: no target channel", errs.ErrMisconfigured)
	}
	return target, nil
}

func (p *PushNotifier) Send(alert *models.Alert, settings models.ChannelSettings) (map[string]string, error) {
	target, err := p.target(settings)
	if err != nil {
		return nil, err
	}

	attachment := slack.Attachment{
		Color: priorityColor(alert.Priority),
		Title: alert.Title,
		Text:  alert.Message,
		Fields: []slack.AttachmentField{
			{Title: "Type", Value: string(alert.Type), Short: true},
			{Title: "Priority", Value: string(alert.Priority), Short: true},
			{Title: "Time", Value: alert.CreatedAt.Format(time.RFC3339), Short: true},
		},
		Footer: "CradleEye",
	}
	respChannel, ts, err := p.client.PostMessage(target, slack.MsgOptionAttachments(attachment))
	if err != nil {
		return nil, err
	}
	return map[string]string{"channel": respChannel, "ts": ts}, nil
}

func (p *PushNotifier) Test(settings models.ChannelSettings) (map[string]string, error) {
	target, err := p.target(settings)
	if err != nil {
		return nil, err
	}
	respChannel, ts, err := p.client.PostMessage(target,
		slack.MsgOptionText("CradleEye test notification", false))
	if err != nil {
		return nil, err
	}
	return map[string]string{"channel": respChannel, "ts": ts}, nil
}

func priorityColor(priority models.AlertPriority) string {
	switch priority {
	case models.PriorityCritical:
		return "#FF0000"
	case models.PriorityHigh:
		return "#FFA500"
	case models.PriorityMedium:
		return "#FFCC00"
	default:
		return "#36A64F"
	}
}
