package main

import (
	"fmt"
	"log"

	"github.com/good-yellow-bee/blazewatch/internal/notifier"
)

// buildDispatcher registers every configured destination under its id.
func buildDispatcher(cfg *Config) (*notifier.Dispatcher, error) {
	rl := cfg.Notifications
	d := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		PerMinute: rl.RateLimit,
		Burst:     rl.Burst,
		Enabled:   rl.RateLimit > 0,
	})

	for _, dest := range cfg.Destinations {
		n, err := newNotifier(dest)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("destination %s: %w", dest.ID, err)
		}
		d.Register(dest.ID, n)
		log.Printf("destination %s registered (%s)", dest.ID, n.Type())
	}
	return d, nil
}

func newNotifier(dest DestinationConfig) (notifier.Notifier, error) {
	switch dest.Type {
	case "slack":
		return notifier.NewSlackNotifier(notifier.SlackConfig{WebhookURL: dest.Slack.WebhookURL})
	case "teams":
		return notifier.NewTeamsNotifier(notifier.TeamsConfig{WebhookURL: dest.Teams.WebhookURL})
	case "webhook":
		return notifier.NewWebhookNotifier(notifier.WebhookConfig{
			URL:     dest.Webhook.URL,
			Method:  dest.Webhook.Method,
			Headers: dest.Webhook.Headers,
		})
	case "email":
		e := dest.Email
		return notifier.NewEmailNotifier(&notifier.EmailConfig{
			Host:       e.SMTPHost,
			Port:       e.SMTPPort,
			Username:   e.Username,
			Password:   e.Password,
			From:       e.From,
			Recipients: e.To,
		})
	default:
		return nil, fmt.Errorf("unknown destination type %q", dest.Type)
	}
}
