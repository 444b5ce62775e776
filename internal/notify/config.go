package notify

import (
	"context"
	"fmt"

	"affiliate-signup/internal/common/aws"
	"affiliate-signup/internal/common/config"
	"affiliate-signup/internal/common/logger"
)

// NewFromConfig builds the SES and SNS channels that are configured. It
// returns nil when notifications are disabled.
func NewFromConfig(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var (
		mailer    Mailer
		publisher Publisher
	)
	if len(cfg.Recipients) > 0 {
		ses, err := aws.NewSESClient(ctx, cfg.Region, cfg.FromEmail)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		mailer = ses
	}
	if cfg.TopicARN != "" {
		sns, err := aws.NewSNSClient(ctx, cfg.Region, cfg.TopicARN)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		publisher = sns
	}
	if mailer == nil && publisher == nil {
		return nil, fmt.Errorf("notifications enabled without recipients or topic_arn")
	}

	return New(mailer, publisher, cfg.Recipients, log), nil
}
