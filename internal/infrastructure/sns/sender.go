package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-events-sync/internal/config"
	"github.com/go-events-sync/internal/domain"
)

// Publisher fans OS-level push payloads out through an SNS topic.
type Publisher interface {
	Publish(ctx context.Context, p domain.PushPayload) error
}

type api interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type publisher struct {
	client   api
	topicARN string
}

// NewPublisher returns a topic publisher, or nil when no topic is configured.
func NewPublisher(awsCfg aws.Config, cfg *config.Config) Publisher {
	if cfg.SNSTopicARN == "" {
		return nil
	}
	var opts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &publisher{client: sns.NewFromConfig(awsCfg, opts...), topicARN: cfg.SNSTopicARN}
}

func (p *publisher) Publish(ctx context.Context, payload domain.PushPayload) error {
	body, err := json.Marshal(payload.WithDefaults())
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(payload.WithDefaults().Title),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
