// internal/notify/notify.go
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"prequal-pipeline/internal/common/config"
	"prequal-pipeline/internal/common/logger"
	"prequal-pipeline/internal/models"
)

// Notifier announces a terminal decision. Implementations are best-effort:
// the decision stage logs failures but never fails the envelope over them.
type Notifier interface {
	DecisionMade(ctx context.Context, applicationID string, status models.Status, score int) error
}

// NopNotifier is used when notifications are disabled.
type NopNotifier struct{}

func (NopNotifier) DecisionMade(context.Context, string, models.Status, int) error { return nil }

// snsAPI is the subset of the SNS client the notifier uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes decision events to an SNS topic.
type SNSNotifier struct {
	client   snsAPI
	topicARN string
	logger   logger.Logger
}

func NewSNSNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*SNSNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SNS.Region))
	if err != nil {
		return nil, err
	}
	return &SNSNotifier{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.SNS.TopicARN,
		logger:   log,
	}, nil
}

type decisionEvent struct {
	ApplicationID string        `json:"application_id"`
	Status        models.Status `json:"status"`
	CIBILScore    int           `json:"cibil_score"`
	DecidedAt     time.Time     `json:"decided_at"`
}

func (n *SNSNotifier) DecisionMade(ctx context.Context, applicationID string, status models.Status, score int) error {
	body, err := json.Marshal(decisionEvent{
		ApplicationID: applicationID,
		Status:        status,
		CIBILScore:    score,
		DecidedAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return err
	}

	n.logger.Info("decision notification published", map[string]interface{}{
		"applicationId": applicationID,
		"status":        string(status),
	})
	return nil
}
