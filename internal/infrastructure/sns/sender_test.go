package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-events-sync/internal/config"
	"github.com/go-events-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSNS struct{ mock.Mock }

func (m *mockSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	return &sns.PublishOutput{}, args.Error(0)
}

func TestPublish_SendsPayloadWithDefaults(t *testing.T) {
	m := new(mockSNS)
	m.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:topic" &&
			aws.ToString(in.Subject) == "New event" &&
			aws.ToString(in.Message) == `{"title":"New event","body":"Jazz night","icon":"/favicon.ico","url":"/"}`
	})).Return(nil)
	p := &publisher{client: m, topicARN: "arn:topic"}

	require.NoError(t, p.Publish(context.Background(), domain.PushPayload{Title: "New event", Body: "Jazz night"}))
	m.AssertExpectations(t)
}

func TestPublish_WrapsErrors(t *testing.T) {
	m := new(mockSNS)
	m.On("Publish", mock.Anything, mock.Anything).Return(errors.New("throttled"))
	p := &publisher{client: m, topicARN: "arn:topic"}
	assert.ErrorContains(t, p.Publish(context.Background(), domain.PushPayload{}), "sns publish")
}

func TestNewPublisher_NilWithoutTopic(t *testing.T) {
	assert.Nil(t, NewPublisher(aws.Config{}, &config.Config{}))
}
