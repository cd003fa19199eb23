package messaging_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chaos-stories/internal/messaging"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const testQueue = "playthrough_events_test"

type PublisherIntegrationSuite struct {
	suite.Suite
	ctx          context.Context
	rmqContainer *rabbitmq.RabbitMQContainer
	conn         *amqp.Connection
}

func (s *PublisherIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	rmqContainer, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").WithStartupTimeout(2*time.Minute),
		),
	)
	s.Require().NoError(err)
	s.rmqContainer = rmqContainer

	url, err := rmqContainer.AmqpURL(s.ctx)
	s.Require().NoError(err)

	s.conn, err = messaging.Connect(s.ctx, url, 5, time.Second, zap.NewNop())
	s.Require().NoError(err)
}

func (s *PublisherIntegrationSuite) TearDownSuite() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.rmqContainer != nil {
		_ = s.rmqContainer.Terminate(s.ctx)
	}
}

func (s *PublisherIntegrationSuite) TestPublishedMessageIsConsumable() {
	publisher, err := messaging.NewRabbitMQPlaythroughPublisher(s.conn, testQueue, zap.NewNop())
	s.Require().NoError(err)

	payload := messaging.PlaythroughFinishedPayload{
		EventID:     uuid.New(),
		SessionID:   uuid.New(),
		StoryID:     "deposit-job",
		CharacterID: "milo",
		Outcome:     "death",
		SceneID:     "scene-7",
		ChaosLevel:  50,
		Choices:     6,
		FinishedAt:  time.Now().UTC(),
	}
	s.Require().NoError(publisher.PublishPlaythroughFinished(s.ctx, payload))

	ch, err := s.conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	deliveries, err := ch.Consume(testQueue, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case d := <-deliveries:
		var got messaging.PlaythroughFinishedPayload
		s.Require().NoError(json.Unmarshal(d.Body, &got))
		s.Equal(payload.SessionID, got.SessionID)
		s.Equal("death", got.Outcome)
		s.Equal(payload.EventID.String(), d.MessageId)
	case <-time.After(10 * time.Second):
		s.Fail("message was not delivered")
	}
}

func TestPublisherIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(PublisherIntegrationSuite))
}
