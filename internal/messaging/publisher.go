package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishAttempts = 3
	publishTimeout  = 10 * time.Second
	appID           = "chaos-stories"
)

// PlaythroughFinishedPayload is published once a playthrough reaches death or an ending.
type PlaythroughFinishedPayload struct {
	EventID          uuid.UUID `json:"event_id"`
	SessionID        uuid.UUID `json:"session_id"`
	StoryID          string    `json:"story_id"`
	CharacterID      string    `json:"character_id"`
	Outcome          string    `json:"outcome"`
	EndingID         string    `json:"ending_id,omitempty"`
	SceneID          string    `json:"scene_id"`
	ChaosLevel       int       `json:"chaos_level"`
	Choices          int       `json:"choices"`
	CharacterChoices int       `json:"character_choices"`
	DurationMs       int64     `json:"duration_ms"`
	FinishedAt       time.Time `json:"finished_at"`
}

// PlaythroughPublisher publishes playthrough lifecycle events.
type PlaythroughPublisher interface {
	PublishPlaythroughFinished(ctx context.Context, payload PlaythroughFinishedPayload) error
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type rabbitMQPublisher struct {
	channel   channel
	queueName string
	logger    *zap.Logger
	backoff   time.Duration
}

// NewRabbitMQPlaythroughPublisher opens a channel on conn and declares the durable queue.
func NewRabbitMQPlaythroughPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (PlaythroughPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("playthrough publisher: failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("playthrough publisher: failed to declare queue '%s': %w", queueName, err)
	}
	logger.Info("Playthrough publisher ready", zap.String("queue", queueName))
	return newPublisher(ch, queueName, logger), nil
}

func newPublisher(ch channel, queueName string, logger *zap.Logger) *rabbitMQPublisher {
	return &rabbitMQPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("playthrough_publisher"),
		backoff:   100 * time.Millisecond,
	}
}

func (p *rabbitMQPublisher) PublishPlaythroughFinished(ctx context.Context, payload PlaythroughFinishedPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal playthrough payload for session %s: %w", payload.SessionID, err)
	}
	if err := p.publishMessage(ctx, payload.EventID.String(), body); err != nil {
		p.logger.Error("Failed to publish playthrough finished",
			zap.String("session_id", payload.SessionID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish playthrough finished for session %s: %w", payload.SessionID, err)
	}
	return nil
}

func (p *rabbitMQPublisher) publishMessage(ctx context.Context, messageID string, body []byte) error {
	if p.channel == nil {
		return errors.New("rabbitmq channel is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (default)
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    messageID,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        appID,
			},
		)
		if err == nil {
			p.logger.Debug("Message published", zap.String("queue", p.queueName), zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("Publish attempt failed", zap.String("queue", p.queueName), zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to queue %s: %w", p.queueName, ctx.Err())
		case <-time.After(time.Duration(attempt) * p.backoff):
		}
	}
	return fmt.Errorf("publish to queue %s after %d attempts: %w", p.queueName, publishAttempts, err)
}

// NopPublisher drops every message. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishPlaythroughFinished(context.Context, PlaythroughFinishedPayload) error {
	return nil
}

// Connect dials RabbitMQ, retrying while the broker starts up.
func Connect(ctx context.Context, url string, attempts int, delay time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq: %w", err)
}
