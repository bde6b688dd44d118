package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"devotional-server/internal/interfaces"
	"devotional-server/internal/models"
)

// RabbitPushPublisher публикует push-события в очередь notification-сервиса.
// Ядро решает только КОГДА отправить событие; доставка на устройство —
// забота потребителя очереди.
type RabbitPushPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitPushPublisher создает паблишер и декларирует durable-очередь.
func NewRabbitPushPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitPushPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &RabbitPushPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("RabbitPushPublisher"),
	}, nil
}

var _ interfaces.PushEventPublisher = (*RabbitPushPublisher)(nil)

// Publish отправляет событие в очередь с persistent delivery mode.
func (p *RabbitPushPublisher) Publish(ctx context.Context, event models.PushEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal push event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID.String(),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish push event",
			zap.String("kind", string(event.Kind)),
			zap.String("userID", event.UserID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish push event: %w", err)
	}

	p.logger.Debug("Push event published",
		zap.String("kind", string(event.Kind)),
		zap.String("userID", event.UserID),
		zap.String("devotionalID", event.DevotionalID.String()),
	)
	return nil
}

// Close закрывает канал паблишера.
func (p *RabbitPushPublisher) Close() error {
	return p.channel.Close()
}
