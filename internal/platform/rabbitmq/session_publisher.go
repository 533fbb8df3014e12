package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"tawarln-chat/internal/model"
)

// SessionPublisher hands session snapshots to the persistence worker.
type SessionPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewSessionPublisher(conn *amqp.Connection, queueName string) *SessionPublisher {
	return &SessionPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *SessionPublisher) Persist(ctx context.Context, session model.ChatSession) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			MessageId:    session.ID,
		},
	); err != nil {
		return fmt.Errorf("publish session failed: %w", err)
	}
	return nil
}
