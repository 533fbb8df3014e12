package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tawarln-chat/internal/model"
	"tawarln-chat/internal/platform/logger"
)

// SessionSaver applies a session snapshot to storage.
type SessionSaver interface {
	SaveSnapshot(ctx context.Context, session *model.ChatSession) error
}

// ErrRejected marks snapshots that must be dropped rather than retried.
var ErrRejected = errors.New("session snapshot rejected")

type SessionPersistWorker struct {
	conn      *amqp.Connection
	saver     SessionSaver
	queueName string
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSessionPersistWorker(conn *amqp.Connection, saver SessionSaver, queueName string, log *logger.Logger) *SessionPersistWorker {
	return &SessionPersistWorker{
		conn:      conn,
		saver:     saver,
		queueName: queueName,
		log:       log,
	}
}

func (w *SessionPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	// One in flight keeps snapshots of the same session in publish order.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"session-persist",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("session persist deliveries closed", "queue", w.queueName)
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.log.Info("session persist worker started", "queue", w.queueName)
	return nil
}

func (w *SessionPersistWorker) handle(ctx context.Context, d amqp.Delivery) {
	if err := w.apply(ctx, d.Body); err != nil {
		w.log.Warn("worker persist session failed", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (w *SessionPersistWorker) apply(ctx context.Context, body []byte) error {
	var session model.ChatSession
	if err := json.Unmarshal(body, &session); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrRejected, err)
	}
	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return w.saver.SaveSnapshot(saveCtx, &session)
}

func (w *SessionPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
