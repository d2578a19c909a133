package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrInvalidTask задача не разбирается или не проходит проверку; такие уходят в DLQ.
var ErrInvalidTask = errors.New("invalid story task")

// TaskHandler обрабатывает одну задачу генерации.
// Ошибка означает, что задачу нельзя выполнить, и сообщение уходит в DLQ.
// Неудачная сессия генерации ошибкой не считается.
type TaskHandler interface {
	HandleTask(ctx context.Context, task StoryTaskPayload) error
}

// TaskConsumer читает задачи из очереди. Одновременно обрабатывается не больше prefetch задач.
type TaskConsumer struct {
	conn      *amqp.Connection
	queueName string
	prefetch  int
	handler   TaskHandler
	logger    *zap.Logger

	channel *amqp.Channel
	tag     string
	wg      sync.WaitGroup
	done    chan struct{}
}

func NewTaskConsumer(conn *amqp.Connection, queueName string, prefetch int, handler TaskHandler, logger *zap.Logger) *TaskConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &TaskConsumer{
		conn:      conn,
		queueName: queueName,
		prefetch:  prefetch,
		handler:   handler,
		logger:    logger.Named("TaskConsumer").With(zap.String("queue", queueName)),
		tag:       "storygen-worker",
		done:      make(chan struct{}),
	}
}

// Start объявляет очередь с DLX и запускает чтение в фоне.
func (c *TaskConsumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	c.channel = ch

	if err := declareTaskTopology(ch, c.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(c.queueName, c.tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.logger.Info("Task consumer started", zap.Int("prefetch", c.prefetch))

	go func() {
		defer close(c.done)
		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					c.logger.Info("Delivery channel closed")
					return
				}
				c.wg.Add(1)
				go func(d amqp.Delivery) {
					defer c.wg.Done()
					c.handleDelivery(ctx, d)
				}(d)
			case <-ctx.Done():
				c.logger.Info("Context cancelled, stopping task consumer")
				return
			}
		}
	}()
	return nil
}

func declareTaskTopology(ch *amqp.Channel, queueName string) error {
	if err := ch.ExchangeDeclare(taskDLX, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLX '%s': %w", taskDLX, err)
	}
	if _, err := ch.QueueDeclare(taskDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ '%s': %w", taskDLQ, err)
	}
	if err := ch.QueueBind(taskDLQ, dlqRoutingKey, taskDLX, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, taskQueueArgs()); err != nil {
		return fmt.Errorf("failed to declare task queue '%s': %w", queueName, err)
	}
	return nil
}

// handleDelivery подтверждает сообщение после завершения сессии.
// Неразборчивые и невыполнимые задачи отклоняются без повторной постановки.
func (c *TaskConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag), zap.String("message_id", d.MessageId))
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic recovered while handling task", zap.Any("panic", r))
			_ = d.Nack(false, false)
		}
	}()

	var task StoryTaskPayload
	if err := json.Unmarshal(d.Body, &task); err != nil {
		log.Error("Failed to decode task payload", zap.Error(err), zap.ByteString("body", d.Body))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}
	if task.TaskID == "" {
		task.TaskID = d.MessageId
	}
	log = log.With(zap.String("task_id", task.TaskID), zap.String("user_id", task.UserID))

	start := time.Now()
	if err := c.handler.HandleTask(ctx, task); err != nil {
		log.Error("Task rejected", zap.Error(err), zap.Duration("duration", time.Since(start)))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
		return
	}
	log.Info("Task processed", zap.Duration("duration", time.Since(start)))
}

// Stop прекращает прием новых задач и ждет завершения начатых.
func (c *TaskConsumer) Stop(timeout time.Duration) {
	c.logger.Info("Stopping task consumer...")
	if c.channel != nil {
		if err := c.channel.Cancel(c.tag, false); err != nil {
			c.logger.Warn("Failed to cancel consumer", zap.Error(err))
		}
	}

	finished := make(chan struct{})
	go func() {
		<-c.done
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		c.logger.Info("All in-flight tasks finished")
	case <-time.After(timeout):
		c.logger.Warn("Timeout waiting for in-flight tasks", zap.Duration("timeout", timeout))
	}

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Warn("Failed to close consumer channel", zap.Error(err))
		}
	}
}
