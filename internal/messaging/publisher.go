package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishAttempts = 3

// EventPublisher публикует события жизненного цикла истории.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event StoryEventPayload) error
}

// TaskPublisher ставит задачи генерации в очередь.
type TaskPublisher interface {
	PublishTask(ctx context.Context, task StoryTaskPayload) error
}

// amqpChannel часть *amqp.Channel, нужная паблишеру.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQPublisher публикует события и задачи в durable очереди.
// amqp.Channel не потокобезопасен для публикации, поэтому вызовы сериализуются.
type RabbitMQPublisher struct {
	mu         sync.Mutex
	channel    amqpChannel
	eventQueue string
	taskQueue  string
	logger     *zap.Logger
}

var (
	_ EventPublisher = (*RabbitMQPublisher)(nil)
	_ TaskPublisher  = (*RabbitMQPublisher)(nil)
)

// NewRabbitMQPublisher объявляет очереди событий и задач. Канал закрывает вызывающий.
func NewRabbitMQPublisher(ch amqpChannel, eventQueue, taskQueue string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	log := logger.Named("RabbitMQPublisher")
	if _, err := ch.QueueDeclare(eventQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare event queue '%s': %w", eventQueue, err)
	}
	if _, err := ch.QueueDeclare(taskQueue, true, false, false, false, taskQueueArgs()); err != nil {
		return nil, fmt.Errorf("failed to declare task queue '%s': %w", taskQueue, err)
	}
	log.Info("Queues declared", zap.String("event_queue", eventQueue), zap.String("task_queue", taskQueue))
	return &RabbitMQPublisher{channel: ch, eventQueue: eventQueue, taskQueue: taskQueue, logger: log}, nil
}

func (p *RabbitMQPublisher) PublishEvent(ctx context.Context, event StoryEventPayload) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return p.publish(ctx, p.eventQueue, event.EventID, event)
}

func (p *RabbitMQPublisher) PublishTask(ctx context.Context, task StoryTaskPayload) error {
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	return p.publish(ctx, p.taskQueue, task.TaskID, task)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue, messageID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", messageID, err)
	}
	msg := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		AppId:        appID,
		MessageId:    messageID,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 1; attempt <= publishAttempts; attempt++ {
		err = p.channel.PublishWithContext(ctx, "", queue, false, false, msg)
		if err == nil {
			p.logger.Debug("Message published", zap.String("queue", queue), zap.String("message_id", messageID))
			return nil
		}
		p.logger.Warn("Publish attempt failed",
			zap.String("queue", queue), zap.String("message_id", messageID),
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt == publishAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish of %s cancelled: %w", messageID, ctx.Err())
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to publish message %s to '%s' after %d attempts: %w", messageID, queue, publishAttempts, err)
}

// NoopPublisher используется, когда брокер не настроен.
type NoopPublisher struct{}

var (
	_ EventPublisher = NoopPublisher{}
	_ TaskPublisher  = NoopPublisher{}
)

func (NoopPublisher) PublishEvent(context.Context, StoryEventPayload) error { return nil }
func (NoopPublisher) PublishTask(context.Context, StoryTaskPayload) error  { return nil }

func taskQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    taskDLX,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
}
