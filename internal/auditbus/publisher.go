// Package auditbus fans audit entries out to RabbitMQ.
package auditbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the queue audit events are routed to when none is configured.
const DefaultQueue = "dualauth.audit"

var (
	errEmptyAMQPURL = errors.New("auditbus.empty_url")
	errNilChannel   = errors.New("auditbus.nil_channel")
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Event is the message body published for every audit entry.
type Event struct {
	UserID     *int64         `json:"user_id"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher publishes audit events as persistent JSON messages on a durable queue.
type Publisher struct {
	mutex      sync.Mutex
	channel    Channel
	connection *amqp.Connection
	queue      string
}

// Dial connects to the broker, opens a channel, and declares queue.
func Dial(amqpURL string, queue string) (*Publisher, error) {
	if strings.TrimSpace(amqpURL) == "" {
		return nil, errEmptyAMQPURL
	}
	connection, dialErr := amqp.Dial(amqpURL)
	if dialErr != nil {
		return nil, fmt.Errorf("auditbus.dial: %w", dialErr)
	}
	channel, channelErr := connection.Channel()
	if channelErr != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("auditbus.channel: %w", channelErr)
	}
	publisher, declareErr := NewPublisher(channel, queue)
	if declareErr != nil {
		_ = channel.Close()
		_ = connection.Close()
		return nil, declareErr
	}
	publisher.connection = connection
	return publisher, nil
}

// NewPublisher declares queue on channel. An empty queue selects DefaultQueue.
func NewPublisher(channel Channel, queue string) (*Publisher, error) {
	if channel == nil {
		return nil, errNilChannel
	}
	if strings.TrimSpace(queue) == "" {
		queue = DefaultQueue
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("auditbus.queue_declare: %w", err)
	}
	return &Publisher{channel: channel, queue: queue}, nil
}

// Queue reports the routing key in use.
func (publisher *Publisher) Queue() string {
	return publisher.queue
}

// Publish sends one event through the default exchange.
func (publisher *Publisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("auditbus.marshal: %w", err)
	}
	message := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         event.Action,
		Body:         body,
	}
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	if err := publisher.channel.PublishWithContext(ctx, "", publisher.queue, false, false, message); err != nil {
		return fmt.Errorf("auditbus.publish: %w", err)
	}
	return nil
}

// Close closes the channel and, when dialled, the connection.
func (publisher *Publisher) Close() error {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	channelErr := publisher.channel.Close()
	var connectionErr error
	if publisher.connection != nil {
		connectionErr = publisher.connection.Close()
	}
	return errors.Join(channelErr, connectionErr)
}
