// Package messaging publishes finalized exam results to RabbitMQ.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// RabbitMQClient owns one connection and one channel. amqp channels are not
// safe for concurrent publishing, so Publish is serialized.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
	clock   clock.Clock
}

// NewRabbitMQClient dials url and opens a channel.
func NewRabbitMQClient(url string, clk clock.Clock) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitMQClient{conn: conn, channel: channel, clock: clk}, nil
}

// Close closes the channel and the connection.
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// DeclareQueue declares a durable queue.
func (c *RabbitMQClient) DeclareQueue(name string) (amqp.Queue, error) {
	return c.channel.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

// Publish sends body to queueName as a persistent JSON message.
func (c *RabbitMQClient) Publish(ctx context.Context, queueName string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.channel.PublishWithContext(
		ctx,
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    c.clock.Now(),
		},
	)
}

// Publisher is the queue-level interface ResultPublisher writes to.
type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// ResultPublisher encodes finalized results and publishes them to one queue.
type ResultPublisher struct {
	pub   Publisher
	queue string
}

// NewResultPublisher creates a ResultPublisher for queue.
func NewResultPublisher(pub Publisher, queue string) *ResultPublisher {
	return &ResultPublisher{pub: pub, queue: queue}
}

// PublishResult sends r as JSON.
func (p *ResultPublisher) PublishResult(ctx context.Context, r model.FinalizedResult) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := p.pub.Publish(ctx, p.queue, body); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}
