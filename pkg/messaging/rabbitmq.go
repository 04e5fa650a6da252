package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tablestack/tablestack-backend/pkg/config"
	"github.com/tablestack/tablestack-backend/pkg/logger"
)

// DeadLetterExchange receives messages rejected after the retry budget.
const DeadLetterExchange = "dlx.tablestack"

// RabbitMQ is one broker connection with a single shared channel. Publishers
// and consumers of a service declare their topology on that channel at startup.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logger.Logger
}

// New dials the broker and opens the shared channel.
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// bounds the unacked sync requests a worker holds
	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	log.Info().Int("prefetch", cfg.PrefetchCount).Msg("connected to RabbitMQ")
	return &RabbitMQ{conn: conn, channel: ch, logger: log}, nil
}

// Channel returns the shared channel.
func (r *RabbitMQ) Channel() *amqp.Channel {
	return r.channel
}

// Close closes the channel and the connection.
func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("failed to close channel")
	}
	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health reports whether the connection is still open.
func (r *RabbitMQ) Health() map[string]string {
	if r.conn.IsClosed() {
		return map[string]string{"status": "down", "error": "connection closed"}
	}
	return map[string]string{"status": "up"}
}

// DeclareExchange declares a durable topic exchange.
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.channel.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
}

// DeclareQueue declares a durable queue whose rejected messages go to
// DeadLetterExchange.
func (r *RabbitMQ) DeclareQueue(name string) (amqp.Queue, error) {
	return r.channel.QueueDeclare(name, true, false, false, false, workQueueArgs())
}

// BindQueue routes messages matching routingKey on exchange into the queue.
func (r *RabbitMQ) BindQueue(queueName, exchange, routingKey string) error {
	return r.channel.QueueBind(queueName, routingKey, exchange, false, nil)
}

// DeclareDeadLetterQueue declares DeadLetterExchange and binds the service's
// parking queue to every routing key on it.
func (r *RabbitMQ) DeclareDeadLetterQueue(serviceName string) error {
	if err := r.DeclareExchange(DeadLetterExchange); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}

	queue := DeadLetterQueueName(serviceName)
	if _, err := r.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", queue, err)
	}
	if err := r.BindQueue(queue, DeadLetterExchange, "#"); err != nil {
		return fmt.Errorf("failed to bind %s: %w", queue, err)
	}
	return nil
}

// DeadLetterQueueName is the parking queue of a service.
func DeadLetterQueueName(serviceName string) string {
	return "dlq." + serviceName
}

func workQueueArgs() amqp.Table {
	return amqp.Table{"x-dead-letter-exchange": DeadLetterExchange}
}
