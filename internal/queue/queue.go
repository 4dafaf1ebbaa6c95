package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/bookgraph/internal/util"
	"github.com/OFFIS-RIT/bookgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// RebuildQueue carries graph rebuild jobs.
	RebuildQueue = "rebuild_queue"
	// EventsExchange is the topic exchange graph events are published to.
	EventsExchange = "bookgraph_events"
	// TopicGraphRebuilt is published after a rebuild finished.
	TopicGraphRebuilt = "graph.rebuilt"

	// MaxRetries is the number of redeliveries before a job goes to the
	// dead-letter queue.
	MaxRetries = 10
	retryDelay = 10 * time.Second
)

// Queues lists every work queue the worker consumes.
var Queues = []string{RebuildQueue}

// Publisher is the part of an AMQP channel used to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// URL builds the broker URL from RABBITMQ_URL, or from the
// RABBITMQ_USER/PASSWORD/HOST/PORT parts.
func URL() string {
	if u := util.GetEnvString("RABBITMQ_URL", ""); u != "" {
		return u
	}
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		util.GetEnvString("RABBITMQ_USER", "guest"),
		util.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		util.GetEnvString("RABBITMQ_HOST", "localhost"),
		util.GetEnvString("RABBITMQ_PORT", "5672"),
	)
}

func Init() *amqp091.Connection {
	conn, err := amqp091.Dial(URL())
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares the events exchange and, for every queue name, the
// queue itself, its dead-letter queue and a retry queue that hands
// messages back after a delay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	err := ch.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", EventsExchange, err)
	}

	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelay.Milliseconds()),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

// PublishFIFO sends data to a declared queue as a persistent message.
func PublishFIFO(ctx context.Context, ch Publisher, queueName string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.PublishWithContext(
		ctx,
		"",
		queueName,
		false,
		false,
		publishing,
	)
}

// PublishTopic sends data to the events exchange.
func PublishTopic(ctx context.Context, ch Publisher, topic string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.PublishWithContext(
		ctx,
		EventsExchange,
		topic,
		false,
		false,
		publishing,
	)
}
