package queue

import (
	"context"

	"github.com/OFFIS-RIT/bookgraph/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const retriesHeader = "x-retries"

// Retries reads the retry counter of a delivery. The header may come back
// as any integer width depending on who encoded it.
func Retries(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

// HandleProcessingError moves a failed delivery to the retry queue, or to
// the dead-letter queue once MaxRetries is reached. The original delivery
// is acked once the copy is published and requeued if publishing fails.
func HandleProcessingError(ctx context.Context, ch Publisher, msg amqp091.Delivery, queueName string) {
	retries := Retries(msg.Headers)

	target := queueName + "_retry"
	if retries >= MaxRetries {
		target = queueName + "_dlq"
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)

	err := ch.PublishWithContext(ctx, "", target, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
	})
	if err != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}

	if target == queueName+"_dlq" {
		logger.Error("[Queue] Message moved to dead-letter queue", "queue", queueName, "retries", retries)
	} else {
		logger.Warn("[Queue] Message scheduled for retry", "queue", queueName, "retry", retries+1)
	}
	_ = msg.Ack(false)
}
