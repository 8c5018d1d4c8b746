package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/pkg/metrics"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/otel"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/trace"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/util"
)

// Message is a single delivery handed to a MessageHandler.
type Message struct {
	ID         string
	RoutingKey string
	Body       json.RawMessage
}

type MessageHandler func(ctx context.Context, msg Message) error

// RetryCounter counts redeliveries per message id.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	exchange   string
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	dlq        *Publisher
	retries    RetryCounter
	maxRetries int64
}

// NewConsumer declares queueName, binds it to routingKey on exchange and
// prepares the paired dead letter queue.
func NewConsumer(url, exchange, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	exchange = exchangeOrDefault(exchange)

	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(format string, err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf(format, err)
	}

	if err := DeclareExchange(ch, exchange); err != nil {
		return fail("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch, exchange); err != nil {
		return fail("failed to declare dlq exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, exchange, queueName); err != nil {
		return fail("%w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fail("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return fail("failed to bind queue: %w", err)
	}

	// 一次只取一条，保证 panic / nack 不会影响其他消息
	if err := ch.Qos(1, 0, false); err != nil {
		return fail("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", exchange),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
		maxRetries: 3,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// SetDeadLetter routes non-retryable failures, and retryable ones past
// maxRetries, to the dead letter exchange through p.
func (c *Consumer) SetDeadLetter(p *Publisher, retries RetryCounter, maxRetries int64) {
	c.dlq = p
	c.retries = retries
	if maxRetries > 0 {
		c.maxRetries = maxRetries
	}
}

func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return errors.New("consumer handler not set")
	}

	tag := c.queue.Name + "-worker"
	deliveries, err := c.channel.Consume(
		c.queue.Name,
		tag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			_ = c.channel.Cancel(tag, false)
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed")
			}
			c.process(ctx, msg)
		}
	}
}

// process guarantees every delivery is acked or nacked exactly once.
func (c *Consumer) process(ctx context.Context, msg amqp091.Delivery) {
	if traceID, ok := msg.Headers[trace.HeaderName].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue.Name, msg.Headers)
	defer span.End()

	log := c.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	)
	start := time.Now()

	// Panic 恢复：确保即使 handler panic 也能正确处理消息
	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
			c.reject(ctx, log, msg, fmt.Errorf("panic: %v", r), false)
		}
	}()

	err := c.handler(ctx, Message{ID: msg.MessageId, RoutingKey: msg.RoutingKey, Body: msg.Body})
	metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		retryable, errType := util.IsRetryableError(err)
		log.Error("Handler error",
			zap.Error(err),
			zap.Bool("retryable", retryable),
			zap.String("error_type", errType),
		)
		c.reject(ctx, log, msg, err, retryable)
		return
	}

	if c.retries != nil && msg.MessageId != "" {
		_ = c.retries.Reset(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
	}
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
		return
	}
	log.Debug("Message processed successfully")
}

// reject requeues retryable failures until the retry budget is spent and
// dead-letters the rest. Without a DLQ publisher everything is requeued.
func (c *Consumer) reject(ctx context.Context, log *zap.Logger, msg amqp091.Delivery, cause error, retryable bool) {
	if c.dlq == nil {
		if err := msg.Nack(false, true); err != nil {
			log.Error("Failed to nack message", zap.Error(err))
		}
		return
	}

	if retryable && c.retries != nil && msg.MessageId != "" {
		count, err := c.retries.IncrementAndGet(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
		if err != nil || util.ShouldRetry(count, c.maxRetries, true) {
			if err := msg.Nack(false, true); err != nil {
				log.Error("Failed to nack message", zap.Error(err))
			}
			return
		}
		log.Warn("Retry budget exhausted", zap.Int64("retry_count", count))
	}

	if err := c.dlq.PublishToDLQ(ctx, msg.RoutingKey, msg.Body, cause.Error(), c.queue.Name); err != nil {
		log.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack dead-lettered message", zap.Error(err))
	}
}
