package rabbitmq

import (
	"context"

	"github.com/baechuer/eventstore/eventstore"
	amqp "github.com/rabbitmq/amqp091-go"
)

const retryCountHeader = "x-retry-count"
const originalRoutingKeyHeader = "x-original-routing-key"

// Subscribe declares a durable queue bound to topic (the routing key),
// a per-queue retry queue with a message TTL that routes back to the
// main queue, and relies on the already-declared exchange DLX for
// messages that exhaust their retries — the exact shape of the teacher's
// NewConsumer wiring, generalized to an arbitrary (topic, queue) pair.
// This package binds no queue to the DLX, so dead-lettered messages are
// kept only if the broker has a queue bound to it from elsewhere.
func (b *Bus) Subscribe(ctx context.Context, topic, queue string, h eventstore.Handler) (eventstore.Consumer, error) {
	b.mu.Lock()
	if b.ch == nil || b.conn == nil || b.conn.IsClosed() {
		if err := b.connectLocked(); err != nil {
			b.mu.Unlock()
			return nil, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "subscribe.reconnect", Key: queue, Err: err}
		}
	}
	ch := b.ch
	b.mu.Unlock()

	retryQueue := queue + ".retry"

	mainArgs := amqp.Table{"x-dead-letter-exchange": b.dlx}
	q, err := ch.QueueDeclare(queue, true, false, false, false, mainArgs)
	if err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "subscribe.queue_declare", Key: queue, Err: err}
	}

	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
		"x-message-ttl":             int32(retryTTLMillis),
	}
	if _, err := ch.QueueDeclare(retryQueue, true, false, false, false, retryArgs); err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "subscribe.retry_queue_declare", Key: retryQueue, Err: err}
	}

	if err := ch.QueueBind(q.Name, topic, b.exchange, false, nil); err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "subscribe.queue_bind", Key: topic, Err: err}
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "subscribe.consume", Key: queue, Err: err}
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	c := &consumer{bus: b, channel: ch, queue: q.Name, retryQueue: retryQueue, cancel: cancel}

	go c.run(consumerCtx, msgs, h)

	return c, nil
}

type consumer struct {
	bus        *Bus
	channel    *amqp.Channel
	queue      string
	retryQueue string
	cancel     context.CancelFunc
}

func (c *consumer) run(ctx context.Context, msgs <-chan amqp.Delivery, h eventstore.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.handle(ctx, msg, h)
		}
	}
}

func (c *consumer) handle(ctx context.Context, msg amqp.Delivery, h eventstore.Handler) {
	err := h.Handle(ctx, msg.Body)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	retryCount := 0
	if v, ok := msg.Headers[retryCountHeader].(int32); ok {
		retryCount = int(v)
	}

	if retryCount >= c.bus.maxRetries {
		c.bus.logger.Error("rabbitmq: max retries reached, dead-lettering", "queue", c.queue, "err", err)
		_ = msg.Nack(false, false)
		return
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = int32(retryCount + 1)
	headers[originalRoutingKeyHeader] = msg.RoutingKey

	pubErr := c.channel.Publish("", c.retryQueue, false, false, amqp.Publishing{
		ContentType: msg.ContentType,
		Body:        msg.Body,
		Headers:     headers,
		MessageId:   msg.MessageId,
	})
	if pubErr != nil {
		c.bus.logger.Error("rabbitmq: failed to publish to retry queue, dead-lettering", "queue", c.queue, "err", pubErr)
		_ = msg.Nack(false, false)
		return
	}
	_ = msg.Ack(false)
}

// Stop cancels the consume loop. It does not close the underlying channel,
// since the channel is shared with the Bus's publisher and other
// consumers.
func (c *consumer) Stop() error {
	c.cancel()
	return nil
}
