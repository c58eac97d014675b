// Package rabbitmq provides an amqp091-go-backed eventstore.Bus, grounded
// on event-service/internal/infrastructure/messaging/rabbitmq: publisher
// confirms + mandatory returns on the publish side, and a dead-letter
// exchange plus time-limited retry queue on the consume side — generalized
// here from the teacher's hardcoded join.created/join.canceled routing
// keys to an arbitrary (namespace, type) topic supplied by Subscribe.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/baechuer/eventstore/eventstore"
	"github.com/baechuer/eventstore/internal/resilience"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultPublishWait = 150 * time.Millisecond
	defaultMaxRetries  = 3
	retryTTLMillis     = 5000
)

// Bus is an amqp091-go-backed eventstore.Bus bound to a single topic
// exchange. Safe for concurrent use; Publish lazily reconnects a dropped
// connection the same way the teacher's Publisher does.
type Bus struct {
	url      string
	exchange string
	dlx      string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return

	maxRetries  int
	logger      eventstore.Logger
	retryConfig resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithMaxRetries overrides the default retry-before-DLQ count of 3.
func WithMaxRetries(n int) Option {
	return func(b *Bus) { b.maxRetries = n }
}

// WithLogger overrides the default NopLogger.
func WithLogger(l eventstore.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithRetryConfig overrides the backoff used around the initial connect
// attempt in New (default resilience.DefaultRetryConfig()).
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(b *Bus) { b.retryConfig = cfg }
}

// WithCircuitBreaker guards every Publish call with a circuit breaker that
// opens after maxFailures consecutive failures, so a sustained broker
// outage fails fast instead of blocking the save path on repeated confirm
// timeouts (SPEC_FULL.md §5's resilience helpers). Not configured by
// default: the core spec imposes no library-level timeouts, so failing
// fast is an opt-in posture.
func WithCircuitBreaker(maxFailures int, resetTimeout time.Duration, halfOpenMaxCalls int) Option {
	return func(b *Bus) { b.breaker = resilience.NewCircuitBreaker(maxFailures, resetTimeout, halfOpenMaxCalls) }
}

// New dials url and declares exchange (a durable topic exchange) and its
// paired dead-letter fanout exchange "<exchange>.dlx". The initial connect
// is retried with exponential backoff (internal/resilience), the same
// retry-loop-around-connect pattern the teacher's main.go applies around
// NewPublisher, generalized into a reusable helper.
func New(url, exchange string, opts ...Option) (*Bus, error) {
	if url == "" {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrConfig, Op: "rabbitmq.new", Err: errors.New("missing amqp url")}
	}
	if exchange == "" {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrConfig, Op: "rabbitmq.new", Err: errors.New("missing exchange name")}
	}

	b := &Bus{
		url:         url,
		exchange:    exchange,
		dlx:         exchange + ".dlx",
		maxRetries:  defaultMaxRetries,
		logger:      eventstore.NopLogger{},
		retryConfig: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := resilience.Retry(context.Background(), b.retryConfig, b.connectLocked); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) connectLocked() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "rabbitmq.dial", Err: err}
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "rabbitmq.channel", Err: err}
	}

	if err := ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "rabbitmq.exchange_declare", Err: err}
	}
	if err := ch.ExchangeDeclare(b.dlx, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "rabbitmq.dlx_declare", Err: err}
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "rabbitmq.confirm", Err: err}
	}
	b.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	b.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))

	b.conn = conn
	b.ch = ch
	return nil
}

// Close tears down the channel and connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	return nil
}

// Publish sends body to topic (the routing key) with publisher confirms
// and mandatory delivery, lazily reconnecting if the connection dropped.
// When a circuit breaker is configured (WithCircuitBreaker), the attempt
// runs behind it so a sustained broker outage fails fast instead of
// blocking the save path on repeated confirm timeouts.
func (b *Bus) Publish(ctx context.Context, topic string, body []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}

	attempt := func() error { return b.publishOnce(ctx, topic, body) }
	if b.breaker != nil {
		if err := b.breaker.Call(attempt); err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "publish.circuit_open", Key: topic, Err: err}
			}
			return err
		}
		return nil
	}
	return attempt()
}

func (b *Bus) publishOnce(ctx context.Context, topic string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch == nil || b.conn == nil || b.conn.IsClosed() {
		_ = b.closeLocked()
		if err := b.connectLocked(); err != nil {
			return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "publish.reconnect", Key: topic, Err: err}
		}
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}

	if err := b.ch.PublishWithContext(ctx, b.exchange, topic, true, false, pub); err != nil {
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "publish", Key: topic, Err: err}
	}

	timer := time.NewTimer(defaultPublishWait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ret := <-b.returnCh:
			b.logger.Error("rabbitmq: publish returned (no route)", "topic", topic, "code", ret.ReplyCode, "reason", ret.ReplyText)
			return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "publish.returned", Key: topic, Err: fmt.Errorf("%d %s", ret.ReplyCode, ret.ReplyText)}
		case conf := <-b.confirmCh:
			if !conf.Ack {
				return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "publish.not_acked", Key: topic}
			}
			return nil
		case <-timer.C:
			b.logger.Warn("rabbitmq: confirm/return window elapsed, assuming delivered", "topic", topic)
			return nil
		}
	}
}

// closeLocked is connectLocked's error-path counterpart; caller already
// holds b.mu.
func (b *Bus) closeLocked() error {
	if b.ch != nil {
		_ = b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	return nil
}
