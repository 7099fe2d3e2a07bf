package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"

	"github.com/unclebandit/broadcast-dispatcher/internal/config"
)

const retryHeader = "x-retry-count"

// AMQPQueue is a RabbitMQ-backed Queue. Topics map to durable queues on the
// default exchange; deliveries are acked manually and failed ones are
// republished with an incremented x-retry-count until MaxRetries.
type AMQPQueue struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	pubMu    sync.Mutex
	prefetch int

	MaxRetries int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed chan *amqp.Error

	// resend republishes a failed delivery; replaced in tests.
	resend func(topic string, body []byte, retries int32) error

	log zerolog.Logger
}

func DialAMQP(cfg config.AMQPConfig, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &AMQPQueue{
		conn:       conn,
		pub:        ch,
		prefetch:   prefetch,
		MaxRetries: DefaultMaxRetries,
		ctx:        ctx,
		cancel:     cancel,
		closed:     conn.NotifyClose(make(chan *amqp.Error, 1)),
		log:        log,
	}
	q.resend = q.send
	return q, nil
}

func declare(ch *amqp.Channel, topic string) error {
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return nil
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.send(topic, body, 0)
}

func (q *AMQPQueue) send(topic string, body []byte, retries int32) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	if err := declare(q.pub, topic); err != nil {
		return err
	}
	err := q.pub.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Headers:      amqp.Table{retryHeader: retries},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts a consumer on its own channel. It returns once the
// consumer is registered; deliveries are handled until Close.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return err
	}

	msgs, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer ch.Close()
		for {
			select {
			case <-q.ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				q.handle(topic, d, handler)
			}
		}
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, d amqp.Delivery, handler Handler) {
	// Close waits for the in-flight delivery rather than cancelling it.
	err := handler(context.WithoutCancel(q.ctx), d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	log := q.log.With().Str("topic", topic).Str("message_id", d.MessageId).Int32("retry", retries).Logger()
	if retries >= int32(q.MaxRetries) {
		log.Error().Err(err).Msg("message permanently failed")
		_ = d.Ack(false)
		return
	}

	log.Warn().Err(err).Msg("message failed, requeueing")
	if rerr := q.resend(topic, d.Body, retries+1); rerr != nil {
		log.Error().Err(rerr).Msg("requeue failed, returning message to broker")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// retryCount reads x-retry-count whatever integer width the broker decoded it as.
func retryCount(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	case int16:
		return int32(v)
	case int8:
		return int32(v)
	default:
		return 0
	}
}

// Closed reports broker-side connection loss.
func (q *AMQPQueue) Closed() <-chan *amqp.Error {
	return q.closed
}

// Close stops consumers, waits for in-flight handlers and closes the connection.
func (q *AMQPQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	q.pubMu.Lock()
	_ = q.pub.Close()
	q.pubMu.Unlock()
	return q.conn.Close()
}
