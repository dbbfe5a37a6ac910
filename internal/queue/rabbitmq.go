// Package queue carries scored-attempt events over RabbitMQ.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Handler processes one message body. A returned error nacks the delivery.
type Handler func(ctx context.Context, body []byte) error

type RabbitMQ struct {
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	consumeCh *amqp.Channel
	queue     string

	pubMu sync.Mutex
	wg    sync.WaitGroup
}

// NewRabbitMQ connects and declares the durable work queue.
func NewRabbitMQ(url, queue string, prefetch int) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	consumeCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}

	_, err = pubCh.QueueDeclare(
		queue,
		true,  // durable
		false, // auto delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if prefetch > 0 {
		if err := consumeCh.Qos(prefetch, 0, false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set prefetch: %w", err)
		}
	}

	log.Info().Str("queue", queue).Msg("Connected to RabbitMQ")
	return &RabbitMQ{conn: conn, pubCh: pubCh, consumeCh: consumeCh, queue: queue}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, body []byte) error {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	err := r.pubCh.PublishWithContext(ctx,
		"",      // default exchange
		r.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", r.queue, err)
	}
	return nil
}

// Consume delivers messages to handler until ctx is cancelled or the channel
// closes. A failed message is requeued once and dropped on its second failure.
func (r *RabbitMQ) Consume(ctx context.Context, consumerTag string, handler Handler) error {
	msgs, err := r.consumeCh.Consume(
		r.queue,
		consumerTag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		log.Info().Str("queue", r.queue).Str("consumer", consumerTag).Msg("Listening for messages")
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					log.Warn().Str("queue", r.queue).Msg("Delivery channel closed")
					return
				}
				r.handle(ctx, d, handler)
			}
		}
	}()
	return nil
}

func (r *RabbitMQ) handle(ctx context.Context, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}

	// Interrupted work always goes back; a real failure gets one more try.
	requeue := errors.Is(err, context.Canceled) || !d.Redelivered
	log.Error().Err(err).Bool("requeue", requeue).Str("queue", r.queue).Msg("Message handler failed")
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		log.Error().Err(nackErr).Msg("Failed to nack message")
	}
}

// Close stops consumers and closes the connection.
func (r *RabbitMQ) Close() error {
	err := r.conn.Close()
	r.wg.Wait()
	return err
}
