package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

const (
	publishTimeout = 5 * time.Second
	confirmBuffer  = 16
)

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQ publishes persistent JSON messages to a durable topic exchange and
// waits for the broker to confirm each one.
type RabbitMQ struct {
	exchange string
	timeout  time.Duration

	mu       sync.Mutex
	conn     io.Closer
	ch       channel
	confirms <-chan amqp.Confirmation
	// seq is the delivery tag of the last successful publish. Tags start at 1
	// once the channel is in confirm mode.
	seq uint64
}

func NewRabbitMQ(url, exchange string) (*RabbitMQ, error) {
	log.Info().Str("exchange", exchange).Msg("connecting to RabbitMQ")
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open producer channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("producer channel could not be put into confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &RabbitMQ{
		exchange: exchange,
		timeout:  publishTimeout,
		conn:     conn,
		ch:       ch,
		confirms: confirms,
	}, nil
}

// Publish sends payload and blocks until the broker confirms its delivery
// tag, the timeout elapses or ctx is done. Late confirms for earlier
// messages are discarded.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch == nil {
		return errors.New("publisher closed")
	}

	r.discardStale()

	err = r.ch.Publish(r.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	r.seq++
	tag := r.seq

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	for {
		select {
		case confirm, ok := <-r.confirms:
			if !ok {
				return errors.New("confirm channel closed")
			}
			if confirm.DeliveryTag < tag {
				log.Debug().Uint64("delivery_tag", confirm.DeliveryTag).Msg("discarding late confirm")
				continue
			}
			if !confirm.Ack {
				return errors.New("message published but not confirmed")
			}
			log.Debug().Str("routing_key", routingKey).Uint64("delivery_tag", tag).Msg("message published and confirmed")
			return nil
		case <-timer.C:
			return fmt.Errorf("publish confirmation timeout for delivery tag %d", tag)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// discardStale drops confirms that arrived after their publish gave up, so
// the notify channel never fills up. Callers hold mu.
func (r *RabbitMQ) discardStale() {
	for {
		select {
		case confirm, ok := <-r.confirms:
			if !ok {
				return
			}
			log.Debug().Uint64("delivery_tag", confirm.DeliveryTag).Msg("discarding late confirm")
		default:
			return
		}
	}
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ch == nil {
		return nil
	}
	err := r.ch.Close()
	r.ch = nil
	if r.conn != nil {
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
