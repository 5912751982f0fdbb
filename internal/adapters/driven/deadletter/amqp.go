// Package deadletter publishes bulk batches the store rejected to an AMQP
// exchange and replays them later.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// Ensure Sink implements the interfaces.
var (
	_ driven.FailureSink       = (*Sink)(nil)
	_ driven.FailedBatchSource = (*Sink)(nil)
)

// messageType tags published failed batches.
const messageType = "crashstore.failed_batch"

var (
	errClosed       = errors.New("dead-letter sink is closed")
	errNotConnected = errors.New("dead-letter sink not connected: call Connect first")
)

// channel is the subset of *amqp.Channel the sink uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	Close() error
}

// Sink is a driven.FailureSink publishing to RabbitMQ.
type Sink struct {
	cfg domain.DeadLetterConfig

	mu      sync.Mutex
	conn    *amqp.Connection
	channel channel
	closed  bool
}

// NewSink creates a sink for cfg. Call Connect before use.
func NewSink(cfg domain.DeadLetterConfig) *Sink {
	return &Sink{cfg: cfg}
}

// Connect dials the broker and declares the exchange and the queue.
func (s *Sink) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if s.channel != nil {
		return nil
	}

	conn, err := amqp.DialConfig(s.cfg.AMQPURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return fmt.Errorf("%w: dialing broker: %w", domain.ErrStoreUnavailable, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}
	if err := s.setup(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	s.conn = conn
	s.channel = ch
	logger.Info("dead-letter exchange %q ready", s.cfg.Exchange)
	return nil
}

// setup declares a durable direct exchange and a durable queue bound to it.
func (s *Sink) setup(ch channel) error {
	if err := ch.ExchangeDeclare(
		s.cfg.Exchange, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", s.cfg.Exchange, err)
	}

	queue, err := ch.QueueDeclare(
		s.cfg.Queue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declaring queue %s: %w", s.cfg.Queue, err)
	}

	if err := ch.QueueBind(queue.Name, s.cfg.RoutingKey, s.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue %s: %w", queue.Name, err)
	}
	return nil
}

// BatchFailed publishes batch as a persistent JSON message.
func (s *Sink) BatchFailed(ctx context.Context, batch domain.FailedBatch) error {
	ch, err := s.current()
	if err != nil {
		return err
	}

	msg, err := newPublishing(batch)
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx, s.cfg.Exchange, s.cfg.RoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("%w: publishing failed batch: %w", domain.ErrStoreUnavailable, err)
	}
	logger.Debug("dead-lettered batch of %d actions as %s", len(batch.Actions), msg.MessageId)
	return nil
}

// Drain hands every queued batch to replay, acknowledging those it
// accepts. The first batch replay rejects is requeued and its error
// returned. Drain returns the number of batches replayed.
func (s *Sink) Drain(ctx context.Context, replay func(context.Context, domain.FailedBatch) error) (int, error) {
	ch, err := s.current()
	if err != nil {
		return 0, err
	}

	replayed := 0
	for {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		delivery, ok, err := ch.Get(s.cfg.Queue, false)
		if err != nil {
			return replayed, fmt.Errorf("getting from %s: %w", s.cfg.Queue, err)
		}
		if !ok {
			return replayed, nil
		}

		var batch domain.FailedBatch
		if err := json.Unmarshal(delivery.Body, &batch); err != nil {
			logger.Error("discarding unreadable dead letter %s: %v", delivery.MessageId, err)
			if err := delivery.Nack(false, false); err != nil {
				return replayed, fmt.Errorf("rejecting %s: %w", delivery.MessageId, err)
			}
			continue
		}

		if err := replay(ctx, batch); err != nil {
			if nackErr := delivery.Nack(false, true); nackErr != nil {
				logger.Error("requeueing %s: %v", delivery.MessageId, nackErr)
			}
			return replayed, fmt.Errorf("replaying %s: %w", delivery.MessageId, err)
		}
		if err := delivery.Ack(false); err != nil {
			return replayed, fmt.Errorf("acknowledging %s: %w", delivery.MessageId, err)
		}
		replayed++
	}
}

// Close closes the channel and the connection.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) current() (channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed
	}
	if s.channel == nil {
		return nil, errNotConnected
	}
	return s.channel, nil
}

func newPublishing(batch domain.FailedBatch) (amqp.Publishing, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshalling failed batch: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         messageType,
		Body:         body,
	}, nil
}
