package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/streadway/amqp"
)

// AMQPSink publishes notices as persistent JSON messages to a durable queue.
// Messages rejected by consumers are dead-lettered to "<queue>.dlq".
type AMQPSink struct {
	mu      sync.Mutex // amqp.Channel is not safe for concurrent publishes
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQPSink dials url and declares the queue pair.
func NewAMQPSink(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	s := &AMQPSink{conn: conn, channel: ch, queue: queue}
	if err := s.declare(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *AMQPSink) declare() error {
	dlqName := DeadLetterQueue(s.queue)

	if _, err := s.channel.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqName,
	}
	if _, err := s.channel.QueueDeclare(s.queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	return nil
}

// DeadLetterQueue names the dead-letter queue paired with queue.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

func (s *AMQPSink) Send(_ context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("encode notice: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.channel.Publish(
		"",      // default exchange
		s.queue, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.ID,
			Timestamp:    n.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", s.queue, err)
	}
	return nil
}

// Close cleans up channel and connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chErr := s.channel.Close()
	connErr := s.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
