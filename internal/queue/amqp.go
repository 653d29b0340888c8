package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

// AMQPQueue carries dispatch jobs over a durable RabbitMQ queue.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	name string
	mu   sync.Mutex
	log  *logger.Logger
}

func DialAMQP(url, name string, log *logger.Logger) (*AMQPQueue, error) {
	if log == nil {
		log = logger.Nop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	// one unacked job at a time per consumer
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, name: name, log: log}, nil
}

func (q *AMQPQueue) Publish(_ context.Context, job DispatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Subscribe consumes until ctx is done. A failed job is requeued once, then dropped;
// the scheduler re-enqueues RUNNING campaigns anyway.
func (q *AMQPQueue) Subscribe(ctx context.Context, handler Handler) error {
	msgs, err := q.ch.Consume(
		q.name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					q.log.Warn("delivery channel closed")
					return
				}
				q.deliver(ctx, d, handler)
			}
		}
	}()
	return nil
}

func (q *AMQPQueue) deliver(ctx context.Context, d amqp.Delivery, handler Handler) {
	job, err := decodeJob(d.Body)
	if err != nil {
		q.log.Warn("invalid job", zap.ByteString("body", d.Body), zap.Error(err))
		d.Ack(false)
		return
	}
	if err := handler(ctx, job); err != nil {
		q.log.Warn("job failed", zap.Int("campaign_id", job.CampaignID),
			zap.Bool("redelivered", d.Redelivered), zap.Error(err))
		d.Nack(false, !d.Redelivered)
		return
	}
	d.Ack(false)
}

func decodeJob(body []byte) (DispatchJob, error) {
	var job DispatchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, err
	}
	if job.CampaignID <= 0 {
		return job, fmt.Errorf("missing campaign_id")
	}
	return job, nil
}

func (q *AMQPQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
