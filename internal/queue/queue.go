// Package queue wraps RabbitMQ for moving index sync jobs from the API
// process to the worker.
//
// The outbox relay publishes SyncJobs to the "catalog_sync_queue"; the
// worker consumes from the same queue and applies each job to Elasticsearch.
//
// Durability guarantees:
//   - Queue is declared as durable — survives broker restarts.
//   - Messages are marked as Persistent — written to disk before ack.
//   - Consumer uses manual ack — a message is only removed from the queue
//     after the worker has applied it (or deliberately dropped it after
//     exhausting retries).
//
// The broker is not the durability source of record: every job also lives
// in the catalog_outbox table until the relay marks it dispatched, so a
// crash between the Postgres commit and the publish loses nothing.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"go-catalog-service/internal/models"
)

const syncQueueName = "catalog_sync_queue"

// Publisher owns the AMQP connection for the relay side (publish only).
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

// NewPublisher dials RabbitMQ and declares the shared queue.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}

	q, err := declareQueue(ch)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, channel: ch, queue: q}, nil
}

// PublishSyncJob serialises the job and sends it to the queue.
// The message is marked Persistent so it survives a broker restart.
func (p *Publisher) PublishSyncJob(ctx context.Context, job *models.SyncJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx,
		"",           // default exchange — routes directly to named queue
		p.queue.Name, // routing key == queue name for default exchange
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // survive broker restart
			Body:         body,
		},
	)
}

// Close releases the AMQP channel and connection.
func (p *Publisher) Close() {
	p.channel.Close()
	p.conn.Close()
}

// Consumer owns the AMQP connection for the worker side (consume only).
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

// NewConsumer dials RabbitMQ and sets QoS to process one message at a time.
func NewConsumer(url string) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("queue: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("queue: open channel: %w", err)
	}

	// Process one message at a time. Job ordering across workers is not
	// guaranteed anyway — correctness comes from the worker re-fetching
	// current state at apply time, not from delivery order.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("queue: set qos: %w", err)
	}

	q, err := declareQueue(ch)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, channel: ch, queue: q}, nil
}

// Delivery wraps amqp.Delivery to expose the decoded SyncJob and ack/nack helpers.
type Delivery struct {
	Job *models.SyncJob
	raw amqp.Delivery
}

// Ack removes the message from RabbitMQ after processing.
func (d *Delivery) Ack() error { return d.raw.Ack(false) }

// Nack requeues the message so another worker can retry.
func (d *Delivery) Nack() error { return d.raw.Nack(false, true) }

// Discard permanently rejects a message (e.g. unparseable payload).
func (d *Delivery) Discard() error { return d.raw.Nack(false, false) }

// Consume returns a channel of Delivery values. Each value must be Ack'd,
// Nack'd or Discarded. The channel closes when the broker stream ends or
// ctx is cancelled; a delivery in flight at cancellation is requeued.
func (c *Consumer) Consume(ctx context.Context) (<-chan Delivery, error) {
	rawMsgs, err := c.channel.Consume(
		c.queue.Name,
		"",    // consumer tag — auto-generated
		false, // auto-ack disabled — we ack manually after processing
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("queue: consume: %w", err)
	}

	out := make(chan Delivery)
	go pump(ctx, rawMsgs, out)
	return out, nil
}

// pump decodes raw AMQP messages into Deliveries until the stream ends or
// ctx is cancelled. Without the ctx case the send would block forever once
// the receiver stops reading.
func pump(ctx context.Context, rawMsgs <-chan amqp.Delivery, out chan<- Delivery) {
	defer close(out)
	for d := range rawMsgs {
		var job models.SyncJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			// Discard unparseable messages — they will never be valid.
			d.Nack(false, false)
			continue
		}
		select {
		case out <- Delivery{Job: &job, raw: d}:
		case <-ctx.Done():
			// Receiver is gone; requeue so another worker picks it up.
			d.Nack(false, true)
			return
		}
	}
}

// Close releases the AMQP channel and connection.
func (c *Consumer) Close() {
	c.channel.Close()
	c.conn.Close()
}

// declareQueue is shared between Publisher and Consumer to ensure both sides
// always declare the same durable queue (idempotent — safe to call multiple times).
func declareQueue(ch *amqp.Channel) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		syncQueueName,
		true,  // durable — survives broker restart
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("queue: declare: %w", err)
	}
	return q, nil
}
