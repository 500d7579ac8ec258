package queue

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-catalog-service/internal/models"
)

type nackCall struct {
	tag     uint64
	requeue bool
}

type fakeAcknowledger struct {
	acks  []uint64
	nacks []nackCall
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks = append(f.acks, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks = append(f.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacks = append(f.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func rawDelivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
}

func TestPumpDecodesSyncJobs(t *testing.T) {
	ack := &fakeAcknowledger{}
	rawMsgs := make(chan amqp.Delivery, 1)
	rawMsgs <- rawDelivery(ack, 1, `{"op":"upsert","product_id":7}`)
	close(rawMsgs)

	out := make(chan Delivery)
	go pump(context.Background(), rawMsgs, out)

	d, ok := <-out
	require.True(t, ok)
	assert.Equal(t, models.SyncOpUpsert, d.Job.Op)
	assert.EqualValues(t, 7, d.Job.ProductID)

	_, ok = <-out
	assert.False(t, ok)
}

func TestPumpDiscardsUnparseablePayloads(t *testing.T) {
	ack := &fakeAcknowledger{}
	rawMsgs := make(chan amqp.Delivery, 2)
	rawMsgs <- rawDelivery(ack, 1, `not json`)
	rawMsgs <- rawDelivery(ack, 2, `{"op":"delete","product_id":3}`)
	close(rawMsgs)

	out := make(chan Delivery)
	go pump(context.Background(), rawMsgs, out)

	d := <-out
	assert.EqualValues(t, 3, d.Job.ProductID)

	_, ok := <-out
	require.False(t, ok)

	// The poison message was rejected without requeue.
	require.Len(t, ack.nacks, 1)
	assert.EqualValues(t, 1, ack.nacks[0].tag)
	assert.False(t, ack.nacks[0].requeue)
}

func TestPumpRequeuesInFlightDeliveryOnCancel(t *testing.T) {
	ack := &fakeAcknowledger{}
	rawMsgs := make(chan amqp.Delivery, 1)
	rawMsgs <- rawDelivery(ack, 5, `{"op":"upsert","product_id":9}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nobody reads out: the only way pump can finish is via the ctx case.
	out := make(chan Delivery)
	done := make(chan struct{})
	go func() {
		pump(ctx, rawMsgs, out)
		close(done)
	}()

	<-done
	_, ok := <-out
	assert.False(t, ok)

	require.Len(t, ack.nacks, 1)
	assert.EqualValues(t, 5, ack.nacks[0].tag)
	assert.True(t, ack.nacks[0].requeue)
}
