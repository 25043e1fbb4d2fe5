package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordedAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *recordedAck) Ack(bool) error {
	a.acked = true
	return nil
}

func (a *recordedAck) Nack(_ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func TestDispatchConsumerProcess(t *testing.T) {
	f := newFixture()
	consumer := &DispatchConsumer{dispatcher: f.dispatcher}

	ack := &recordedAck{}
	consumer.process(context.Background(), []byte(`{"userId":"u1","message":"hi","type":"task_assigned","companyId":"c1","createdBy":"a1"}`), false, ack)
	assert.True(t, ack.acked)

	count, err := f.store.CountUnreadNotifications(context.Background(), "u1", "c1")
	assert.NoError(t, err)
	assert.EqualValues(t, 1, count)

	ack = &recordedAck{}
	consumer.process(context.Background(), []byte(`{"userId":"u1","message":"hi","type":"unknown","companyId":"c1","createdBy":"a1"}`), false, ack)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)

	ack = &recordedAck{}
	consumer.process(context.Background(), []byte(`not json`), false, ack)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestDispatchConsumerRequeuesInfrastructureFailures(t *testing.T) {
	consumer := &DispatchConsumer{dispatcher: NewDispatcher(failingWriter{}, NewHub(nil))}
	ack := &recordedAck{}
	consumer.process(context.Background(), []byte(`{"userId":"u1","message":"hi","type":"task_assigned","companyId":"c1","createdBy":"a1"}`), false, ack)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
	assert.False(t, ack.acked)
}

func TestDispatchConsumerDeadLettersRepeatedFailures(t *testing.T) {
	consumer := &DispatchConsumer{dispatcher: NewDispatcher(failingWriter{}, NewHub(nil))}
	ack := &recordedAck{}
	consumer.process(context.Background(), []byte(`{"userId":"u1","message":"hi","type":"task_assigned","companyId":"c1","createdBy":"a1"}`), true, ack)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.False(t, ack.acked)
}

var _ dispatcher = (*Dispatcher)(nil)
var _ NotificationEvents = (*AMQPPublisher)(nil)
var _ Handle = (*WSConn)(nil)
