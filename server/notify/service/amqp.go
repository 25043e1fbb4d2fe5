package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"workhub/server/common/apperr"
	"workhub/server/common/infra/mq"
	commonlog "workhub/server/common/log"
	"workhub/server/notify/domain"
)

const notificationCreatedKey = "notification.created"

// AMQPPublisher publishes notification.created events to the topic
// exchange, routed as "<company>.notification.created".
type AMQPPublisher struct {
	channel *amqp.Channel
}

func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := mq.DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &AMQPPublisher{channel: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, tenantID, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	routingKey := key
	if strings.TrimSpace(tenantID) != "" {
		routingKey = tenantID + "." + key
	}
	return p.channel.PublishWithContext(ctx, mq.EventsExchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

func (p *AMQPPublisher) NotificationCreated(ctx context.Context, n domain.Notification) error {
	return p.Publish(ctx, n.CompanyID, notificationCreatedKey, n)
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
}

type dispatcher interface {
	Dispatch(ctx context.Context, in domain.DispatchInput) (domain.Notification, error)
}

// DispatchConsumer feeds messages from the dispatch queue into Dispatch so
// out-of-process collaborators can notify without calling the HTTP API.
type DispatchConsumer struct {
	channel    *amqp.Channel
	dispatcher dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewDispatchConsumer(conn *amqp.Connection, d dispatcher) (*DispatchConsumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := mq.DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &DispatchConsumer{channel: ch, dispatcher: d}, nil
}

func (c *DispatchConsumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.Consume(mq.DispatchQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-deliveries:
				if !ok {
					return
				}
				c.handle(runCtx, msg)
			}
		}
	}()
	return nil
}

// Ack is the subset of amqp.Delivery the handler needs.
type Ack interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *DispatchConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	c.process(ctx, msg.Body, msg.Redelivered, &msg)
}

// process dispatches one message. Malformed or invalid input is rejected.
// Other failures are requeued once; a redelivered message that fails again
// is rejected to the dead letter queue instead of looping.
func (c *DispatchConsumer) process(ctx context.Context, body []byte, redelivered bool, ack Ack) {
	var in domain.DispatchInput
	if err := json.Unmarshal(body, &in); err != nil {
		commonlog.Warnf("event=notify_consumer action=decode status=rejected error=%v", err)
		_ = ack.Nack(false, false)
		return
	}
	if _, err := c.dispatcher.Dispatch(ctx, in); err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			commonlog.Warnf("event=notify_consumer action=dispatch status=rejected user_id=%s error=%v", in.UserID, err)
			_ = ack.Nack(false, false)
			return
		}
		if redelivered {
			commonlog.Errorf("event=notify_consumer action=dispatch status=dead_lettered user_id=%s error=%v", in.UserID, err)
			_ = ack.Nack(false, false)
			return
		}
		commonlog.Errorf("event=notify_consumer action=dispatch status=requeued user_id=%s error=%v", in.UserID, err)
		_ = ack.Nack(false, true)
		return
	}
	_ = ack.Ack(false)
}

func (c *DispatchConsumer) Close() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	if c.channel != nil {
		_ = c.channel.Close()
	}
}
