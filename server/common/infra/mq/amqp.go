package mq

import amqp "github.com/rabbitmq/amqp091-go"

const (
	EventsExchange = "workhub.events"
	DispatchQueue  = "workhub.notify.dispatch"
	// DispatchBindingKey routes "<tenant>.notification.dispatch" messages
	// published on the events exchange into the dispatch queue.
	DispatchBindingKey = "*.notification.dispatch"
	// DispatchDeadQueue collects dispatch messages the consumer gave up on.
	DispatchDeadQueue = "workhub.notify.dispatch.dead"
)

func NewConnection(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

// DeclareTopology declares the events exchange, the durable dispatch queue
// bound to it, and the queue rejected dispatch messages are dead-lettered to.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DispatchDeadQueue, true, false, false, false, nil); err != nil {
		return err
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": DispatchDeadQueue,
	}
	if _, err := ch.QueueDeclare(DispatchQueue, true, false, false, false, args); err != nil {
		return err
	}
	return ch.QueueBind(DispatchQueue, DispatchBindingKey, EventsExchange, false, nil)
}
