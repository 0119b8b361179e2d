package notify

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DialEmailQueue connects to RabbitMQ, declares the durable queue and returns a sink
// publishing to it together with a function closing the connection.
func DialEmailQueue(url, queue, currency string, logger *zap.Logger) (*EmailQueue, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	closeFn := func() error {
		ch.Close()
		return conn.Close()
	}
	return NewEmailQueue(ch, queue, currency, logger), closeFn, nil
}
