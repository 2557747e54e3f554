package queue

import (
	"fmt"
	"time"

	"github.com/knowledgebase/netgraph/internal/util"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ImportQueue = "import_queue"
	Exchange    = "pubsub_exchange"

	TopicDatasetImported = "dataset.imported"

	retryDelayMs = 10000
)

// Queues lists every work queue the worker consumes.
var Queues = []string{ImportQueue}

// Enabled reports whether a broker is configured.
func Enabled() bool {
	return util.GetEnv("RABBITMQ_HOST") != ""
}

func Init() (*amqp091.Connection, error) {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupQueues declares the topic exchange and, per work queue, the queue
// itself, a dead-letter queue and a retry queue that routes back after a
// delay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	if err := declareExchange(ch); err != nil {
		return err
	}

	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelayMs),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("QueueDeclare %s failed: %w", retryName, err)
		}
	}
	return nil
}

func declareExchange(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		Exchange,
		"topic",
		false,
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("ExchangeDeclare failed: %w", err)
	}
	return nil
}

func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	return ch.Publish(
		"",
		q.Name,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

func PublishTopic(ch *amqp091.Channel, topic string, data []byte) error {
	if err := declareExchange(ch); err != nil {
		return err
	}

	return ch.Publish(
		Exchange,
		topic,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
		},
	)
}

// SubscribeTopic binds a private auto-delete queue to topic and returns its
// deliveries. Messages are acknowledged on receipt.
func SubscribeTopic(ch *amqp091.Channel, topic string) (<-chan amqp091.Delivery, error) {
	if err := declareExchange(ch); err != nil {
		return nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("QueueDeclare for %s failed: %w", topic, err)
	}
	if err := ch.QueueBind(q.Name, topic, Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("QueueBind %s failed: %w", topic, err)
	}
	return ch.Consume(q.Name, "", true, true, false, false, nil)
}
