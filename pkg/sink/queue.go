package sink

import (
	"context"
	"encoding/json"

	"github.com/84hero/stream-gateway/pkg/event"
	"github.com/IBM/sarama"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Queue sinks hand the canonical event JSON to a broker for downstream
// consumers; no presentation formatting is applied.

// --- 7. Redis Sink ---

type RedisSink struct {
	client *redis.Client
	key    string
	mode   string // "list" or "pubsub"
}

func NewRedisSink(addr, password string, db int, key, mode string) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisSink{client: rdb, key: key, mode: mode}, nil
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Format(ev event.TransferEvent) (Message, error) {
	return Message{Event: ev}, nil
}

func (r *RedisSink) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		return Permanent(err)
	}
	if r.mode == "pubsub" {
		return r.client.Publish(ctx, r.key, data).Err()
	}
	return r.client.LPush(ctx, r.key, data).Err()
}

func (r *RedisSink) Close() error { return r.client.Close() }

// --- 8. Kafka Sink ---

type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaSink(brokers []string, topic, user, password string) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	if user != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = user
		config.Net.SASL.Password = password
	}
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{producer: producer, topic: topic}, nil
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Format(ev event.TransferEvent) (Message, error) {
	return Message{Event: ev}, nil
}

func (k *KafkaSink) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		return Permanent(err)
	}
	// Keying by tx hash keeps redeliveries of one event in one partition
	_, _, err = k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(msg.Event.TransactionHash),
		Value: sarama.ByteEncoder(data),
	})
	return err
}

func (k *KafkaSink) Close() error { return k.producer.Close() }

// --- 9. RabbitMQ Sink ---

type RabbitMQSink struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

func NewRabbitMQSink(url, exchange, routingKey, queueName string, durable bool) (*RabbitMQSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if exchange != "" {
		err = ch.ExchangeDeclare(exchange, "topic", durable, false, false, false, nil)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}
	if queueName != "" {
		q, _ := ch.QueueDeclare(queueName, durable, false, false, false, nil)
		ch.QueueBind(q.Name, routingKey, exchange, false, nil)
	}
	return &RabbitMQSink{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (r *RabbitMQSink) Name() string { return "rabbitmq" }

func (r *RabbitMQSink) Format(ev event.TransferEvent) (Message, error) {
	return Message{Event: ev}, nil
}

func (r *RabbitMQSink) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		return Permanent(err)
	}
	return r.ch.PublishWithContext(ctx, r.exchange, r.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         data,
	})
}

func (r *RabbitMQSink) Close() error {
	r.ch.Close()
	return r.conn.Close()
}
