package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/bookable/internal/logging"
)

// KafkaMessage is the record value published by KafkaNotifier. A downstream
// mailer consumes the topic and performs the actual delivery.
type KafkaMessage struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// KafkaNotifier publishes notifications to a topic with a synchronous
// producer, keyed by recipient so one recipient's messages stay ordered.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaProducer builds a SyncProducer that waits for all in-sync replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return p, nil
}

func NewKafkaNotifier(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}
}

func (n *KafkaNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	value, err := json.Marshal(KafkaMessage{Recipient: recipient, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("encode kafka message: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for k, v := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := n.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   n.topic,
		Key:     sarama.StringEncoder(recipient),
		Value:   sarama.ByteEncoder(value),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	logging.Debug(ctx, n.logger, "notification published",
		zap.String("topic", n.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
