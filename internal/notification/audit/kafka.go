package audit

import (
	"context"
	"errors"
	"strconv"

	"leadbooking_backend/internal/notification/fanout"
	"leadbooking_backend/platform/config"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors records onto a topic, keyed by tenant so a tenant's
// records stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaSink returns nil when no brokers are configured.
func NewKafkaSink(cfg config.KafkaConfig) *KafkaSink {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return nil
	}
	topic := cfg.GetKafkaAuditTopic()
	if topic == "" {
		topic = "leadbooking.fanout"
	}
	return NewKafkaSinkWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	})
}

func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Write(ctx context.Context, records []fanout.Record) error {
	if s == nil || s.writer == nil {
		return errors.New("kafka sink not configured")
	}
	if len(records) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.TenantID),
			Value: rec.Payload,
			Time:  rec.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(rec.Name)},
				{Key: "seq", Value: []byte(strconv.FormatUint(rec.Seq, 10))},
			},
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
