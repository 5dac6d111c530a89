package config

import (
	"github.com/segmentio/kafka-go"
)

// NewKafkaWriter returns a writer for topic, or nil when no brokers are configured.
func NewKafkaWriter(cfg KafkaConfig, topic string) *kafka.Writer {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same key, same partition: per-order ordering
		AllowAutoTopicCreation: true,
	}
}
