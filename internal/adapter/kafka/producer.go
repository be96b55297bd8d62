package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer wraps a single shared writer for all three topics. The
// configuration is chosen for durability over throughput: every write
// waits for acknowledgment from all in-sync replicas, messages for one
// key hash to one partition, and each WriteMessages call is synchronous
// so broker-side retries cannot reorder a document's chunk stream.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(broker string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(broker),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			Compression:  kafka.Gzip,
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

// Close flushes outstanding writes before releasing the connection.
func (p *Producer) Close() error {
	slog.Info("closing log producer")
	return p.writer.Close()
}
