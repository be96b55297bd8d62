package kafka

import (
	"github.com/segmentio/kafka-go"

	"docstream/internal/config"
)

// NewGroupReader joins the consumer group over the primary and retry
// topics. Offsets are committed explicitly by the coordinator, never on
// fetch: CommitMessages is the only commit path.
func NewGroupReader(broker, groupID string, batchSize int) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:       []string{broker},
		GroupID:       groupID,
		GroupTopics:   []string{config.TopicIngestion, config.TopicRetry},
		QueueCapacity: batchSize,
		MinBytes:      1,
		MaxBytes:      10 << 20,
		StartOffset:   kafka.FirstOffset,
	})
}
