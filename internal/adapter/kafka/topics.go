package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"docstream/internal/config"
)

func topicConfigs() []kafka.TopicConfig {
	return []kafka.TopicConfig{
		{
			Topic:             config.TopicIngestion,
			NumPartitions:     config.IngestionPartitions,
			ReplicationFactor: 1,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: retentionMS(config.IngestionRetention)},
				{ConfigName: "cleanup.policy", ConfigValue: "delete"},
			},
		},
		{
			Topic:             config.TopicRetry,
			NumPartitions:     config.RetryPartitions,
			ReplicationFactor: 1,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: retentionMS(config.RetryRetention)},
				{ConfigName: "cleanup.policy", ConfigValue: "delete"},
			},
		},
		{
			// Compacted so dead letters stay inspectable per key for the
			// whole retention window.
			Topic:             config.TopicDLQ,
			NumPartitions:     config.DLQPartitions,
			ReplicationFactor: 1,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: retentionMS(config.DLQRetention)},
				{ConfigName: "cleanup.policy", ConfigValue: "compact"},
			},
		},
	}
}

func retentionMS(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// EnsureTopics provisions the three topics at startup. Failure after the
// internal retries is fatal to the caller: consuming without the retry
// and dead-letter topics would strand failed messages.
func EnsureTopics(ctx context.Context, broker string) error {
	client := &kafka.Client{Addr: kafka.TCP(broker)}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		lastErr = createTopics(ctx, client)
		if lastErr == nil {
			slog.Info("log topics provisioned",
				"topics", []string{config.TopicIngestion, config.TopicRetry, config.TopicDLQ})
			return nil
		}
		slog.Warn("topic provisioning failed", "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return fmt.Errorf("provision topics: %w", lastErr)
}

func createTopics(ctx context.Context, client *kafka.Client) error {
	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: topicConfigs(),
	})
	if err != nil {
		return err
	}

	for topic, topicErr := range resp.Errors {
		if topicErr == nil || errors.Is(topicErr, kafka.TopicAlreadyExists) {
			continue
		}
		return fmt.Errorf("create topic %s: %w", topic, topicErr)
	}
	return nil
}
