package config

import "time"

const (
	// TopicIngestion is the primary log for chunk embedding jobs.
	TopicIngestion = "ingestion"

	// TopicRetry receives failed jobs for redelivery with an incremented attempt.
	TopicRetry = "ingestion.retry"

	// TopicDLQ receives jobs that exhausted retries or failed validation.
	TopicDLQ = "ingestion.dlq"
)

const (
	IngestionPartitions = 10
	RetryPartitions     = 5
	DLQPartitions       = 3

	IngestionRetention = 7 * 24 * time.Hour
	RetryRetention     = 24 * time.Hour
	DLQRetention       = 30 * 24 * time.Hour
)
