package config

const (
	// TopicIngestFiling is the NSQ topic for filing ingestion tasks.
	TopicIngestFiling = "ingest.filing"

	// TopicIngestResult is the NSQ topic for ingestion outcomes (success/failure).
	TopicIngestResult = "ingest.result"

	// ChannelIngestWorker is the consumer channel of the ingestion worker.
	ChannelIngestWorker = "ingest_worker"
)
