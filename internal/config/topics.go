package config

// NSQ topics.
const (
	// TopicIndexTask carries "embed and upsert this document's chunks"
	// requests, the second phase of ingestion.
	TopicIndexTask = "index.task"
)
