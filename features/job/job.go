package job

import (
	"encoding/json"
	"time"
)

// Job is a dead-lettered index task. The consumer records one when a task
// exhausts its delivery instead of letting NSQ redeliver a poison message
// forever; operators replay it through the retry endpoint.
type Job struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Topic      string          `json:"topic"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Retries    int             `json:"retries"`
	CreatedAt  time.Time       `json:"created_at"`
}
