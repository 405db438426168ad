package vector

// Entry is one chunk embedding plus the metadata replicated into the index
// so retrieval never needs a join back to the relational store.
type Entry struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	PageNumber int
	Content    string
	Vector     []float32
}
