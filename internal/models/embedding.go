package models

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string
	PageNumber int
	ChunkID    int
}

// ChunkEmbedding is a chunk ready to be written to a vector store.
type ChunkEmbedding struct {
	DocumentID string
	Content    string
	Embedding  []float32
	PageNumber int
	ChunkID    int
}

// Match is a stored chunk returned by a similarity search.
type Match struct {
	ChunkEmbedding
	Similarity float32
}

type PromptResponse struct {
	Query   string `json:"query"`
	Source  string `json:"source"`
	Content string `json:"content"`
}
