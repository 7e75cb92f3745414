package domain

import "time"

// ChunkMetadata carries the back-references stored with every vector entry.
// Field names match the persisted metadata layout consumed by the vector
// store and by citations. SourcePath is trusted-side only and must be
// stripped before results cross the server boundary.
type ChunkMetadata struct {
	DocumentID         string    `json:"document_id"`
	Filename           string    `json:"filename"`
	ChunkIndex         int       `json:"chunk_index"`
	ChunkCount         int       `json:"chunk_count"`
	ChunkingStrategy   string    `json:"chunking_strategy"`
	EmbeddingModel     string    `json:"embedding_model"`
	Source             string    `json:"source,omitempty"`
	SourcePath         string    `json:"source_path,omitempty"`
	TimestampRange     string    `json:"timestamp_range,omitempty"`
	IngestionTimestamp time.Time `json:"ingestion_timestamp"`
}

// Sanitized returns a copy safe to hand to callers outside the trusted
// server boundary: raw filesystem paths are dropped, caller-safe fields
// (filename, public URL, chunk position) are kept.
func (m ChunkMetadata) Sanitized() ChunkMetadata {
	out := m
	out.SourcePath = ""
	return out
}

// Chunk is the (vector, text, metadata) tuple persisted per collection.
// Chunks are derived entities: they are not addressable by callers and live
// and die with their IngestedFile.
type Chunk struct {
	ID           string
	CollectionID string
	FileID       string
	Index        int
	Count        int
	Content      string
	Metadata     ChunkMetadata
	Embedding    []float32
	CreatedAt    time.Time
}

// RetrievalResult is the transient, in-memory product of a similarity query.
type RetrievalResult struct {
	Similarity float64
	Content    string
	Metadata   ChunkMetadata
}

// Citation is a back-reference from an assembled answer to the chunk that
// grounded it.
type Citation struct {
	FileID     string `json:"file_id"`
	Filename   string `json:"filename"`
	SourceURL  string `json:"source_url,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	ChunkCount int    `json:"chunk_count"`
}

// CitationFor builds the citation for a retrieval result.
func CitationFor(r RetrievalResult) Citation {
	return Citation{
		FileID:     r.Metadata.DocumentID,
		Filename:   r.Metadata.Filename,
		SourceURL:  r.Metadata.Source,
		ChunkIndex: r.Metadata.ChunkIndex,
		ChunkCount: r.Metadata.ChunkCount,
	}
}
