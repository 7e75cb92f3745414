package domain

import "time"

// ChunkingStrategy selects how a file's text units are split into chunks.
type ChunkingStrategy string

const (
	// StrategyFixed splits text into fixed-size character windows with
	// configurable overlap.
	StrategyFixed ChunkingStrategy = "fixed"
	// StrategyWholeUnit emits one chunk per text unit regardless of size.
	// Used when a caller wants minimal fragmentation, e.g. attaching a
	// single short file directly to an assistant.
	StrategyWholeUnit ChunkingStrategy = "whole_unit"
)

// IngestedFile records one successful ingestion of a source into a
// collection. Re-ingesting the same logical source always creates a new
// record; there is no implicit overwrite. Deleting the file removes its
// chunks.
type IngestedFile struct {
	ID           string
	CollectionID string
	Filename     string
	ByteSize     int64
	ContentType  string
	Plugin       string
	ChunkSize    int
	ChunkOverlap int
	Strategy     ChunkingStrategy
	SourceURL    string
	ChunkCount   int
	CreatedAt    time.Time
}
