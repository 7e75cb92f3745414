package ingest

import (
	"fmt"
	"strings"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// Piece is one chunk produced by Chunk, carrying a back-pointer to the
// originating unit's source metadata and its zero-based index within the
// file. Count is identical across all pieces of one call: the total pieces
// for the file, enabling "chunk i of N" citations.
type Piece struct {
	Text   string
	Source SourceMeta
	Index  int
	Count  int
}

// Chunk splits a file's text units into ordered chunks according to the
// given strategy. Indices are stable and file-scoped: they run across unit
// boundaries in unit order.
//
// Fixed strategy: rune windows of exactly size with the configured overlap,
// so a text of n runes (n ≥ size) yields ⌈(n−overlap)/(size−overlap)⌉ chunks
// and adjacent chunks share exactly overlap runes. overlap must be < size.
// Whole-unit strategy: one chunk per non-empty unit regardless of size.
//
// An empty (or whitespace-only) unit yields zero chunks, never an
// empty-string chunk. A unit shorter than size yields exactly one chunk.
func Chunk(units []TextUnit, strategy domain.ChunkingStrategy, size, overlap int) ([]Piece, error) {
	switch strategy {
	case domain.StrategyFixed:
		if size <= 0 {
			return nil, invalidChunkConfig(fmt.Sprintf("chunk size must be positive, got %d", size))
		}
		if overlap < 0 || overlap >= size {
			return nil, invalidChunkConfig(fmt.Sprintf("overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", overlap, size))
		}
	case domain.StrategyWholeUnit:
		// size/overlap ignored
	default:
		return nil, invalidChunkConfig(fmt.Sprintf("unknown strategy %q", strategy))
	}

	var pieces []Piece
	for _, unit := range units {
		text := strings.TrimSpace(unit.Text)
		if text == "" {
			continue
		}

		if strategy == domain.StrategyWholeUnit {
			pieces = append(pieces, Piece{Text: text, Source: unit.Source, Index: len(pieces)})
			continue
		}

		runes := []rune(text)
		stride := size - overlap
		for start := 0; start < len(runes); start += stride {
			end := start + size
			if end > len(runes) {
				end = len(runes)
			}
			pieces = append(pieces, Piece{
				Text:   string(runes[start:end]),
				Source: unit.Source,
				Index:  len(pieces),
			})
			if end == len(runes) {
				break
			}
		}
	}

	for i := range pieces {
		pieces[i].Count = len(pieces)
	}
	return pieces, nil
}

func invalidChunkConfig(detail string) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeInvalidChunkConfig, detail, domain.ErrInvalidChunkConfig)
}
