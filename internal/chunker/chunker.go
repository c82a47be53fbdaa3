// Package chunker splits extracted document text into overlapping,
// token-bounded segments.
//
// Chunk boundaries are measured in model token units (via tiktoken) rather
// than characters, so they align with how the embedding and generation
// models consume text. Chunking is a pure function of the input text and
// the size/overlap parameters; the deterministic chunk IDs derived from it
// make re-ingestion an idempotent overwrite.
package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is a bounded, overlapping segment of a source document's text,
// the unit of embedding and retrieval.
type Chunk struct {
	// ID is "{source}-{position}". Unique within a source and stable
	// across re-chunking of identical input.
	ID string

	// Source is the originating document's file name.
	Source string

	// Position is the zero-based index of this chunk within the document,
	// assigned in document order.
	Position int

	// Text is the chunk content.
	Text string

	// TokenCount is the chunk length in tokens of the configured encoding.
	TokenCount int
}

// Chunker produces ordered chunk sequences from document text.
type Chunker struct {
	encoding *tiktoken.Tiktoken
	size     int
	overlap  int
}

// New creates a Chunker for the named tiktoken encoding (e.g. "o200k_base").
// size is the target chunk length in tokens; overlap is the number of tokens
// shared between consecutive chunks and must be smaller than size.
func New(encodingName string, size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got %d with size %d", overlap, size)
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("loading token encoding %q: %w", encodingName, err)
	}

	return &Chunker{
		encoding: encoding,
		size:     size,
		overlap:  overlap,
	}, nil
}

// Split chunks text into overlapping token windows attributed to source.
//
// The window advances by (size - overlap) tokens, so consecutive chunks
// share exactly overlap tokens and concatenating the chunks minus their
// overlapping prefixes reconstructs the original token sequence. The
// trailing partial chunk is kept even when shorter than size; text shorter
// than one chunk yields exactly one chunk. Empty text yields no chunks.
func (c *Chunker) Split(source, text string) []Chunk {
	if text == "" {
		return nil
	}

	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	chunks := make([]Chunk, 0, len(tokens)/stride+1)

	for start, position := 0, 0; start < len(tokens); start, position = start+stride, position+1 {
		end := min(start+c.size, len(tokens))

		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			ID:         ChunkID(source, position),
			Source:     source,
			Position:   position,
			Text:       c.encoding.Decode(window),
			TokenCount: len(window),
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks
}

// CountTokens returns the token length of text in the chunker's encoding.
func (c *Chunker) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// ChunkID builds the deterministic chunk identifier for a source document
// and zero-based position.
func ChunkID(source string, position int) string {
	return fmt.Sprintf("%s-%d", source, position)
}
