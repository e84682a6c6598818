// Package chunker splits raw document text into overlapping, metadata-tagged
// segments that serve as the unit of indexing and retrieval.
package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 500
	// DefaultOverlap is the number of characters shared by adjacent chunks.
	DefaultOverlap = 50
)

// Chunk is an immutable segment of a document's text. CharStart and CharEnd
// are byte offsets into the source text, always on rune boundaries, so
// CharEnd-CharStart == len(Text) and Text is valid UTF-8 whenever the source
// is.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Position   int               `json:"position"`
	Text       string            `json:"text"`
	CharStart  int               `json:"char_start"`
	CharEnd    int               `json:"char_end"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Chunker produces overlapping chunks of a configured size. Splits prefer
// paragraph boundaries, then sentence boundaries, and fall back to a hard
// character cut only when no boundary exists past the midpoint of the window.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Non-positive size falls back to DefaultChunkSize;
// overlap is clamped to half the chunk size so every chunk makes forward
// progress regardless of boundary placement.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size/2 {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Overlap returns the effective overlap after clamping.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into ordered chunks for the given document. Each chunk
// after the first begins overlap characters before the end of the previous
// one. Empty or blank text yields nil. Text shorter than the chunk size
// yields a single chunk spanning the full text. Chunking is deterministic:
// the same input always produces the same sequence.
func (c *Chunker) Chunk(documentID, text string, metadata map[string]string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + c.size
		if end >= len(text) {
			end = len(text)
		} else {
			end = runeAlign(text, c.boundary(text, start, end))
			if end <= start {
				// A window smaller than one rune: take the rune whole.
				_, n := utf8.DecodeRuneInString(text[start:])
				end = start + n
			}
		}

		pos := len(chunks)
		chunks = append(chunks, Chunk{
			ID:         documentID + ":" + strconv.Itoa(pos),
			DocumentID: documentID,
			Position:   pos,
			Text:       text[start:end],
			CharStart:  start,
			CharEnd:    end,
			Metadata:   copyMetadata(metadata),
		})

		if end == len(text) {
			break
		}
		next := runeAlign(text, end-c.overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// runeAlign backs pos off to the nearest rune start so no cut severs a
// multi-byte character. ASCII positions are returned unchanged.
func runeAlign(text string, pos int) int {
	for pos > 0 && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}

// sentenceEnders are boundary markers searched after paragraph breaks fail.
var sentenceEnders = []string{". ", "! ", "? ", "\n"}

// boundary returns the cut position for the window text[start:end], preferring
// a paragraph break, then a sentence end. A boundary is only taken if it lies
// past the midpoint of the window; otherwise the hard cut at end stands.
func (c *Chunker) boundary(text string, start, end int) int {
	window := text[start:end]
	half := c.size / 2

	if i := strings.LastIndex(window, "\n\n"); i > half {
		return start + i + 2
	}
	for _, delim := range sentenceEnders {
		if i := strings.LastIndex(window, delim); i > half {
			return start + i + len(delim)
		}
	}
	return end
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
