// Package answer orchestrates query embedding, index search, similarity
// filtering and citation-bearing answer assembly.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsight/finsight/internal/faults"
	"github.com/finsight/finsight/internal/index"
)

const (
	// DefaultTopK is the number of matches retrieved per question.
	DefaultTopK = 5
	// DefaultMinSimilarity is the score below which matches are discarded.
	DefaultMinSimilarity = 0.3

	// NoRelevantInformation is returned when no match survives the
	// similarity threshold. It is a result, not an error.
	NoRelevantInformation = "no relevant information found"
)

// Source is a retrieved chunk cited by an answer.
type Source struct {
	ChunkID    string            `json:"chunk_id"`
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text"`
	Similarity float64           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result is a composed answer with its supporting sources. Confidence is the
// top surviving match's similarity: a relative ranking signal, not a
// calibrated probability.
type Result struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources"`
}

// Embedder is the query-embedding surface the engine needs.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the index surface the engine needs.
type Searcher interface {
	Search(query []float32, k int) ([]index.Match, error)
}

// Engine answers questions over an index.
type Engine struct {
	embedder Embedder
	searcher Searcher
	facts    *Facts
}

// NewEngine creates an Engine. facts may be nil to disable enrichment.
func NewEngine(embedder Embedder, searcher Searcher, facts *Facts) *Engine {
	return &Engine{embedder: embedder, searcher: searcher, facts: facts}
}

// Answer retrieves the k best matches for question, discards those below
// minSimilarity, and composes a cited answer. With no surviving match it
// returns the NoRelevantInformation result with confidence 0 and no sources.
func (e *Engine) Answer(ctx context.Context, question string, k int, minSimilarity float64) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, fmt.Errorf("question: %w", faults.ErrEmptyInput)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	query, err := e.embedder.EmbedOne(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("embedding question: %w", err)
	}

	matches, err := e.searcher.Search(query, k)
	if err != nil {
		return Result{}, fmt.Errorf("searching index: %w", err)
	}

	var sources []Source
	for _, m := range matches {
		if m.Similarity < minSimilarity {
			continue
		}
		sources = append(sources, Source{
			ChunkID:    m.Chunk.ID,
			DocumentID: m.Chunk.DocumentID,
			Text:       m.Chunk.Text,
			Similarity: m.Similarity,
			Metadata:   m.Chunk.Metadata,
		})
	}

	if len(sources) == 0 {
		return Result{Answer: NoRelevantInformation, Confidence: 0, Sources: []Source{}}, nil
	}

	text := compose(sources)
	// Fact enrichment is a deterministic lookup appended after the retrieved
	// answer; it never affects confidence.
	if e.facts != nil {
		if enrichment := e.facts.Match(question); enrichment != "" {
			text += "\n\n" + enrichment
		}
	}

	return Result{
		Answer:     text,
		Confidence: sources[0].Similarity,
		Sources:    sources,
	}, nil
}
