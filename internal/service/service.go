// Package service owns the knowledge base: one mutable index per instance,
// fed by the chunker and embedding gateway and queried by the answer engine.
// Instances are independent and injectable; there is no process-wide state.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/answer"
	"github.com/finsight/finsight/internal/chunker"
	"github.com/finsight/finsight/internal/faults"
	"github.com/finsight/finsight/internal/index"
	"github.com/finsight/finsight/internal/task"
)

// ingestBatchSize is the number of chunks embedded and indexed per step.
// Progress and cancellation checkpoints sit at these boundaries.
const ingestBatchSize = 32

// Embedder is the embedding surface the service needs.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Stats describes the current knowledge base.
type Stats struct {
	TotalChunks    int `json:"total_chunks"`
	Dimensionality int `json:"dimensionality"`
}

// Options configures a Knowledge service.
type Options struct {
	ChunkSize     int
	ChunkOverlap  int
	TopK          int
	MinSimilarity float64
	// Tasks enables asynchronous ingestion. Optional.
	Tasks  *task.Manager
	Logger *slog.Logger
}

// Knowledge is the retrieval-augmented document service.
type Knowledge struct {
	chunker  *chunker.Chunker
	embedder Embedder
	index    *index.Index
	facts    *answer.Facts
	engine   *answer.Engine
	tasks    *task.Manager
	logger   *slog.Logger

	topK   int
	minSim float64
}

// New creates a Knowledge service with an empty index.
func New(embedder Embedder, opts Options) *Knowledge {
	if opts.TopK <= 0 {
		opts.TopK = answer.DefaultTopK
	}
	if opts.MinSimilarity <= 0 {
		opts.MinSimilarity = answer.DefaultMinSimilarity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	idx := index.New()
	facts := answer.NewFacts(nil)
	return &Knowledge{
		chunker:  chunker.New(opts.ChunkSize, opts.ChunkOverlap),
		embedder: embedder,
		index:    idx,
		facts:    facts,
		engine:   answer.NewEngine(embedder, idx, facts),
		tasks:    opts.Tasks,
		logger:   opts.Logger,
		topK:     opts.TopK,
		minSim:   opts.MinSimilarity,
	}
}

// Facts exposes the enrichment table so callers can register precomputed
// metrics.
func (k *Knowledge) Facts() *answer.Facts { return k.facts }

// AddDocument chunks, embeds and indexes text synchronously, returning the
// number of chunks added. Blank text fails with an empty-input error.
func (k *Knowledge) AddDocument(ctx context.Context, text string, metadata map[string]string) (int, error) {
	chunks, err := k.prepare(text, metadata)
	if err != nil {
		return 0, err
	}

	added := 0
	for start := 0; start < len(chunks); start += ingestBatchSize {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		end := start + ingestBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		n, err := k.indexBatch(ctx, chunks[start:end])
		added += n
		if err != nil {
			return added, err
		}
	}

	k.logger.Info("document ingested", "document_id", chunks[0].DocumentID, "chunks", added)
	return added, nil
}

// AddDocumentAsync runs the same ingestion as a background task with
// per-batch progress. Cancellation is observed between batches, so a
// cancelled ingest may leave a partially populated index; callers recover a
// known-good state with Clear or by re-ingesting.
func (k *Knowledge) AddDocumentAsync(text string, metadata map[string]string) (*task.Task, error) {
	if k.tasks == nil {
		return nil, fmt.Errorf("background ingestion is not enabled")
	}
	chunks, err := k.prepare(text, metadata)
	if err != nil {
		return nil, err
	}

	t := k.tasks.Submit("ingest "+chunks[0].DocumentID, func(ctx context.Context, progress task.ProgressFunc) (any, error) {
		added := 0
		progress(0, len(chunks))
		for start := 0; start < len(chunks); start += ingestBatchSize {
			// Cancellation checkpoint at the batch boundary.
			if err := ctx.Err(); err != nil {
				return added, err
			}
			end := start + ingestBatchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			n, err := k.indexBatch(ctx, chunks[start:end])
			added += n
			if err != nil {
				return added, err
			}
			progress(added, len(chunks))
		}
		return added, nil
	})
	return t, nil
}

// Answer retrieves and composes an answer. Non-positive topK or negative
// minSimilarity fall back to the configured defaults.
func (k *Knowledge) Answer(ctx context.Context, question string, topK int, minSimilarity float64) (answer.Result, error) {
	if topK <= 0 {
		topK = k.topK
	}
	if minSimilarity < 0 {
		minSimilarity = k.minSim
	}
	return k.engine.Answer(ctx, question, topK, minSimilarity)
}

// Stats reports the chunk count and dimensionality of the index.
func (k *Knowledge) Stats() Stats {
	total, dim := k.index.Stats()
	return Stats{TotalChunks: total, Dimensionality: dim}
}

// Clear empties the knowledge base.
func (k *Knowledge) Clear() {
	k.index.Clear()
	k.logger.Info("knowledge base cleared")
}

// Save persists the knowledge base artifact pair.
func (k *Knowledge) Save(path string) error {
	return k.index.Save(path)
}

// Load replaces the knowledge base from the artifact pair at path.
func (k *Knowledge) Load(path string) error {
	return k.index.Load(path)
}

// prepare validates and chunks a document.
func (k *Knowledge) prepare(text string, metadata map[string]string) ([]chunker.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document text: %w", faults.ErrEmptyInput)
	}

	docID := ""
	if metadata != nil {
		docID = metadata["file_name"]
	}
	if docID == "" {
		docID = uuid.New().String()
	}

	chunks := k.chunker.Chunk(docID, text, metadata)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document text: %w", faults.ErrEmptyInput)
	}
	return chunks, nil
}

// indexBatch embeds one batch of chunks and appends it to the index.
func (k *Knowledge) indexBatch(ctx context.Context, chunks []chunker.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := k.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}
	if err := k.index.Add(vectors, chunks); err != nil {
		return 0, fmt.Errorf("indexing chunks: %w", err)
	}
	return len(chunks), nil
}
