package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/finsight/finsight/internal/cache"
	"github.com/finsight/finsight/internal/faults"
	"github.com/finsight/finsight/internal/task"
)

const defaultConcurrency = 4

// Options configures a Gateway.
type Options struct {
	// Cache memoizes vectors by fingerprint of provider name and text.
	// Optional; nil disables caching.
	Cache *cache.Cache
	// Concurrency bounds parallel provider calls in EmbedBatch.
	Concurrency int
	// MaxRetries bounds re-attempts of a failed provider call. Only
	// transient failures are retried.
	MaxRetries int
	// EmbeddingsTotal, if set, counts embeddings with label result
	// ("ok"/"cached"/"degraded").
	EmbeddingsTotal *prometheus.CounterVec
	Logger          *slog.Logger
}

// Gateway fronts a Provider. Initialization is lazy: the provider is probed
// on first use, concurrent first calls collapse into a single probe, and a
// successful probe is never repeated. Batch embedding preserves input order
// and degrades per-text failures to neutral zero vectors instead of aborting.
type Gateway struct {
	provider    Provider
	cache       *cache.Cache
	concurrency int
	maxRetries  int
	logger      *slog.Logger
	total       *prometheus.CounterVec

	initGroup singleflight.Group
	ready     atomic.Bool
	dim       atomic.Int64 // learned from the first vector seen, provider or cache
}

// NewGateway creates a Gateway over the given provider.
func NewGateway(p Provider, opts Options) *Gateway {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		provider:    p,
		cache:       opts.Cache,
		concurrency: concurrency,
		maxRetries:  opts.MaxRetries,
		logger:      logger,
		total:       opts.EmbeddingsTotal,
	}
}

// Dimensions returns the learned vector length, falling back to the
// provider's declared value before the first successful embedding.
func (g *Gateway) Dimensions() int {
	if d := g.dim.Load(); d > 0 {
		return int(d)
	}
	return g.provider.Dimensions()
}

// ensureReady probes the provider exactly once across concurrent first calls.
// A failed probe is retried on the next call.
func (g *Gateway) ensureReady(ctx context.Context) error {
	if g.ready.Load() {
		return nil
	}
	_, err, _ := g.initGroup.Do("ready", func() (any, error) {
		if g.ready.Load() {
			return nil, nil
		}
		if err := g.provider.Ready(ctx); err != nil {
			return nil, fmt.Errorf("initializing embedding provider %s: %w", g.provider.Name(), err)
		}
		g.ready.Store(true)
		return nil, nil
	})
	return err
}

// EmbedOne embeds a single text, typically a query. Unlike EmbedBatch it
// surfaces failures to the caller: a query that cannot be embedded cannot be
// answered.
func (g *Gateway) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if err := g.ensureReady(ctx); err != nil {
		return nil, err
	}
	vec, cached, err := g.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if cached {
		g.count("cached")
	} else {
		g.count("ok")
	}
	return vec, nil
}

// EmbedBatch embeds texts preserving order and one-to-one correspondence.
// A per-text failure yields a zero vector for that text and is recorded, so
// every chunk still gets a vector and the index stays consistent; search
// quality for the failed item degrades. Zero vectors are sized from the
// dimensionality known at the end of the batch; if nothing has established
// one the batch fails rather than emit vectors the index would reject.
// Cancellation aborts the batch.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := g.ensureReady(ctx); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for i, text := range texts {
		eg.Go(func() error {
			// Cancellation checkpoint at the item boundary.
			if err := egCtx.Err(); err != nil {
				return err
			}
			vec, cached, err := g.embed(egCtx, text)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				report := faults.Classify(err)
				g.logger.Warn("embedding degraded to neutral vector",
					"text_index", i, "category", report.Category, "error", err)
				g.count("degraded")
				return nil
			}
			if cached {
				g.count("cached")
			} else {
				g.count("ok")
			}
			results[i] = vec
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Degraded slots are sized after the batch completes so they adopt the
	// dimensionality learned from successes and cache hits in the same batch.
	dim := g.Dimensions()
	for i := range results {
		if len(results[i]) > 0 {
			continue
		}
		if dim == 0 {
			return nil, fmt.Errorf("vector dimensionality unknown, cannot degrade failed texts: %w", faults.ErrEmbeddingFailure)
		}
		results[i] = make([]float32, dim)
	}
	return results, nil
}

// embed resolves one text through the cache, calling the provider on a miss.
func (g *Gateway) embed(ctx context.Context, text string) (vec []float32, cached bool, err error) {
	var key string
	if g.cache != nil {
		key = cache.Fingerprint(g.provider.Name(), text)
		if data, ok := g.cache.Get(key); ok {
			if vec, err := bytesToVector(data); err == nil {
				g.dim.CompareAndSwap(0, int64(len(vec)))
				return vec, true, nil
			}
			g.logger.Warn("discarding undecodable cached embedding", "key", key)
		}
	}

	err = task.Retry(ctx, g.maxRetries, 0, func(ctx context.Context) error {
		v, embedErr := g.provider.Embed(ctx, text)
		if embedErr != nil {
			return fmt.Errorf("%v: %w", embedErr, faults.ErrEmbeddingFailure)
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	g.dim.CompareAndSwap(0, int64(len(vec)))

	if g.cache != nil {
		if err := g.cache.Set(key, vectorToBytes(vec)); err != nil {
			g.logger.Warn("failed to cache embedding", "key", key, "error", err)
		}
	}
	return vec, false, nil
}

func (g *Gateway) count(result string) {
	if g.total != nil {
		g.total.WithLabelValues(result).Inc()
	}
}
