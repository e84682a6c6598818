package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/finsight/finsight/internal/api"
	"github.com/finsight/finsight/internal/cache"
	"github.com/finsight/finsight/internal/config"
	"github.com/finsight/finsight/internal/embedding"
	"github.com/finsight/finsight/internal/index"
	"github.com/finsight/finsight/internal/metrics"
	"github.com/finsight/finsight/internal/service"
	"github.com/finsight/finsight/internal/task"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the finsight server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "finsight version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	embCache, err := cache.New(cfg.Cache.Dir, cache.Options{
		MaxDiskEntries: cfg.Cache.MaxDiskEntries,
		HitsTotal:      m.CacheTotal,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() {
		if err := embCache.Close(); err != nil {
			logger.Warn("closing cache", "error", err)
		}
	}()

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	gateway := embedding.NewGateway(provider, embedding.Options{
		Cache:           embCache,
		Concurrency:     cfg.Embedding.Concurrency,
		MaxRetries:      cfg.Embedding.MaxRetries,
		EmbeddingsTotal: m.EmbeddingsTotal,
		Logger:          logger,
	})

	tasks := task.NewManager(task.Options{
		MaxWorkers:      cfg.Tasks.MaxWorkers,
		Retention:       time.Duration(cfg.Tasks.RetentionSec) * time.Second,
		SoftMemoryBytes: cfg.Tasks.SoftMemoryBytes,
		HardMemoryBytes: cfg.Tasks.HardMemoryBytes,
		Logger:          logger,
	})
	defer tasks.Close()

	knowledge := service.New(gateway, service.Options{
		ChunkSize:     cfg.Chunking.Size,
		ChunkOverlap:  cfg.Chunking.Overlap,
		TopK:          cfg.Retrieval.TopK,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		Tasks:         tasks,
		Logger:        logger,
	})

	// Restore a previously saved knowledge base, if any.
	indexPath := cfg.IndexPath()
	if index.Exists(indexPath) {
		if err := knowledge.Load(indexPath); err != nil {
			logger.Warn("could not load saved knowledge base, starting empty",
				"path", indexPath, "error", err)
		} else {
			stats := knowledge.Stats()
			logger.Info("knowledge base restored",
				"path", indexPath, "chunks", stats.TotalChunks)
		}
	}

	handler := api.NewHandler(api.Deps{
		Knowledge: knowledge,
		Tasks:     tasks,
		Metrics:   m,
		Token:     cfg.Server.APIKey,
		IndexPath: indexPath,
		Logger:    logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{Knowledge: knowledge})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("MCP stdio server error", "error", err)
		}
	}()
	logger.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		logger.Info("finsight listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Persist the knowledge base so a restart restores it.
	if knowledge.Stats().TotalChunks > 0 {
		if err := knowledge.Save(indexPath); err != nil {
			logger.Warn("could not save knowledge base on shutdown", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.Shutdown)*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newProvider(cfg config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return embedding.NewOllama(cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions), nil
	case "openai":
		return embedding.NewOpenAI(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
