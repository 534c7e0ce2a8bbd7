// Command vecmem-server runs the vecmem HTTP API: memory records with
// cached embeddings, semantic search, and contradiction/duplicate detection.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vecmem/vecmem/internal/config"
	"github.com/vecmem/vecmem/internal/embedding"
	"github.com/vecmem/vecmem/internal/engine"
	"github.com/vecmem/vecmem/internal/llm"
	"github.com/vecmem/vecmem/internal/server"
	"github.com/vecmem/vecmem/internal/storage"
	"github.com/vecmem/vecmem/internal/storage/postgres"
	"github.com/vecmem/vecmem/internal/storage/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func run(cfg *config.Config) error {
	embedGen, err := llm.NewEmbeddingGenerator(cfg.Embedding)
	if err != nil {
		return err
	}
	textGen, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		return err
	}
	log.Printf("vecmem: embeddings via %s, classification via %s", embedGen.GetModel(), textGen.GetModel())

	store, durable, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer durable.Close()

	cache, err := embedding.NewCache(cfg.Embedding.CacheMaxEntries, cfg.Embedding.CacheMaxAge, durable)
	if err != nil {
		return err
	}
	embedder := embedding.NewService(embedGen, cache, cfg.Embedding.Dimension)
	detector := engine.NewDetector(textGen, cfg.Detection)
	eng := engine.NewService(store, embedder, detector)
	defer eng.Close()

	if err := eng.Initialize(context.Background()); err != nil {
		return fmt.Errorf("startup maintenance failed: %w", err)
	}

	srv := server.New(cfg.Server, eng)
	if b, ok := embedGen.(server.BreakerStater); ok {
		srv.RegisterBreaker("embedding", b)
	}
	if b, ok := textGen.(server.BreakerStater); ok {
		srv.RegisterBreaker("classification", b)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case err := <-serveErr:
		return err
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// openStorage wires the configured record store plus the durable cache
// tier. The cache tier is always local SQLite, even when records live in
// PostgreSQL, so cached embeddings never cross the network.
func openStorage(cfg *config.Config) (storage.MemoryStore, storage.VectorCache, error) {
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	switch cfg.Storage.Engine {
	case "postgres":
		store, err := postgres.NewMemoryStore(cfg.Storage.PostgresDSN, cfg.Embedding.Dimension)
		if err != nil {
			return nil, nil, err
		}
		durable, err := sqlite.NewVectorCacheFile(filepath.Join(cfg.Storage.DataPath, "embedding_cache.db"))
		if err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, durable, nil

	default: // validated to "sqlite" by config.Load
		store, err := sqlite.NewMemoryStore(filepath.Join(cfg.Storage.DataPath, "vecmem.db"))
		if err != nil {
			return nil, nil, err
		}
		return store, sqlite.NewVectorCache(store.DB()), nil
	}
}
