package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/munehide1933/rag-system/engine/cache"
	"github.com/munehide1933/rag-system/engine/chunk"
	"github.com/munehide1933/rag-system/engine/config"
	"github.com/munehide1933/rag-system/engine/embed"
	"github.com/munehide1933/rag-system/engine/graph"
	"github.com/munehide1933/rag-system/engine/ingest"
	"github.com/munehide1933/rag-system/engine/metadata"
	"github.com/munehide1933/rag-system/engine/normalize"
	"github.com/munehide1933/rag-system/engine/semantic"
	"github.com/munehide1933/rag-system/pkg/metrics"
	"github.com/munehide1933/rag-system/pkg/natsutil"
)

// managedCache is a cache the CLI can report on and clear.
type managedCache interface {
	cache.Store
	Stats() (cache.Stats, error)
	Clear() (int, error)
}

const backendBadger = "badger"

func openCache(p config.ProcessingConfig, log *slog.Logger) (managedCache, func() error, error) {
	if p.CacheBackend == backendBadger {
		s, err := cache.OpenBadger(p.CacheDir, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	s, err := cache.NewFileStore(p.CacheDir, log)
	if err != nil {
		return nil, nil, err
	}
	return s, func() error { return nil }, nil
}

func newEmbedder(cfg config.Config, log *slog.Logger, reg *metrics.Registry) (*embed.Client, error) {
	return embed.New(cfg.Embedding, cfg.Qdrant.VectorSize,
		embed.WithLogger(log),
		embed.WithMetrics(reg),
	)
}

// cleanup runs deferred closers in reverse order.
type cleanup []func() error

func (c *cleanup) add(f func() error) { *c = append(*c, f) }

func (c cleanup) run() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

// buildDeps wires the ingestion dependencies from configuration. Graph and
// event publishing are enabled when their URLs are configured.
func buildDeps(ctx context.Context, cfg config.Config, log *slog.Logger, reg *metrics.Registry) (ingest.Deps, cleanup, error) {
	var done cleanup
	fail := func(err error) (ingest.Deps, cleanup, error) {
		done.run()
		return ingest.Deps{}, nil, err
	}

	norm, err := normalize.New(normalize.Options{
		DefaultEncoding: cfg.Cleaning.DefaultEncoding,
		MinLineLength:   cfg.Cleaning.MinLineLength,
		CustomPatterns:  cfg.Cleaning.CustomPatterns,
		Logger:          log,
	})
	if err != nil {
		return fail(err)
	}

	mode, err := chunk.ParseMode(cfg.Chunking.Mode)
	if err != nil {
		return fail(err)
	}
	chunker := chunk.New(chunk.Options{
		Size:            cfg.Chunking.ChunkSize,
		Overlap:         cfg.Chunking.Overlap,
		MinSize:         cfg.Chunking.MinChunkSize,
		RespectSentence: cfg.Chunking.RespectSentence,
		Mode:            mode,
		Language:        cfg.Chunking.Language,
		UseStructural:   cfg.Chunking.UseStructural,
		UseStatistical:  cfg.Chunking.UseStatistical,
		CJKThreshold:    cfg.Chunking.CJKThreshold,
		Logger:          log,
	})
	log.Info("chunk: strategy ladder", "ladder", chunker.Ladder())

	var analyzer metadata.Analyzer
	if cfg.Metadata.Enrich {
		analyzer = metadata.ProseAnalyzer{}
	}

	embedder, err := newEmbedder(cfg, log, reg)
	if err != nil {
		return fail(err)
	}

	store, err := semantic.New(cfg.Qdrant.Addr(), cfg.Qdrant.Timeout)
	if err != nil {
		return fail(err)
	}
	done.add(store.Close)

	deps := ingest.Deps{
		Config:     cfg,
		Normalizer: norm,
		Chunker:    chunker,
		Metadata:   metadata.New(analyzer, cfg.Chunking.CJKThreshold, log),
		Embedder:   embedder,
		Store:      store,
		Metrics:    reg,
		Logger:     log,
	}

	if cfg.Processing.EnableCaching {
		c, closeFn, err := openCache(cfg.Processing, log)
		if err != nil {
			return fail(err)
		}
		done.add(closeFn)
		deps.Cache = c
	}

	if cfg.Neo4j.URI != "" {
		driver, err := graph.Connect(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
		if err != nil {
			return fail(err)
		}
		done.add(func() error { return driver.Close(context.Background()) })
		deps.Graph = graph.New(driver, log)
		log.Info("graph: connected", "uri", cfg.Neo4j.URI)
	}

	if cfg.NATS.URL != "" {
		nc, err := natsutil.Connect(cfg.NATS.URL, "ragctl", log)
		if err != nil {
			return fail(err)
		}
		done.add(func() error {
			if err := nc.Drain(); err != nil {
				return fmt.Errorf("nats drain: %w", err)
			}
			return nil
		})
		deps.Events = natsutil.NewPublisher[ingest.Event](nc, cfg.NATS.Subject)
		log.Info("natsutil: publishing events", "subject", cfg.NATS.Subject)
	}

	return deps, done, nil
}
