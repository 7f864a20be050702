// Package ingest turns files into chunk vectors in the vector store: it
// normalizes, extracts metadata, categorizes, chunks, embeds with a cache and
// uploads with deterministic point IDs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/munehide1933/rag-system/engine/cache"
	"github.com/munehide1933/rag-system/engine/chunk"
	"github.com/munehide1933/rag-system/engine/config"
	"github.com/munehide1933/rag-system/engine/embed"
	"github.com/munehide1933/rag-system/engine/graph"
	"github.com/munehide1933/rag-system/engine/metadata"
	"github.com/munehide1933/rag-system/engine/normalize"
	"github.com/munehide1933/rag-system/engine/semantic"
	"github.com/munehide1933/rag-system/pkg/fn"
	"github.com/munehide1933/rag-system/pkg/metrics"
	pb "github.com/qdrant/go-client/qdrant"
)

// minContentRunes is the decoded length below which a file is skipped.
const minContentRunes = 10

var (
	// ErrInterrupted is returned when the context is cancelled mid-run. The
	// batch in flight is still embedded and uploaded.
	ErrInterrupted = errors.New("ingest: interrupted")
	// ErrTooManyErrors is returned once processing.max_errors is exceeded.
	ErrTooManyErrors = errors.New("ingest: too many document errors")

	errTooShort = errors.New("ingest: content too short")
)

// Embedder produces vectors for texts, keeping positions aligned.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]embed.Vector, error)
	Dimension() int
}

// VectorStore is the subset of the Qdrant adapter the ingester writes to.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, size int, distance pb.Distance) (bool, error)
	Upsert(ctx context.Context, name string, records []semantic.VectorRecord) error
}

// GraphSink records documents and their entities.
type GraphSink interface {
	SaveDocument(ctx context.Context, doc graph.Document, mentions []graph.Mention) error
}

// EventPublisher receives one Event per source document.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Deps holds everything the ingester needs. Cache, Graph and Events are
// optional.
type Deps struct {
	Config     config.Config
	Normalizer *normalize.Normalizer
	Chunker    *chunk.Chunker
	Metadata   *metadata.Extractor
	Embedder   Embedder
	Store      VectorStore
	Cache      cache.Store
	Graph      GraphSink
	Events     EventPublisher
	Metrics    *metrics.Registry
	Logger     *slog.Logger
	// Sleep waits between upload batches. Defaults to fn.SleepContext.
	Sleep func(context.Context, time.Duration) error
}

// Ingester runs the ingestion pipeline.
type Ingester struct {
	deps    Deps
	cfg     config.Config
	log     *slog.Logger
	process fn.Stage[docState, docState]

	mProcessed     *metrics.Counter
	mFailed        *metrics.Counter
	mSkipped       *metrics.Counter
	mChunks        *metrics.Counter
	mCacheHits     *metrics.Counter
	mCacheMisses   *metrics.Counter
	mGenerated     *metrics.Counter
	mEmbedFailed   *metrics.Counter
	mUploaded      *metrics.Counter
	mBatchesFailed *metrics.Counter
}

// New validates deps and builds the document pipeline.
func New(deps Deps) (*Ingester, error) {
	if deps.Normalizer == nil || deps.Chunker == nil || deps.Metadata == nil {
		return nil, errors.New("ingest: normalizer, chunker and metadata extractor are required")
	}
	if deps.Embedder == nil || deps.Store == nil {
		return nil, errors.New("ingest: embedder and vector store are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Sleep == nil {
		deps.Sleep = fn.SleepContext
	}

	reg := deps.Metrics
	in := &Ingester{
		deps: deps,
		cfg:  deps.Config,
		log:  deps.Logger,

		mProcessed:     reg.Counter("rag_documents_processed_total", "Source documents chunked"),
		mFailed:        reg.Counter("rag_documents_failed_total", "Source documents that failed processing"),
		mSkipped:       reg.Counter("rag_documents_skipped_total", "Source documents skipped as too short"),
		mChunks:        reg.Counter("rag_chunks_created_total", "Chunks produced"),
		mCacheHits:     reg.Counter("rag_cache_hits_total", "Chunk vectors served from the cache"),
		mCacheMisses:   reg.Counter("rag_cache_misses_total", "Chunk vectors not in the cache"),
		mGenerated:     reg.Counter("rag_embeddings_generated_total", "Chunk vectors returned by the provider"),
		mEmbedFailed:   reg.Counter("rag_embeddings_failed_total", "Chunks given zero placeholder vectors"),
		mUploaded:      reg.Counter("rag_points_uploaded_total", "Points upserted to the vector store"),
		mBatchesFailed: reg.Counter("rag_batches_failed_total", "File batches dropped after an embedding error"),
	}
	in.process = in.pipeline()
	return in, nil
}

// EnsureCollection creates the configured collection when missing.
func (in *Ingester) EnsureCollection(ctx context.Context) error {
	q := in.cfg.Qdrant
	distance, err := semantic.ParseDistance(q.DistanceMetric)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	size := q.VectorSize
	if d := in.deps.Embedder.Dimension(); d > 0 {
		size = d
	}
	created, err := in.deps.Store.EnsureCollection(ctx, q.CollectionName, size, distance)
	if err != nil {
		return fmt.Errorf("ingest: ensure collection: %w", err)
	}
	if created {
		in.log.Info("ingest: collection created", "collection", q.CollectionName, "size", size, "distance", distance.String())
	}
	return nil
}

// docState flows through the document pipeline.
type docState struct {
	path     string
	category string
	doc      normalize.Document
	text     string
	meta     metadata.Metadata
	chunks   []chunk.Chunk
}

func (in *Ingester) stage(name string, s fn.Stage[docState, docState]) fn.Stage[docState, docState] {
	hist := in.deps.Metrics.Histogram(
		metrics.WithLabels("rag_stage_duration_seconds", "stage", name),
		"Document pipeline stage latency", nil)
	return fn.TracedStage("ingest."+name, fn.TimedStage(hist, s))
}

func (in *Ingester) pipeline() fn.Stage[docState, docState] {
	load := in.stage("load", fn.TryStage(func(_ context.Context, s docState) (docState, error) {
		raw, err := os.ReadFile(s.path)
		if err != nil {
			return s, fmt.Errorf("ingest: read %s: %w", s.path, err)
		}
		s.doc = normalize.Document{Source: s.path, Type: normalize.TypeOf(s.path), Raw: raw}
		return s, nil
	}))

	decode := in.stage("decode", fn.TryStage(func(_ context.Context, s docState) (docState, error) {
		text, err := in.deps.Normalizer.Text(s.doc)
		if err != nil {
			return s, err
		}
		if utf8.RuneCountInString(strings.TrimSpace(text)) < minContentRunes {
			return s, errTooShort
		}
		s.text = text
		return s, nil
	}))

	clean := in.stage("clean", fn.MapStage(func(s docState) docState {
		s.text = in.deps.Normalizer.Clean(s.text, s.doc.Type)
		return s
	}))

	extract := in.stage("metadata", fn.MapStage(func(s docState) docState {
		s.meta = in.deps.Metadata.Extract(s.text, s.path)
		return s
	}))

	categorize := in.stage("categorize", fn.MapStage(func(s docState) docState {
		if s.category == "" {
			s.category = in.cfg.Categorize(s.text).Name
		}
		return s
	}))

	split := in.stage("chunk", fn.MapStage(func(s docState) docState {
		s.chunks = in.deps.Chunker.Chunk(stem(s.path), s.text)
		return s
	}))

	return fn.Then(load, fn.Then(decode, fn.Then(clean, fn.Then(extract, fn.Then(categorize, split)))))
}

// ProcessDocument turns one file into chunk documents. A file whose decoded
// content is shorter than ten characters yields no documents and no error.
func (in *Ingester) ProcessDocument(ctx context.Context, path, category string) ([]Document, error) {
	docs, _, err := in.processDocument(ctx, path, category)
	return docs, err
}

func (in *Ingester) processDocument(ctx context.Context, path, category string) ([]Document, string, error) {
	s, err := in.process(ctx, docState{path: path, category: category}).Unwrap()
	if errors.Is(err, errTooShort) {
		in.log.Warn("ingest: content too short, skipping", "path", path)
		in.mSkipped.Inc()
		return nil, s.category, nil
	}
	if err != nil {
		return nil, category, err
	}

	if in.deps.Graph != nil {
		gdoc, mentions := graph.FromMetadata(s.meta, s.category, string(s.doc.Type), len(s.chunks))
		if err := in.deps.Graph.SaveDocument(ctx, gdoc, mentions); err != nil {
			in.log.Warn("ingest: graph save failed", "path", path, "error", err)
		}
	}

	base := s.meta.Payload()
	base["category"] = s.category
	base["file_type"] = string(s.doc.Type)
	base["file_name"] = filepath.Base(path)

	docs := make([]Document, len(s.chunks))
	for i, c := range s.chunks {
		md := maps.Clone(base)
		md["chunk_index"] = c.Index
		md["total_chunks"] = c.Total
		docs[i] = Document{ID: c.ID, Source: path, Text: c.Text, Metadata: md}
	}

	in.mProcessed.Inc()
	in.mChunks.Add(int64(len(docs)))
	in.log.Info("ingest: document processed", "path", path, "category", s.category, "chunks", len(docs))
	return docs, s.category, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
