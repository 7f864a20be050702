package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/munehide1933/rag-system/engine/cache"
	"github.com/munehide1933/rag-system/pkg/fn"
)

// Extensions lists the file types IngestDirectory picks up.
var Extensions = []string{".txt", ".md", ".pdf", ".html", ".htm"}

// CollectFiles returns the supported files under dir, sorted.
func CollectFiles(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: %s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if slices.Contains(Extensions, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}

// duplicateStems groups files whose names share a stem. Point IDs derive
// from the stem, so later files in a group overwrite earlier ones' points.
func duplicateStems(files []string) map[string][]string {
	byStem := make(map[string][]string)
	for _, f := range files {
		byStem[stem(f)] = append(byStem[stem(f)], f)
	}
	for k, v := range byStem {
		if len(v) < 2 {
			delete(byStem, k)
		}
	}
	return byStem
}

type statser interface {
	Stats() (cache.Stats, error)
}

// IngestDirectory processes every supported file under dir in batches of
// processing.batch_size: process, embed, upload. Document errors follow
// processing.skip_errors and processing.max_errors; upload errors are fatal.
// On cancellation the current batch is finished and ErrInterrupted returned.
func (in *Ingester) IngestDirectory(ctx context.Context, dir string, opts Options) (Summary, error) {
	start := time.Now()
	var sum Summary

	files, err := CollectFiles(dir, opts.Recursive)
	if err != nil {
		return sum, err
	}
	sum.Files = len(files)
	if len(files) == 0 {
		in.log.Warn("ingest: no supported files found", "dir", dir)
		return in.finish(sum, start), nil
	}
	in.log.Info("ingest: starting", "dir", dir, "files", len(files), "recursive", opts.Recursive)
	for st, paths := range duplicateStems(files) {
		in.log.Warn("ingest: files share a stem, their point IDs collide", "stem", st, "files", paths)
	}

	p := in.cfg.Processing
	interrupted := false
	for bi, batch := range fn.Chunk(files, max(p.BatchSize, 1)) {
		if ctx.Err() != nil {
			interrupted = true
			break
		}

		var docs []Document
		for _, path := range batch {
			if ctx.Err() != nil {
				interrupted = true
				break
			}
			chunks, category, err := in.processDocument(ctx, path, opts.Category)
			switch {
			case err != nil:
				sum.Failed++
				in.mFailed.Inc()
				in.log.Error("ingest: document failed", "path", path, "error", err)
				in.publish(ctx, Event{Source: path, Category: category, Status: StatusFailed, Error: err.Error()})
				if !p.SkipErrors {
					return in.finish(sum, start), fmt.Errorf("ingest: %s: %w", path, err)
				}
				if p.MaxErrors > 0 && sum.Failed > p.MaxErrors {
					return in.finish(sum, start), fmt.Errorf("%w: %d failures", ErrTooManyErrors, sum.Failed)
				}
			case len(chunks) == 0:
				sum.Skipped++
				in.publish(ctx, Event{Source: path, Category: category, Status: StatusSkipped})
			default:
				sum.Documents++
				docs = append(docs, chunks...)
				in.publish(ctx, Event{Source: path, Category: category, Chunks: len(chunks), Status: StatusOK})
			}
		}
		if len(docs) == 0 {
			continue
		}

		// Work already done in this batch is finished even after cancellation.
		rctx := context.WithoutCancel(ctx)
		if err := in.EmbedDocuments(rctx, docs); err != nil {
			if !p.SkipErrors {
				return in.finish(sum, start), err
			}
			sum.BatchesFailed++
			in.mBatchesFailed.Inc()
			in.log.Error("ingest: batch embedding failed, skipping batch", "batch", bi, "chunks", len(docs), "error", err)
			continue
		}
		if err := in.Upload(rctx, docs); err != nil {
			return in.finish(sum, start), err
		}

		sum.Chunks += len(docs)
		sum.ZeroVectors += len(fn.Filter(docs, func(d Document) bool { return !d.Vector.OK }))
		in.log.Info("ingest: batch done", "batch", bi, "chunks", len(docs), "total_chunks", sum.Chunks)
	}

	sum = in.finish(sum, start)
	if interrupted {
		return sum, ErrInterrupted
	}
	return sum, nil
}

func (in *Ingester) publish(ctx context.Context, ev Event) {
	if in.deps.Events == nil {
		return
	}
	if err := in.deps.Events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		in.log.Warn("ingest: event publish failed", "source", ev.Source, "error", err)
	}
}

// finish stamps the duration, snapshots metrics and cache stats and logs the
// run report.
func (in *Ingester) finish(sum Summary, start time.Time) Summary {
	sum.Duration = time.Since(start)
	sum.Metrics = in.deps.Metrics.Snapshot()
	if s, ok := in.deps.Cache.(statser); ok {
		if st, err := s.Stats(); err == nil {
			sum.Cache = &st
		} else {
			in.log.Warn("ingest: cache stats failed", "error", err)
		}
	}

	in.log.Info("ingest: run finished",
		"files", sum.Files,
		"documents", sum.Documents,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"batches_failed", sum.BatchesFailed,
		"chunks", sum.Chunks,
		"zero_vectors", sum.ZeroVectors,
		"duration", sum.Duration.Round(time.Millisecond),
	)
	for name, st := range sum.Metrics.Histograms {
		if st.Count == 0 {
			continue
		}
		in.log.Info("ingest: timer", "name", name, "count", st.Count, "total", st.Sum, "avg", st.Avg, "min", st.Min, "max", st.Max)
	}
	for name, v := range sum.Metrics.Counters {
		in.log.Debug("ingest: counter", "name", name, "value", v)
	}
	return sum
}
