package ingest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/munehide1933/rag-system/engine/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), engineText)
	writeFile(t, filepath.Join(dir, "b.MD"), "# Notes\n\nBrake pads wear down over time. Replace them when they get thin.")
	writeFile(t, filepath.Join(dir, "tiny.txt"), "short")
	writeFile(t, filepath.Join(dir, "data.csv"), "a,b,c\n1,2,3\n")
	writeFile(t, filepath.Join(dir, "sub", "c.html"), "<p>Oil filters trap dirt before it reaches the engine.</p>")
	return dir
}

func TestCollectFiles(t *testing.T) {
	dir := corpus(t)

	files, err := CollectFiles(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.MD"),
		filepath.Join(dir, "sub", "c.html"),
		filepath.Join(dir, "tiny.txt"),
	}, files)

	files, err = CollectFiles(dir, false)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	_, err = CollectFiles(filepath.Join(dir, "missing"), true)
	require.Error(t, err)
	_, err = CollectFiles(filepath.Join(dir, "a.txt"), true)
	require.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	events := &fakeEvents{}
	in, emb, store := newTestIngester(t, func(d *Deps) { d.Events = events })

	sum, err := in.IngestDirectory(context.Background(), corpus(t), Options{Recursive: true})
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Files)
	assert.Equal(t, 3, sum.Documents)
	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.Failed)
	assert.Zero(t, sum.ZeroVectors)
	assert.Equal(t, len(store.points()), sum.Chunks)
	assert.Len(t, emb.calls, 1, "one file batch, one embedding call")
	assert.Equal(t, int64(3), sum.Metrics.Counters["rag_documents_processed_total"])
	assert.NotZero(t, sum.Metrics.Histograms[`rag_stage_duration_seconds{stage="chunk"}`].Count)

	require.Len(t, events.events, 4)
	statuses := map[string]int{}
	for _, ev := range events.events {
		statuses[ev.Status]++
	}
	assert.Equal(t, map[string]int{StatusOK: 3, StatusSkipped: 1}, statuses)

	for _, p := range store.points() {
		md := p.Payload["metadata"].(map[string]any)
		assert.Equal(t, true, md["embedding_ok"])
		assert.Len(t, p.Vector, 3)
	}
}

func TestIngestDirectory_ReRunIsIdempotent(t *testing.T) {
	in, _, store := newTestIngester(t, nil)
	dir := corpus(t)

	_, err := in.IngestDirectory(context.Background(), dir, Options{Recursive: true})
	require.NoError(t, err)
	first := store.points()
	store.upserts = nil

	_, err = in.IngestDirectory(context.Background(), dir, Options{Recursive: true})
	require.NoError(t, err)
	second := store.points()

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestIngestDirectory_FileBatches(t *testing.T) {
	in, emb, _ := newTestIngester(t, func(d *Deps) { d.Config.Processing.BatchSize = 1 })

	sum, err := in.IngestDirectory(context.Background(), corpus(t), Options{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Documents)
	assert.Len(t, emb.calls, 3, "the skipped file's batch makes no call")
}

func TestIngestDirectory_Empty(t *testing.T) {
	in, emb, _ := newTestIngester(t, nil)
	sum, err := in.IngestDirectory(context.Background(), t.TempDir(), Options{})
	require.NoError(t, err)
	assert.Zero(t, sum.Files)
	assert.Empty(t, emb.calls)
}

func TestIngestDirectory_EmptyFile(t *testing.T) {
	in, emb, store := newTestIngester(t, nil)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "blank.txt"), "")

	sum, err := in.IngestDirectory(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.Documents)
	assert.Zero(t, sum.Chunks)
	assert.Empty(t, emb.calls)
	assert.Empty(t, store.points())
}

func TestDuplicateStems(t *testing.T) {
	dups := duplicateStems([]string{
		filepath.Join("d", "notes.txt"),
		filepath.Join("d", "guide.md"),
		filepath.Join("d", "sub", "notes.md"),
	})
	assert.Equal(t, map[string][]string{
		"notes": {filepath.Join("d", "notes.txt"), filepath.Join("d", "sub", "notes.md")},
	}, dups)
	assert.Empty(t, duplicateStems([]string{"a.txt", "b.txt"}))
}

func TestIngestDirectory_WarnsOnSharedStem(t *testing.T) {
	var buf bytes.Buffer
	in, _, store := newTestIngester(t, func(d *Deps) { d.Logger = slog.New(slog.NewTextHandler(&buf, nil)) })
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.txt"), engineText)
	writeFile(t, filepath.Join(dir, "sub", "notes.md"), engineText)

	sum, err := in.IngestDirectory(context.Background(), dir, Options{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Documents)
	assert.Contains(t, buf.String(), "files share a stem")

	ids := map[string]bool{}
	for _, p := range store.points() {
		ids[p.ID] = true
	}
	assert.Less(t, len(ids), sum.Chunks, "both files map onto the same IDs")
}

// brokenFile adds a dangling symlink: it is collected but cannot be read.
func brokenFile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.Symlink(filepath.Join(dir, "does-not-exist"), filepath.Join(dir, name)))
}

func TestIngestDirectory_DocumentErrorAborts(t *testing.T) {
	in, _, store := newTestIngester(t, func(d *Deps) { d.Config.Processing.SkipErrors = false })
	dir := corpus(t)
	brokenFile(t, dir, "0-broken.txt")

	sum, err := in.IngestDirectory(context.Background(), dir, Options{})
	require.Error(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Empty(t, store.upserts)
}

func TestIngestDirectory_SkipErrors(t *testing.T) {
	events := &fakeEvents{}
	in, _, _ := newTestIngester(t, func(d *Deps) { d.Events = events })
	dir := corpus(t)
	brokenFile(t, dir, "0-broken.txt")

	sum, err := in.IngestDirectory(context.Background(), dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Documents)
	assert.Equal(t, StatusFailed, events.events[0].Status)
	assert.NotEmpty(t, events.events[0].Error)
}

func TestIngestDirectory_MaxErrors(t *testing.T) {
	in, _, _ := newTestIngester(t, func(d *Deps) { d.Config.Processing.MaxErrors = 1 })
	dir := t.TempDir()
	brokenFile(t, dir, "a.txt")
	brokenFile(t, dir, "b.txt")
	brokenFile(t, dir, "c.txt")

	sum, err := in.IngestDirectory(context.Background(), dir, Options{})
	require.ErrorIs(t, err, ErrTooManyErrors)
	assert.Equal(t, 2, sum.Failed)
}

func TestIngestDirectory_EmbeddingErrorSkipsBatch(t *testing.T) {
	in, emb, store := newTestIngester(t, nil)
	emb.err = embed.ErrUnavailable

	sum, err := in.IngestDirectory(context.Background(), corpus(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.BatchesFailed)
	assert.Zero(t, sum.Chunks)
	assert.Empty(t, store.upserts)
}

func TestIngestDirectory_EmbeddingErrorFatal(t *testing.T) {
	in, emb, _ := newTestIngester(t, func(d *Deps) { d.Config.Processing.SkipErrors = false })
	emb.err = embed.ErrUnavailable

	_, err := in.IngestDirectory(context.Background(), corpus(t), Options{})
	require.ErrorIs(t, err, embed.ErrUnavailable)
}

func TestIngestDirectory_UploadErrorFatal(t *testing.T) {
	in, _, store := newTestIngester(t, nil)
	store.upsertErr = errors.New("qdrant unavailable")

	_, err := in.IngestDirectory(context.Background(), corpus(t), Options{})
	require.ErrorContains(t, err, "qdrant unavailable")
}

func TestIngestDirectory_InterruptFinishesBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := &fakeEvents{onPub: func(Event) { cancel() }}
	in, emb, store := newTestIngester(t, func(d *Deps) { d.Events = events })

	sum, err := in.IngestDirectory(ctx, corpus(t), Options{Recursive: true})
	require.ErrorIs(t, err, ErrInterrupted)

	assert.Equal(t, 1, sum.Documents, "stops after the first document")
	require.Len(t, emb.calls, 1)
	assert.NoError(t, emb.ctxErr[0], "in-flight batch runs on an uncancelled context")
	assert.NotEmpty(t, store.upserts)
	assert.Equal(t, len(store.points()), sum.Chunks)
}

func TestIngestDirectory_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in, emb, _ := newTestIngester(t, nil)

	_, err := in.IngestDirectory(ctx, corpus(t), Options{})
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Empty(t, emb.calls)
}
