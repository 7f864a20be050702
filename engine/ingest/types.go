package ingest

import (
	"time"

	"github.com/munehide1933/rag-system/engine/cache"
	"github.com/munehide1933/rag-system/engine/embed"
	"github.com/munehide1933/rag-system/pkg/metrics"
)

// Document is one chunk of a source file, ready for embedding and upload.
type Document struct {
	ID       string // <file-stem>_<chunk index>
	Source   string
	Text     string
	Metadata map[string]any
	Vector   embed.Vector
}

// Options controls IngestDirectory.
type Options struct {
	Recursive bool
	// Category forces a category instead of auto-categorization.
	Category string
}

// Event is published after each source document.
type Event struct {
	Source   string `json:"source"`
	Category string `json:"category,omitempty"`
	Chunks   int    `json:"chunks"`
	Status   string `json:"status"` // ok, skipped, failed
	Error    string `json:"error,omitempty"`
}

const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Summary reports one IngestDirectory run.
type Summary struct {
	Files         int              `json:"files"`
	Documents     int              `json:"documents"`
	Skipped       int              `json:"skipped"`
	Failed        int              `json:"failed"`
	BatchesFailed int              `json:"batches_failed"`
	Chunks        int              `json:"chunks"`
	ZeroVectors   int              `json:"zero_vectors"`
	Duration      time.Duration    `json:"duration"`
	Metrics       metrics.Snapshot `json:"metrics"`
	Cache         *cache.Stats     `json:"cache,omitempty"`
}
