package ingest

import (
	"context"
	"fmt"

	"github.com/munehide1933/rag-system/engine/cache"
	"github.com/munehide1933/rag-system/engine/embed"
)

// EmbedDocuments fills in every document's Vector. Cached vectors are reused
// without a provider call; fresh successful vectors are cached. Placeholders
// are marked embedding_ok=false in the payload and never cached.
func (in *Ingester) EmbedDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	store := in.deps.Cache
	dim := in.deps.Embedder.Dimension()

	var (
		missIdx   []int
		missTexts []string
	)
	for i := range docs {
		if store != nil {
			if v, ok := store.Get(cache.Key(docs[i].Text)); ok && (dim == 0 || len(v) == dim) {
				docs[i].Vector = embed.Vector{Values: v, OK: true}
				in.mCacheHits.Inc()
				continue
			}
			in.mCacheMisses.Inc()
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, docs[i].Text)
	}

	if len(missTexts) > 0 {
		in.log.Debug("ingest: embedding chunks", "count", len(missTexts), "cached", len(docs)-len(missTexts))
		vecs, err := in.deps.Embedder.EmbedBatch(ctx, missTexts)
		if err != nil {
			return fmt.Errorf("ingest: embed %d chunks: %w", len(missTexts), err)
		}
		if len(vecs) != len(missTexts) {
			return fmt.Errorf("ingest: embedder returned %d vectors for %d chunks", len(vecs), len(missTexts))
		}
		for j, i := range missIdx {
			docs[i].Vector = vecs[j]
			if !vecs[j].OK {
				in.mEmbedFailed.Inc()
				continue
			}
			in.mGenerated.Inc()
			if store != nil {
				store.Set(cache.Key(docs[i].Text), vecs[j].Values)
			}
		}
	}

	for i := range docs {
		docs[i].Metadata["embedding_ok"] = docs[i].Vector.OK
	}
	return nil
}
