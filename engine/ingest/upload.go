package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/munehide1933/rag-system/engine/semantic"
	"github.com/munehide1933/rag-system/pkg/fn"
)

// PointID derives the stable point ID of a chunk from its "<stem>_<index>" ID.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(chunkID)).String()
}

// Records converts embedded documents into store records.
func Records(docs []Document) []semantic.VectorRecord {
	return fn.Map(docs, func(d Document) semantic.VectorRecord {
		return semantic.VectorRecord{
			ID:     PointID(d.ID),
			Vector: d.Vector.Values,
			Payload: map[string]any{
				"text":     d.Text,
				"metadata": d.Metadata,
			},
		}
	})
}

// Upload upserts docs in batches of qdrant.upload_batch_size, pausing
// qdrant.upload_delay between batches. Store errors are returned as is.
func (in *Ingester) Upload(ctx context.Context, docs []Document) error {
	q := in.cfg.Qdrant
	size := q.UploadBatchSize
	if size <= 0 {
		size = 500
	}
	for i, batch := range fn.Chunk(Records(docs), size) {
		if i > 0 && q.UploadDelay > 0 {
			if err := in.deps.Sleep(ctx, q.UploadDelay); err != nil {
				return err
			}
		}
		if err := in.deps.Store.Upsert(ctx, q.CollectionName, batch); err != nil {
			return fmt.Errorf("ingest: upload batch %d: %w", i, err)
		}
		in.mUploaded.Add(int64(len(batch)))
		in.log.Debug("ingest: batch uploaded", "batch", i, "points", len(batch))
	}
	return nil
}
