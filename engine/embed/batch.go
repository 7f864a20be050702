package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/munehide1933/rag-system/pkg/fn"
)

// Vector is one embedding result. A text that could not be embedded gets an
// all-zero Values of the expected dimension and OK=false, so positions stay
// aligned with the input.
type Vector struct {
	Values []float32
	OK     bool
}

// pace spaces consecutive sub-batch requests by the inter-request delay.
func (c *Client) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := c.now()
	r := c.pacer.ReserveN(now, 1)
	d := r.DelayFrom(now)
	if d <= 0 {
		return nil
	}
	if err := c.sleep(ctx, d); err != nil {
		r.CancelAt(c.now())
		return err
	}
	return nil
}

// EmbedBatch embeds texts in sub-batches. The result always has len(texts)
// entries unless an error is returned. Errors are returned only when the
// provider stays unavailable after retries or ctx is done; rate limiting and
// rejected input degrade to per-text calls and zero placeholders.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, 0, len(texts))
	for i, batch := range fn.Chunk(texts, c.cfg.BatchSize) {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}
		vecs, err := c.Embed(ctx, batch)
		if err == nil {
			out = append(out, ok(vecs)...)
			if c.window != nil {
				c.log.Debug("embed: batch embedded", "batch", i, "texts", len(batch), "window_requests", c.window.Count())
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case errors.Is(err, ErrRateLimited):
			c.log.Warn("embed: batch rate limited, waiting before one retry", "batch", i, "wait", c.cfg.RateLimitWait)
			if err := c.sleep(ctx, c.cfg.RateLimitWait); err != nil {
				return nil, err
			}
			if err := c.pace(ctx); err != nil {
				return nil, err
			}
			if vecs, err = c.Embed(ctx, batch); err == nil {
				out = append(out, ok(vecs)...)
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("embed: batch retry failed, embedding texts one by one", "batch", i, "error", err)
		case errors.Is(err, ErrRejected):
			c.log.Warn("embed: batch rejected, embedding texts one by one", "batch", i, "error", err)
		default:
			return nil, fmt.Errorf("embed: batch %d: %w", i, err)
		}

		each, err := c.embedEach(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, each...)
	}
	return out, nil
}

func (c *Client) embedEach(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, text := range texts {
		if i > 0 {
			if err := c.sleep(ctx, c.cfg.ItemDelay); err != nil {
				return nil, err
			}
		}
		vecs, err := c.Embed(ctx, []string{text})
		if err == nil {
			out[i] = Vector{Values: vecs[0], OK: true}
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Error("embed: text failed, using zero placeholder", "chars", len(text), "error", err)
		c.mFailures.Inc()
		out[i] = Vector{Values: make([]float32, c.dim)}
	}
	return out, nil
}

func ok(vecs [][]float32) []Vector {
	return fn.Map(vecs, func(v []float32) Vector { return Vector{Values: v, OK: true} })
}
