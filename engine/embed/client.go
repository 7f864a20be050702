// Package embed converts text into vectors through an OpenAI-compatible
// embeddings endpoint (OpenAI or Azure OpenAI).
//
// Embed performs one call with retries: 429 responses wait for Retry-After,
// transient failures back off exponentially, and rejected requests fail
// immediately. EmbedBatch adds sub-batching, request pacing and per-item
// degradation so that one bad text never aborts a whole batch.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/munehide1933/rag-system/engine/config"
	"github.com/munehide1933/rag-system/engine/normalize"
	"github.com/munehide1933/rag-system/pkg/fn"
	"github.com/munehide1933/rag-system/pkg/metrics"
	"github.com/munehide1933/rag-system/pkg/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const emptyPlaceholder = "empty"

// Client calls the embeddings endpoint.
type Client struct {
	cfg     config.EmbeddingConfig
	url     string
	headers http.Header
	dim     int

	http   *http.Client
	log    *slog.Logger
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
	window  *resilience.Window
	pacer   *rate.Limiter
	request fn.Stage[[]string, [][]float32]

	mRequests    *metrics.Counter
	mRateLimited *metrics.Counter
	mRetries     *metrics.Counter
	mFailures    *metrics.Counter
	mTruncated   *metrics.Counter
	mDuration    *metrics.Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// WithSleep replaces every wait the client performs. Intended for tests.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = f }
}

// WithClock replaces the time source used for pacing. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithMetrics registers the client's counters in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Client) { c.register(reg) }
}

// New builds a client for cfg. dim is the expected vector dimension; it sizes
// zero placeholders and is checked against every response.
func New(cfg config.EmbeddingConfig, dim int, opts ...Option) (*Client, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embed: dimension must be positive, got %d", dim)
	}
	c := &Client{
		cfg:     cfg,
		dim:     dim,
		headers: http.Header{"Content-Type": {"application/json"}},
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log:     slog.Default(),
		now:     time.Now,
		sleep:   fn.SleepContext,
	}
	switch cfg.Provider {
	case config.ProviderAzure:
		if cfg.AzureEndpoint == "" || cfg.AzureDeployment == "" {
			return nil, errors.New("embed: azure endpoint and deployment are required")
		}
		c.url = fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
			strings.TrimRight(cfg.AzureEndpoint, "/"), url.PathEscape(cfg.AzureDeployment), url.QueryEscape(cfg.APIVersion))
		c.headers.Set("api-key", cfg.APIKey)
	case config.ProviderOpenAI, "":
		if cfg.APIBase == "" {
			return nil, errors.New("embed: api base is required")
		}
		c.url = strings.TrimRight(cfg.APIBase, "/") + "/embeddings"
		c.headers.Set("Authorization", "Bearer "+cfg.APIKey)
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", cfg.Provider)
	}
	if c.cfg.BatchSize <= 0 {
		c.cfg.BatchSize = 20
	}
	if c.cfg.MaxRetries <= 0 {
		c.cfg.MaxRetries = 3
	}
	if c.cfg.MaxChars <= 0 {
		c.cfg.MaxChars = 30000
	}
	if c.cfg.DefaultRetryAfter <= 0 {
		c.cfg.DefaultRetryAfter = 10 * time.Second
	}

	c.register(metrics.New())
	for _, o := range opts {
		o(c)
	}

	c.pacer = rate.NewLimiter(rate.Inf, 1)
	if c.cfg.InterRequestDelay > 0 {
		c.pacer = rate.NewLimiter(rate.Every(c.cfg.InterRequestDelay), 1)
	}

	// Every HTTP attempt, retries and per-text fallbacks included, is admitted
	// by the request window.
	c.request = fn.TryStage(c.call)
	if c.cfg.RequestsPerWindow > 0 {
		c.window = resilience.NewWindow(resilience.WindowOpts{
			Limit:  c.cfg.RequestsPerWindow,
			Window: c.cfg.Window,
			Margin: c.cfg.WindowMargin,
		}).WithClock(c.now, func(ctx context.Context, d time.Duration) error {
			c.log.Info("embed: request window full, waiting", "wait", d)
			return c.sleep(ctx, d)
		})
		c.request = resilience.WindowStage(c.window, c.request)
	}
	return c, nil
}

func (c *Client) register(reg *metrics.Registry) {
	c.mRequests = reg.Counter("rag_embed_requests_total", "Successful embedding HTTP calls")
	c.mRateLimited = reg.Counter("rag_embed_rate_limited_total", "Embedding calls answered with 429")
	c.mRetries = reg.Counter("rag_embed_retries_total", "Embedding call retries")
	c.mFailures = reg.Counter("rag_embed_failures_total", "Texts replaced by zero placeholders")
	c.mTruncated = reg.Counter("rag_embed_truncated_total", "Texts truncated before embedding")
	c.mDuration = reg.Histogram("rag_embed_request_duration_seconds", "Embedding HTTP call latency", nil)
}

// Dimension returns the expected vector dimension.
func (c *Client) Dimension() int { return c.dim }

// Prepare strips control characters, truncates to the configured maximum
// and substitutes a placeholder for empty input.
func (c *Client) Prepare(text string) string {
	text = normalize.StripControl(text)
	if n := utf8.RuneCountInString(text); n > c.cfg.MaxChars {
		c.log.Warn("embed: truncating long text", "chars", n, "max", c.cfg.MaxChars)
		c.mTruncated.Inc()
		text = string([]rune(text)[:c.cfg.MaxChars])
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return emptyPlaceholder
	}
	return text
}

// Embed returns one vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input := fn.Map(texts, c.Prepare)
	return fn.RetryStage(fn.RetryOpts{
		MaxAttempts: c.cfg.MaxRetries,
		InitialWait: c.cfg.RetryBaseDelay,
		Retryable:   retryable,
		Sleep:       c.sleep,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.mRetries.Inc()
			c.log.Warn("embed: retrying", "attempt", attempt, "of", c.cfg.MaxRetries, "wait", wait, "error", err)
		},
	}, c.request)(ctx, input).Unwrap()
}

// Ping embeds a probe text and returns the vector dimension.
func (c *Client) Ping(ctx context.Context) (int, error) {
	v, err := c.Embed(ctx, []string{"test"})
	if err != nil {
		return 0, err
	}
	return len(v[0]), nil
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     *int      `json:"index"`
	} `json:"data"`
}

func (c *Client) call(ctx context.Context, input []string) ([][]float32, error) {
	req := embedRequest{Input: input}
	if c.cfg.Provider != config.ProviderAzure {
		req.Model = c.cfg.Model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("embed: marshal: %w", err)
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: build request: %w", err)
	}
	httpReq.Header = c.headers.Clone()

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	c.mDuration.Since(start)
	if err != nil {
		return nil, &APIError{kind: ErrUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		apiErr := statusError(resp, strings.TrimSpace(string(snippet)), c.cfg.DefaultRetryAfter)
		if apiErr.kind == ErrRateLimited {
			c.mRateLimited.Inc()
		}
		if apiErr.kind == ErrRejected {
			c.log.Error("embed: request rejected", "status", resp.StatusCode, "body", apiErr.Body, "texts", len(input))
		}
		return nil, apiErr
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &APIError{kind: ErrUnavailable, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(out.Data) != len(input) {
		return nil, &APIError{kind: ErrRejected, Err: fmt.Errorf("got %d embeddings for %d inputs", len(out.Data), len(input))}
	}
	sort.SliceStable(out.Data, func(i, j int) bool {
		if out.Data[i].Index == nil || out.Data[j].Index == nil {
			return false
		}
		return *out.Data[i].Index < *out.Data[j].Index
	})

	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) != c.dim {
			return nil, &APIError{kind: ErrRejected, Err: fmt.Errorf("embedding %d has dimension %d, want %d", i, len(d.Embedding), c.dim)}
		}
		vecs[i] = d.Embedding
	}
	c.mRequests.Inc()
	return vecs, nil
}
