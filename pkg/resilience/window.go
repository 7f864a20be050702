// Package resilience provides request pacing for remote calls.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/munehide1933/rag-system/pkg/fn"
)

// WindowOpts configures the fixed request window.
type WindowOpts struct {
	// Limit is the number of requests admitted per window.
	Limit int
	// Window is the window length.
	Window time.Duration
	// Margin is added to the remaining window time when the limit is hit.
	Margin time.Duration
}

// Window admits at most Limit requests per fixed window. When the limit is
// reached the caller sleeps until the window ends plus Margin, then a fresh
// window starts.
type Window struct {
	mu    sync.Mutex
	opts  WindowOpts
	count int
	start time.Time
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewWindow creates a fixed-window request counter.
func NewWindow(opts WindowOpts) *Window {
	if opts.Limit <= 0 {
		opts.Limit = 1
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	return &Window{
		opts:  opts,
		now:   time.Now,
		sleep: fn.SleepContext,
	}
}

// WithClock replaces the time source and sleeper. Intended for tests.
func (w *Window) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	if now != nil {
		w.now = now
	}
	if sleep != nil {
		w.sleep = sleep
	}
	return w
}

// Wait blocks until a request may be sent and records it.
// It returns the time spent waiting.
func (w *Window) Wait(ctx context.Context) (time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.start.IsZero() || now.Sub(w.start) >= w.opts.Window {
		w.start = now
		w.count = 0
	}

	var waited time.Duration
	if w.count >= w.opts.Limit {
		waited = w.opts.Window - now.Sub(w.start) + w.opts.Margin
		if err := w.sleep(ctx, waited); err != nil {
			return 0, err
		}
		w.start = w.now()
		w.count = 0
	}
	w.count++
	return waited, nil
}

// Count returns the number of requests in the current window.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// WindowStage wraps an fn.Stage so that every call is admitted by w first.
func WindowStage[In, Out any](w *Window, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		if _, err := w.Wait(ctx); err != nil {
			return fn.Err[Out](err)
		}
		return stage(ctx, in)
	}
}
