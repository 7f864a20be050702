package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/munehide1933/rag-system/engine/ingest"
	"github.com/munehide1933/rag-system/pkg/metrics"
	"github.com/munehide1933/rag-system/pkg/mid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *app) ingestCmd() *cobra.Command {
	var (
		category    string
		noRecursive bool
		skipErrors  bool
		metricsAddr string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "ingest DIR",
		Short: "Chunk, embed and upload every supported file under DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("skip-errors") {
				a.cfg.Processing.SkipErrors = skipErrors
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if category != "" {
				if _, ok := a.cfg.CategoryByName(category); !ok {
					a.log.Warn("ingest: category not configured, using it as given", "category", category)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := metrics.New()
			deps, done, err := buildDeps(ctx, a.cfg, a.log, reg)
			if err != nil {
				return err
			}
			defer done.run()

			in, err := ingest.New(deps)
			if err != nil {
				return err
			}
			if err := in.EnsureCollection(ctx); err != nil {
				return err
			}

			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()
			g, gctx := errgroup.WithContext(runCtx)
			if metricsAddr != "" {
				a.log.Info("metrics: serving", "addr", metricsAddr)
				g.Go(func() error { return reg.Serve(gctx, metricsAddr, mid.Default(a.log)...) })
			}

			var sum ingest.Summary
			g.Go(func() error {
				defer cancelRun()
				var err error
				sum, err = in.IngestDirectory(gctx, args[0], ingest.Options{
					Recursive: !noRecursive,
					Category:  category,
				})
				return err
			})
			err = g.Wait()

			if perr := printSummary(cmd.OutOrStdout(), sum, asJSON); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&category, "category", "", "assign this category instead of auto-categorizing")
	f.BoolVar(&noRecursive, "no-recursive", false, "do not descend into subdirectories")
	f.BoolVar(&skipErrors, "skip-errors", true, "log and skip documents that fail")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

func printSummary(w io.Writer, sum ingest.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	fmt.Fprintf(w, "files:          %d\n", sum.Files)
	fmt.Fprintf(w, "documents:      %d\n", sum.Documents)
	fmt.Fprintf(w, "skipped:        %d\n", sum.Skipped)
	fmt.Fprintf(w, "failed:         %d\n", sum.Failed)
	fmt.Fprintf(w, "batches failed: %d\n", sum.BatchesFailed)
	fmt.Fprintf(w, "chunks:         %d\n", sum.Chunks)
	fmt.Fprintf(w, "zero vectors:   %d\n", sum.ZeroVectors)
	fmt.Fprintf(w, "duration:       %s\n", sum.Duration.Round(time.Millisecond))
	if sum.Cache != nil {
		fmt.Fprintf(w, "cache entries:  %d (%d bytes)\n", sum.Cache.Entries, sum.Cache.Bytes)
	}
	return nil
}
