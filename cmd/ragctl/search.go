package main

import (
	"fmt"
	"strings"

	"github.com/munehide1933/rag-system/engine/semantic"
	"github.com/munehide1933/rag-system/pkg/metrics"
	"github.com/spf13/cobra"
)

func (a *app) searchCmd() *cobra.Command {
	var limit, top int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Rank stored chunks against a query by cosine similarity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			embedder, err := newEmbedder(a.cfg, a.log, metrics.New())
			if err != nil {
				return err
			}
			vecs, err := embedder.Embed(ctx, []string{query})
			if err != nil {
				return err
			}

			store, err := semantic.New(a.cfg.Qdrant.Addr(), a.cfg.Qdrant.Timeout)
			if err != nil {
				return err
			}
			defer store.Close()

			points, err := store.Scroll(ctx, a.cfg.Qdrant.CollectionName, limit, true, true)
			if err != nil {
				return err
			}
			a.log.Debug("search: scrolled points", "count", len(points))

			w := cmd.OutOrStdout()
			for i, p := range semantic.Rank(points, vecs[0], top) {
				md := p.Metadata()
				fmt.Fprintf(w, "%d. [%.4f] %v #%v (%v)\n", i+1, p.Score, md["file_name"], md["chunk_index"], md["category"])
				fmt.Fprintf(w, "   %s\n", preview(p.Text(), 200))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "points to scroll from the collection")
	cmd.Flags().IntVar(&top, "top", 5, "results to print")
	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
