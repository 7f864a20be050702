package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/munehide1933/rag-system/engine/graph"
	"github.com/spf13/cobra"
)

func (a *app) graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query the document entity graph",
	}

	open := func(ctx context.Context) (*graph.GraphStore, func(), error) {
		if a.cfg.Neo4j.URI == "" {
			return nil, nil, errors.New("neo4j.uri is not configured")
		}
		driver, err := graph.Connect(ctx, a.cfg.Neo4j.URI, a.cfg.Neo4j.User, a.cfg.Neo4j.Password)
		if err != nil {
			return nil, nil, err
		}
		return graph.New(driver, a.log), func() { driver.Close(context.Background()) }, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "mentions ENTITY",
		Short: "List documents that mention an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			docs, err := g.Mentioning(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%d chunks\n", d.ID, d.Category, d.Chunks)
			}
			return nil
		},
	})

	var offset, limit int
	docs := &cobra.Command{
		Use:   "documents",
		Short: "List document nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			list, err := g.ListDocuments(cmd.Context(), offset, limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, d := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d words\n", d.ID, d.Category, d.Title, d.WordCount)
			}
			return nil
		},
	}
	docs.Flags().IntVar(&offset, "offset", 0, "documents to skip")
	docs.Flags().IntVar(&limit, "limit", 100, "documents to list")
	cmd.AddCommand(docs)

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count graph nodes by label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			counts, err := g.NodeCounts(cmd.Context())
			if err != nil {
				return err
			}
			labels := make([]string, 0, len(counts))
			for l := range counts {
				labels = append(labels, l)
			}
			sort.Strings(labels)
			for _, l := range labels {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", l, counts[l])
			}
			return nil
		},
	})
	return cmd
}
