package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the embedding cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache entry count and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, closeFn, err := openCache(a.cfg.Processing, a.log)
			if err != nil {
				return err
			}
			defer closeFn()
			st, err := c.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend: %s\ndir:     %s\nentries: %d\nbytes:   %d\n",
				backendName(a.cfg.Processing.CacheBackend), a.cfg.Processing.CacheDir, st.Entries, st.Bytes)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, closeFn, err := openCache(a.cfg.Processing, a.log)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := c.Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		},
	})
	return cmd
}

func backendName(b string) string {
	if b == backendBadger {
		return b
	}
	return "file"
}
