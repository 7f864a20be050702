package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/munehide1933/rag-system/engine/ingest"
	"github.com/munehide1933/rag-system/pkg/natsutil"
	"github.com/spf13/cobra"
)

func (a *app) eventsCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print ingestion events from NATS until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.NATS.URL == "" {
				return errors.New("nats.url is not configured")
			}
			if subject == "" {
				subject = a.cfg.NATS.Subject
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			nc, err := natsutil.Connect(a.cfg.NATS.URL, "ragctl-events", a.log)
			if err != nil {
				return err
			}
			defer nc.Close()

			w := cmd.OutOrStdout()
			sub, err := natsutil.Subscribe(nc, subject, func(_ context.Context, ev ingest.Event) {
				line := fmt.Sprintf("%-7s %s", ev.Status, ev.Source)
				if ev.Category != "" {
					line += " category=" + ev.Category
				}
				if ev.Chunks > 0 {
					line += fmt.Sprintf(" chunks=%d", ev.Chunks)
				}
				if ev.Error != "" {
					line += " error=" + ev.Error
				}
				fmt.Fprintln(w, line)
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			defer sub.Unsubscribe()
			a.log.Info("events: listening", "subject", subject)

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject to follow (default nats.subject)")
	return cmd
}
