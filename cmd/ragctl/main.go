// Command ragctl ingests document directories into the vector store and
// inspects the results.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/munehide1933/rag-system/engine/config"
	"github.com/munehide1933/rag-system/engine/ingest"
	"github.com/spf13/cobra"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

type app struct {
	cfgPath  string
	logLevel string

	cfg     config.Config
	log     *slog.Logger
	closeFn func() error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Document ingestion for retrieval-augmented generation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closeFn != nil {
				return a.closeFn()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "config/config.yaml", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		a.ingestCmd(),
		a.searchCmd(),
		a.cacheCmd(),
		a.eventsCmd(),
		a.graphCmd(),
	)
	return root
}

func (a *app) init(stderr io.Writer) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	log, closeFn, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	a.cfg, a.log, a.closeFn = cfg, log, closeFn
	return nil
}

func main() {
	err := newRootCmd().Execute()
	switch {
	case err == nil:
	case errors.Is(err, ingest.ErrInterrupted):
		fmt.Fprintln(os.Stderr, "ragctl: interrupted")
		os.Exit(exitInterrupted)
	default:
		fmt.Fprintln(os.Stderr, "ragctl:", err)
		os.Exit(1)
	}
}
