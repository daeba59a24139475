// Package cli implements the shardidx command line: build, merge, query and
// status.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/shardidx/pkg/metrics"
)

type app struct {
	cfgFile  string
	outDir   string
	logLevel string

	cfg         *config.Config
	metrics     *metrics.Metrics
	stopMetrics func(context.Context) error

	stdin  io.ReadCloser
	stdout io.Writer
	stderr io.Writer
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	return 0
}

func NewRootCommand(stdin io.ReadCloser, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "shardidx",
		Short: "Sharded inverted index builder, merger and retriever",
		Long: `shardidx indexes a corpus whose immediate sub-directories are shards,
merges the per-shard indexes into one inverted index and answers queries
against it. A document matches a query when it contains any query term.

Examples:
  shardidx build ./corpus
  shardidx query "black cat" dog
  shardidx query -i`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperrors.New(apperrors.ErrInvalidInput, cmd.Name(), err.Error())
	})

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVarP(&a.outDir, "out", "o", "", "index output directory (overrides index.outputDir)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newBuildCommand(a),
		newMergeCommand(a),
		newQueryCommand(a),
		newStatusCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.outDir != "" {
		cfg.Index.OutputDir = a.outDir
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger.SetupWriter(a.stderr, cfg.Logging.Level, cfg.Logging.Format)
	a.metrics = metrics.New()
	if cfg.Metrics.Enabled {
		a.stopMetrics = a.metrics.StartServer(cfg.Metrics.Port)
	}
	slog.Debug("configuration loaded",
		"command", cmd.Name(),
		"output_dir", cfg.Index.OutputDir,
		"redis", cfg.Redis.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"postgres", cfg.Postgres.Enabled,
	)
	return nil
}

func (a *app) teardown() error {
	if a.cfg != nil && a.cfg.Metrics.Textfile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			slog.Warn("metrics textfile not written", "error", err)
		}
	}
	if a.stopMetrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.stopMetrics(ctx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}
	return nil
}

// exactArgs is cobra.ExactArgs reported as invalid input.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return apperrors.New(apperrors.ErrInvalidInput, cmd.Name(), err.Error())
		}
		return nil
	}
}
