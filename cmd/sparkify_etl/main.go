// Command sparkify_etl loads the song catalog and the listening activity logs
// into the star schema.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sparkify/internal/config"
	"sparkify/internal/etlerr"
	"sparkify/internal/logging"
	"sparkify/internal/metrics"
	"sparkify/internal/metrics/datadog"
	"sparkify/internal/metrics/prompush"
	parserjson "sparkify/internal/parser/json"
	"sparkify/internal/pipeline"
	"sparkify/internal/storage"
	"sparkify/internal/tracing"
	"sparkify/internal/transformer"

	// every backend is compiled in; storage.kind picks one
	_ "sparkify/internal/storage/all"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(etlerr.ExitGeneralError)
		}
	}()

	// a missing .env is normal
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError marks command-line mistakes so they map to exit code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type options struct {
	configFile string
	verbose    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "sparkify_etl",
		Short: "Load song catalog and activity logs into the sparkify star schema",
		Long: `sparkify_etl walks the song catalog root, then the activity log root, and
loads every JSON file into the songs, artists, time, users and songplays
tables. Each file is loaded in its own transaction; the run stops at the
first file that fails.

Settings come from an optional --config file and SPARKIFY_* environment
variables (a .env file in the working directory is read first).

Exit Codes:
  0  - Success
  1  - General error (a file failed to load)
  2  - CLI usage error
  10 - Invalid configuration
  11 - Destination connection failed
  12 - Input root not found`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	cmd.Flags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

// execute runs the command and maps the outcome onto an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return etlerr.ExitSuccess
	}
	fmt.Fprintf(stderr, "error: %v\n", err)

	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintln(stderr, cmd.UsageString())
		return etlerr.ExitUsageError
	}
	return etlerr.ExitCode(err)
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	runID := uuid.NewString()
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, RunID: runID, Out: stderr})
	if err != nil {
		return fmt.Errorf("%w: %v", etlerr.ErrInvalidConfig, err)
	}
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{RunID: runID, Stdout: cfg.Tracing.Stdout, Out: stderr})
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(sctx); err != nil {
				log.Warn("tracing shutdown", zap.Error(err))
			}
		}()
	}

	closeMetrics := setupMetrics(ctx, cfg.Metrics, runID, log)
	defer closeMetrics()

	policy, err := parserjson.ParseBadLinePolicy(cfg.Parser.BadLines)
	if err != nil {
		return fmt.Errorf("%w: %v", etlerr.ErrInvalidConfig, err)
	}
	ids, err := transformer.NewIDSource(cfg.Songplay.IDs, cfg.Songplay.Node)
	if err != nil {
		return fmt.Errorf("%w: %v", etlerr.ErrInvalidConfig, err)
	}
	if _, ok := ids.(transformer.FilePositionIDs); ok {
		log.Warn("songplay ids restart at 0 in every activity file; a destination with a unique songplay_id will reject the second file",
			zap.String("songplay_ids", cfg.Songplay.IDs))
	}

	store, err := storage.Open(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		log.Error("open store", zap.String("kind", cfg.Storage.Kind), zap.Error(err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	log.Info("run starting",
		zap.String("storage", cfg.Storage.Kind),
		zap.String("song_data", cfg.Input.SongData),
		zap.String("log_data", cfg.Input.LogData),
		zap.Stringer("bad_lines", policy),
		zap.String("songplay_ids", cfg.Songplay.IDs),
	)

	start := time.Now()
	r := &pipeline.Runner{
		Store:    store,
		IDs:      ids,
		BadLines: policy,
		Log:      log,
		Out:      stdout,
	}
	results, err := r.Run(ctx, cfg.Input.SongData, cfg.Input.LogData)
	for _, res := range results {
		log.Info("pass summary",
			zap.String("pass", res.Pass),
			zap.Int("files", res.Files),
			zap.Int("processed", res.Processed),
			zap.Int("skipped_records", res.Skipped),
			zap.Any("rows", res.Rows),
		)
	}
	if err != nil {
		return err
	}

	log.Info("run complete", zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))
	return nil
}

// setupMetrics installs the configured backend and returns its shutdown.
// A backend that fails to start leaves metrics disabled; it never fails the run.
func setupMetrics(ctx context.Context, cfg config.Metrics, runID string, log *zap.Logger) func() {
	switch cfg.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
		if err != nil {
			log.Warn("metrics: pushgateway backend unavailable; using nop", zap.Error(err))
			return func() {}
		}
		b.Grouping("run_id", runID)
		metrics.SetBackend(b)
		log.Info("metrics enabled", zap.String("backend", cfg.Backend), zap.String("url", cfg.PushgatewayURL), zap.String("job", cfg.Job))
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics: push failed", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		tags := datadog.ParseTagsCSV(cfg.Tags)
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    cfg.Job,
			Tags:       append(tags, "run_id:"+runID),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Warn("metrics: datadog backend unavailable; using nop", zap.Error(err))
			return func() {}
		}
		metrics.SetBackend(b)
		log.Info("metrics enabled", zap.String("backend", cfg.Backend), zap.String("job", cfg.Job), zap.Strings("tags", tags))
		return func() {
			// Close stops the periodic loop and flushes what is left
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close/flush failed", zap.Error(err))
			}
			metrics.SetBackend(nil)
		}

	default:
		log.Debug("metrics disabled")
		return func() {}
	}
}
