// Command tiksql converts a TikTok account export (JSON) into a relational
// SQL script, and loads it into SQLite, Postgres or SQL Server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tiksql/internal/config"
	"tiksql/internal/metrics"
	"tiksql/internal/metrics/datadog"
	"tiksql/internal/storage"

	// register every backend with the storage factory; --kind picks one.
	_ "tiksql/internal/storage/mssql"
	_ "tiksql/internal/storage/postgres"
	_ "tiksql/internal/storage/sqlite"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// backendCloser is the metrics backend surface this command manages.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject a fake metrics backend or storage and capture output.
//
// Errors:
//   - BackendFactory errors are logged and metrics stay disabled.
//   - OpenStorage errors fail the command.
type deps struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, opts datadog.Options) (backendCloser, error)
	OpenStorage    func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	Now            func() time.Time
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], deps{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, opts datadog.Options) (backendCloser, error) {
			return datadog.NewBackend(ctx, opts)
		},
		OpenStorage: storage.New,
		Now:         time.Now,
	})
	stop()
	os.Exit(code)
}

// usageError marks errors caused by bad flags, arguments or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error {
	return usageError{fmt.Errorf(format, a...)}
}

// run executes the command line and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: the conversion, load or apply failed.
//   - 2: usage or configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdin == nil {
		d.Stdin = strings.NewReader("")
	}
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.OpenStorage == nil {
		d.OpenStorage = storage.New
	}

	a := &cli{deps: d}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(d.Stdin)
	root.SetOut(d.Stdout)
	root.SetErr(d.Stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(d.Stderr, "tiksql: %v\n", err)

	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	return exitFailure
}

// cli holds state shared by the subcommands of one invocation.
type cli struct {
	deps

	configPath string
	verbose    bool
	cfg        config.App
}

func (a *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tiksql",
		Short: "Convert TikTok account exports to SQL",
		Long: `tiksql walks a TikTok "user_data" JSON export with a path catalog and turns
it into relational tables: a replayable SQLite script, a JSON report, or rows
loaded straight into SQLite, Postgres or SQL Server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return usageError{err}
			}
			a.cfg = cfg
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./tiksql.yaml or ~/.config/tiksql/tiksql.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(a.convertCmd(), a.loadCmd(), a.applyCmd(), a.inspectCmd(), a.catalogCmd())
	return root
}

// logger returns the stage logger: stderr with -v, discarded otherwise.
func (a *cli) logger() *log.Logger {
	if !a.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(a.Stderr, "", log.LstdFlags)
}

// startMetrics installs the configured metrics backend. The returned func
// closes it (final flush) and restores the no-op backend.
func (a *cli) startMetrics(ctx context.Context, backend, tags string) func() {
	switch backend {
	case "", "none":
		return func() {}
	case "datadog":
	default:
		fmt.Fprintf(a.Stderr, "metrics: unknown backend %q; metrics disabled\n", backend)
		return func() {}
	}
	if a.BackendFactory == nil {
		fmt.Fprintln(a.Stderr, "metrics: no datadog factory; metrics disabled")
		return func() {}
	}

	opts := datadog.Options{
		JobName:    a.cfg.Metrics.JobName,
		Tags:       datadog.ParseTagsCSV(tags),
		FlushEvery: a.cfg.Metrics.FlushEvery,
	}
	b, err := a.BackendFactory(ctx, opts)
	if err != nil {
		fmt.Fprintf(a.Stderr, "metrics: failed to init datadog backend: %v; using nop\n", err)
		return func() {}
	}
	a.logger().Printf("metrics: backend=datadog job_name=%s tags=%v", opts.JobName, opts.Tags)
	metrics.SetBackend(b)
	return func() {
		if err := b.Close(); err != nil {
			fmt.Fprintf(a.Stderr, "metrics: datadog close/flush error: %v\n", err)
		}
		metrics.SetBackend(nil)
	}
}

// openInput opens path, or stdin for "-".
func (a *cli) openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(a.Stdin), nil
	}
	return os.Open(path)
}

// createOutput creates path, or returns stdout for "" and "-".
func (a *cli) createOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{a.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
