package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tiksql/internal/catalog"
	"tiksql/internal/dataset"
	"tiksql/internal/export"
	"tiksql/internal/extract"
	"tiksql/internal/normalize"
)

// extractFlags are the flags shared by every command that runs an extraction.
type extractFlags struct {
	input       string
	catalogFile string
	chunkSize   int
	batchSize   int
	noValidate  bool
	noTriggers  bool
	normalize   string
	noProgress  bool
}

func (f *extractFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.input, "input", "i", "", "export JSON file (- for stdin)")
	fs.StringVar(&f.catalogFile, "catalog", "", "catalog file (JSON or YAML) replacing the built-in catalog")
	fs.IntVar(&f.chunkSize, "chunk-size", 0, "array elements processed between cancellation checks")
	fs.IntVar(&f.batchSize, "batch-size", 0, "INSERTs generated (or rows loaded) per batch")
	fs.BoolVar(&f.noValidate, "no-validate", false, "skip date and user-data validation")
	fs.BoolVar(&f.noTriggers, "no-triggers", false, "omit validation log tables and triggers")
	fs.StringVar(&f.normalize, "normalize", "", "shorten messages and links with a preset: default, quick, max, preserve")
	fs.BoolVar(&f.noProgress, "no-progress", false, "do not print progress lines")
}

// loadCatalog returns the catalog named by --catalog or the config, else the built-in one.
func (a *cli) loadCatalog(flag string) (*catalog.Catalog, error) {
	path := flag
	if path == "" {
		path = a.cfg.CatalogFile
	}
	if path == "" {
		return catalog.Builtin(), nil
	}
	return catalog.LoadFile(path)
}

// extract runs one extraction as configured by f, the config file and the
// environment. Progress lines go to stderr.
func (a *cli) extract(cmd *cobra.Command, f *extractFlags) (*extract.Result, *catalog.Catalog, error) {
	if f.input == "" {
		return nil, nil, usagef("missing required -i/--input")
	}

	cfg := a.cfg.Extraction
	fs := cmd.Flags()
	if fs.Changed("chunk-size") {
		cfg.ChunkSize = f.chunkSize
	}
	if fs.Changed("batch-size") {
		cfg.BatchSize = f.batchSize
	}
	if f.noValidate {
		cfg.ValidateDates = false
	}
	if f.noTriggers {
		cfg.GenerateTriggers = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, usageError{err}
	}

	cat, err := a.loadCatalog(f.catalogFile)
	if err != nil {
		return nil, nil, usageError{err}
	}

	opts := []extract.Option{extract.WithLogger(a.logger())}
	preset := a.cfg.Normalize
	if fs.Changed("normalize") {
		preset = f.normalize
	}
	if preset != "" && preset != "none" {
		o, err := normalize.Preset(preset)
		if err != nil {
			return nil, nil, usageError{err}
		}
		opts = append(opts, extract.WithNormalize(o))
	}

	e := extract.New(cat, cfg, opts...)
	if !f.noProgress {
		unsubscribe := e.OnProgress(func(p dataset.Progress) {
			fmt.Fprintf(a.Stderr, "progress=%.0f%% table=%s path=%s\n", p.Percentage, p.CurrentTable, p.CurrentPath)
		})
		defer unsubscribe()
	}

	in, err := a.openInput(f.input)
	if err != nil {
		return nil, nil, err
	}
	defer in.Close()

	res, err := e.ExtractReader(cmd.Context(), in)
	if err != nil {
		return nil, nil, err
	}
	return res, cat, nil
}

func (a *cli) summarize(res *extract.Result) {
	fmt.Fprintf(a.Stderr, "run_id=%s user_id=%d username=%s tables=%d records=%d warnings=%d errors=%d statements=%d duration=%s\n",
		res.RunID, res.UserID, res.Username, len(res.Data.Tables), res.Data.TotalRecords(),
		len(res.Warnings), len(res.Errors), len(res.SQL), res.Duration.Round(time.Millisecond))
}

func (a *cli) convertCmd() *cobra.Command {
	var (
		f          extractFlags
		output     string
		report     string
		metricsFlg string
		ddTags     string
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an export into a SQL script",
		Long: `Convert walks the export with the catalog and writes a SQLite script: schema,
indexes, validation triggers, views, then one INSERT per row.

Example:
  tiksql convert -i user_data.json -o tiktok.sql --report report.json
  tiksql convert -i user_data.json --normalize quick > tiktok.sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := a.cfg.Metrics.Backend
			if cmd.Flags().Changed("metrics") {
				backend = metricsFlg
			}
			tags := a.cfg.Metrics.Tags
			if cmd.Flags().Changed("dd-tags") {
				tags = ddTags
			}
			stop := a.startMetrics(cmd.Context(), backend, tags)
			defer stop()

			res, _, err := a.extract(cmd, &f)
			if err != nil {
				return err
			}
			if len(res.SQL) == 0 {
				return export.ErrNoStatements
			}

			now := a.Now()
			out, err := a.createOutput(output)
			if err != nil {
				return err
			}
			if err := export.WriteSQL(out, res, now); err != nil {
				_ = out.Close()
				return fmt.Errorf("write sql: %w", err)
			}
			if err := out.Close(); err != nil {
				return err
			}

			if report != "" {
				rf, err := a.createOutput(report)
				if err != nil {
					return err
				}
				if err := export.WriteReport(rf, res, now); err != nil {
					_ = rf.Close()
					return fmt.Errorf("write report: %w", err)
				}
				if err := rf.Close(); err != nil {
					return err
				}
			}
			a.summarize(res)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "SQL output file (default stdout)")
	cmd.Flags().StringVar(&report, "report", "", "also write a JSON report to this file")
	cmd.Flags().StringVar(&metricsFlg, "metrics", "", "metrics backend: none or datadog")
	cmd.Flags().StringVar(&ddTags, "dd-tags", "", "extra Datadog tags, comma separated (env:prod,team:data)")
	return cmd
}
