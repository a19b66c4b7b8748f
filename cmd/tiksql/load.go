package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"tiksql/internal/load"
	"tiksql/internal/storage"
)

func (a *cli) loadCmd() *cobra.Command {
	var (
		f          extractFlags
		kind       string
		dsn        string
		mode       string
		metricsFlg string
		ddTags     string
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Extract an export and load it into a database",
		Long: `Load extracts the export and writes it into a database.

Mode "script" replays the generated SQLite script (sqlite only). Mode "tables"
creates typed tables for the chosen backend and inserts the rows in batches.

Example:
  tiksql load -i user_data.json --kind sqlite --dsn tiktok.db
  tiksql load -i user_data.json --kind postgres --dsn postgres://localhost/tiktok --mode tables`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			cfg := a.cfg.Storage
			if fs.Changed("kind") {
				cfg.Kind = kind
			}
			if fs.Changed("dsn") {
				cfg.DSN = dsn
			}
			if fs.Changed("mode") {
				cfg.Mode = mode
			}
			if cfg.DSN == "" {
				return usagef("missing required --dsn (or storage.dsn in config)")
			}
			m, err := load.ParseMode(cfg.Mode)
			if err != nil {
				return usageError{err}
			}
			if m == load.ModeScript && cfg.Kind != "sqlite" {
				return usagef("--mode script needs --kind sqlite (got %q); use --mode tables", cfg.Kind)
			}

			backend := a.cfg.Metrics.Backend
			if fs.Changed("metrics") {
				backend = metricsFlg
			}
			tags := a.cfg.Metrics.Tags
			if fs.Changed("dd-tags") {
				tags = ddTags
			}
			stop := a.startMetrics(cmd.Context(), backend, tags)
			defer stop()

			res, cat, err := a.extract(cmd, &f)
			if err != nil {
				return err
			}

			repo, err := a.OpenStorage(cmd.Context(), storage.Config{Kind: cfg.Kind, DSN: cfg.DSN})
			if err != nil {
				return fmt.Errorf("open %s: %w", cfg.Kind, err)
			}
			defer repo.Close()

			batch := a.cfg.BatchSize
			if fs.Changed("batch-size") {
				batch = f.batchSize
			}
			l := load.Loader{Repo: repo, Catalog: cat, Logger: a.logger(), BatchSize: batch}
			rep, err := l.Load(cmd.Context(), m, res)
			if err != nil {
				return err
			}

			tables := make([]string, 0, len(rep.Rows))
			for t := range rep.Rows {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				fmt.Fprintf(a.Stdout, "table=%s rows=%d\n", t, rep.Rows[t])
			}
			if m == load.ModeScript {
				printScriptReport(a, rep.Script)
			}
			fmt.Fprintf(a.Stdout, "kind=%s mode=%s rows=%d duration=%s\n", cfg.Kind, m, rep.Total(), rep.Duration.Round(time.Millisecond))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "", "storage backend: "+fmt.Sprint(storage.Kinds()))
	cmd.Flags().StringVar(&dsn, "dsn", "", "data source name (file path for sqlite)")
	cmd.Flags().StringVar(&mode, "mode", "", "load mode: script or tables")
	cmd.Flags().StringVar(&metricsFlg, "metrics", "", "metrics backend: none or datadog")
	cmd.Flags().StringVar(&ddTags, "dd-tags", "", "extra Datadog tags, comma separated")
	return cmd
}

func printScriptReport(a *cli, r storage.ScriptReport) {
	fmt.Fprintf(a.Stdout, "statements=%d tables=%d views=%d triggers=%d indexes=%d inserts=%d\n",
		r.Statements, r.Tables, r.Views, r.Triggers, r.Indexes, r.Inserts)
}
