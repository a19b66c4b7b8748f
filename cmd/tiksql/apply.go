package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tiksql/internal/export"
	"tiksql/internal/storage"
)

func (a *cli) applyCmd() *cobra.Command {
	var (
		file  string
		dsn   string
		chunk int
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute a generated SQL script against a SQLite database",
		Long: `Apply splits a script written by "tiksql convert" into statements and executes
them against a SQLite database with foreign keys enabled. Each chunk of
statements runs in its own transaction; a failing chunk is rolled back and
stops the run, earlier chunks stay committed.

Example:
  tiksql apply -f tiktok.sql --dsn tiktok.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return usagef("missing required -f/--file")
			}
			if dsn == "" {
				dsn = a.cfg.Storage.DSN
			}
			if dsn == "" {
				return usagef("missing required --dsn")
			}

			in, err := a.openInput(file)
			if err != nil {
				return err
			}
			src, err := io.ReadAll(in)
			_ = in.Close()
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			stmts := storage.SplitScript(string(src))
			if len(stmts) == 0 {
				return export.ErrNoStatements
			}

			repo, err := a.OpenStorage(cmd.Context(), storage.Config{Kind: "sqlite", DSN: dsn})
			if err != nil {
				return fmt.Errorf("open sqlite: %w", err)
			}
			defer repo.Close()
			runner, ok := repo.(storage.ScriptRunner)
			if !ok {
				return errors.New("sqlite backend cannot execute scripts")
			}

			var total storage.ScriptReport
			err = export.Chunks(stmts, chunk, func(part []string, index, n int) error {
				r, err := runner.ExecScript(cmd.Context(), part)
				if err != nil {
					return err
				}
				total.Add(r)
				a.logger().Printf("stage=apply chunk=%d/%d statements=%d", index+1, n, len(part))
				return nil
			})
			printScriptReport(a, total)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "SQL script (- for stdin)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "SQLite database file")
	cmd.Flags().IntVar(&chunk, "chunk", export.DefaultChunkSize, "statements per transaction")
	return cmd
}
