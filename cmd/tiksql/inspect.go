package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tiksql/internal/extract"
	pjson "tiksql/internal/parser/json"
)

func (a *cli) inspectCmd() *cobra.Command {
	var (
		input       string
		catalogFile string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show how the catalog matches an export, without extracting",
		Long: `Inspect resolves every catalog path against the export and prints whether it
resolved, the shape found there, and the number of rows it is expected to
produce. The total is the estimate used for progress percentages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return usagef("missing required -i/--input")
			}
			if format != "table" && format != "json" {
				return usagef("--format must be table or json (got %q)", format)
			}
			cat, err := a.loadCatalog(catalogFile)
			if err != nil {
				return usageError{err}
			}

			in, err := a.openInput(input)
			if err != nil {
				return err
			}
			doc, err := pjson.Decode(in)
			_ = in.Close()
			if err != nil {
				return fmt.Errorf("%w: %w", extract.ErrInvalidDocument, err)
			}

			ins := extract.Inspect(cat, doc)
			if format == "json" {
				enc := json.NewEncoder(a.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ins)
			}

			tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tTABLE\tMODE\tRESOLVED\tSHAPE\tITEMS")
			for _, e := range ins.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%d\n", e.Path, e.Table, e.Mode, e.Resolved, e.Shape, e.Items)
			}
			fmt.Fprintf(tw, "TOTAL\t\t\t\t\t%d\n", ins.Total)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "export JSON file (- for stdin)")
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "catalog file replacing the built-in catalog")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}
