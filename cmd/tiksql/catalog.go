package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tiksql/internal/catalog"
)

func (a *cli) catalogCmd() *cobra.Command {
	var (
		catalogFile string
		format      string
	)
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the path catalog",
		Long: `Catalog prints the catalog in use. The json and yaml forms can be edited and
passed back with --catalog.

Example:
  tiksql catalog --format yaml > catalog.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog(catalogFile)
			if err != nil {
				return usageError{err}
			}
			switch format {
			case "json":
				return catalog.Write(a.Stdout, cat, catalog.FormatJSON)
			case "yaml":
				return catalog.Write(a.Stdout, cat, catalog.FormatYAML)
			case "table":
			default:
				return usagef("--format must be json, yaml or table (got %q)", format)
			}

			tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tTABLE\tMODE\tCOLUMNS\tDATE FIELDS")
			for _, e := range cat.Entries() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.Path, e.Table, e.Mode, len(e.Columns), strings.Join(e.DateFields, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&catalogFile, "catalog", "", "catalog file to print instead of the built-in catalog")
	cmd.Flags().StringVar(&format, "format", "table", "output format: json, yaml or table")
	return cmd
}
