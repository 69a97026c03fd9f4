package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/trialrun/internal/workspace"
)

var listCmd = &cobra.Command{
	Use:   "list [pattern]",
	Short: "List saved queries",
	Long: `List the queries in the workspace file.

An optional glob pattern filters by name, e.g.:
  trialrun list 'daily-*'
  trialrun list '{daily,weekly}-events'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cat, err := workspace.Load(viper.GetString("workspace"))
	if err != nil {
		return err
	}

	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	}
	queries, err := cat.Match(pattern)
	if err != nil {
		return err
	}

	return printQueries(cmd.OutOrStdout(), cat, queries)
}

func printQueries(out io.Writer, cat *workspace.Catalog, queries []workspace.QueryDef) error {
	if len(queries) == 0 {
		_, err := fmt.Fprintln(out, "No matching queries.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDATA SOURCE\tPARAMETERS\tSTATUS")
	for _, q := range queries {
		ds := "-"
		status := "ready"
		if src := cat.DataSource(q.DataSource); src != nil {
			ds = src.Name
			if src.Paused {
				status = "paused"
			}
		} else {
			status = "no data source"
		}

		params := make([]string, 0, len(q.Parameters))
		for _, p := range q.Parameters {
			params = append(params, p.Name)
		}
		paramText := strings.Join(params, ",")
		if paramText == "" {
			paramText = "-"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", q.ID, q.Name, ds, paramText, status)
	}
	return w.Flush()
}
