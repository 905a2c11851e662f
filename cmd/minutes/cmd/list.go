package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/wesm/minutes/internal/query"
)

var (
	listStatus string
	listTitle  string
	listDate   string
	listJSON   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List records, optionally filtered",
	Long: `List the records visible to the logged-in user, newest first.

Filters combine: a record must match all of them. Empty filters are not
sent to the server.

Examples:
  minutes list
  minutes list --status pending
  minutes list --title budget --date 2024-03-12
  minutes list --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseFilterFlags(listStatus, listTitle, listDate)
		if err != nil {
			return userError(err)
		}

		p, err := openProtected(cmd.Context())
		if err != nil {
			return err
		}
		defer p.Close()

		records, err := p.client.ListRecords(cmd.Context(), filter)
		if err != nil {
			return userError(err)
		}

		out := cmd.OutOrStdout()
		if listJSON {
			return outputRecordsJSON(out, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No records found.")
			return nil
		}
		outputRecordsTable(out, records)
		fmt.Fprintf(out, "\n%d record(s)  %s\n", len(records), filter)
		return nil
	},
}

// parseFilterFlags builds a FilterState through the same validation the
// interactive filters use.
func parseFilterFlags(status, title, date string) (query.FilterState, error) {
	var f query.FilterState
	var err error
	if f, err = f.With(query.FieldStatus, status); err != nil {
		return f, err
	}
	if f, err = f.With(query.FieldTitle, strings.TrimSpace(title)); err != nil {
		return f, err
	}
	return f.With(query.FieldDate, date)
}

func truncate(s string, max int) string {
	return runewidth.Truncate(s, max, "...")
}

func formatDay(r query.RecordSummary) string {
	return dayOrDash(r.Date)
}

func outputRecordsTable(w io.Writer, records []query.RecordSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSTATUS\tITEMS\tTITLE")
	fmt.Fprintln(tw, "──\t────\t──────\t─────\t─────")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n",
			r.ID, formatDay(r), r.Status.Label(), r.CommitmentCount, truncate(r.Title, 60))
	}
	tw.Flush()
}

func outputRecordsJSON(w io.Writer, records []query.RecordSummary) error {
	output := make([]map[string]interface{}, len(records))
	for i, r := range records {
		output[i] = map[string]interface{}{
			"id":               r.ID,
			"title":            r.Title,
			"status":           string(r.Status),
			"date":             formatDay(r),
			"commitment_count": r.CommitmentCount,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listStatus, "status", "", "status filter: pending, in-progress, done or any")
	listCmd.Flags().StringVar(&listTitle, "title", "", "title substring filter")
	listCmd.Flags().StringVar(&listDate, "date", "", "date filter (YYYY-MM-DD)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
}
