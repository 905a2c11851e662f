package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/minutes/internal/query"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <record-id>",
	Short: "Show a record with its commitments and actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "record")
		if err != nil {
			return err
		}

		p, err := openProtected(cmd.Context())
		if err != nil {
			return err
		}
		defer p.Close()

		detail, err := p.client.GetRecord(cmd.Context(), id)
		if err != nil {
			return userError(err)
		}
		if showJSON {
			return outputDetailJSON(cmd.OutOrStdout(), detail)
		}
		outputDetail(cmd.OutOrStdout(), detail)
		return nil
	},
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func dayOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(query.DateLayout)
}

func outputDetail(w io.Writer, d *query.RecordDetail) {
	fmt.Fprintf(w, "#%d %s\n", d.ID, d.Title)
	fmt.Fprintf(w, "Status: %s   Date: %s\n", d.Status.Label(), dayOrDash(d.Date))
	if d.PDFPath != "" {
		fmt.Fprintf(w, "Document: %s\n", d.PDFPath)
	}

	fmt.Fprintf(w, "\nCommitments (%d)\n", len(d.Commitments))
	for _, c := range d.Commitments {
		fmt.Fprintf(w, "  #%d %s\n", c.ID, c.Description)
		fmt.Fprintf(w, "      Responsible: %s   Due: %s\n", c.Responsible, dayOrDash(c.DueDate))
		for _, a := range c.Actions {
			fmt.Fprintf(w, "      - %s %s: %s\n", dayOrDash(a.Date), a.AuthorEmail, a.Description)
			if a.FilePath != "" {
				fmt.Fprintf(w, "        file: %s\n", a.FilePath)
			}
		}
	}
}

func outputDetailJSON(w io.Writer, d *query.RecordDetail) error {
	commitments := make([]map[string]interface{}, len(d.Commitments))
	for i, c := range d.Commitments {
		actions := make([]map[string]interface{}, len(c.Actions))
		for j, a := range c.Actions {
			actions[j] = map[string]interface{}{
				"id":           a.ID,
				"date":         dayOrDash(a.Date),
				"author_email": a.AuthorEmail,
				"description":  a.Description,
				"file_path":    a.FilePath,
			}
		}
		commitments[i] = map[string]interface{}{
			"id":          c.ID,
			"description": c.Description,
			"responsible": c.Responsible,
			"due_date":    dayOrDash(c.DueDate),
			"actions":     actions,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"id":          d.ID,
		"title":       d.Title,
		"status":      string(d.Status),
		"date":        dayOrDash(d.Date),
		"pdf_path":    d.PDFPath,
		"commitments": commitments,
	})
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
}
