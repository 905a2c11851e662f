package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/wesm/minutes/internal/export"
)

var exportAttachmentsOutput string

var exportAttachmentsCmd = &cobra.Command{
	Use:   "export-attachments <record-id>",
	Short: "Download a record's document and action files",
	Long: `Download the record document and every action file of a record into
a directory. Files are never overwritten; a numeric suffix is appended on
conflict. Downloads run in parallel (see attachments.export_concurrency).

Examples:
  minutes export-attachments 12                   # → <download_dir>/record-12
  minutes export-attachments 12 -o ~/minutes/12`,
	Args: cobra.ExactArgs(1),
	RunE: runExportAttachments,
}

func runExportAttachments(cmd *cobra.Command, args []string) error {
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
	refs := detail.Attachments()
	if len(refs) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No attachments on this record.")
		return nil
	}

	outputDir := exportAttachmentsOutput
	if outputDir == "" {
		outputDir = filepath.Join(cfg.Attachments.DownloadDir, fmt.Sprintf("record-%d", id))
	}
	outputDir, err = filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	r, err := newRetriever(p.store, p.client, nil)
	if err != nil {
		return err
	}
	stats := export.Attachments(cmd.Context(), outputDir, refs, r.Source(), cfg.Attachments.ExportConcurrency)

	stderr := cmd.ErrOrStderr()
	for _, f := range stats.Files {
		fmt.Fprintf(stderr, "  %s\n", filepath.Base(f))
	}
	for _, e := range stats.Errors {
		fmt.Fprintf(stderr, "  error: %s\n", e)
	}

	if stats.Err != nil {
		return userError(stats.Err)
	}
	if stats.Count > 0 {
		fmt.Fprintf(stderr, "Exported %d attachment(s) (%s) to %s\n",
			stats.Count, export.FormatBytesLong(stats.Size), outputDir)
	}
	if len(stats.Errors) > 0 && stats.Count == 0 {
		return fmt.Errorf("all %d attachment(s) failed to export", len(refs))
	}
	if len(stats.Errors) > 0 {
		return fmt.Errorf("%d of %d attachment(s) failed to export", len(stats.Errors), len(refs))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportAttachmentsCmd)
	exportAttachmentsCmd.Flags().StringVarP(&exportAttachmentsOutput, "output", "o", "",
		"Output directory (default: <download_dir>/record-<id>)")
}
