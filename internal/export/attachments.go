// Package export saves protected record attachments to local directories:
// single files for the download fallback and whole records in bulk.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/query"
	"golang.org/x/sync/errgroup"
)

// Source fetches one attachment. It returns the file name to save under
// and the content; the caller closes the body.
type Source func(ctx context.Context, ref query.AttachmentRef) (name string, body io.ReadCloser, err error)

// ExportStats contains structured results of an attachment export operation.
type ExportStats struct {
	Count  int
	Size   int64
	Files  []string
	Errors []string
	Dir    string

	// Err is set when the export was aborted because the session is no
	// longer valid; remaining downloads were cancelled.
	Err error
}

// Attachments downloads refs into dir with at most concurrency transfers in
// flight. Individual failures are collected in Errors and do not stop the
// others; a session failure cancels everything.
func Attachments(ctx context.Context, dir string, refs []query.AttachmentRef, src Source, concurrency int) ExportStats {
	if concurrency < 1 {
		concurrency = 1
	}
	stats := ExportStats{Dir: dir}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, ref := range refs {
		g.Go(func() error {
			path, n, err := exportOne(gctx, dir, ref, src)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if apperr.RequiresLogout(err) {
					return err
				}
				if gctx.Err() == nil {
					stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %s", ref.Path, apperr.UserMessage(err)))
				}
				return nil
			}
			stats.Count++
			stats.Size += n
			stats.Files = append(stats.Files, path)
			return nil
		})
	}

	stats.Err = g.Wait()
	sort.Strings(stats.Files)
	sort.Strings(stats.Errors)
	return stats
}

func exportOne(ctx context.Context, dir string, ref query.AttachmentRef, src Source) (string, int64, error) {
	name, body, err := src(ctx, ref)
	if err != nil {
		return "", 0, err
	}
	defer body.Close()
	return SaveFile(dir, name, body)
}

// FormatExportResult formats ExportStats into a human-readable string for display.
func FormatExportResult(stats ExportStats) string {
	if stats.Err != nil {
		msg := "Export aborted: " + apperr.UserMessage(stats.Err)
		if stats.Count > 0 {
			msg += fmt.Sprintf("\n%d file(s) were saved before the abort.", stats.Count)
		}
		return msg
	}

	if stats.Count == 0 {
		msg := "No attachments exported."
		if len(stats.Errors) > 0 {
			msg += "\n\nErrors:\n" + strings.Join(stats.Errors, "\n")
		}
		return msg
	}

	result := fmt.Sprintf("Exported %d attachment(s) (%s)\n\nSaved to:\n%s",
		stats.Count, FormatBytesLong(stats.Size), strings.Join(stats.Files, "\n"))
	if len(stats.Errors) > 0 {
		result += "\n\nErrors:\n" + strings.Join(stats.Errors, "\n")
	}
	return result
}

// SanitizeFilename removes or replaces characters that are invalid in filenames.
func SanitizeFilename(s string) string {
	var result []rune
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			result = append(result, '_')
		default:
			result = append(result, r)
		}
	}
	return string(result)
}

// FormatBytesLong formats bytes with full precision for export results.
func FormatBytesLong(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
