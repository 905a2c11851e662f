package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/query"
	"github.com/wesm/minutes/internal/testutil"
)

func TestSaveFile_ConflictSafeNames(t *testing.T) {
	dir := t.TempDir()

	var paths []string
	for i := 0; i < 3; i++ {
		p, n, err := SaveFile(dir, "minutes.pdf", strings.NewReader(fmt.Sprintf("copy %d", i)))
		require.NoError(t, err)
		assert.EqualValues(t, 6, n)
		paths = append(paths, filepath.Base(p))
	}
	assert.Equal(t, []string{"minutes.pdf", "minutes_2.pdf", "minutes_3.pdf"}, paths)

	data, err := os.ReadFile(filepath.Join(dir, "minutes.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "copy 0", string(data), "existing file must not be overwritten")
}

func TestSaveFile_SanitizesNames(t *testing.T) {
	dir := t.TempDir()

	p, _, err := SaveFile(dir, "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(p))
	assert.Equal(t, "passwd", filepath.Base(p))

	p, _, err = SaveFile(dir, `a:b?.pdf`, strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "a_b_.pdf", filepath.Base(p))

	p, _, err = SaveFile(dir, "", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "download", filepath.Base(p))
}

func TestSaveFile_CreatesDirOwnerOnly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "downloads")
	p, _, err := SaveFile(dir, "a.jpg", strings.NewReader("jpeg"))
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Zero(t, info.Mode().Perm()&0077)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveFile_RemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	_, _, err := SaveFile(dir, "broken.pdf", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "broken.pdf"))
	assert.True(t, os.IsNotExist(statErr), "partial file should be removed")
}

func TestSaveCopy_RefusesSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("O_NOFOLLOW not available")
	}
	src := filepath.Join(t.TempDir(), "real.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF"), 0600))

	p, n, err := SaveCopy(t.TempDir(), "real.pdf", src)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.FileExists(t, p)

	link := filepath.Join(t.TempDir(), "link.pdf")
	require.NoError(t, os.Symlink(src, link))
	_, _, err = SaveCopy(t.TempDir(), "link.pdf", link)
	assert.Error(t, err)
}

func staticSource(content map[string]string, errs map[string]error) Source {
	return func(ctx context.Context, ref query.AttachmentRef) (string, io.ReadCloser, error) {
		if err, ok := errs[ref.Path]; ok {
			return "", nil, err
		}
		return filepath.Base(ref.Path), io.NopCloser(strings.NewReader(content[ref.Path])), nil
	}
}

func TestAttachments_CollectsPerFileErrors(t *testing.T) {
	dir := t.TempDir()
	refs := []query.AttachmentRef{
		{Path: "actas/one.pdf"},
		{Path: "acciones/two.jpg"},
		{Path: "acciones/empty.pdf"},
	}
	src := staticSource(
		map[string]string{"actas/one.pdf": "%PDF-1", "acciones/two.jpg": "jpeg"},
		map[string]error{"acciones/empty.pdf": apperr.ErrResourceEmpty},
	)

	stats := Attachments(context.Background(), dir, refs, src, 2)
	require.NoError(t, stats.Err)
	assert.Equal(t, 2, stats.Count)
	assert.EqualValues(t, 10, stats.Size)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "acciones/empty.pdf")

	out := FormatExportResult(stats)
	assert.Contains(t, out, "Exported 2 attachment(s)")
	assert.Contains(t, out, "Errors:")
}

func TestAttachments_SessionFailureAborts(t *testing.T) {
	refs := make([]query.AttachmentRef, 20)
	for i := range refs {
		refs[i] = query.AttachmentRef{Path: fmt.Sprintf("f%d.pdf", i)}
	}
	var calls atomic.Int32
	src := func(ctx context.Context, ref query.AttachmentRef) (string, io.ReadCloser, error) {
		if calls.Add(1) == 1 {
			return "", nil, apperr.ErrSessionExpired
		}
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(time.Second):
			return "", nil, errors.New("not cancelled")
		}
	}

	stats := Attachments(context.Background(), t.TempDir(), refs, src, 1)
	assert.ErrorIs(t, stats.Err, apperr.ErrSessionExpired)
	assert.Empty(t, stats.Errors)
	assert.Contains(t, FormatExportResult(stats), "Export aborted")
}

func TestAttachments_RespectsConcurrency(t *testing.T) {
	refs := make([]query.AttachmentRef, 12)
	for i := range refs {
		refs[i] = query.AttachmentRef{Path: fmt.Sprintf("f%d.pdf", i)}
	}
	var inFlight, peak atomic.Int32
	src := func(ctx context.Context, ref query.AttachmentRef) (string, io.ReadCloser, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return filepath.Base(ref.Path), io.NopCloser(strings.NewReader("x")), nil
	}

	stats := Attachments(context.Background(), t.TempDir(), refs, src, 3)
	require.NoError(t, stats.Err)
	assert.Equal(t, 12, stats.Count)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestFormatExportResult_NothingExported(t *testing.T) {
	assert.Contains(t, FormatExportResult(ExportStats{}), "No attachments exported")
}

func TestFormatBytesLong(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytesLong(512))
	assert.Equal(t, "1.50 KB", FormatBytesLong(1536))
	assert.Equal(t, "5.00 MB", FormatBytesLong(5<<20))
}

func TestSaveFile_NamesStayInsideDir(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range testutil.FilenameTraversalCases() {
		t.Run(tc.Name, func(t *testing.T) {
			p, _, err := SaveFile(dir, tc.Path, strings.NewReader("x"))
			require.NoError(t, err)
			assert.Equal(t, dir, filepath.Dir(p))
			testutil.MustExist(t, p)
		})
	}
	assert.Len(t, testutil.DirEntries(t, dir), len(testutil.FilenameTraversalCases()))
}
