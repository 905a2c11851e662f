package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/credential"
	"github.com/wesm/minutes/internal/export"
	"github.com/wesm/minutes/internal/fileutil"
	"github.com/wesm/minutes/internal/query"
	"github.com/wesm/minutes/internal/remote"
)

// DefaultGrace is how long a presented file is kept before it is deleted.
const DefaultGrace = time.Second

// Fetcher is the part of the remote client the retriever needs.
type Fetcher interface {
	Probe(ctx context.Context) error
	FetchMedia(ctx context.Context, key string) (*remote.Media, error)
}

// Options configures a Retriever.
type Options struct {
	Store       credential.Store
	Fetcher     Fetcher
	Presenter   Presenter       // nil means saving every file to DownloadDir
	MediaPrefix string          // "" means DefaultMediaPrefix
	DownloadDir string          // fallback location
	TempDir     string          // "" means os.TempDir()
	Grace       time.Duration   // 0 means DefaultGrace
	AfterFunc   query.AfterFunc // nil means query.StdAfterFunc
	Logger      *slog.Logger
}

// Result describes a completed Open.
type Result struct {
	Key       string
	Handle    *Handle
	Presented bool   // a viewer was started
	SavedPath string // set when the file was saved instead
}

// Retriever fetches protected attachments and presents them.
type Retriever struct {
	opts Options
	wg   sync.WaitGroup
}

// NewRetriever creates a retriever.
func NewRetriever(opts Options) (*Retriever, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if opts.MediaPrefix == "" {
		opts.MediaPrefix = DefaultMediaPrefix
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = query.StdAfterFunc
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{opts: opts}, nil
}

// Open fetches pathOrURL and shows it. When no viewer can be started the
// file is saved to the download directory instead. Either way the local
// copy is released once the grace period has passed.
func (r *Retriever) Open(ctx context.Context, pathOrURL string) (*Result, error) {
	cred, err := r.opts.Store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	}
	if cred == nil {
		return nil, apperr.ErrUnauthenticated
	}

	if err := r.opts.Fetcher.Probe(ctx); err != nil {
		if errors.Is(err, apperr.ErrSessionExpired) || ctx.Err() != nil {
			return nil, err
		}
		r.opts.Logger.Warn("session probe failed; fetching anyway", "err", err)
	}

	key, err := NormalizeKey(pathOrURL, r.opts.MediaPrefix)
	if err != nil {
		return nil, err
	}

	h, err := r.download(ctx, key)
	if err != nil {
		return nil, err
	}

	res := &Result{Key: key, Handle: h}
	defer r.scheduleRelease(h)

	if r.opts.Presenter != nil {
		perr := r.opts.Presenter.Present(ctx, h.Path(), h.ContentType())
		if perr == nil {
			res.Presented = true
			r.opts.Logger.Debug("attachment presented", "key", key, "bytes", h.Size())
			return res, nil
		}
		r.opts.Logger.Info("viewer unavailable; saving instead", "key", key, "err", perr)
	}

	saved, _, err := export.SaveCopy(r.opts.DownloadDir, FileName(key), h.Path())
	if err != nil {
		return res, fmt.Errorf("save %s: %w", key, err)
	}
	res.SavedPath = saved
	r.opts.Logger.Debug("attachment saved", "key", key, "path", saved)
	return res, nil
}

// download streams the resource into an owner-only temp file.
func (r *Retriever) download(ctx context.Context, key string) (*Handle, error) {
	media, err := r.opts.Fetcher.FetchMedia(ctx, key)
	if err != nil {
		return nil, err
	}
	defer media.Body.Close()

	f, err := fileutil.SecureCreateTemp(r.opts.TempDir, "minutes-*"+safeExt(key))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, media.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: reading %s: %v", apperr.ErrConnectivity, key, err)
	}
	if n == 0 {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("%w: %s", apperr.ErrResourceEmpty, key)
	}
	return newHandle(f.Name(), media.ContentType, n), nil
}

func (r *Retriever) scheduleRelease(h *Handle) {
	r.wg.Add(1)
	r.opts.AfterFunc(r.opts.Grace, func() {
		defer r.wg.Done()
		if err := h.Release(); err != nil {
			r.opts.Logger.Warn("release attachment", "path", h.Path(), "err", err)
		}
	})
}

// Wait blocks until every scheduled release has run.
func (r *Retriever) Wait() {
	r.wg.Wait()
}

// Source returns an export.Source that fetches refs straight into the
// export directory. Zero-byte resources fail with apperr.ErrResourceEmpty.
func (r *Retriever) Source() export.Source {
	return func(ctx context.Context, ref query.AttachmentRef) (string, io.ReadCloser, error) {
		key, err := NormalizeKey(ref.Path, r.opts.MediaPrefix)
		if err != nil {
			return "", nil, err
		}
		media, err := r.opts.Fetcher.FetchMedia(ctx, key)
		if err != nil {
			return "", nil, err
		}
		return FileName(key), &nonEmptyReader{ReadCloser: media.Body, key: key}, nil
	}
}

type nonEmptyReader struct {
	io.ReadCloser
	key  string
	seen bool
}

func (n *nonEmptyReader) Read(p []byte) (int, error) {
	c, err := n.ReadCloser.Read(p)
	if c > 0 {
		n.seen = true
	}
	if err == io.EOF && !n.seen {
		return c, fmt.Errorf("%w: %s", apperr.ErrResourceEmpty, n.key)
	}
	return c, err
}

func safeExt(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if len(ext) > 8 || strings.ContainsAny(ext, `*\/`) {
		return ""
	}
	return ext
}
