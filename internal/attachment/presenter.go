package attachment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrPresentationBlocked means no viewer could be started for the file. The
// retriever falls back to saving it in the download directory.
var ErrPresentationBlocked = errors.New("no viewer available")

// Presenter shows a local file to the user.
type Presenter interface {
	Present(ctx context.Context, path, contentType string) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, path, contentType string) error

func (f PresenterFunc) Present(ctx context.Context, path, contentType string) error {
	return f(ctx, path, contentType)
}

// SystemPresenter opens files with the configured viewer or the platform's
// default opener.
type SystemPresenter struct {
	// Viewer is a command line such as "zathura" or "evince --fullscreen {}".
	// {} is replaced by the file path; without it the path is appended.
	Viewer string

	goos     string
	getenv   func(string) string
	lookPath func(string) (string, error)
	start    func(*exec.Cmd) error
}

// NewSystemPresenter creates a presenter for the running platform.
func NewSystemPresenter(viewer string) *SystemPresenter {
	return &SystemPresenter{
		Viewer:   viewer,
		goos:     runtime.GOOS,
		getenv:   os.Getenv,
		lookPath: exec.LookPath,
		start:    startDetached,
	}
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Present starts the viewer and returns once it is running.
func (p *SystemPresenter) Present(ctx context.Context, path, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd, err := p.command(path)
	if err != nil {
		return err
	}
	if err := p.start(cmd); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrPresentationBlocked, cmd.Path, err)
	}
	return nil
}

func (p *SystemPresenter) command(path string) (*exec.Cmd, error) {
	if v := strings.Fields(p.Viewer); len(v) > 0 {
		bin, err := p.lookPath(v[0])
		if err != nil {
			return nil, fmt.Errorf("%w: viewer %q not found", ErrPresentationBlocked, v[0])
		}
		args, substituted := make([]string, 0, len(v)), false
		for _, a := range v[1:] {
			if strings.Contains(a, "{}") {
				a = strings.ReplaceAll(a, "{}", path)
				substituted = true
			}
			args = append(args, a)
		}
		if !substituted {
			args = append(args, path)
		}
		return exec.Command(bin, args...), nil
	}

	var name string
	var args []string
	switch p.goos {
	case "darwin":
		name, args = "open", []string{path}
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", path}
	case "linux", "freebsd", "openbsd", "netbsd":
		if p.getenv("DISPLAY") == "" && p.getenv("WAYLAND_DISPLAY") == "" {
			return nil, fmt.Errorf("%w: no graphical session", ErrPresentationBlocked)
		}
		name, args = "xdg-open", []string{path}
	default:
		return nil, fmt.Errorf("%w: unsupported platform %s", ErrPresentationBlocked, p.goos)
	}

	bin, err := p.lookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrPresentationBlocked, name)
	}
	return exec.Command(bin, args...), nil
}
