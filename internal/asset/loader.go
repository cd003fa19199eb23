// Package asset implements transition.AssetLoader against the places scene images can live.
package asset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotFound = errors.New("asset not found")

// HTTPLoader checks that an asset is served by the asset host. It issues HEAD and falls back to GET
// when the host does not allow HEAD.
type HTTPLoader struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPLoader creates a loader resolving relative paths against baseURL.
func NewHTTPLoader(baseURL string, timeout time.Duration) (*HTTPLoader, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid asset base url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid asset base url %q: scheme and host are required", baseURL)
	}
	return &HTTPLoader{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (l *HTTPLoader) Load(ctx context.Context, path string) error {
	target := l.base.JoinPath(path)
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		target = u
	}

	status, err := l.do(ctx, http.MethodHead, target.String())
	if err != nil {
		return err
	}
	if status == http.StatusMethodNotAllowed {
		if status, err = l.do(ctx, http.MethodGet, target.String()); err != nil {
			return err
		}
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case status >= 400:
		return fmt.Errorf("%s: unexpected status %d", path, status)
	}
	return nil
}

func (l *HTTPLoader) do(ctx context.Context, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", method, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// DirLoader checks that an asset exists under a local directory.
type DirLoader struct {
	root string
}

func NewDirLoader(root string) *DirLoader {
	return &DirLoader{root: root}
}

func (l *DirLoader) Load(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	info, err := os.Stat(filepath.Join(l.root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory", path)
	}
	return nil
}

// NopLoader reports every asset as present.
type NopLoader struct{}

func (NopLoader) Load(context.Context, string) error { return nil }
