// Package trailfeed fetches trail collection GeoJSON from disk or over HTTP.
package trailfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dpup/trailmiles/server/internal/logging"
)

// maxCollectionBytes caps a single downloaded collection
const maxCollectionBytes = 64 << 20

// HTTPClient interface for testing
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FileSource reads collections relative to a directory
type FileSource struct {
	dir string
}

// NewFileSource creates a source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Fetch reads the named collection
func (s *FileSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("collection %q escapes trail directory", name)
	}

	path := filepath.Join(s.dir, clean)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", name, err)
	}

	logging.Debugw(ctx, "Read trail collection", "path", path, "bytes", len(data))
	return data, nil
}

// HTTPSource downloads collections relative to a base URL
type HTTPSource struct {
	HTTPClient HTTPClient
	baseURL    *url.URL
}

// NewHTTPSource creates a source for baseURL with the given request timeout
func NewHTTPSource(baseURL string, timeout time.Duration) (*HTTPSource, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid trail base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid trail base URL %q: scheme must be http or https", baseURL)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	return &HTTPSource{
		HTTPClient: &http.Client{Timeout: timeout},
		baseURL:    parsed,
	}, nil
}

// URL returns the address a collection is fetched from
func (s *HTTPSource) URL(name string) string {
	return s.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(name, "/")}).String()
}

// Fetch downloads the named collection
func (s *HTTPSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	target := s.URL(name)

	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d downloading %s", resp.StatusCode, target)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCollectionBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", target, err)
	}
	if len(data) > maxCollectionBytes {
		return nil, fmt.Errorf("collection %s exceeds %d bytes", target, maxCollectionBytes)
	}

	logging.Debugw(ctx, "Downloaded trail collection", "url", target, "bytes", len(data))
	return data, nil
}
