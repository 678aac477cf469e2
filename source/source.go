// Package source fetches document bytes from a path, a file:// URL or an
// http(s) URL.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultMaxBytes = 512 << 20
	DefaultTimeout  = 60 * time.Second
)

// ErrTooLarge is returned when a document exceeds the size limit.
var ErrTooLarge = errors.New("source: document too large")

// Loader fetches the raw bytes of a document source.
type Loader interface {
	Load(ctx context.Context, src string) ([]byte, error)
}

type Option func(*Fetcher)

func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// Fetcher is the default Loader.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	timeout  time.Duration
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Load(ctx context.Context, src string) ([]byte, error) {
	if src == "" {
		return nil, errors.New("source: empty source")
	}
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return f.loadFile(src)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.loadFile(u.Path)
	case "http", "https":
		return f.loadHTTP(ctx, u.String())
	}
	return nil, fmt.Errorf("source: unsupported scheme %q", u.Scheme)
}

func (f *Fetcher) loadFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if info, err := file.Stat(); err == nil && info.Size() > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	return f.readLimited(file)
}

func (f *Fetcher) loadHTTP(ctx context.Context, src string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %s", src, resp.Status)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}
	return f.readLimited(resp.Body)
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
