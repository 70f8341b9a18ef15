// Package media acquires session videos: remote URLs are streamed to a
// uniquely named temp file, local paths are used in place.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/neurobloom/pkg/logger"
	"github.com/okian/neurobloom/pkg/metrics"
)

// Fetcher defaults.
const (
	DefaultRetries = 2
	DefaultBackoff = time.Second
	DefaultTimeout = 2 * time.Minute

	defaultExt      = ".mp4"
	removeAttempts  = 3
	removeRetryWait = 200 * time.Millisecond
)

// Fetcher downloads remote videos. It is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	dir     string
	retries int
	backoff time.Duration
	timeout time.Duration
	logger  logger.Logger
}

// NewFetcher creates a Fetcher writing into os.TempDir() by default.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  http.DefaultClient,
		dir:     os.TempDir(),
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logger.Get().Named("media")
	}
	return f
}

// IsRemote reports whether src is an http(s) URL.
func IsRemote(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch returns a local path for src. For remote sources the file is
// downloaded and cleanup removes it; for local paths cleanup is a no-op.
// On error no file is left behind.
func (f *Fetcher) Fetch(ctx context.Context, src string) (string, func(), error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", func() {}, ErrEmptySource
	}
	if !IsRemote(src) {
		return src, func() {}, nil
	}

	if err := os.MkdirAll(f.dir, 0o750); err != nil {
		return "", func() {}, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	dst := filepath.Join(f.dir, uuid.NewString()+extension(src))

	start := time.Now()
	delay := f.backoff
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			metrics.RecordDownloadRetry()
			f.logger.Warn(ctx, "retrying download",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(lastErr))
			select {
			case <-ctx.Done():
				f.remove(ctx, dst)
				metrics.RecordDownloadFailure()
				return "", func() {}, fmt.Errorf("%w: %w", ErrDownload, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		retryable, err := f.download(ctx, src, dst)
		if err == nil {
			metrics.RecordDownload(float64(time.Since(start).Milliseconds()))
			f.logger.Debug(ctx, "video downloaded", logger.String("path", dst))
			return dst, func() { f.remove(context.Background(), dst) }, nil
		}
		f.remove(ctx, dst)
		lastErr = err
		if !retryable {
			break
		}
	}

	metrics.RecordDownloadFailure()
	return "", func() {}, fmt.Errorf("%w: %w", ErrDownload, lastErr)
}

// download performs one attempt and reports whether a failure is worth retrying.
func (f *Fetcher) download(ctx context.Context, src, dst string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return false, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded), err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	out, err := os.Create(dst) //nolint:gosec // dst is built from a uuid under the configured dir
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return true, err
	}
	return false, out.Close()
}

// remove deletes path, retrying briefly while a decoder still holds it.
func (f *Fetcher) remove(ctx context.Context, p string) {
	for i := 0; i < removeAttempts; i++ {
		err := os.Remove(p)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return
		}
		if i == removeAttempts-1 {
			f.logger.Warn(ctx, "temp video not removed", logger.String("path", p), logger.Error(err))
			return
		}
		time.Sleep(removeRetryWait)
	}
}

func extension(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || len(ext) > 5 {
		return defaultExt
	}
	return ext
}
