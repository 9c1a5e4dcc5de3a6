// Package assets downloads remote audio assets and caches them on disk.
// Tone and background beds are content-stable and cached by URI hash;
// voice tracks change per session and are fetched to fresh temp files.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/driftwave/mixengine/internal/types"
	"github.com/driftwave/mixengine/internal/util"
)

// Sentinel errors for asset fetching.
var (
	ErrUnsupportedScheme = errors.New("unsupported asset URI scheme")
	ErrEmptyAsset        = errors.New("asset is empty")
)

// Config configures a Cache.
type Config struct {
	// Dir is the on-disk cache directory.
	Dir string
	// HTTPTimeout bounds a single download attempt.
	HTTPTimeout time.Duration
	// OAuth, when set, authenticates CDN downloads with the client
	// credentials flow.
	OAuth *clientcredentials.Config
	// S3, when configured, enables s3:// asset URIs.
	S3 *S3Config
	// RetryInitialDelay and RetryMaxDelay bound the download backoff.
	// Zero values use the engine defaults.
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

// Cache fetches assets by URI and stores beds under a content-addressed
// cache directory.
type Cache struct {
	dir       string
	client    *http.Client
	s3        *s3.Client
	retryInit time.Duration
	retryMax  time.Duration
}

// NewCache creates the cache directory and the transports it needs.
func NewCache(cfg Config) (*Cache, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, util.WrapError("create cache directory", err)
	}

	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	if cfg.OAuth != nil && cfg.OAuth.ClientID != "" {
		client = cfg.OAuth.Client(context.Background())
		client.Timeout = timeout
	}

	c := &Cache{dir: cfg.Dir, client: client, retryInit: cfg.RetryInitialDelay, retryMax: cfg.RetryMaxDelay}
	if c.retryInit == 0 {
		c.retryInit = types.InitialRetryDelay
	}
	if c.retryMax == 0 {
		c.retryMax = types.MaxRetryDelay
	}
	if cfg.S3.IsConfigured() {
		c.s3 = newS3Client(cfg.S3)
	}
	return c, nil
}

// Fetch resolves uri to a local file path, downloading on cache miss.
// Local paths and file:// URIs are returned as-is without copying.
func (c *Cache) Fetch(ctx context.Context, uri string) (string, error) {
	if local, ok := localPath(uri); ok {
		return local, nil
	}

	dest := filepath.Join(c.dir, cacheKey(uri))
	if fi, err := os.Stat(dest); err == nil && fi.Size() > 0 {
		slog.Debug("asset cache hit", "uri", uri, "path", dest)
		return dest, nil
	}

	if err := c.download(ctx, uri, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FetchTemp downloads uri to a fresh temporary file, bypassing the cache.
// The caller owns the file and removes it when the session ends.
func (c *Cache) FetchTemp(ctx context.Context, uri string) (string, error) {
	if local, ok := localPath(uri); ok {
		return local, nil
	}

	f, err := os.CreateTemp(c.dir, "voice-*"+strings.ToLower(filepath.Ext(uri)))
	if err != nil {
		return "", util.WrapError("create temp file", err)
	}
	dest := f.Name()
	if err := f.Close(); err != nil {
		return "", util.WrapError("close temp file", err)
	}

	if err := c.download(ctx, uri, dest); err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, nil
}

// download fetches uri into dest with retries, writing to a temp file and
// renaming so a partial download never becomes visible under dest.
func (c *Cache) download(ctx context.Context, uri, dest string) error {
	backoff := util.NewBackoff(c.retryInit, c.retryMax)

	var lastErr error
	for attempt := 1; attempt <= types.MaxDownloadAttempts; attempt++ {
		if attempt > 1 {
			delay := backoff.Next()
			slog.Warn("asset download retry", "uri", uri, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return util.WrapError("download asset", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = c.downloadOnce(ctx, uri, dest)
		if lastErr == nil {
			slog.Info("asset downloaded", "uri", uri, "path", dest)
			return nil
		}
		if errors.Is(lastErr, ErrUnsupportedScheme) || ctx.Err() != nil {
			break
		}
	}
	return util.WrapError("download asset", lastErr)
}

func (c *Cache) downloadOnce(ctx context.Context, uri, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return util.WrapError("create temp file", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	var n int64
	u, err := url.Parse(uri)
	if err != nil {
		return util.WrapError("parse asset uri", err)
	}
	switch u.Scheme {
	case "http", "https":
		n, err = c.httpFetch(ctx, uri, tmp)
	case "s3":
		n, err = c.s3Fetch(ctx, u, tmp)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEmptyAsset
	}

	if err := tmp.Close(); err != nil {
		return util.WrapError("close temp file", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return util.WrapError("move asset into cache", err)
	}
	return nil
}

func (c *Cache) httpFetch(ctx context.Context, uri string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, util.WrapError("build request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, util.WrapError("http get", err)
	}
	defer util.SafeCloseFunc(resp.Body, "response body")()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("http get: unexpected status %d", resp.StatusCode)
	}
	return io.Copy(w, resp.Body)
}

func (c *Cache) s3Fetch(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	if c.s3 == nil {
		return 0, fmt.Errorf("%w: s3 is not configured", ErrUnsupportedScheme)
	}

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		return 0, util.WrapError("s3 get object", err)
	}
	defer util.SafeCloseFunc(out.Body, "s3 object body")()

	return io.Copy(w, out.Body)
}

// localPath reports whether uri already names a local file and returns it.
func localPath(uri string) (string, bool) {
	if strings.HasPrefix(uri, "file://") {
		return strings.TrimPrefix(uri, "file://"), true
	}
	if !strings.Contains(uri, "://") {
		return uri, true
	}
	return "", false
}

// cacheKey derives a stable filename from the asset URI, keeping the
// extension so the decoder can pick a container by it.
func cacheKey(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:16]) + strings.ToLower(filepath.Ext(strippedPath(uri)))
}

// strippedPath returns the URI path without query parameters.
func strippedPath(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		return u.Path
	}
	return uri
}
