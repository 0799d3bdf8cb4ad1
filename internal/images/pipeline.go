package images

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wanderapp/places-importer/internal/storage"
)

const (
	contentType = "image/jpeg"
	// Keys are content-addressed by a random identifier, so objects never
	// change under a URL and can be cached forever.
	cacheControl = "public, max-age=31536000, immutable"
	keyPrefix    = "places"
	maxBodySize  = 32 << 20
)

// Result is the immutable outcome of a successful ingestion. It is fully
// known before any per-identity lock is taken.
type Result struct {
	URL        string
	Key        string
	SourceURL  string
	MigratedAt time.Time
}

// SkipError wraps the cause when the image step gives up on a record.
// Skipping is never fatal: the record proceeds without a cover image.
type SkipError struct {
	Err error
}

func (e *SkipError) Error() string { return fmt.Sprintf("image skipped: %v", e.Err) }
func (e *SkipError) Unwrap() error { return e.Err }

// Pipeline turns a remote photo URL into stored object content: download
// with one retry, mandatory re-encode (strips embedded metadata), upload
// under a random fan-out key.
type Pipeline struct {
	client      *http.Client
	uploader    storage.Uploader
	limiter     *rate.Limiter
	timeout     time.Duration
	maxLongEdge int
	quality     int
	now         func() time.Time
}

// Option configures optional pipeline dependencies.
type Option func(*Pipeline)

// WithHTTPClient overrides the download client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pipeline) {
		if client != nil {
			p.client = client
		}
	}
}

// WithDownloadRate paces downloads across the run; zero disables pacing.
func WithDownloadRate(perSecond float64) Option {
	return func(p *Pipeline) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithClock overrides the migration timestamp source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New builds a pipeline with the given bounds. timeout applies per
// download attempt; maxLongEdge and quality bound the re-encode.
func New(uploader storage.Uploader, timeout time.Duration, maxLongEdge, quality int, opts ...Option) *Pipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxLongEdge <= 0 {
		maxLongEdge = 1600
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	p := &Pipeline{
		client:      &http.Client{},
		uploader:    uploader,
		timeout:     timeout,
		maxLongEdge: maxLongEdge,
		quality:     quality,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest resolves a source photo URL into a stored object reference.
// Failures after the single retry come back as *SkipError.
func (p *Pipeline) Ingest(ctx context.Context, sourceURL string) (*Result, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return nil, &SkipError{Err: fmt.Errorf("empty source url")}
	}

	body, err := p.download(ctx, sourceURL)
	if err != nil {
		return nil, &SkipError{Err: err}
	}

	encoded, err := p.transcode(body)
	if err != nil {
		return nil, &SkipError{Err: err}
	}

	key := NewObjectKey()
	publicURL, err := p.uploader.Put(ctx, key, encoded, contentType, cacheControl)
	if err != nil {
		return nil, &SkipError{Err: fmt.Errorf("upload: %w", err)}
	}

	return &Result{
		URL:        publicURL,
		Key:        key,
		SourceURL:  sourceURL,
		MigratedAt: p.now().UTC(),
	}, nil
}

// download fetches the source image, retrying exactly once on timeout or
// transient failure. A definitive 4xx is terminal immediately.
func (p *Pipeline) download(ctx context.Context, sourceURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		body, retryable, err := p.downloadOnce(ctx, sourceURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("download failed after retry: %w", lastErr)
}

func (p *Pipeline) downloadOnce(ctx context.Context, sourceURL string) (body []byte, retryable bool, err error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build download request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("download %s: status %d", sourceURL, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("download %s: status %d", sourceURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("read image body: %w", err)
	}
	return data, false, nil
}

// transcode re-encodes to JPEG at the configured quality, shrinking to
// the bounded long edge. Re-encoding is mandatory even for compliant
// sources: it drops embedded metadata the upstream photo may carry.
func (p *Pipeline) transcode(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > p.maxLongEdge || bounds.Dy() > p.maxLongEdge {
		img = imaging.Fit(img, p.maxLongEdge, p.maxLongEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// NewObjectKey generates a storage key from a fresh random identifier
// with a two-level fan-out prefix taken from its first four hex
// characters. The key is never derived from any place identifier.
func NewObjectKey() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s/%s/%s/%s.jpg", keyPrefix, hex[0:2], hex[2:4], hex)
}
