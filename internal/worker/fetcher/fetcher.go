package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 32 << 20
)

// Config holds fetcher configuration
type Config struct {
	Logger    *slog.Logger
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64 // largest accepted body
}

// Fetcher downloads remote images after probing their content type
type Fetcher struct {
	logger    *slog.Logger
	client    *http.Client
	userAgent string
	maxBytes  int64
}

// New creates a new Fetcher
func New(cfg *Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	return &Fetcher{
		logger:    logger,
		client:    client,
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
	}
}

// Fetch probes the URL with HEAD, then downloads it with GET.
// Non-image content fails with ErrNotAnImage, bodies over the byte limit with
// ErrTooLarge and network trouble or non-2xx statuses with ErrTransferFailed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.FetchedImage, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	subtype, probed, err := f.probe(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET returned status %d", domain.ErrTransferFailed, resp.StatusCode)
	}

	if !probed {
		subtype, err = imageSubtype(resp.Header.Get("Content-Type"))
		if err != nil {
			return nil, err
		}
	}

	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: Content-Length %d exceeds %d bytes", domain.ErrTooLarge, resp.ContentLength, f.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrTransferFailed, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrTooLarge, f.maxBytes)
	}

	f.logger.Debug("Image downloaded",
		slog.String("url", rawURL),
		slog.String("subtype", subtype),
		slog.Int("size", len(data)),
	)

	return &domain.FetchedImage{Data: data, Subtype: subtype}, nil
}

// probe issues the HEAD request. probed is false when the server does not
// support HEAD and the content type has to be taken from the GET response.
func (f *Fetcher) probe(ctx context.Context, rawURL string) (subtype string, probed bool, err error) {
	resp, err := f.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return "", false, fmt.Errorf("%w: HEAD: %v", domain.ErrTransferFailed, err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented:
		f.logger.Debug("HEAD not supported, using GET content type",
			slog.String("url", rawURL),
			slog.Int("status", resp.StatusCode),
		)
		return "", false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		// The Content-Type of an error page says nothing about the resource.
		return "", false, fmt.Errorf("%w: HEAD returned status %d", domain.ErrTransferFailed, resp.StatusCode)
	}

	subtype, err = imageSubtype(resp.Header.Get("Content-Type"))
	if err != nil {
		return "", false, err
	}
	return subtype, true, nil
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	return f.client.Do(req)
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: image_url: %v", domain.ErrInvalidPayload, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: image_url scheme %q not supported", domain.ErrInvalidPayload, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: image_url has no host", domain.ErrInvalidPayload)
	}
	return nil
}

// imageSubtype extracts "jpeg" from "image/jpeg; charset=binary"
func imageSubtype(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", fmt.Errorf("%w: Content-Type header not found", domain.ErrNotAnImage)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: malformed Content-Type %q", domain.ErrNotAnImage, contentType)
	}

	major, subtype, ok := strings.Cut(mediaType, "/")
	if !ok || major != "image" || subtype == "" {
		return "", fmt.Errorf("%w: Content-Type %q", domain.ErrNotAnImage, mediaType)
	}
	return subtype, nil
}
