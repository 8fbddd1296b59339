package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
	"github.com/cuongbtq/image-worker/internal/worker/sink"
	"golang.org/x/image/draw"
)

const (
	defaultJPEGQuality = 75
	defaultMaxPixels   = 40_000_000
)

// Config holds transformer configuration
type Config struct {
	Logger      *slog.Logger
	Sink        sink.Sink
	JPEGQuality int
	MaxPixels   int // largest accepted width*height
}

// Transformer produces bounded-size derivatives and publishes them to a sink
type Transformer struct {
	logger      *slog.Logger
	sink        sink.Sink
	jpegQuality int
	maxPixels   int
}

// New creates a new Transformer
func New(cfg *Config) *Transformer {
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxPixels := cfg.MaxPixels
	if maxPixels <= 0 {
		maxPixels = defaultMaxPixels
	}

	return &Transformer{
		logger:      logger,
		sink:        cfg.Sink,
		jpegQuality: quality,
		maxPixels:   maxPixels,
	}
}

// Transform decodes the fetched image, shrinks it so that its longest side is
// at most maxDimension, encodes it in the source format and publishes it under
// DerivativeKey(id, subtype). Resizing an animated GIF keeps its first frame only.
func (t *Transformer) Transform(ctx context.Context, id string, img *domain.FetchedImage, maxDimension int) (*domain.Derivative, error) {
	if maxDimension <= 0 {
		maxDimension = domain.DefaultMaxDimension
	}

	c, ok := lookupCodec(img.Subtype)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, img.Subtype)
	}

	// The header is checked first so a small file declaring huge dimensions
	// never gets its pixel buffer allocated.
	header, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecodeFailed, err)
	}
	if pixels := int64(header.Width) * int64(header.Height); pixels > int64(t.maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrTooLarge, header.Width, header.Height, t.maxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecodeFailed, err)
	}

	bounds := src.Bounds()
	width, height, resize := boundedSize(bounds.Dx(), bounds.Dy(), maxDimension)

	data := img.Data
	if resize {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

		var buf bytes.Buffer
		if err := c.encode(&buf, dst, t.jpegQuality); err != nil {
			return nil, fmt.Errorf("%w: encoding %s: %v", domain.ErrUnexpected, img.Subtype, err)
		}
		data = buf.Bytes()
	}

	derivative := &domain.Derivative{
		Key:     domain.DerivativeKey(id, img.Subtype),
		Subtype: img.Subtype,
		Data:    data,
		Width:   width,
		Height:  height,
	}

	if err := t.sink.Put(ctx, derivative.Key, c.contentType, derivative.Data); err != nil {
		return nil, fmt.Errorf("%w: publishing derivative: %v", domain.ErrUnexpected, err)
	}

	t.logger.Debug("Derivative published",
		slog.String("job_id", id),
		slog.String("key", derivative.Key),
		slog.Int("width", width),
		slog.Int("height", height),
		slog.Bool("resized", resize),
	)

	return derivative, nil
}

// boundedSize returns the target size for a w x h image whose longest side must
// not exceed limit, preserving the aspect ratio. resize is false when the image
// already fits.
func boundedSize(w, h, limit int) (width, height int, resize bool) {
	if w <= limit && h <= limit {
		return w, h, false
	}

	if w >= h {
		width = limit
		height = (h*limit + w/2) / w
	} else {
		height = limit
		width = (w*limit + h/2) / h
	}

	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height, true
}
