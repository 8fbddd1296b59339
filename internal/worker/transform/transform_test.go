package transform

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/cuongbtq/image-worker/internal/worker/domain"
	"github.com/cuongbtq/image-worker/internal/worker/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func TestTransformer_Transform(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		subtype    string
		wantWidth  int
		wantHeight int
	}{
		{"large landscape jpeg", encodeJPEG(t, 1024, 768), "jpeg", 256, 192},
		{"large portrait png", encodePNG(t, 300, 900), "png", 85, 256},
		{"square png", encodePNG(t, 512, 512), "png", 256, 256},
		{"small jpeg kept", encodeJPEG(t, 120, 80), "jpeg", 120, 80},
		{"exact bound kept", encodePNG(t, 256, 100), "png", 256, 100},
		{"alias subtype", encodeJPEG(t, 600, 300), "jpg", 256, 128},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := sink.NewMemorySink()
			tr := New(&Config{Sink: mem})

			derivative, err := tr.Transform(context.Background(), "job-1", &domain.FetchedImage{Data: tt.data, Subtype: tt.subtype}, 256)
			require.NoError(t, err)

			assert.Equal(t, "job-1."+tt.subtype, derivative.Key)
			assert.Equal(t, tt.wantWidth, derivative.Width)
			assert.Equal(t, tt.wantHeight, derivative.Height)

			stored, ok := mem.Get(derivative.Key)
			require.True(t, ok)
			assert.Equal(t, derivative.Data, stored)

			cfg, _, err := image.DecodeConfig(bytes.NewReader(stored))
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, cfg.Width)
			assert.Equal(t, tt.wantHeight, cfg.Height)
			assert.LessOrEqual(t, max(cfg.Width, cfg.Height), 256)
		})
	}
}

func TestTransformer_PassThroughKeepsBytes(t *testing.T) {
	data := encodePNG(t, 64, 32)
	mem := sink.NewMemorySink()
	tr := New(&Config{Sink: mem})

	derivative, err := tr.Transform(context.Background(), "job-2", &domain.FetchedImage{Data: data, Subtype: "png"}, 256)
	require.NoError(t, err)
	assert.Equal(t, data, derivative.Data)
}

func TestTransformer_EncodesInSourceFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(400, 200), nil))

	mem := sink.NewMemorySink()
	tr := New(&Config{Sink: mem})

	derivative, err := tr.Transform(context.Background(), "job-3", &domain.FetchedImage{Data: buf.Bytes(), Subtype: "gif"}, 100)
	require.NoError(t, err)

	_, format, err := image.DecodeConfig(bytes.NewReader(derivative.Data))
	require.NoError(t, err)
	assert.Equal(t, "gif", format)
	assert.Equal(t, 100, derivative.Width)
	assert.Equal(t, 50, derivative.Height)
}

func TestTransformer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		subtype string
		wantErr error
	}{
		{"corrupt bytes", []byte("definitely not an image"), "jpeg", domain.ErrDecodeFailed},
		{"truncated png", encodePNG(t, 300, 300)[:100], "png", domain.ErrDecodeFailed},
		{"webp cannot be encoded", []byte("RIFF....WEBP"), "webp", domain.ErrUnsupportedFormat},
		{"svg cannot be encoded", []byte("<svg/>"), "svg+xml", domain.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := sink.NewMemorySink()
			tr := New(&Config{Sink: mem})

			derivative, err := tr.Transform(context.Background(), "job-4", &domain.FetchedImage{Data: tt.data, Subtype: tt.subtype}, 256)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, derivative)
			assert.Empty(t, mem.Keys())
		})
	}
}

// gifHeader is a GIF89a header and logical screen descriptor without image data
func gifHeader(w, h uint16) []byte {
	return []byte{'G', 'I', 'F', '8', '9', 'a', byte(w), byte(w >> 8), byte(h), byte(h >> 8), 0, 0, 0}
}

func TestTransformer_PixelLimit(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		subtype   string
		maxPixels int
	}{
		{"declared dimensions over default limit", gifHeader(30000, 30000), "gif", 0},
		{"decoded image over configured limit", encodePNG(t, 20, 20), "png", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := sink.NewMemorySink()
			tr := New(&Config{Sink: mem, MaxPixels: tt.maxPixels})

			derivative, err := tr.Transform(context.Background(), "job-6", &domain.FetchedImage{Data: tt.data, Subtype: tt.subtype}, 256)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrTooLarge)
			assert.Nil(t, derivative)
			assert.Empty(t, mem.Keys())
		})
	}
}

func encodeAnimatedGIF(t *testing.T, w, h, frames int) []byte {
	t.Helper()
	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{color.Black, color.White})
		frame.SetColorIndex(i%w, 0, 1)
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, anim))
	return buf.Bytes()
}

func TestTransformer_AnimatedGIF(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		wantFrames int
	}{
		{"resized animation keeps first frame", 400, 200, 1},
		{"animation within bounds passes through", 100, 50, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := sink.NewMemorySink()
			tr := New(&Config{Sink: mem})

			derivative, err := tr.Transform(context.Background(), "job-7", &domain.FetchedImage{Data: encodeAnimatedGIF(t, tt.w, tt.h, 3), Subtype: "gif"}, 256)
			require.NoError(t, err)

			anim, err := gif.DecodeAll(bytes.NewReader(derivative.Data))
			require.NoError(t, err)
			assert.Len(t, anim.Image, tt.wantFrames)
		})
	}
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, string, []byte) error {
	return errors.New("bucket unavailable")
}

func TestTransformer_SinkFailureIsUnexpected(t *testing.T) {
	tr := New(&Config{Sink: failingSink{}})

	_, err := tr.Transform(context.Background(), "job-5", &domain.FetchedImage{Data: encodePNG(t, 10, 10), Subtype: "png"}, 256)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnexpected)
}

func TestBoundedSize(t *testing.T) {
	tests := []struct {
		w, h, limit  int
		wantW, wantH int
		wantResize   bool
	}{
		{1024, 768, 256, 256, 192, true},
		{768, 1024, 256, 192, 256, true},
		{256, 256, 256, 256, 256, false},
		{10, 10, 256, 10, 10, false},
		{5000, 1, 256, 256, 1, true},
		{1, 5000, 256, 1, 256, true},
		{257, 100, 256, 256, 100, true},
	}

	for _, tt := range tests {
		w, h, resize := boundedSize(tt.w, tt.h, tt.limit)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantResize, resize, "%dx%d", tt.w, tt.h)
	}
}

func TestSupported(t *testing.T) {
	for _, subtype := range []string{"jpeg", "JPEG", "jpg", "png", "gif", "bmp", "x-ms-bmp", "tiff"} {
		assert.True(t, Supported(subtype), subtype)
	}
	for _, subtype := range []string{"webp", "svg+xml", "avif", ""} {
		assert.False(t, Supported(subtype), subtype)
	}
}
