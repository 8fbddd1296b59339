package transform

import (
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

type codec struct {
	contentType string
	encode      func(w io.Writer, img image.Image, quality int) error
}

var codecs = map[string]codec{
	"jpeg": {
		contentType: "image/jpeg",
		encode: func(w io.Writer, img image.Image, quality int) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		},
	},
	"png": {
		contentType: "image/png",
		encode: func(w io.Writer, img image.Image, _ int) error {
			return png.Encode(w, img)
		},
	},
	"gif": {
		contentType: "image/gif",
		encode: func(w io.Writer, img image.Image, _ int) error {
			return gif.Encode(w, img, nil)
		},
	},
	"bmp": {
		contentType: "image/bmp",
		encode: func(w io.Writer, img image.Image, _ int) error {
			return bmp.Encode(w, img)
		},
	},
	"tiff": {
		contentType: "image/tiff",
		encode: func(w io.Writer, img image.Image, _ int) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		},
	},
}

// subtypeAliases maps non-canonical media subtypes seen in the wild
var subtypeAliases = map[string]string{
	"jpg":      "jpeg",
	"pjpeg":    "jpeg",
	"x-png":    "png",
	"x-bmp":    "bmp",
	"x-ms-bmp": "bmp",
	"tif":      "tiff",
	"x-tiff":   "tiff",
}

func lookupCodec(subtype string) (codec, bool) {
	subtype = strings.ToLower(subtype)
	if canonical, ok := subtypeAliases[subtype]; ok {
		subtype = canonical
	}
	c, ok := codecs[subtype]
	return c, ok
}

// Supported reports whether derivatives can be produced for the subtype
func Supported(subtype string) bool {
	_, ok := lookupCodec(subtype)
	return ok
}
