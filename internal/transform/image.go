package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/dkrasnovs/filedepot/internal/common"
)

// Image re-encodes raster payloads (png, jpeg, gif in; png, jpeg out)
// with bounded scaling. Non-image payloads with non-empty options are
// unprocessable.
type Image struct {
	limits Limits
}

func NewImage(limits Limits) *Image {
	return &Image{limits: limits}
}

func (t *Image) Transform(data []byte, ext string, opts Options) ([]byte, string, error) {
	if opts.IsZero() {
		return data, ext, nil
	}

	if err := t.limits.Validate(opts); err != nil {
		return nil, "", err
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", common.ErrorTransform, err)
	}

	dst := scale(src, opts)

	target := opts.Format
	if target == "" {
		target = format
	}

	var buf bytes.Buffer
	switch target {
	case "png":
		err = png.Encode(&buf, dst)
		ext = ".png"
	case "jpeg":
		q := jpeg.DefaultQuality
		if opts.Quality != 0 {
			q = opts.Quality
		}
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: q})
		ext = ".jpg"
	case "gif":
		err = gif.Encode(&buf, dst, nil)
		ext = ".gif"
	default:
		return nil, "", fmt.Errorf("%w: unsupported target format %q", common.ErrorTransform, target)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", common.ErrorTransform, err)
	}

	return buf.Bytes(), ext, nil
}

// scale resizes src to the requested dimensions, preserving aspect ratio
// when only one dimension is given and never enlarging.
func scale(src image.Image, opts Options) image.Image {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()

	w, h := opts.Width, opts.Height
	switch {
	case w == 0 && h == 0:
		return src
	case w == 0:
		w = sw * h / sh
	case h == 0:
		h = sh * w / sw
	}

	// enlargement disallowed
	if w >= sw && h >= sh {
		return src
	}
	if w > sw {
		w = sw
	}
	if h > sh {
		h = sh
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
