// Package transform defines the optional payload transform applied before
// anything is written to either store. The coordinator treats it as an
// opaque function from (bytes, extension, options) to (bytes, extension);
// this package owns only the option bounds and an image re-encoder.
package transform

import (
	"fmt"

	"github.com/dkrasnovs/filedepot/internal/common"
)

// Options describes the requested transform. The zero value means "no
// transform" for every file type.
type Options struct {
	// Format is the target format: "png" or "jpeg". Empty keeps the
	// source format.
	Format string
	// Width and Height are target dimensions in pixels. Zero keeps the
	// source dimension. Enlargement is never performed.
	Width  int
	Height int
	// Quality applies to jpeg output only, in percent. Zero uses the
	// encoder default.
	Quality int
}

// IsZero reports whether no transform was requested.
func (o Options) IsZero() bool {
	return o.Format == "" && o.Width == 0 && o.Height == 0 && o.Quality == 0
}

// Limits bounds the values a client may request.
type Limits struct {
	MinDimension int
	MaxDimension int
	MinQuality   int
	MaxQuality   int
}

func DefaultLimits() Limits {
	return Limits{
		MinDimension: 16,
		MaxDimension: 4096,
		MinQuality:   10,
		MaxQuality:   100,
	}
}

// Validate checks the requested options against the limits.
func (l Limits) Validate(o Options) error {
	if o.Format != "" && o.Format != "png" && o.Format != "jpeg" {
		return fmt.Errorf("%w: unsupported target format %q", common.ErrorTransform, o.Format)
	}
	for _, dim := range []int{o.Width, o.Height} {
		if dim != 0 && (dim < l.MinDimension || dim > l.MaxDimension) {
			return fmt.Errorf("%w: dimensions must be within %d..%d", common.ErrorTransform, l.MinDimension, l.MaxDimension)
		}
	}
	if o.Quality != 0 && (o.Quality < l.MinQuality || o.Quality > l.MaxQuality) {
		return fmt.Errorf("%w: quality must be within %d..%d", common.ErrorTransform, l.MinQuality, l.MaxQuality)
	}
	return nil
}

// Transformer converts a payload and returns the new bytes and the new
// extension (with leading dot).
type Transformer interface {
	Transform(data []byte, ext string, opts Options) ([]byte, string, error)
}

// Noop passes every payload through untouched but still rejects non-empty
// options: a caller asking for a transform must not silently get none.
type Noop struct{}

func (Noop) Transform(data []byte, ext string, opts Options) ([]byte, string, error) {
	if !opts.IsZero() {
		return nil, "", fmt.Errorf("%w: transforms are not enabled", common.ErrorTransform)
	}
	return data, ext, nil
}
