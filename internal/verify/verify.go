// Package verify implements the upload trust pipeline. Client-declared
// metadata (filename, size) is never trusted on its own: the declared
// extension, the media type inferred from it and the binary signature of
// the payload must all agree before a descriptor is produced.
package verify

import (
	"bytes"
	"fmt"
	"mime"
	"sort"
	"strings"

	"github.com/dkrasnovs/filedepot/internal/common"
)

// Descriptor is the validated output of the pipeline and the only input
// the file service trusts. It belongs to a single request's lifetime.
type Descriptor struct {
	// DisplayName is the client-supplied name, kept for display only.
	DisplayName string
	// Extension is the validated extension including the leading dot.
	Extension string
	// MediaType is the type inferred from the extension, never the
	// client-declared content type.
	MediaType string
	// Size is the payload length in bytes.
	Size int64
	// Data is the raw payload.
	Data []byte
}

// Config holds the pipeline limits and the extension allow-list.
type Config struct {
	// MaxBytes is the upload size ceiling.
	MaxBytes int64
	// Allowed maps an extension (with leading dot, lower case) to the
	// set of media types acceptable for it.
	Allowed map[string][]string
}

// DefaultConfig returns the stock 5 MiB / image+pdf+text policy.
func DefaultConfig() Config {
	return Config{
		MaxBytes: 5 << 20,
		Allowed: map[string][]string{
			".png":  {"image/png"},
			".jpg":  {"image/jpeg"},
			".jpeg": {"image/jpeg"},
			".gif":  {"image/gif"},
			".pdf":  {"application/pdf"},
			".txt":  {"text/plain"},
		},
	}
}

func init() {
	// the host mime table is not guaranteed to know every allowed
	// extension (".txt" is absent from Go's builtin set)
	_ = mime.AddExtensionType(".txt", "text/plain")
}

// signatures maps a media type to its known magic-number prefixes. Types
// not present here (e.g. text/plain) have no reliable signature and skip
// the check.
var signatures = map[string][][]byte{
	"image/png":       {{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	"image/jpeg":      {{0xFF, 0xD8, 0xFF}},
	"image/gif":       {[]byte("GIF87a"), []byte("GIF89a")},
	"application/pdf": {[]byte("%PDF-")},
}

// Verify runs the pipeline gates in order; the first failure aborts.
// rawName and declaredSize come straight from the client.
func Verify(cfg Config, rawName string, declaredSize int64, data []byte) (*Descriptor, error) {
	size := int64(len(data))

	// 1. size ceiling, on both the declared and the actual size
	if size > cfg.MaxBytes || declaredSize > cfg.MaxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", common.ErrorFileTooLarge, cfg.MaxBytes)
	}

	// 2. extension = last dot-delimited suffix of the supplied name
	ext := extensionOf(rawName)
	if ext == "" {
		return nil, common.ErrorNoExtension
	}

	// 3. allow-list membership
	allowedTypes, ok := cfg.Allowed[ext]
	if !ok {
		return nil, fmt.Errorf("%w: allowed extensions are %s", common.ErrorExtensionNotAllowed, allowedExtensions(cfg))
	}

	// 4. media type inferred from the extension, not from client headers
	inferred := mime.TypeByExtension(ext)
	if inferred == "" {
		return nil, fmt.Errorf("%w: unknown media type for %s", common.ErrorExtensionNotAllowed, ext)
	}
	mediaType, _, err := mime.ParseMediaType(inferred)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown media type for %s", common.ErrorExtensionNotAllowed, ext)
	}

	// 5. cross-validation: inferred type must be acceptable for the
	// extension. Same generic rejection as the signature gate.
	if !contains(allowedTypes, mediaType) {
		return nil, common.ErrorNotTrusted
	}

	// 6. binary signature, where the type has one
	if prefixes, ok := signatures[mediaType]; ok {
		if !hasAnyPrefix(data, prefixes) {
			return nil, common.ErrorNotTrusted
		}
	}

	return &Descriptor{
		DisplayName: rawName,
		Extension:   ext,
		MediaType:   mediaType,
		Size:        size,
		Data:        data,
	}, nil
}

func extensionOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx:])
}

func allowedExtensions(cfg Config) string {
	exts := make([]string, 0, len(cfg.Allowed))
	for ext := range cfg.Allowed {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasAnyPrefix(data []byte, prefixes [][]byte) bool {
	for _, p := range prefixes {
		if bytes.HasPrefix(data, p) {
			return true
		}
	}
	return false
}
