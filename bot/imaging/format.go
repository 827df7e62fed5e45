// Package imaging prepares user photos for the upstream edit endpoint:
// format detection, square cropping, resizing, and PNG encoding.
package imaging

import (
	"bytes"
	"errors"
	"path"
	"strings"
)

// ErrUnknownFormat marks inputs whose format could not be determined from
// hints or byte signatures.
var ErrUnknownFormat = errors.New("image format not recognized")

// Format identifies which image formats the bot accepts.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWEBP Format = "webp"
)

// MIME returns the canonical content type for the format.
func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWEBP:
		return "image/webp"
	}
	return ""
}

var formatByMIME = map[string]Format{
	"image/jpeg": FormatJPEG,
	"image/jpg":  FormatJPEG,
	"image/png":  FormatPNG,
	"image/webp": FormatWEBP,
}

var formatByExtension = map[string]Format{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".webp": FormatWEBP,
}

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// DetectFormat resolves the image format of data. Hints win over content
// sniffing: a recognized content type first, then a recognized file extension
// from pathHint, then the byte signature. The second return value is false
// when nothing matches; callers treat that as a normal "unsupported upload"
// outcome, not a fault.
func DetectFormat(data []byte, pathHint, contentTypeHint string) (Format, bool) {
	if ct := normalizeContentType(contentTypeHint); ct != "" {
		if f, ok := formatByMIME[ct]; ok {
			return f, true
		}
	}
	if ext := strings.ToLower(path.Ext(pathHint)); ext != "" {
		if f, ok := formatByExtension[ext]; ok {
			return f, true
		}
	}
	return sniffFormat(data)
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func sniffFormat(data []byte) (Format, bool) {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return FormatJPEG, true
	case len(data) >= len(pngSignature) && bytes.HasPrefix(data, pngSignature):
		return FormatPNG, true
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return FormatWEBP, true
	}
	return "", false
}
