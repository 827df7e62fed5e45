package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrTooLarge marks uploads rejected by the configured byte or pixel caps
// before any full decode happens.
var ErrTooLarge = errors.New("image exceeds configured limits")

// DecodeError wraps a failure to decode image bytes that may have looked
// valid by signature.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image decode failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// NormalizedImage is a square PNG ready for the upstream edit endpoint.
type NormalizedImage struct {
	Data []byte
	MIME string
	Size int
}

// Limits bounds inputs accepted by Normalize. Zero values disable a cap.
type Limits struct {
	MaxBytes     int
	MaxPixelSide int
}

// Normalize decodes data, crops the largest centered square, resizes it to
// targetSize x targetSize with Catmull-Rom resampling, and encodes PNG.
// Alpha is preserved when the source carries it; opaque sources come out as
// plain RGB.
func Normalize(data []byte, targetSize int, limits Limits) (*NormalizedImage, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("invalid target size %d", targetSize)
	}
	if limits.MaxBytes > 0 && len(data) > limits.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes (cap %d)", ErrTooLarge, len(data), limits.MaxBytes)
	}

	// Header-only parse; keeps the pixel cap check cheap for huge inputs.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if limits.MaxPixelSide > 0 && (cfg.Width > limits.MaxPixelSide || cfg.Height > limits.MaxPixelSide) {
		return nil, fmt.Errorf("%w: %dx%d px (cap %d)", ErrTooLarge, cfg.Width, cfg.Height, limits.MaxPixelSide)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	crop := centeredSquare(src.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, targetSize, targetSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, dst); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}

	return &NormalizedImage{
		Data: buf.Bytes(),
		MIME: "image/png",
		Size: targetSize,
	}, nil
}

// centeredSquare returns the largest square centered in bounds,
// with offsets computed by integer floor division.
func centeredSquare(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	side := w
	if h < side {
		side = h
	}
	left := bounds.Min.X + (w-side)/2
	top := bounds.Min.Y + (h-side)/2
	return image.Rect(left, top, left+side, top+side)
}
