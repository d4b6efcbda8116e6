package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF so it is reported as unsupported rather than unknown
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"math"

	"golang.org/x/image/draw"
)

const (
	// MaxBytes is the largest upload accepted by Validate (10 MiB)
	MaxBytes = 10 << 20
	// MaxSourceDimension is the largest width or height accepted by Validate
	MaxSourceDimension = 4000
	// DefaultMaxDimension is the longest edge Optimize produces when no limit is given
	DefaultMaxDimension = 1024
	// JPEGQuality is the fixed quality used when re-encoding
	JPEGQuality = 85
)

// Format is the sniffed encoding of an image
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// Supported reports whether the format may be uploaded
func (f Format) Supported() bool {
	return f == FormatPNG || f == FormatJPEG
}

// RawImage describes an inbound upload after its header has been decoded
type RawImage struct {
	Data   []byte
	Format Format
	Width  int
	Height int
}

// Size returns the length of the encoded image in bytes
func (r *RawImage) Size() int {
	return len(r.Data)
}

// Inspect decodes the image header without decoding pixel data
func Inspect(data []byte) (*RawImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &RawImage{
		Data:   data,
		Format: Format(format),
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Validate checks an upload against the size, format and dimension limits.
// It never fails with an error; a false result carries the reason.
func Validate(data []byte) (bool, string) {
	if len(data) == 0 {
		return false, "Image data cannot be empty"
	}
	if len(data) > MaxBytes {
		return false, "Image size exceeds 10MB limit"
	}

	raw, err := Inspect(data)
	if err != nil {
		return false, fmt.Sprintf("Invalid image data: %v", err)
	}
	if !raw.Format.Supported() {
		return false, fmt.Sprintf("Unsupported image format: %s", raw.Format)
	}
	if raw.Width > MaxSourceDimension || raw.Height > MaxSourceDimension {
		return false, fmt.Sprintf("Image dimensions (%dx%d) exceed maximum allowed (%dx%d)",
			raw.Width, raw.Height, MaxSourceDimension, MaxSourceDimension)
	}
	return true, ""
}

// Optimize flattens transparency onto white, downscales so the longest edge
// is at most maxDimension and re-encodes as JPEG. A maxDimension <= 0 uses
// DefaultMaxDimension.
func Optimize(data []byte, maxDimension int) ([]byte, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	width, height := scaledSize(bounds.Dx(), bounds.Dy(), maxDimension)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	if width == bounds.Dx() && height == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

func scaledSize(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}
	// The longest edge lands exactly on the limit; the other edge is rounded.
	if width >= height {
		return maxDimension, shortEdge(height, width, maxDimension)
	}
	return shortEdge(width, height, maxDimension), maxDimension
}

func shortEdge(short, long, maxDimension int) int {
	return max(1, int(math.Round(float64(short)*float64(maxDimension)/float64(long))))
}

// InvalidImageError is returned when an upload fails validation
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return e.Reason
}

// Preprocess validates an upload and returns its optimized JPEG encoding
func Preprocess(data []byte) ([]byte, error) {
	if ok, reason := Validate(data); !ok {
		return nil, &InvalidImageError{Reason: reason}
	}
	optimized, err := Optimize(data, DefaultMaxDimension)
	if err != nil {
		return nil, fmt.Errorf("optimizing image: %w", err)
	}
	return optimized, nil
}
