// Package imageio decodes uploaded images and encodes edit results.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	_ "image/jpeg"             // Register JPEG decoder
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/MeKo-Tech/photoedit/internal/history"
)

// MIME types produced by this package.
const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
)

// Decode decodes PNG, JPEG or WebP bytes.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, "image/" + format, nil
}

// Snapshot reads the dimensions and format of encoded image bytes without
// decoding the pixels.
func Snapshot(data []byte) (history.Snapshot, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return history.Snapshot{}, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	return history.Snapshot{
		Data:     data,
		MIMEType: "image/" + format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// ParseCompression maps a config string (default, speed, best, none) to a PNG
// compression level.
func ParseCompression(s string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return png.DefaultCompression, nil
	case "speed", "fast":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	case "none", "no":
		return png.NoCompression, nil
	default:
		return png.DefaultCompression, fmt.Errorf("unknown png compression %q (default, speed, best, none)", s)
	}
}

// EncodePNG encodes img as PNG with the given compression level.
func EncodePNG(img image.Image, level png.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// FromImage encodes img as a PNG snapshot.
func FromImage(img image.Image, level png.CompressionLevel) (history.Snapshot, error) {
	data, err := EncodePNG(img, level)
	if err != nil {
		return history.Snapshot{}, err
	}
	b := img.Bounds()
	return history.Snapshot{Data: data, MIMEType: MIMEPNG, Width: b.Dx(), Height: b.Dy()}, nil
}

// LoadFile reads an image file and its dimensions.
func LoadFile(path string) (history.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	s, err := Snapshot(data)
	if err != nil {
		return history.Snapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// WriteFile writes snapshot bytes to path.
func WriteFile(path string, s history.Snapshot) error {
	if err := os.WriteFile(path, s.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
