package mask

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/gift"
)

// Rasterize converts the surface into a native-resolution binary mask using
// the surface palette:
//
//  1. a nativeW×nativeH canvas is filled with the palette Default colour,
//  2. the surface pixels are copied into a display-sized scratch buffer,
//  3. scratch pixels with alpha > 0 become Marked, the rest Default,
//  4. the scratch buffer is scaled (nearest neighbour) onto the canvas.
//
// Every pixel of the result is either Default or Marked.
func Rasterize(s *Surface, nativeW, nativeH int) (*image.Gray, error) {
	if nativeW <= 0 || nativeH <= 0 {
		return nil, fmt.Errorf("native size %dx%d must be positive", nativeW, nativeH)
	}

	dst := image.NewGray(image.Rect(0, 0, nativeW, nativeH))
	fillGray(dst, s.palette.Default)

	if s.Size().X == 0 || s.Size().Y == 0 {
		return dst, nil
	}

	scratch := ExtractBinaryMask(s.Pixels())
	recolor(scratch, s.palette)

	g := gift.New(gift.Resize(nativeW, nativeH, gift.NearestNeighborResampling))
	g.Draw(dst, scratch)

	return dst, nil
}

// ExtractBinaryMask converts a painted layer into a binary mask.
// Pixels with any non-zero alpha become white (255), transparent pixels black (0).
func ExtractBinaryMask(img image.Image) *image.Gray {
	bounds := img.Bounds()
	mask := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// RGBA() returns values in range 0-65535, so check if alpha > 0
			_, _, _, a := img.At(x, y).RGBA()
			if a > 0 {
				mask.SetGray(x, y, color.Gray{Y: 255})
			} else {
				mask.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}

	return mask
}

// Grow dilates the white region of a binary mask by roughly radius pixels.
// The mask is blurred and every pixel the blur reaches becomes white, so the
// result stays binary.
func Grow(mask *image.Gray, radius int) *image.Gray {
	if radius <= 0 {
		return mask
	}
	blurred := GaussianBlur(mask, float32(radius)/2)
	return ApplyThreshold(blurred, 1)
}

// GaussianBlur applies a Gaussian blur filter to soften mask edges.
// The sigma parameter controls the blur radius (larger = more blur).
func GaussianBlur(mask *image.Gray, sigma float32) *image.Gray {
	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewGray(g.Bounds(mask.Bounds()))
	g.Draw(dst, mask)
	return dst
}

// ApplyThreshold applies a binary threshold to sharpen mask edges.
// Values below threshold become 0 (black), values at or above become 255 (white).
func ApplyThreshold(mask *image.Gray, threshold uint8) *image.Gray {
	bounds := mask.Bounds()
	result := image.NewGray(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if mask.GrayAt(x, y).Y >= threshold {
				result.SetGray(x, y, color.Gray{Y: 255})
			} else {
				result.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}

	return result
}

// recolor maps 255 to the palette Marked colour and 0 to Default, in place.
func recolor(m *image.Gray, p Palette) {
	for i, v := range m.Pix {
		if v != 0 {
			m.Pix[i] = p.Marked.Y
		} else {
			m.Pix[i] = p.Default.Y
		}
	}
}

func fillGray(m *image.Gray, c color.Gray) {
	for i := range m.Pix {
		m.Pix[i] = c.Y
	}
}
