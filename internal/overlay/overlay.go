// Package overlay renders the mask preview: the translucent brush tints of
// the mask surfaces composited over the image they belong to.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/gift"
)

// Render scales every mask (display resolution) onto the bounds of base
// (native resolution) and stacks them over it in order. Nil masks are
// skipped.
func Render(base image.Image, masks ...*image.NRGBA) (*image.NRGBA, error) {
	if base == nil {
		return nil, fmt.Errorf("base image is required")
	}
	b := base.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("base image is empty")
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), base, b.Min, draw.Src)

	g := gift.New(gift.Resize(b.Dx(), b.Dy(), gift.NearestNeighborResampling))
	layers := make([]image.Image, 0, len(masks))
	for _, m := range masks {
		if m == nil || m.Bounds().Empty() {
			continue
		}
		scaled := image.NewNRGBA(dst.Bounds())
		g.Draw(scaled, m)
		layers = append(layers, scaled)
	}
	return Composite(dst, layers...)
}

// Composite stacks layers bottom to top over base. Every layer must match
// the bounds of base.
func Composite(base image.Image, layers ...image.Image) (*image.NRGBA, error) {
	if base == nil {
		return nil, fmt.Errorf("base image is required")
	}
	bounds := base.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, base, bounds.Min, draw.Src)

	for i, layer := range layers {
		if layer == nil {
			continue
		}
		if layer.Bounds() != bounds {
			return nil, fmt.Errorf("layer %d bounds %v do not match expected %v", i, layer.Bounds(), bounds)
		}
		alphaOver(dst, layer)
	}
	return dst, nil
}

func alphaOver(dst *image.NRGBA, src image.Image) {
	bounds := dst.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			s := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			if s.A == 0 {
				continue
			}
			dst.SetNRGBA(x, y, blend(s, dst.NRGBAAt(x, y)))
		}
	}
}

// blend is the non-premultiplied source-over operator.
func blend(top, bottom color.NRGBA) color.NRGBA {
	sa := float64(top.A) / 255.0
	da := float64(bottom.A) / 255.0

	outA := sa + da*(1.0-sa)
	if outA == 0 {
		return color.NRGBA{}
	}

	mix := func(s, d uint8) uint8 {
		out := float64(s)*sa + float64(d)*da*(1.0-sa)
		return uint8(math.Round(out / outA))
	}

	return color.NRGBA{
		R: mix(top.R, bottom.R),
		G: mix(top.G, bottom.G),
		B: mix(top.B, bottom.B),
		A: uint8(math.Round(outA * 255.0)),
	}
}
