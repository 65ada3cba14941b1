package mask

import (
	"image"
	"image/color"
	"math"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"
)

// segmentCoverage returns a binary coverage mask for a round-capped line of
// the given width from a to b, clipped to bounds. Pixel centres within
// width/2 of the segment are covered, so consecutive segments join as
// continuous blobs rather than a polyline.
func segmentCoverage(bounds image.Rectangle, a, b orb.Point, width float64) (*image.Alpha, image.Rectangle) {
	radius := width / 2
	minX := int(math.Floor(math.Min(a.X(), b.X()) - radius))
	maxX := int(math.Ceil(math.Max(a.X(), b.X()) + radius))
	minY := int(math.Floor(math.Min(a.Y(), b.Y()) - radius))
	maxY := int(math.Ceil(math.Max(a.Y(), b.Y()) + radius))

	r := image.Rect(minX, minY, maxX+1, maxY+1).Intersect(bounds)
	if r.Empty() {
		return nil, r
	}

	cov := image.NewAlpha(r)
	r2 := radius * radius
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if distSqToSegment(float64(x)+0.5, float64(y)+0.5, a, b) <= r2 {
				cov.SetAlpha(x, y, color.Alpha{A: 255})
			}
		}
	}
	return cov, r
}

func distSqToSegment(px, py float64, a, b orb.Point) float64 {
	dx := b.X() - a.X()
	dy := b.Y() - a.Y()
	lenSq := dx*dx + dy*dy

	t := 0.0
	if lenSq > 0 {
		t = ((px-a.X())*dx + (py-a.Y())*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}

	cx := a.X() + t*dx - px
	cy := a.Y() + t*dy - py
	return cx*cx + cy*cy
}

// paintSegment composites the tint over dst where the segment covers it.
func paintSegment(dst *image.NRGBA, a, b orb.Point, width float64, tint color.NRGBA) {
	cov, r := segmentCoverage(dst.Bounds(), a, b, width)
	if cov == nil {
		return
	}
	draw.DrawMask(dst, r, image.NewUniform(tint), image.Point{}, cov, r.Min, draw.Over)
}

// eraseSegment clears covered pixels at full strength (destination-out).
func eraseSegment(dst *image.NRGBA, a, b orb.Point, width float64) {
	cov, r := segmentCoverage(dst.Bounds(), a, b, width)
	if cov == nil {
		return
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if cov.AlphaAt(x, y).A == 0 {
				continue
			}
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = 0
			dst.Pix[i+1] = 0
			dst.Pix[i+2] = 0
			dst.Pix[i+3] = 0
		}
	}
}
