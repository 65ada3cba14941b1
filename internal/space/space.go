// Package space maps between the display space of a rendered image (its
// on-screen pixel box) and the native space of its intrinsic resolution.
package space

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
)

// ErrEmptyBox is returned when a display or native box has no area.
var ErrEmptyBox = errors.New("space: box must have positive width and height")

// Mapping converts display-space coordinates into native pixel coordinates
// using one linear scale factor per axis.
type Mapping struct {
	Display image.Point // on-screen width/height
	Native  image.Point // intrinsic width/height
	ScaleX  float64
	ScaleY  float64
}

// New builds a mapping for an image of nativeW×nativeH displayed at displayW×displayH.
func New(displayW, displayH, nativeW, nativeH int) (Mapping, error) {
	if displayW <= 0 || displayH <= 0 {
		return Mapping{}, fmt.Errorf("display %dx%d: %w", displayW, displayH, ErrEmptyBox)
	}
	if nativeW <= 0 || nativeH <= 0 {
		return Mapping{}, fmt.Errorf("native %dx%d: %w", nativeW, nativeH, ErrEmptyBox)
	}
	return Mapping{
		Display: image.Pt(displayW, displayH),
		Native:  image.Pt(nativeW, nativeH),
		ScaleX:  float64(nativeW) / float64(displayW),
		ScaleY:  float64(nativeH) / float64(displayH),
	}, nil
}

// ToNative maps a display-space point to native pixels:
// round(x*scaleX), round(y*scaleY).
func (m Mapping) ToNative(p orb.Point) image.Point {
	return image.Pt(
		int(math.Round(p.X()*m.ScaleX)),
		int(math.Round(p.Y()*m.ScaleY)),
	)
}

// RectToNative maps a display-space rectangle to native pixels and clips it
// to the native image bounds. The result may be empty.
func (m Mapping) RectToNative(b orb.Bound) image.Rectangle {
	r := image.Rectangle{Min: m.ToNative(b.Min), Max: m.ToNative(b.Max)}.Canon()
	return r.Intersect(image.Rect(0, 0, m.Native.X, m.Native.Y))
}

// Local converts a client-space pointer position into surface-local
// coordinates by subtracting the surface's on-screen top-left offset.
func Local(client, origin orb.Point) orb.Point {
	return orb.Point{client.X() - origin.X(), client.Y() - origin.Y()}
}

// Rect builds a display-space bound from two corner points in any order.
func Rect(x0, y0, x1, y1 float64) orb.Bound {
	return orb.MultiPoint{{x0, y0}, {x1, y1}}.Bound()
}
