// Package mask implements the freehand mask-painting surface and its
// rasterization into native-resolution binary masks.
package mask

import (
	"image"

	"github.com/paulmach/orb"
)

// DefaultBrushSize is the stroke width, in display pixels, of a new surface.
const DefaultBrushSize = 40

// Surface is a display-resolution paint surface bound to one editing mode.
//
// Strokes follow Idle -> Drawing (PointerDown) -> Drawing (PointerMove) ->
// Idle (PointerUp / PointerLeave). A full copy of the pixels is pushed at the
// start of every stroke so UndoStroke can restore it verbatim.
type Surface struct {
	palette  Palette
	pix      *image.NRGBA
	strokes  [][]uint8
	path     orb.LineString
	brush    float64
	erasing  bool
	drawing  bool
	hasPaint bool
}

// NewSurface allocates a transparent surface of w×h display pixels.
func NewSurface(p Palette, w, h int) *Surface {
	return &Surface{
		palette: p,
		pix:     image.NewNRGBA(image.Rect(0, 0, max(w, 0), max(h, 0))),
		brush:   DefaultBrushSize,
	}
}

// Palette returns the colors the surface paints with.
func (s *Surface) Palette() Palette { return s.palette }

// Size returns the surface dimensions in display pixels.
func (s *Surface) Size() image.Point { return s.pix.Bounds().Size() }

// HasPaint reports whether any pixel is painted.
func (s *Surface) HasPaint() bool { return s.hasPaint }

// Drawing reports whether a stroke is in progress.
func (s *Surface) Drawing() bool { return s.drawing }

// CanUndo reports whether a stroke can be undone.
func (s *Surface) CanUndo() bool { return len(s.strokes) > 0 }

// Erasing reports whether strokes remove paint.
func (s *Surface) Erasing() bool { return s.erasing }

func (s *Surface) SetErasing(on bool) { s.erasing = on }

// BrushSize returns the stroke width in display pixels.
func (s *Surface) BrushSize() float64 { return s.brush }

// SetBrushSize sets the stroke width. Non-positive widths are ignored and
// reported as false.
func (s *Surface) SetBrushSize(width float64) bool {
	if width <= 0 {
		return false
	}
	s.brush = width
	return true
}

// PointerDown starts a stroke at p (surface-local). Ignored while a stroke is
// already in progress.
func (s *Surface) PointerDown(p orb.Point) {
	if s.drawing {
		return
	}
	s.strokes = append(s.strokes, clonePix(s.pix.Pix))
	s.path = orb.LineString{p}
	s.drawing = true
}

// PointerMove extends the current stroke to p and rasterizes the new segment.
func (s *Surface) PointerMove(p orb.Point) {
	if !s.drawing {
		return
	}
	last := s.path[len(s.path)-1]
	if s.erasing {
		eraseSegment(s.pix, last, p, s.brush)
	} else {
		paintSegment(s.pix, last, p, s.brush, s.palette.Tint)
	}
	s.path = append(s.path, p)
}

// PointerUp ends the current stroke.
func (s *Surface) PointerUp() { s.endStroke() }

// PointerLeave ends the current stroke when the pointer leaves the surface.
func (s *Surface) PointerLeave() { s.endStroke() }

func (s *Surface) endStroke() {
	if !s.drawing {
		return
	}
	s.drawing = false
	s.path = nil
	s.hasPaint = scanPaint(s.pix.Pix)
}

// Clear wipes the surface to transparent and forgets the stroke history.
func (s *Surface) Clear() {
	clear(s.pix.Pix)
	s.strokes = nil
	s.path = nil
	s.drawing = false
	s.hasPaint = false
}

// UndoStroke restores the pixels captured at the start of the latest stroke.
func (s *Surface) UndoStroke() {
	if len(s.strokes) == 0 {
		return
	}
	last := s.strokes[len(s.strokes)-1]
	s.strokes = s.strokes[:len(s.strokes)-1]
	copy(s.pix.Pix, last)
	s.drawing = false
	s.path = nil
	s.hasPaint = scanPaint(s.pix.Pix)
}

// Resize reallocates the surface at w×h. Paint cannot be correlated across
// raster sizes, so any resize clears the surface.
func (s *Surface) Resize(w, h int) {
	s.pix = image.NewNRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))
	s.Clear()
}

// Pixels returns a copy of the surface pixels.
func (s *Surface) Pixels() *image.NRGBA {
	out := image.NewNRGBA(s.pix.Bounds())
	copy(out.Pix, s.pix.Pix)
	return out
}

// Load replaces the surface pixels with img, scaled 1:1 from its top-left
// corner. It is used to seed a surface from an uploaded alpha mask and counts
// as one undoable stroke.
func (s *Surface) Load(img image.Image) {
	s.strokes = append(s.strokes, clonePix(s.pix.Pix))
	b := s.pix.Bounds()
	src := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y && y-b.Min.Y < src.Dy(); y++ {
		for x := b.Min.X; x < b.Max.X && x-b.Min.X < src.Dx(); x++ {
			s.pix.Set(x, y, img.At(src.Min.X+x-b.Min.X, src.Min.Y+y-b.Min.Y))
		}
	}
	s.hasPaint = scanPaint(s.pix.Pix)
}

func clonePix(p []uint8) []uint8 {
	out := make([]uint8, len(p))
	copy(out, p)
	return out
}

func scanPaint(p []uint8) bool {
	for i := 3; i < len(p); i += 4 {
		if p[i] != 0 {
			return true
		}
	}
	return false
}
