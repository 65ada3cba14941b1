package mask

import (
	"bytes"
	"image"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stroke(s *Surface, pts ...orb.Point) {
	s.PointerDown(pts[0])
	for _, p := range pts[1:] {
		s.PointerMove(p)
	}
	s.PointerUp()
}

func alphaAt(s *Surface, x, y int) uint8 {
	return s.Pixels().NRGBAAt(x, y).A
}

func TestNewSurfaceIsTransparent(t *testing.T) {
	s := NewSurface(FillPalette, 20, 10)

	assert.Equal(t, image.Pt(20, 10), s.Size())
	assert.False(t, s.HasPaint())
	assert.False(t, s.CanUndo())
	assert.Equal(t, float64(DefaultBrushSize), s.BrushSize())
}

func TestStrokeLifecycle(t *testing.T) {
	s := NewSurface(FillPalette, 50, 50)
	s.SetBrushSize(4)

	s.PointerDown(orb.Point{10, 10})
	assert.True(t, s.Drawing())
	assert.True(t, s.CanUndo(), "stroke start pushes an undo snapshot")
	assert.False(t, s.HasPaint(), "pointer-down alone paints nothing")

	s.PointerMove(orb.Point{30, 10})
	assert.NotZero(t, alphaAt(s, 20, 10), "segment is rasterized on move")
	assert.False(t, s.HasPaint(), "hasPaint is recomputed on stroke end")

	s.PointerUp()
	assert.False(t, s.Drawing())
	assert.True(t, s.HasPaint())
	assert.Zero(t, alphaAt(s, 20, 30))
}

func TestPointerLeaveEndsStroke(t *testing.T) {
	s := NewSurface(FillPalette, 30, 30)
	s.PointerDown(orb.Point{5, 5})
	s.PointerMove(orb.Point{6, 6})
	s.PointerLeave()

	assert.False(t, s.Drawing())
	assert.True(t, s.HasPaint())

	s.PointerMove(orb.Point{25, 25})
	assert.Zero(t, alphaAt(s, 25, 25), "moves outside a stroke are ignored")
}

func TestPaintUsesTranslucentTint(t *testing.T) {
	s := NewSurface(ProtectPalette, 20, 20)
	s.SetBrushSize(6)
	stroke(s, orb.Point{10, 10}, orb.Point{10, 11})

	c := s.Pixels().NRGBAAt(10, 10)
	assert.Equal(t, ProtectPalette.Tint.A, c.A)
	assert.InDelta(t, ProtectPalette.Tint.G, c.G, 1)
}

func TestRoundCaps(t *testing.T) {
	s := NewSurface(FillPalette, 40, 40)
	s.SetBrushSize(10)
	stroke(s, orb.Point{20, 20}, orb.Point{20.01, 20})

	// a single short segment produces a disc of radius 5 around (20,20)
	assert.NotZero(t, alphaAt(s, 16, 20))
	assert.NotZero(t, alphaAt(s, 20, 16))
	assert.Zero(t, alphaAt(s, 15, 15), "corners of the bounding box stay clear")
}

func TestEraseClearsAlpha(t *testing.T) {
	s := NewSurface(FillPalette, 40, 40)
	s.SetBrushSize(8)
	stroke(s, orb.Point{5, 20}, orb.Point{35, 20})
	require.True(t, s.HasPaint())

	s.SetErasing(true)
	s.SetBrushSize(60)
	stroke(s, orb.Point{20, 20}, orb.Point{20.5, 20})

	assert.False(t, s.HasPaint())
	assert.Equal(t, 2, len(s.strokes))
}

func TestEraseOnlyTouchesCoveredPixels(t *testing.T) {
	s := NewSurface(FillPalette, 40, 40)
	s.SetBrushSize(4)
	stroke(s, orb.Point{2, 20}, orb.Point{38, 20})

	s.SetErasing(true)
	stroke(s, orb.Point{20, 20}, orb.Point{20.5, 20})

	assert.Zero(t, alphaAt(s, 20, 20))
	assert.NotZero(t, alphaAt(s, 5, 20))
	assert.NotZero(t, alphaAt(s, 35, 20))
	assert.True(t, s.HasPaint())
}

func TestUndoStrokeRestoresExactPixels(t *testing.T) {
	s := NewSurface(FillPalette, 60, 60)
	s.SetBrushSize(5)

	stroke(s, orb.Point{5, 5}, orb.Point{50, 5})
	afterFirst := s.Pixels()

	stroke(s, orb.Point{5, 5}, orb.Point{50, 50})
	stroke(s, orb.Point{30, 40}, orb.Point{10, 55})
	require.False(t, bytes.Equal(afterFirst.Pix, s.Pixels().Pix))

	s.UndoStroke()
	s.UndoStroke()
	assert.Equal(t, afterFirst.Pix, s.Pixels().Pix)
	assert.True(t, s.HasPaint())

	s.UndoStroke()
	assert.False(t, s.HasPaint())
	assert.False(t, s.CanUndo())
	assert.Equal(t, make([]uint8, len(afterFirst.Pix)), s.Pixels().Pix)

	s.UndoStroke() // no-op on empty stack
	assert.False(t, s.HasPaint())
}

func TestClearAndResize(t *testing.T) {
	s := NewSurface(FillPalette, 30, 30)
	stroke(s, orb.Point{1, 1}, orb.Point{20, 20})
	require.True(t, s.HasPaint())

	s.Clear()
	assert.False(t, s.HasPaint())
	assert.False(t, s.CanUndo())

	stroke(s, orb.Point{1, 1}, orb.Point{20, 20})
	s.Resize(60, 45)
	assert.Equal(t, image.Pt(60, 45), s.Size())
	assert.False(t, s.HasPaint())
	assert.False(t, s.CanUndo())
}

func TestSetBrushSizeRejectsNonPositive(t *testing.T) {
	s := NewSurface(FillPalette, 10, 10)
	require.True(t, s.SetBrushSize(12))
	assert.False(t, s.SetBrushSize(0))
	assert.False(t, s.SetBrushSize(-3))
	assert.Equal(t, 12.0, s.BrushSize())
}

func TestLoadSeedsPaintAsUndoableStroke(t *testing.T) {
	src := NewSurface(FillPalette, 16, 16)
	src.SetBrushSize(4)
	stroke(src, orb.Point{4, 4}, orb.Point{12, 12})

	s := NewSurface(FillPalette, 16, 16)
	s.Load(src.Pixels())
	assert.True(t, s.HasPaint())
	assert.Equal(t, src.Pixels().Pix, s.Pixels().Pix)

	s.UndoStroke()
	assert.False(t, s.HasPaint())
}
