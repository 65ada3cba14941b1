package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/photoedit/internal/editor"
	"github.com/MeKo-Tech/photoedit/internal/history"
	"github.com/MeKo-Tech/photoedit/internal/mask"
	"github.com/MeKo-Tech/photoedit/internal/preview"
	"github.com/MeKo-Tech/photoedit/internal/space"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decodeGray(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func grayAt(img image.Image, x, y int) uint8 {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}

type call struct {
	op          editor.Op
	instruction string
	hotspot     image.Point
	mask        []byte
	secondary   []byte
}

type fakeEditor struct {
	mu      sync.Mutex
	calls   []call
	result  []byte
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeEditor) do(c call) (editor.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return editor.Image{}, f.err
	}
	return editor.Image{Data: f.result, MIMEType: "image/png"}, nil
}

func (f *fakeEditor) PointEdit(_ context.Context, _ editor.Image, instruction string, hotspot image.Point) (editor.Image, error) {
	return f.do(call{op: editor.OpPointEdit, instruction: instruction, hotspot: hotspot})
}

func (f *fakeEditor) MaskFill(_ context.Context, _ editor.Image, m editor.Image, instruction string) (editor.Image, error) {
	return f.do(call{op: editor.OpMaskFill, instruction: instruction, mask: m.Data})
}

func (f *fakeEditor) StyleOrAdjust(_ context.Context, _ editor.Image, instruction string, ref *editor.Image) (editor.Image, error) {
	c := call{op: editor.OpStyleOrAdjust, instruction: instruction}
	if ref != nil {
		c.secondary = ref.Data
	}
	return f.do(c)
}

func (f *fakeEditor) FaceSwap(_ context.Context, _ editor.Image, target editor.Image) (editor.Image, error) {
	return f.do(call{op: editor.OpFaceSwap, secondary: target.Data})
}

func (f *fakeEditor) Combine(_ context.Context, _ editor.Image, other editor.Image, instruction string) (editor.Image, error) {
	return f.do(call{op: editor.OpCombine, instruction: instruction, secondary: other.Data})
}

func (f *fakeEditor) ops() []editor.Op {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]editor.Op, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

func (f *fakeEditor) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// newSession returns a session with a 300×200 upload displayed at 150×100.
func newSession(t *testing.T, ed *fakeEditor) *Controller {
	t.Helper()
	if ed != nil && ed.result == nil {
		ed.result = pngBytes(t, 300, 200)
	}
	opts := Options{Locale: "en"}
	if ed != nil {
		opts.Editor = ed
	}
	c := New(opts)
	require.NoError(t, c.Upload(pngBytes(t, 300, 200)))
	require.NoError(t, c.Layout(150, 100))
	return c
}

func paint(t *testing.T, c *Controller, pts ...orb.Point) {
	t.Helper()
	require.NoError(t, c.PointerDown(pts[0]))
	for _, p := range pts[1:] {
		require.NoError(t, c.PointerMove(p))
	}
	require.NoError(t, c.PointerUp())
}

func TestNewSessionState(t *testing.T) {
	c := New(Options{ID: "s1"})
	s := c.State()
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, ModeRetouch, s.Mode)
	assert.False(t, s.HasImage)
	assert.False(t, s.CanSubmit)
	assert.Equal(t, -1, s.HistoryCursor)
	assert.Empty(t, s.PreviewID)
}

func TestUploadState(t *testing.T) {
	c := newSession(t, nil)
	s := c.State()
	assert.True(t, s.HasImage)
	assert.Equal(t, 1, s.HistoryLen)
	assert.Equal(t, 0, s.HistoryCursor)
	assert.Equal(t, 300, s.NativeWidth)
	assert.Equal(t, 150, s.DisplayWidth)
	assert.NotEmpty(t, s.PreviewID)
	assert.False(t, s.CanUndo)
}

func TestUploadRejectsGarbage(t *testing.T) {
	c := New(Options{})
	assert.Error(t, c.Upload([]byte("not an image")))
	assert.False(t, c.State().HasImage)
}

func TestSubmitWithoutImage(t *testing.T) {
	ed := &fakeEditor{}
	c := New(Options{Editor: ed, Locale: "en"})
	require.NoError(t, c.SetMode(ModeAdjust))
	require.NoError(t, c.SetInstruction("make it sepia"))

	err := c.Submit(context.Background())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonNoImage, ve.Reason)
	assert.Equal(t, "Upload an image first.", c.State().ErrorMessage)
	assert.Empty(t, ed.ops())
}

func TestAdjustWithoutPaintRoutesMaskless(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeAdjust))
	require.NoError(t, c.SetInstruction("make it sepia"))
	assert.True(t, c.State().CanSubmit)

	require.NoError(t, c.Submit(context.Background()))

	assert.Equal(t, []editor.Op{editor.OpStyleOrAdjust}, ed.ops())
	assert.Equal(t, "make it sepia", ed.last().instruction)
	assert.Nil(t, ed.last().secondary)

	s := c.State()
	assert.Equal(t, 2, s.HistoryLen)
	assert.Equal(t, 1, s.HistoryCursor)
	assert.True(t, s.CanUndo)
	assert.Empty(t, s.ErrorMessage)
}

func TestProtectPaintRoutesThroughMaskFillInverted(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeAdjust))
	require.NoError(t, c.SetBrush(4, false))
	paint(t, c, orb.Point{12, 12}, orb.Point{18, 18})
	require.True(t, c.State().IsMaskDrawn)
	require.NoError(t, c.SetInstruction("make the sky purple"))

	require.NoError(t, c.Submit(context.Background()))

	require.Equal(t, []editor.Op{editor.OpMaskFill}, ed.ops())
	m := decodeGray(t, ed.last().mask)
	assert.Equal(t, image.Rect(0, 0, 300, 200), m.Bounds())
	assert.Equal(t, uint8(0), grayAt(m, 30, 30), "painted pixels are black")
	assert.Equal(t, uint8(255), grayAt(m, 0, 0))
	assert.Equal(t, uint8(255), grayAt(m, 200, 150))

	s := c.State()
	assert.False(t, s.IsMaskDrawn, "success clears the mask")
	assert.Equal(t, "make the sky purple", s.Instruction)
}

func TestFillScenario(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFill))
	require.NoError(t, c.SetBrush(4, false))
	paint(t, c, orb.Point{12, 12}, orb.Point{18, 18})
	require.NoError(t, c.SetInstruction("a red balloon"))

	require.NoError(t, c.Submit(context.Background()))

	require.Equal(t, []editor.Op{editor.OpMaskFill}, ed.ops())
	assert.Equal(t, "a red balloon", ed.last().instruction)

	m := decodeGray(t, ed.last().mask)
	b := m.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if grayAt(m, x, y) == 255 {
				require.True(t, image.Pt(x, y).In(image.Rect(20, 20, 40, 40)), "white pixel at %d,%d", x, y)
			}
		}
	}
	assert.Equal(t, uint8(255), grayAt(m, 30, 30))

	s := c.State()
	assert.False(t, s.IsMaskDrawn)
	assert.Empty(t, s.Instruction)
}

func TestFillWithoutPaintIsValidationError(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFill))

	err := c.Submit(context.Background())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonMissingMask, ve.Reason)
	assert.Empty(t, ed.ops())
	assert.Equal(t, 1, c.State().HistoryLen)
	assert.Equal(t, "Paint over the area you want to change.", c.State().ErrorMessage)

	c.DismissError()
	assert.Empty(t, c.State().ErrorMessage)
}

func TestFillAllowsEmptyInstruction(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFill))
	paint(t, c, orb.Point{50, 50}, orb.Point{60, 60})

	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, "", ed.last().instruction)
}

func TestRetouchHotspot(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)

	require.NoError(t, c.SetInstruction("remove the spot"))
	err := c.Submit(context.Background())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonMissingHotspot, ve.Reason)

	require.NoError(t, c.Click(orb.Point{10, 5}))
	s := c.State()
	require.True(t, s.HasHotspot)
	assert.Equal(t, image.Pt(20, 10), *s.Hotspot)

	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, image.Pt(20, 10), ed.last().hotspot)
	assert.Equal(t, "remove the spot", ed.last().instruction)

	s = c.State()
	assert.False(t, s.HasHotspot)
	assert.Empty(t, s.Instruction)
}

func TestRetouchRequiresInstruction(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.Click(orb.Point{10, 5}))

	err := c.Submit(context.Background())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonMissingInstruction, ve.Reason)
	assert.Empty(t, ed.ops())
}

func TestClickIgnoredOutsideRetouchAndImage(t *testing.T) {
	c := newSession(t, nil)
	require.NoError(t, c.Click(orb.Point{200, 5}))
	assert.False(t, c.State().HasHotspot)

	require.NoError(t, c.SetMode(ModeFill))
	require.NoError(t, c.Click(orb.Point{10, 5}))
	require.NoError(t, c.SetMode(ModeRetouch))
	assert.False(t, c.State().HasHotspot)
}

func TestSecondaryModes(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	second := pngBytes(t, 64, 64)

	require.NoError(t, c.SetMode(ModeFaceSwap))
	err := c.Submit(context.Background())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonMissingSecondary, ve.Reason)

	require.NoError(t, c.SetSecondary(second))
	require.NoError(t, c.SetInstruction("ignored"))
	s := c.State()
	assert.True(t, s.HasSecondary)
	assert.NotEmpty(t, s.SecondaryPreviewID)

	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, editor.OpFaceSwap, ed.last().op)
	assert.Equal(t, second, ed.last().secondary)
	assert.Empty(t, ed.last().instruction)

	s = c.State()
	assert.Equal(t, 2, s.HistoryLen)
	assert.False(t, s.HasSecondary, "an accepted edit drops the attachment")
	assert.Empty(t, s.SecondaryPreviewID)
	assert.False(t, s.CanSubmit)
	require.NoError(t, c.Undo())
	assert.False(t, c.State().HasSecondary)

	require.NoError(t, c.SetMode(ModeCombine))
	assert.False(t, c.State().HasSecondary, "secondary images are per mode")
	require.NoError(t, c.SetSecondary(second))
	err = c.Submit(context.Background())
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonMissingInstruction, ve.Reason)

	require.NoError(t, c.SetInstruction("put them side by side"))
	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, editor.OpCombine, ed.last().op)

	require.NoError(t, c.SetMode(ModeReference))
	require.NoError(t, c.SetSecondary(second))
	require.NoError(t, c.SetInstruction("match the colors"))
	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, editor.OpStyleOrAdjust, ed.last().op)
	assert.Equal(t, second, ed.last().secondary)
}

func TestSecondaryReleasedOnHistoryChange(t *testing.T) {
	reg := preview.NewRegistry()
	ed := &fakeEditor{result: pngBytes(t, 30, 20)}
	c := New(Options{Editor: ed, Previews: reg})
	require.NoError(t, c.Upload(pngBytes(t, 30, 20)))
	require.NoError(t, c.SetMode(ModeCombine))
	require.NoError(t, c.SetInstruction("side by side"))
	require.NoError(t, c.SetSecondary(pngBytes(t, 8, 8)))
	assert.Equal(t, 2, reg.Len())

	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, 1, reg.Len(), "only the current snapshot keeps a preview")

	require.NoError(t, c.SetSecondary(pngBytes(t, 8, 8)))
	require.NoError(t, c.Undo())
	assert.False(t, c.State().HasSecondary)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, c.SetSecondary(pngBytes(t, 8, 8)))
	require.NoError(t, c.Upload(pngBytes(t, 30, 20)))
	assert.False(t, c.State().HasSecondary)
	assert.Equal(t, "side by side", c.State().Instruction)
}

func TestSecondaryRejectedInOtherModes(t *testing.T) {
	c := newSession(t, nil)
	err := c.SetSecondary(pngBytes(t, 8, 8))
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestFilterPresets(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFilter))

	require.NoError(t, c.SelectPreset("sepia"))
	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, DefaultPresets["sepia"], ed.last().instruction)

	require.NoError(t, c.SetInstruction("noir"))
	require.NoError(t, c.Submit(context.Background()))
	assert.Equal(t, DefaultPresets["noir"], ed.last().instruction)

	err := c.SelectPreset("nope")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonUnknownPreset, ve.Reason)
	assert.Equal(t, "Unknown filter preset.", c.State().ErrorMessage)
}

func TestServiceFailureLeavesHistoryUntouched(t *testing.T) {
	ed := &fakeEditor{err: &editor.Error{Op: editor.OpStyleOrAdjust, Kind: editor.KindPolicy}}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeAdjust))
	require.NoError(t, c.SetInstruction("make it sepia"))

	err := c.Submit(context.Background())
	require.Error(t, err)

	s := c.State()
	assert.Equal(t, 1, s.HistoryLen)
	assert.False(t, s.IsLoading)
	assert.Contains(t, s.ErrorMessage, "content policy")
	assert.Contains(t, s.ErrorMessage, "adjustment")
	assert.Equal(t, "make it sepia", s.Instruction)
}

func TestServiceFailureTextFallback(t *testing.T) {
	ed := &fakeEditor{err: errors.New("model returned no image")}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFilter))
	require.NoError(t, c.SetInstruction("sepia"))

	require.Error(t, c.Submit(context.Background()))
	assert.Contains(t, c.State().ErrorMessage, "did not produce an image")
}

func TestUndecodableResultIsGenericFailure(t *testing.T) {
	ed := &fakeEditor{result: []byte("garbage")}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFilter))
	require.NoError(t, c.SetInstruction("sepia"))

	require.Error(t, c.Submit(context.Background()))
	assert.Equal(t, "The filter failed. Please try again.", c.State().ErrorMessage)
	assert.Equal(t, 1, c.State().HistoryLen)
}

func TestLocalizedMessages(t *testing.T) {
	c := New(Options{Locale: "de"})
	require.Error(t, c.Submit(context.Background()))
	assert.Equal(t, "Lade zuerst ein Bild hoch.", c.State().ErrorMessage)
}

func TestSingleFlight(t *testing.T) {
	ed := &fakeEditor{started: make(chan struct{}), release: make(chan struct{})}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFilter))
	require.NoError(t, c.SetInstruction("sepia"))

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background()) }()
	<-ed.started

	s := c.State()
	assert.True(t, s.IsLoading)
	assert.False(t, s.CanSubmit)
	assert.False(t, s.CanUndo)

	assert.ErrorIs(t, c.Submit(context.Background()), ErrBusy)
	assert.ErrorIs(t, c.SetMode(ModeFill), ErrBusy)
	assert.ErrorIs(t, c.PointerDown(orb.Point{1, 1}), ErrBusy)
	assert.ErrorIs(t, c.SetBrush(10, false), ErrBusy)
	assert.ErrorIs(t, c.Click(orb.Point{1, 1}), ErrBusy)
	assert.ErrorIs(t, c.SetInstruction("x"), ErrBusy)
	assert.ErrorIs(t, c.Undo(), ErrBusy)
	assert.ErrorIs(t, c.Redo(), ErrBusy)
	assert.ErrorIs(t, c.Upload(pngBytes(t, 10, 10)), ErrBusy)
	assert.ErrorIs(t, c.SetCropSelection(space.Rect(0, 0, 10, 10), 1), ErrBusy)

	close(ed.release)
	require.NoError(t, <-done)

	s = c.State()
	assert.False(t, s.IsLoading)
	assert.Equal(t, ModeFilter, s.Mode)
	assert.Equal(t, "sepia", s.Instruction)
	assert.Equal(t, 2, s.HistoryLen)
	assert.Len(t, ed.ops(), 1)
}

func TestCrop(t *testing.T) {
	c := newSession(t, nil)
	require.NoError(t, c.SetMode(ModeCrop))
	assert.False(t, c.State().CanSubmit)

	require.NoError(t, c.SetCropSelection(space.Rect(60, 35, 10, 10), 1))
	require.True(t, c.State().HasCropSelection)
	require.NoError(t, c.Submit(context.Background()))

	s := c.State()
	assert.Equal(t, 2, s.HistoryLen)
	assert.Equal(t, 100, s.NativeWidth)
	assert.Equal(t, 50, s.NativeHeight)
	assert.False(t, s.HasCropSelection, "selection refers to the previous image")
}

func TestCropScalesByDevicePixelRatio(t *testing.T) {
	c := newSession(t, nil)
	require.NoError(t, c.SetMode(ModeCrop))
	require.NoError(t, c.SetCropSelection(space.Rect(10, 10, 60, 35), 2))
	require.NoError(t, c.Submit(context.Background()))

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, 200, cur.Width)
	assert.Equal(t, 100, cur.Height)
}

func TestCropOutsideImageFails(t *testing.T) {
	c := newSession(t, nil)
	require.NoError(t, c.SetMode(ModeCrop))
	require.NoError(t, c.SetCropSelection(space.Rect(200, 200, 300, 300), 1))

	err := c.Submit(context.Background())
	assert.ErrorIs(t, err, ErrCropFailed)
	s := c.State()
	assert.Equal(t, "The image could not be cropped.", s.ErrorMessage)
	assert.Equal(t, 1, s.HistoryLen)
}

func TestEmptyCropSelectionClears(t *testing.T) {
	c := newSession(t, nil)
	require.NoError(t, c.SetMode(ModeCrop))
	require.NoError(t, c.SetCropSelection(space.Rect(10, 10, 10, 40), 1))
	assert.False(t, c.State().HasCropSelection)

	err := c.Submit(context.Background())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonMissingCrop, ve.Reason)
}

func TestUndoRedoReset(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFilter))
	require.NoError(t, c.SetInstruction("sepia"))
	require.NoError(t, c.Submit(context.Background()))
	require.NoError(t, c.Submit(context.Background()))

	first := c.State().PreviewID
	require.NoError(t, c.Undo())
	s := c.State()
	assert.Equal(t, 1, s.HistoryCursor)
	assert.True(t, s.CanRedo)
	assert.NotEqual(t, first, s.PreviewID)

	require.NoError(t, c.Redo())
	assert.Equal(t, 2, c.State().HistoryCursor)

	require.NoError(t, c.Reset())
	s = c.State()
	assert.Equal(t, 0, s.HistoryCursor)
	assert.Equal(t, 3, s.HistoryLen)

	// appending after reset prunes the redo branch
	require.NoError(t, c.Submit(context.Background()))
	s = c.State()
	assert.Equal(t, 2, s.HistoryLen)
	assert.Equal(t, 1, s.HistoryCursor)
}

func TestMaskControls(t *testing.T) {
	c := newSession(t, nil)
	require.NoError(t, c.SetMode(ModeFill))
	paint(t, c, orb.Point{10, 10}, orb.Point{20, 20})
	paint(t, c, orb.Point{50, 50}, orb.Point{60, 60})

	s := c.State()
	assert.True(t, s.IsMaskDrawn)
	assert.True(t, s.CanUndoMask)

	require.NoError(t, c.UndoMask())
	assert.True(t, c.State().IsMaskDrawn)
	require.NoError(t, c.UndoMask())
	assert.False(t, c.State().IsMaskDrawn)

	paint(t, c, orb.Point{10, 10}, orb.Point{20, 20})
	require.NoError(t, c.ClearMask())
	assert.False(t, c.State().IsMaskDrawn)

	paint(t, c, orb.Point{10, 10}, orb.Point{20, 20})
	require.NoError(t, c.Layout(150, 100))
	assert.True(t, c.State().IsMaskDrawn, "same layout keeps the mask")
	require.NoError(t, c.Layout(120, 80))
	assert.False(t, c.State().IsMaskDrawn, "resize clears the mask")
}

func TestMasksArePerMode(t *testing.T) {
	c := newSession(t, nil)
	require.NoError(t, c.SetMode(ModeFill))
	paint(t, c, orb.Point{10, 10}, orb.Point{20, 20})

	require.NoError(t, c.SetMode(ModeAdjust))
	assert.False(t, c.State().IsMaskDrawn)

	require.NoError(t, c.SetMode(ModeRetouch))
	require.NoError(t, c.PointerDown(orb.Point{10, 10}))
	require.NoError(t, c.PointerUp())

	require.NoError(t, c.SetMode(ModeFill))
	assert.True(t, c.State().IsMaskDrawn)
}

func TestMaskLayersActiveOnTop(t *testing.T) {
	c := newSession(t, nil)
	assert.Empty(t, c.MaskLayers())

	require.NoError(t, c.SetMode(ModeFill))
	paint(t, c, orb.Point{10, 10}, orb.Point{20, 20})
	require.NoError(t, c.SetMode(ModeAdjust))
	paint(t, c, orb.Point{100, 50}, orb.Point{110, 60})

	layers := c.MaskLayers()
	require.Len(t, layers, 2)
	fill, protect := layers[0].NRGBAAt(15, 15), layers[1].NRGBAAt(105, 55)
	assert.Equal(t, mask.FillPalette.Tint.A, fill.A)
	assert.InDelta(t, mask.FillPalette.Tint.R, fill.R, 1)
	assert.Equal(t, mask.ProtectPalette.Tint.A, protect.A)
	assert.InDelta(t, mask.ProtectPalette.Tint.G, protect.G, 1)

	require.NoError(t, c.SetMode(ModeFill))
	layers = c.MaskLayers()
	require.Len(t, layers, 2)
	assert.NotZero(t, layers[0].NRGBAAt(105, 55).A, "inactive adjust mask first")
	assert.NotZero(t, layers[1].NRGBAAt(15, 15).A, "active fill mask last")

	layers[1].SetNRGBA(0, 0, mask.FillPalette.Tint)
	assert.Zero(t, c.MaskLayers()[1].NRGBAAt(0, 0).A, "layers are copies")
}

func TestBrushValidation(t *testing.T) {
	c := newSession(t, nil)
	assert.ErrorIs(t, c.SetBrush(0, false), ErrInvalidBrush)
	require.NoError(t, c.SetMode(ModeFill))
	require.NoError(t, c.SetBrush(12, true))
	s := c.State()
	assert.Equal(t, 12.0, s.BrushSize)
	assert.True(t, s.Erasing)
}

func TestLoadMaskScalesToDisplay(t *testing.T) {
	ed := &fakeEditor{}
	c := newSession(t, ed)
	require.NoError(t, c.SetMode(ModeFill))

	m := image.NewNRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 100; y++ {
		for x := 0; x < 150; x++ {
			m.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	require.NoError(t, c.LoadMask(m))
	require.True(t, c.State().IsMaskDrawn)

	require.NoError(t, c.Submit(context.Background()))
	out := decodeGray(t, ed.last().mask)
	assert.Equal(t, uint8(255), grayAt(out, 10, 10))
	assert.Equal(t, uint8(0), grayAt(out, 250, 150))
}

func TestGrowDilatesMask(t *testing.T) {
	ed := &fakeEditor{result: pngBytes(t, 300, 200)}
	c := New(Options{Editor: ed, GrowPx: 6})
	require.NoError(t, c.Upload(pngBytes(t, 300, 200)))
	require.NoError(t, c.SetMode(ModeFill))
	require.NoError(t, c.SetBrush(4, false))
	paint(t, c, orb.Point{100, 100}, orb.Point{100, 100})

	require.NoError(t, c.Submit(context.Background()))
	out := decodeGray(t, ed.last().mask)
	assert.Equal(t, uint8(255), grayAt(out, 100, 100))
	assert.Equal(t, uint8(255), grayAt(out, 104, 100), "grown past the brush edge")
	assert.Equal(t, uint8(0), grayAt(out, 150, 150))
}

func TestOnHistory(t *testing.T) {
	var got []int
	ed := &fakeEditor{result: pngBytes(t, 300, 200)}
	c := New(Options{Editor: ed, OnHistory: func(id string, snaps []history.Snapshot, cursor int) {
		got = append(got, len(snaps)*10+cursor)
	}})
	require.NoError(t, c.Upload(pngBytes(t, 300, 200)))
	require.NoError(t, c.SetMode(ModeFilter))
	require.NoError(t, c.SetInstruction("sepia"))
	require.NoError(t, c.Submit(context.Background()))
	require.NoError(t, c.Undo())
	require.NoError(t, c.Undo())

	assert.Equal(t, []int{10, 21, 20}, got)
}

func TestOnHistoryEndsOnLiveCursor(t *testing.T) {
	var (
		mu        sync.Mutex
		persisted []int
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	c := New(Options{OnHistory: func(_ string, _ []history.Snapshot, cursor int) {
		if cursor == 0 {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		mu.Lock()
		persisted = append(persisted, cursor)
		mu.Unlock()
	}})
	a := history.Snapshot{Data: pngBytes(t, 30, 20), MIMEType: "image/png", Width: 30, Height: 20}
	require.NoError(t, c.Restore([]history.Snapshot{a, a}, 1))

	undone := make(chan error, 1)
	go func() { undone <- c.Undo() }()
	<-entered

	redone := make(chan error, 1)
	go func() { redone <- c.Redo() }()
	require.Eventually(t, func() bool { return c.State().HistoryCursor == 1 }, time.Second, time.Millisecond)

	close(release)
	require.NoError(t, <-undone)
	require.NoError(t, <-redone)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, persisted)
	assert.Equal(t, c.State().HistoryCursor, persisted[len(persisted)-1])
}

func TestOnHistoryConcurrentMoves(t *testing.T) {
	var (
		mu   sync.Mutex
		last = -1
	)
	c := New(Options{OnHistory: func(_ string, _ []history.Snapshot, cursor int) {
		mu.Lock()
		last = cursor
		mu.Unlock()
	}})
	a := history.Snapshot{Data: pngBytes(t, 10, 10), MIMEType: "image/png", Width: 10, Height: 10}
	require.NoError(t, c.Restore([]history.Snapshot{a, a, a, a}, 2))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%2 == 0 {
					_ = c.Undo()
				} else {
					_ = c.Redo()
				}
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, c.State().HistoryCursor, last)
}

func TestNoHistoryEventsAfterClose(t *testing.T) {
	var calls int
	c := New(Options{OnHistory: func(string, []history.Snapshot, int) { calls++ }})
	a := history.Snapshot{Data: pngBytes(t, 10, 10), MIMEType: "image/png", Width: 10, Height: 10}
	require.NoError(t, c.Restore([]history.Snapshot{a, a}, 1))

	ev := func() *historyEvent {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.historyEventLocked()
	}()
	c.Close()
	c.emit(ev)
	assert.Zero(t, calls)
}

func TestRestore(t *testing.T) {
	c := New(Options{})
	a := history.Snapshot{Data: pngBytes(t, 30, 20), MIMEType: "image/png", Width: 30, Height: 20}
	b := history.Snapshot{Data: pngBytes(t, 15, 10), MIMEType: "image/png", Width: 15, Height: 10}
	require.NoError(t, c.Restore([]history.Snapshot{a, b}, 0))

	s := c.State()
	assert.Equal(t, 2, s.HistoryLen)
	assert.Equal(t, 0, s.HistoryCursor)
	assert.Equal(t, 30, s.NativeWidth)
	assert.True(t, s.CanRedo)
}

func TestCloseReleasesPreviews(t *testing.T) {
	reg := preview.NewRegistry()
	c := New(Options{Previews: reg})
	require.NoError(t, c.Upload(pngBytes(t, 20, 20)))
	require.NoError(t, c.SetMode(ModeCombine))
	require.NoError(t, c.SetSecondary(pngBytes(t, 8, 8)))
	assert.Equal(t, 2, reg.Len())

	require.NoError(t, c.SetSecondary(pngBytes(t, 9, 9)))
	assert.Equal(t, 2, reg.Len(), "replacing the secondary releases its old handle")

	c.Close()
	c.Close()
	assert.Equal(t, 0, reg.Len())
	assert.ErrorIs(t, c.SetMode(ModeFill), ErrClosed)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("faceswap")
	require.NoError(t, err)
	assert.Equal(t, ModeFaceSwap, m)

	_, err = ParseMode("paint")
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.ErrorIs(t, New(Options{}).SetMode("paint"), ErrUnknownMode)
}
