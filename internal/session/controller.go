// Package session implements the edit session controller: it owns the
// snapshot history and one state record per editing mode, validates and
// assembles edit requests for the active mode and runs at most one of them
// at a time.
package session

import (
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"sync"

	"github.com/disintegration/gift"
	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/photoedit/internal/editor"
	"github.com/MeKo-Tech/photoedit/internal/history"
	"github.com/MeKo-Tech/photoedit/internal/imageio"
	"github.com/MeKo-Tech/photoedit/internal/locale"
	"github.com/MeKo-Tech/photoedit/internal/mask"
	"github.com/MeKo-Tech/photoedit/internal/preview"
	"github.com/MeKo-Tech/photoedit/internal/space"
)

// HistoryFunc is called after every change of the snapshot history with a
// copy of the list and the cursor. It runs without the controller lock held.
type HistoryFunc func(id string, snapshots []history.Snapshot, cursor int)

// Options configures a Controller.
type Options struct {
	ID          string
	Editor      editor.Editor
	Previews    *preview.Registry
	Locale      string
	Presets     map[string]string
	GrowPx      int
	BrushSize   float64
	Compression png.CompressionLevel
	Logger      *slog.Logger
	OnHistory   HistoryFunc
}

// Controller is one edit session. All methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	// emitMu orders OnHistory calls; it is never taken while mu is held.
	emitMu  sync.Mutex
	seq     uint64
	emitted uint64

	id          string
	ed          editor.Editor
	reg         *preview.Registry
	msg         locale.Printer
	presets     map[string]string
	growPx      int
	brush       float64
	compression png.CompressionLevel
	logger      *slog.Logger
	onHistory   HistoryFunc

	history *history.History
	mode    Mode
	modes   map[Mode]*modeState
	display image.Point
	current *preview.Slot

	busy   bool
	closed bool
	errMsg string
}

// New creates an empty session in retouch mode.
func New(opts Options) *Controller {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Previews == nil {
		opts.Previews = preview.NewRegistry()
	}
	if opts.Presets == nil {
		opts.Presets = DefaultPresets
	}
	if opts.BrushSize <= 0 {
		opts.BrushSize = mask.DefaultBrushSize
	}

	c := &Controller{
		id:          opts.ID,
		ed:          opts.Editor,
		reg:         opts.Previews,
		msg:         locale.New(opts.Locale),
		presets:     opts.Presets,
		growPx:      opts.GrowPx,
		brush:       opts.BrushSize,
		compression: opts.Compression,
		logger:      opts.Logger,
		onHistory:   opts.OnHistory,
		history:     history.New(),
		mode:        ModeRetouch,
		modes:       make(map[Mode]*modeState, len(Modes)),
		current:     preview.NewSlot(opts.Previews),
	}
	for _, m := range Modes {
		st := newModeState(m, c.reg, 0, 0)
		if st.surface != nil {
			st.surface.SetBrushSize(c.brush)
		}
		c.modes[m] = st
	}
	return c
}

func (c *Controller) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// lockIdle takes the lock unless the session is closed or an edit is in
// flight. On success the caller owns c.mu.
func (c *Controller) lockIdle() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	return nil
}

type historyEvent struct {
	snapshots []history.Snapshot
	cursor    int
	seq       uint64
}

func (c *Controller) historyEventLocked() *historyEvent {
	if c.onHistory == nil {
		return nil
	}
	c.seq++
	return &historyEvent{snapshots: c.history.Snapshots(), cursor: c.history.Cursor(), seq: c.seq}
}

// emit delivers ev unless a later event has already been delivered or the
// session is closed, so OnHistory always ends on the live history.
func (c *Controller) emit(ev *historyEvent) {
	if ev == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || ev.seq <= c.emitted {
		return
	}
	c.emitted = ev.seq
	c.onHistory(c.id, ev.snapshots, ev.cursor)
}

// Upload starts over with a new original image. The history is replaced,
// the display box defaults to the native size until Layout is called and
// every mask and selection is cleared, secondary images included.
func (c *Controller) Upload(data []byte) error {
	snap, err := imageio.Snapshot(data)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	if err := c.lockIdle(); err != nil {
		return err
	}
	c.history.Load(snap)
	c.errMsg = ""
	c.setDisplayLocked(snap.Width, snap.Height)
	for _, st := range c.modes {
		if st.surface != nil {
			st.surface.Clear()
		}
	}
	c.imageChangedLocked()
	ev := c.historyEventLocked()
	c.mu.Unlock()

	c.log().Info("image uploaded", "session", c.id, "width", snap.Width, "height", snap.Height, "mime", snap.MIMEType)
	c.emit(ev)
	return nil
}

// Restore replaces the history with an archived one without notifying
// OnHistory.
func (c *Controller) Restore(snapshots []history.Snapshot, cursor int) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.history.Restore(snapshots, cursor)
	if cur, ok := c.history.Current(); ok {
		c.setDisplayLocked(cur.Width, cur.Height)
	}
	c.imageChangedLocked()
	return nil
}

// SetMode switches the active mode. A stroke in progress on the previous
// mode's surface is finished.
func (c *Controller) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if s := c.modes[c.mode].surface; s != nil {
		s.PointerLeave()
	}
	c.mode = m
	c.errMsg = ""
	return nil
}

// Layout records the on-screen size of the image. Mask surfaces follow the
// display size, so a change clears them.
func (c *Controller) Layout(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("layout %dx%d: %w", w, h, space.ErrEmptyBox)
	}
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.setDisplayLocked(w, h)
	return nil
}

func (c *Controller) setDisplayLocked(w, h int) {
	if c.display == image.Pt(w, h) {
		return
	}
	c.display = image.Pt(w, h)
	for _, st := range c.modes {
		if st.surface != nil {
			st.surface.Resize(w, h)
		}
	}
}

// imageChangedLocked follows a change of the current snapshot.
func (c *Controller) imageChangedLocked() {
	for _, st := range c.modes {
		st.resetSelection()
	}
	cur, ok := c.history.Current()
	if !ok {
		c.current.Release()
		return
	}
	c.current.Set(cur.Data, cur.MIMEType)
}

// withSurface runs fn on the active mode's mask surface. Modes without a
// mask ignore mask input.
func (c *Controller) withSurface(fn func(s *mask.Surface)) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if s := c.modes[c.mode].surface; s != nil {
		fn(s)
	}
	return nil
}

// PointerDown starts a stroke at a surface-local display point.
func (c *Controller) PointerDown(p orb.Point) error {
	return c.withSurface(func(s *mask.Surface) { s.PointerDown(p) })
}

// PointerMove extends the current stroke.
func (c *Controller) PointerMove(p orb.Point) error {
	return c.withSurface(func(s *mask.Surface) { s.PointerMove(p) })
}

// PointerUp finishes the current stroke.
func (c *Controller) PointerUp() error {
	return c.withSurface(func(s *mask.Surface) { s.PointerUp() })
}

// PointerLeave finishes the current stroke when the pointer leaves the image.
func (c *Controller) PointerLeave() error {
	return c.withSurface(func(s *mask.Surface) { s.PointerLeave() })
}

// UndoMask reverts the last stroke of the active mask.
func (c *Controller) UndoMask() error {
	return c.withSurface(func(s *mask.Surface) { s.UndoStroke() })
}

// ClearMask wipes the active mask.
func (c *Controller) ClearMask() error {
	return c.withSurface(func(s *mask.Surface) { s.Clear() })
}

// LoadMask replaces the active mask with img, scaled to the display box.
// Any pixel with non-zero alpha counts as painted.
func (c *Controller) LoadMask(img image.Image) error {
	return c.withSurface(func(s *mask.Surface) {
		size := s.Size()
		if size.X == 0 || size.Y == 0 {
			return
		}
		g := gift.New(gift.Resize(size.X, size.Y, gift.NearestNeighborResampling))
		dst := image.NewNRGBA(g.Bounds(img.Bounds()))
		g.Draw(dst, img)
		s.Load(dst)
	})
}

// SetBrush sets the brush width and eraser state of every mask surface.
func (c *Controller) SetBrush(size float64, erasing bool) error {
	if size <= 0 {
		return ErrInvalidBrush
	}
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.brush = size
	for _, st := range c.modes {
		if st.surface != nil {
			st.surface.SetBrushSize(size)
			st.surface.SetErasing(erasing)
		}
	}
	return nil
}

// Click selects the retouch hotspot at a surface-local display point. Other
// modes ignore clicks, as do clicks outside the image.
func (c *Controller) Click(p orb.Point) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.mode != ModeRetouch {
		return nil
	}
	cur, ok := c.history.Current()
	if !ok {
		return nil
	}
	m, err := space.New(c.display.X, c.display.Y, cur.Width, cur.Height)
	if err != nil {
		return err
	}
	pt := m.ToNative(p)
	if !pt.In(image.Rect(0, 0, cur.Width, cur.Height)) {
		return nil
	}
	st := c.modes[ModeRetouch]
	st.hotspot = pt
	st.hasHotspot = true
	return nil
}

// SetInstruction sets the instruction text of the active mode.
func (c *Controller) SetInstruction(text string) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	c.modes[c.mode].instruction = text
	return nil
}

// SelectPreset sets the filter instruction to a named preset.
func (c *Controller) SelectPreset(name string) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	text, ok := c.presets[name]
	if !ok {
		c.errMsg = c.msg.Validation(ReasonUnknownPreset)
		return invalid(ReasonUnknownPreset)
	}
	c.modes[ModeFilter].instruction = text
	return nil
}

// Presets returns the configured filter presets.
func (c *Controller) Presets() map[string]string {
	out := make(map[string]string, len(c.presets))
	for k, v := range c.presets {
		out[k] = v
	}
	return out
}

// SetSecondary sets the second image of the active reference, face swap or
// combine mode.
func (c *Controller) SetSecondary(data []byte) error {
	snap, err := imageio.Snapshot(data)
	if err != nil {
		return fmt.Errorf("failed to read secondary image: %w", err)
	}
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if !c.mode.usesSecondary() {
		return fmt.Errorf("secondary image in %s mode: %w", c.mode, ErrWrongMode)
	}
	st := c.modes[c.mode]
	st.secondary = &editor.Image{Data: snap.Data, MIMEType: snap.MIMEType}
	st.secondarySlot.Set(snap.Data, snap.MIMEType)
	return nil
}

// SetCropSelection records a completed crop rectangle in display space and
// the device pixel ratio the result is rendered at (values below 1 count
// as 1). A selection without area clears it.
func (c *Controller) SetCropSelection(b orb.Bound, dpr float64) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	st := c.modes[ModeCrop]
	if dpr < 1 {
		dpr = 1
	}
	st.dpr = dpr
	if b.Left() == b.Right() || b.Bottom() == b.Top() {
		st.crop = orb.Bound{}
		st.hasCrop = false
		return nil
	}
	st.crop = b
	st.hasCrop = true
	return nil
}

// Undo moves back one snapshot.
func (c *Controller) Undo() error { return c.move(c.history.Undo) }

// Redo moves forward one snapshot.
func (c *Controller) Redo() error { return c.move(c.history.Redo) }

// Reset returns to the original upload.
func (c *Controller) Reset() error { return c.move(c.history.Reset) }

func (c *Controller) move(step func()) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	before := c.history.Cursor()
	step()
	if c.history.Cursor() == before {
		c.mu.Unlock()
		return nil
	}
	c.imageChangedLocked()
	ev := c.historyEventLocked()
	c.mu.Unlock()
	c.emit(ev)
	return nil
}

// DismissError clears the error message.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.errMsg = ""
	c.mu.Unlock()
}

// Current returns the snapshot under the history cursor.
func (c *Controller) Current() (history.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Current()
}

// Original returns the first snapshot.
func (c *Controller) Original() (history.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Original()
}

// Export returns a copy of the history and its cursor.
func (c *Controller) Export() ([]history.Snapshot, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Snapshots(), c.history.Cursor()
}

// MaskLayers returns copies of every painted mask surface, the active mode's
// last so it draws on top.
func (c *Controller) MaskLayers() []*image.NRGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	var layers []*image.NRGBA
	for _, m := range Modes {
		if m == c.mode {
			continue
		}
		if s := c.modes[m].surface; s != nil && s.HasPaint() {
			layers = append(layers, s.Pixels())
		}
	}
	if s := c.modes[c.mode].surface; s != nil && s.HasPaint() {
		layers = append(layers, s.Pixels())
	}
	return layers
}

// Close releases every preview handle. Further mutations return ErrClosed;
// an edit in flight completes but its result is dropped. Close waits for a
// running OnHistory call, and no call starts afterwards.
func (c *Controller) Close() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.current.Release()
	for _, st := range c.modes {
		st.release()
	}
}
