package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/photoedit/internal/editor"
	"github.com/MeKo-Tech/photoedit/internal/history"
	"github.com/MeKo-Tech/photoedit/internal/imageio"
	"github.com/MeKo-Tech/photoedit/internal/mask"
	"github.com/MeKo-Tech/photoedit/internal/space"
)

// request is everything an edit needs, captured by value before the call.
type request struct {
	mode        Mode
	op          editor.Op
	image       editor.Image
	mask        *editor.Image
	secondary   *editor.Image
	instruction string
	hotspot     image.Point
}

func (r request) run(ctx context.Context, ed editor.Editor) (editor.Image, error) {
	switch r.op {
	case editor.OpPointEdit:
		return ed.PointEdit(ctx, r.image, r.instruction, r.hotspot)
	case editor.OpMaskFill:
		return ed.MaskFill(ctx, r.image, *r.mask, r.instruction)
	case editor.OpStyleOrAdjust:
		return ed.StyleOrAdjust(ctx, r.image, r.instruction, r.secondary)
	case editor.OpFaceSwap:
		return ed.FaceSwap(ctx, r.image, *r.secondary)
	case editor.OpCombine:
		return ed.Combine(ctx, r.image, *r.secondary, r.instruction)
	default:
		return editor.Image{}, fmt.Errorf("unsupported operation %q", r.op)
	}
}

// Submit applies the active mode to the current snapshot. Validation
// failures, service failures and crop failures are returned and also stored
// as the localized error message; nothing is appended on failure. While the
// service call runs every mutating operation returns ErrBusy.
func (c *Controller) Submit(ctx context.Context) error {
	if err := c.lockIdle(); err != nil {
		return err
	}
	mode := c.mode

	if mode == ModeCrop {
		err := c.cropLocked()
		if err != nil {
			c.errMsg = c.describe(mode, err)
			c.mu.Unlock()
			c.log().Warn("crop failed", "session", c.id, "error", err)
			return err
		}
		c.errMsg = ""
		ev := c.historyEventLocked()
		c.mu.Unlock()
		c.log().Info("crop applied", "session", c.id)
		c.emit(ev)
		return nil
	}

	req, err := c.prepareLocked()
	if err != nil {
		c.errMsg = c.describe(mode, err)
		c.mu.Unlock()
		return err
	}
	if c.ed == nil {
		err = &editor.Error{Op: req.op, Kind: editor.KindGeneric, Err: errors.New("no editor configured")}
		c.errMsg = c.describe(mode, err)
		c.mu.Unlock()
		return err
	}
	c.busy = true
	c.errMsg = ""
	c.mu.Unlock()

	c.log().Info("edit started", "session", c.id, "mode", mode, "op", req.op)
	out, err := req.run(ctx, c.ed)
	var snap history.Snapshot
	if err == nil {
		snap, err = imageio.Snapshot(out.Data)
		if err != nil {
			err = &editor.Error{Op: req.op, Kind: editor.KindGeneric, Err: err}
		}
	}

	c.mu.Lock()
	c.busy = false
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		c.errMsg = c.describe(mode, err)
		c.mu.Unlock()
		c.log().Warn("edit failed", "session", c.id, "mode", mode, "kind", editor.Classify(err), "error", err)
		return err
	}
	c.history.Append(snap)
	c.finishLocked(mode)
	c.imageChangedLocked()
	ev := c.historyEventLocked()
	c.mu.Unlock()

	c.log().Info("edit applied", "session", c.id, "mode", mode, "width", snap.Width, "height", snap.Height)
	c.emit(ev)
	return nil
}

// validateLocked checks the preconditions of the active mode without
// building the request.
func (c *Controller) validateLocked() error {
	if c.history.Len() == 0 {
		return invalid(ReasonNoImage)
	}
	st := c.modes[c.mode]
	instruction := strings.TrimSpace(st.instruction)
	switch c.mode {
	case ModeRetouch:
		if !st.hasHotspot {
			return invalid(ReasonMissingHotspot)
		}
		if instruction == "" {
			return invalid(ReasonMissingInstruction)
		}
	case ModeFill:
		if !st.surface.HasPaint() {
			return invalid(ReasonMissingMask)
		}
	case ModeAdjust, ModeFilter:
		if instruction == "" {
			return invalid(ReasonMissingInstruction)
		}
	case ModeReference, ModeCombine:
		if st.secondary == nil {
			return invalid(ReasonMissingSecondary)
		}
		if instruction == "" {
			return invalid(ReasonMissingInstruction)
		}
	case ModeFaceSwap:
		if st.secondary == nil {
			return invalid(ReasonMissingSecondary)
		}
	case ModeCrop:
		if !st.hasCrop {
			return invalid(ReasonMissingCrop)
		}
	}
	return nil
}

func (c *Controller) prepareLocked() (request, error) {
	if err := c.validateLocked(); err != nil {
		return request{}, err
	}
	cur, _ := c.history.Current()
	st := c.modes[c.mode]
	req := request{
		mode:        c.mode,
		image:       editor.Image{Data: cur.Data, MIMEType: cur.MIMEType},
		instruction: strings.TrimSpace(st.instruction),
	}

	switch c.mode {
	case ModeRetouch:
		req.op = editor.OpPointEdit
		req.hotspot = st.hotspot
	case ModeFill, ModeAdjust:
		if !st.surface.HasPaint() {
			req.op = editor.OpStyleOrAdjust
			break
		}
		m, err := c.rasterizeLocked(st.surface, cur)
		if err != nil {
			return request{}, err
		}
		req.op = editor.OpMaskFill
		req.mask = &m
	case ModeFilter:
		req.op = editor.OpStyleOrAdjust
		if text, ok := c.presets[req.instruction]; ok {
			req.instruction = text
		}
	case ModeReference:
		req.op = editor.OpStyleOrAdjust
		req.secondary = st.secondary
	case ModeFaceSwap:
		req.op = editor.OpFaceSwap
		req.secondary = st.secondary
		req.instruction = ""
	case ModeCombine:
		req.op = editor.OpCombine
		req.secondary = st.secondary
	}
	return req, nil
}

// rasterizeLocked renders s as a native-resolution PNG mask.
func (c *Controller) rasterizeLocked(s *mask.Surface, cur history.Snapshot) (editor.Image, error) {
	m, err := mask.Rasterize(s, cur.Width, cur.Height)
	if err != nil {
		return editor.Image{}, fmt.Errorf("failed to rasterize mask: %w", err)
	}
	m = mask.Grow(m, c.growPx)
	data, err := imageio.EncodePNG(m, c.compression)
	if err != nil {
		return editor.Image{}, fmt.Errorf("failed to encode mask: %w", err)
	}
	return editor.Image{Data: data, MIMEType: imageio.MIMEPNG}, nil
}

// finishLocked clears the inputs a successful edit consumed.
func (c *Controller) finishLocked(mode Mode) {
	st := c.modes[mode]
	switch mode {
	case ModeRetouch:
		st.instruction = ""
	case ModeFill:
		st.surface.Clear()
		st.instruction = ""
	case ModeAdjust:
		st.surface.Clear()
	}
}

func (c *Controller) cropLocked() error {
	if err := c.validateLocked(); err != nil {
		return err
	}
	cur, _ := c.history.Current()
	st := c.modes[ModeCrop]
	m, err := space.New(c.display.X, c.display.Y, cur.Width, cur.Height)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCropFailed, err)
	}
	snap, err := cropSnapshot(cur, m.RectToNative(st.crop), st.dpr, c.compression)
	if err != nil {
		return err
	}
	c.history.Append(snap)
	c.imageChangedLocked()
	return nil
}

// describe renders err as the user-visible message for mode.
func (c *Controller) describe(mode Mode, err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return c.msg.Validation(ve.Reason)
	case errors.Is(err, ErrCropFailed):
		return c.msg.CropFailed()
	default:
		return c.msg.Failure(string(mode), editor.Classify(err))
	}
}
