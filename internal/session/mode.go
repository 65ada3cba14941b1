package session

import (
	"fmt"
	"image"

	"github.com/paulmach/orb"

	"github.com/MeKo-Tech/photoedit/internal/editor"
	"github.com/MeKo-Tech/photoedit/internal/mask"
	"github.com/MeKo-Tech/photoedit/internal/preview"
)

// Mode is the active editing tool.
type Mode string

const (
	ModeRetouch   Mode = "retouch"
	ModeFill      Mode = "fill"
	ModeAdjust    Mode = "adjust"
	ModeFilter    Mode = "filter"
	ModeReference Mode = "reference"
	ModeFaceSwap  Mode = "faceswap"
	ModeCombine   Mode = "combine"
	ModeCrop      Mode = "crop"
)

// Modes lists every mode in toolbar order.
var Modes = []Mode{
	ModeRetouch, ModeFill, ModeAdjust, ModeFilter,
	ModeReference, ModeFaceSwap, ModeCombine, ModeCrop,
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// palette returns the mask palette of modes that paint a mask.
func (m Mode) palette() (mask.Palette, bool) {
	switch m {
	case ModeFill:
		return mask.FillPalette, true
	case ModeAdjust:
		return mask.ProtectPalette, true
	default:
		return mask.Palette{}, false
	}
}

func (m Mode) usesSecondary() bool {
	return m == ModeReference || m == ModeFaceSwap || m == ModeCombine
}

// modeState is the per-mode state record. Only the fields a mode uses are
// ever set.
type modeState struct {
	instruction string
	surface     *mask.Surface

	hotspot    image.Point
	hasHotspot bool

	secondary     *editor.Image
	secondarySlot *preview.Slot

	crop    orb.Bound
	hasCrop bool
	dpr     float64
}

func newModeState(m Mode, reg *preview.Registry, w, h int) *modeState {
	st := &modeState{dpr: 1}
	if p, ok := m.palette(); ok {
		st.surface = mask.NewSurface(p, w, h)
	}
	if m.usesSecondary() {
		st.secondarySlot = preview.NewSlot(reg)
	}
	return st
}

// resetSelection drops the selections and attachments that refer to the
// current image.
func (st *modeState) resetSelection() {
	st.hotspot = image.Point{}
	st.hasHotspot = false
	st.crop = orb.Bound{}
	st.hasCrop = false
	st.secondary = nil
	if st.secondarySlot != nil {
		st.secondarySlot.Release()
	}
}

func (st *modeState) release() {
	if st.secondarySlot != nil {
		st.secondarySlot.Release()
	}
}
