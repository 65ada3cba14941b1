package session

import "image"

// State is the derived view of a session, recomputed on every call.
type State struct {
	ID           string `json:"id"`
	Mode         Mode   `json:"mode"`
	Instruction  string `json:"instruction"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	HasImage         bool `json:"hasImage"`
	IsMaskDrawn      bool `json:"isMaskDrawn"`
	IsLoading        bool `json:"isLoading"`
	CanUndo          bool `json:"canUndo"`
	CanRedo          bool `json:"canRedo"`
	CanUndoMask      bool `json:"canUndoMask"`
	HasHotspot       bool `json:"hasHotspot"`
	HasSecondary     bool `json:"hasSecondary"`
	HasCropSelection bool `json:"hasCropSelection"`
	CanSubmit        bool `json:"canSubmit"`

	Hotspot   *image.Point `json:"hotspot,omitempty"`
	BrushSize float64      `json:"brushSize"`
	Erasing   bool         `json:"erasing"`

	HistoryLen    int `json:"historyLen"`
	HistoryCursor int `json:"historyCursor"`
	DisplayWidth  int `json:"displayWidth"`
	DisplayHeight int `json:"displayHeight"`
	NativeWidth   int `json:"nativeWidth"`
	NativeHeight  int `json:"nativeHeight"`

	PreviewID          string `json:"previewId,omitempty"`
	SecondaryPreviewID string `json:"secondaryPreviewId,omitempty"`
}

// State returns the current view of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.modes[c.mode]
	s := State{
		ID:            c.id,
		Mode:          c.mode,
		Instruction:   st.instruction,
		ErrorMessage:  c.errMsg,
		HasImage:      c.history.Len() > 0,
		IsLoading:     c.busy,
		CanUndo:       !c.busy && c.history.CanUndo(),
		CanRedo:       !c.busy && c.history.CanRedo(),
		HasHotspot:    st.hasHotspot,
		HasSecondary:  st.secondary != nil,
		CanSubmit:     !c.busy && !c.closed && c.validateLocked() == nil,
		BrushSize:     c.brush,
		HistoryLen:    c.history.Len(),
		HistoryCursor: c.history.Cursor(),
		DisplayWidth:  c.display.X,
		DisplayHeight: c.display.Y,
		PreviewID:     c.current.ID(),
	}
	if c.mode == ModeCrop {
		s.HasCropSelection = st.hasCrop
	}
	if st.surface != nil {
		s.IsMaskDrawn = st.surface.HasPaint()
		s.CanUndoMask = !c.busy && st.surface.CanUndo()
		s.Erasing = st.surface.Erasing()
	}
	if st.hasHotspot {
		p := st.hotspot
		s.Hotspot = &p
	}
	if st.secondarySlot != nil {
		s.SecondaryPreviewID = st.secondarySlot.ID()
	}
	if cur, ok := c.history.Current(); ok {
		s.NativeWidth = cur.Width
		s.NativeHeight = cur.Height
	}
	return s
}
