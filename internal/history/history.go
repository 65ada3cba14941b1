// Package history keeps the linear undo/redo list of whole-image snapshots.
package history

// Snapshot is one complete encoded image produced by an upload or an edit.
// Data must not be modified after the snapshot has been appended.
type Snapshot struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// History is an append-only, truncating list of snapshots with a cursor.
// The zero value is an empty history. All operations are total: invalid
// transitions are no-ops.
type History struct {
	snapshots []Snapshot
	cursor    int
}

// New returns an empty history.
func New() *History {
	return &History{cursor: -1}
}

// Load replaces the whole history with a single original snapshot.
func (h *History) Load(s Snapshot) {
	h.snapshots = []Snapshot{s}
	h.cursor = 0
}

// Append drops every entry after the cursor, appends s and moves the cursor to it.
func (h *History) Append(s Snapshot) {
	if h.Len() == 0 {
		h.Load(s)
		return
	}
	h.snapshots = append(h.snapshots[:h.cursor+1:h.cursor+1], s)
	h.cursor = len(h.snapshots) - 1
}

// Undo moves the cursor one entry back. No-op at the original.
func (h *History) Undo() {
	if h.Len() == 0 || h.cursor <= 0 {
		return
	}
	h.cursor--
}

// Redo moves the cursor one entry forward. No-op at the newest entry.
func (h *History) Redo() {
	if h.Len() == 0 || h.cursor >= len(h.snapshots)-1 {
		return
	}
	h.cursor++
}

// Reset moves the cursor back to the original upload, keeping the redo entries.
func (h *History) Reset() {
	if h.Len() == 0 {
		return
	}
	h.cursor = 0
}

// Current returns the snapshot under the cursor.
func (h *History) Current() (Snapshot, bool) {
	if h.Len() == 0 {
		return Snapshot{}, false
	}
	return h.snapshots[h.cursor], true
}

// Original returns the first snapshot.
func (h *History) Original() (Snapshot, bool) {
	if h.Len() == 0 {
		return Snapshot{}, false
	}
	return h.snapshots[0], true
}

// CanUndo reports whether the cursor can move back.
func (h *History) CanUndo() bool { return h.Len() > 0 && h.cursor > 0 }

// CanRedo reports whether the cursor can move forward.
func (h *History) CanRedo() bool { return h.Len() > 0 && h.cursor < len(h.snapshots)-1 }

// Len returns the number of snapshots.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.snapshots)
}

// Cursor returns the cursor index, or -1 when the history is empty.
func (h *History) Cursor() int {
	if h.Len() == 0 {
		return -1
	}
	return h.cursor
}

// Snapshots returns a copy of the snapshot list (the image bytes are shared).
func (h *History) Snapshots() []Snapshot {
	out := make([]Snapshot, len(h.snapshots))
	copy(out, h.snapshots)
	return out
}

// Restore replaces the history with an archived list. The cursor is clamped
// into range.
func (h *History) Restore(snapshots []Snapshot, cursor int) {
	if len(snapshots) == 0 {
		h.snapshots = nil
		h.cursor = -1
		return
	}
	h.snapshots = make([]Snapshot, len(snapshots))
	copy(h.snapshots, snapshots)
	switch {
	case cursor < 0:
		h.cursor = 0
	case cursor >= len(snapshots):
		h.cursor = len(snapshots) - 1
	default:
		h.cursor = cursor
	}
}
