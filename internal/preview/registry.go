// Package preview hands out short-lived handles for image previews served to
// the browser. Every Acquire must be paired with a Release tied to the same
// lifetime as the snapshot or file it previews.
package preview

import (
	"sync"

	"github.com/google/uuid"
)

// Item is the content behind a handle.
type Item struct {
	Data     []byte
	MIMEType string
}

// Registry stores the live preview handles.
type Registry struct {
	items map[string]Item
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Item)}
}

// Acquire registers data and returns its handle.
func (r *Registry) Acquire(data []byte, mimeType string) *Handle {
	id := uuid.NewString()
	r.mu.Lock()
	r.items[id] = Item{Data: data, MIMEType: mimeType}
	r.mu.Unlock()
	return &Handle{id: id, reg: r}
}

// Get returns the content for id.
func (r *Registry) Get(id string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	return it, ok
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry) release(id string) {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
}

// Handle is one acquired preview. Release is idempotent and nil-safe.
type Handle struct {
	reg  *Registry
	id   string
	once sync.Once
}

// ID returns the handle id, or "" for a nil handle.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() { h.reg.release(h.id) })
}

// Slot holds at most one handle and releases the previous handle whenever
// the reference it previews changes.
type Slot struct {
	reg *Registry
	cur *Handle
}

func NewSlot(reg *Registry) *Slot {
	return &Slot{reg: reg}
}

// Set releases the current handle and, if data is non-empty, acquires a new
// one.
func (s *Slot) Set(data []byte, mimeType string) {
	s.cur.Release()
	s.cur = nil
	if len(data) > 0 && s.reg != nil {
		s.cur = s.reg.Acquire(data, mimeType)
	}
}

// ID returns the current handle id or "".
func (s *Slot) ID() string { return s.cur.ID() }

// Release drops the current handle.
func (s *Slot) Release() { s.Set(nil, "") }
