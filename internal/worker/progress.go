package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress reports a batch edit on one terminal line. Edits are remote calls
// that take seconds each, so the pace is shown as time per image.
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	now     func() time.Time
	start   time.Time

	total   int
	done    int
	failed  int
	skipped int
}

// NewProgress creates a reporter for total images. skipped counts inputs
// left out of the batch because their output already exists. Output goes to
// w, or stderr when w is nil, and only when enabled is set.
func NewProgress(total, skipped int, enabled bool, w io.Writer) *Progress {
	if w == nil {
		w = os.Stderr
	}
	return &Progress{
		out:     w,
		enabled: enabled,
		now:     time.Now,
		start:   time.Now(),
		total:   total,
		skipped: skipped,
	}
}

// Update records the pool's counters and redraws the line.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.done, p.total, p.failed = completed, total, failed
	line := p.lineLocked()
	p.mu.Unlock()

	if p.enabled {
		fmt.Fprint(p.out, "\r"+line+"\x1b[K")
	}
}

// Callback returns p.Update as a pool progress hook.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// Line returns the current status line without terminal control codes.
func (p *Progress) Line() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lineLocked()
}

func (p *Progress) lineLocked() string {
	var b strings.Builder
	fmt.Fprintf(&b, "editing %d/%d", p.done, p.total)
	if p.total > 0 {
		fmt.Fprintf(&b, " (%d%%)", p.done*100/p.total)
	}
	if p.failed > 0 {
		fmt.Fprintf(&b, ", %d failed", p.failed)
	}

	elapsed := p.now().Sub(p.start)
	if p.done == 0 {
		return b.String()
	}
	perImage := elapsed / time.Duration(p.done)
	fmt.Fprintf(&b, " | %s/image", roundDuration(perImage))
	if left := p.total - p.done; left > 0 {
		fmt.Fprintf(&b, " | about %s left", roundDuration(perImage*time.Duration(left)))
	}
	return b.String()
}

// Done ends the progress line.
func (p *Progress) Done() {
	if !p.enabled {
		return
	}
	fmt.Fprintln(p.out, "\r"+p.Line()+"\x1b[K")
}

// Summary describes the finished batch.
func (p *Progress) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := fmt.Sprintf("Edited %d of %d images in %s", p.done-p.failed, p.total, roundDuration(p.now().Sub(p.start)))
	if p.failed > 0 {
		s += fmt.Sprintf(", %d failed", p.failed)
	}
	if p.skipped > 0 {
		s += fmt.Sprintf(", %d skipped with existing output", p.skipped)
	}
	return s
}

// roundDuration keeps one decimal below ten seconds and whole seconds above.
func roundDuration(d time.Duration) string {
	if d < 10*time.Second {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
