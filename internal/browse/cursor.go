// Package browse maintains windowed views over the catalog for fixed-size
// control surfaces: a button grid showing three entries at a time scrolls a
// cursor instead of paging the whole collection.
package browse

import (
	"fmt"
	"sync"
	"time"

	"github.com/matteklund/homedeck/internal/catalog"
	"github.com/matteklund/homedeck/internal/media"
)

// Mode selects the edge behavior of a cursor.
type Mode int

const (
	// ModeBounded stops at the catalog edges; advancing past them is a
	// no-op, which surfaces report as a disabled navigation button.
	ModeBounded Mode = iota
	// ModeWrap wraps around the catalog end, carousel style.
	ModeWrap
)

func (m Mode) String() string {
	if m == ModeWrap {
		return "wrap"
	}
	return "bounded"
}

// ParseMode parses the configuration spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "bounded", "":
		return ModeBounded, nil
	case "wrap":
		return ModeWrap, nil
	}
	return ModeBounded, fmt.Errorf("unknown browse mode %q", s)
}

// DefaultWindowSize matches a three-button control surface row.
const DefaultWindowSize = 3

// Options configure a cursor.
type Options struct {
	// Kind restricts the view to one media kind. Empty means the whole
	// catalog.
	Kind media.Kind
	// WindowSize is the number of visible entries. Zero means
	// DefaultWindowSize.
	WindowSize int
	Mode       Mode
	// IdleReset returns the cursor to the start after no interaction for
	// this long. Zero disables the reset.
	IdleReset time.Duration
}

// Window is one read of a cursor: the visible slice plus the navigation
// affordances a surface renders around it.
type Window struct {
	Items     []media.Summary `json:"items"`
	Start     int             `json:"start"`
	Total     int             `json:"total"`
	CanGoPrev bool            `json:"can_go_prev"`
	CanGoNext bool            `json:"can_go_next"`
}

// Cursor is a movable window over the catalog's stable ordering. It holds
// only an offset: every read resolves against the catalog's current
// contents, so a mutation between reads shows up on the next read.
type Cursor struct {
	cat        *catalog.Catalog
	kind       media.Kind
	windowSize int
	mode       Mode
	idleReset  time.Duration

	mu        sync.Mutex
	start     int
	lastTouch time.Time

	now func() time.Time // test hook
}

// NewCursor creates a cursor over the given catalog.
func NewCursor(cat *catalog.Catalog, opts Options) *Cursor {
	if opts.WindowSize <= 0 {
		opts.WindowSize = DefaultWindowSize
	}
	c := &Cursor{
		cat:        cat,
		kind:       opts.Kind,
		windowSize: opts.WindowSize,
		mode:       opts.Mode,
		idleReset:  opts.IdleReset,
		now:        time.Now,
	}
	c.lastTouch = c.now()
	return c
}

func (c *Cursor) list() []media.Descriptor {
	if c.kind != "" {
		return c.cat.ListKind(c.kind)
	}
	return c.cat.List()
}

// Advance moves the window by delta positions and returns the resulting
// window. Bounded cursors clamp at the edges; wrap cursors take the offset
// modulo the catalog length.
func (c *Cursor) Advance(delta int) Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.list()
	c.applyIdleReset()
	c.lastTouch = c.now()
	c.start = c.normalize(c.start+delta, len(entries))
	return c.window(entries)
}

// Current returns the window without moving it. Reading does not count as
// interaction for the idle reset.
func (c *Cursor) Current() Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.list()
	c.applyIdleReset()
	c.start = c.normalize(c.start, len(entries))
	return c.window(entries)
}

// Reset returns the window to the start of the catalog.
func (c *Cursor) Reset() Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.list()
	c.start = 0
	c.lastTouch = c.now()
	return c.window(entries)
}

func (c *Cursor) applyIdleReset() {
	if c.idleReset <= 0 {
		return
	}
	if c.now().Sub(c.lastTouch) >= c.idleReset {
		c.start = 0
	}
}

// normalize maps a candidate offset into the valid range for the current
// catalog length, clamping (bounded) or wrapping (wrap). A catalog shrink
// between reads is absorbed here.
func (c *Cursor) normalize(start, length int) int {
	if length == 0 {
		return 0
	}
	if c.mode == ModeWrap {
		return ((start % length) + length) % length
	}
	maxStart := length - c.windowSize
	if maxStart < 0 {
		maxStart = 0
	}
	if start < 0 {
		return 0
	}
	if start > maxStart {
		return maxStart
	}
	return start
}

func (c *Cursor) window(entries []media.Descriptor) Window {
	w := Window{
		Start: c.start,
		Total: len(entries),
		Items: make([]media.Summary, 0, c.windowSize),
	}
	if len(entries) == 0 {
		return w
	}

	if c.mode == ModeWrap {
		n := c.windowSize
		if n > len(entries) {
			n = len(entries)
		}
		for i := 0; i < n; i++ {
			w.Items = append(w.Items, entries[(c.start+i)%len(entries)].Summarize())
		}
		// Navigation is meaningful only when there is something off-window.
		w.CanGoPrev = len(entries) > c.windowSize
		w.CanGoNext = len(entries) > c.windowSize
		return w
	}

	end := c.start + c.windowSize
	if end > len(entries) {
		end = len(entries)
	}
	for _, d := range entries[c.start:end] {
		w.Items = append(w.Items, d.Summarize())
	}
	w.CanGoPrev = c.start > 0
	w.CanGoNext = end < len(entries)
	return w
}
