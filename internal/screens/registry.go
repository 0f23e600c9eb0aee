// Package screens defines the render boundary between the runtime core and
// the individual screen implementations.
//
// A screen implementation registers a Spec in the Catalog. Every tick the
// orchestrator asks the catalog for a fresh Registry snapshot: availability
// is data-dependent (a sports screen with no cached game is unavailable),
// so the snapshot is cheap to rebuild and never cached across ticks.
package screens

import (
	"image"
	"time"

	"github.com/mrjrask/desk-display/internal/schedule"
)

// FeedReader is the read side of the feed cache, as seen by renderers.
type FeedReader interface {
	Lookup(name string) (any, bool)
}

// Context carries everything a screen needs to decide availability and
// render one frame. Rebuilt by the orchestrator every tick.
type Context struct {
	Width  int
	Height int
	Now    time.Time
	Feeds  FeedReader
}

// LEDOverride asks the orchestrator to hold the status LED at an RGB level
// (each in [0,1]) for the dwell of this screen.
type LEDOverride struct {
	R, G, B float64
}

// RenderResult is what a render callable hands back.
//
// A nil Image means "no-op, reuse the last frame". Displayed marks frames
// the renderer already pushed itself (e.g. it animated); the orchestrator
// then skips its own push but still screenshots the frame.
type RenderResult struct {
	Image     *image.RGBA
	Displayed bool
	LED       *LEDOverride
}

// Definition is the per-tick view of one screen.
type Definition struct {
	ID        schedule.ScreenID
	Available bool
	Render    func() (*RenderResult, error)
}

// Registry is the per-tick snapshot consumed by the schedule engine and the
// orchestrator.
type Registry map[schedule.ScreenID]Definition

// Available implements schedule.Registry.
func (r Registry) Available(id schedule.ScreenID) bool {
	d, ok := r[id]
	return ok && d.Available
}

// Spec declares one screen to the catalog.
type Spec struct {
	ID schedule.ScreenID
	// Feeds are the feed names this screen consumes. The data refresher
	// only polls feeds reachable from the active schedule.
	Feeds []string
	// Build produces the per-tick definition. It must be fast and must not
	// perform I/O; render work belongs in the returned Render closure.
	Build func(ctx Context) Definition
}

// Catalog is the single source of truth for all known screen ids.
type Catalog struct {
	order []schedule.ScreenID
	specs map[schedule.ScreenID]Spec
}

func NewCatalog() *Catalog {
	return &Catalog{specs: map[schedule.ScreenID]Spec{}}
}

// Register adds screens to the catalog. Later registrations for the same id
// win, which lets a build swap a stub for a real implementation.
func (c *Catalog) Register(specs ...Spec) {
	for _, s := range specs {
		if s.ID == "" || s.Build == nil {
			continue
		}
		if _, dup := c.specs[s.ID]; !dup {
			c.order = append(c.order, s.ID)
		}
		c.specs[s.ID] = s
	}
}

// Known reports whether a screen id exists; this is the schedule loader's
// validation hook.
func (c *Catalog) Known(id schedule.ScreenID) bool {
	_, ok := c.specs[id]
	return ok
}

// IDs returns all registered screen ids in registration order.
func (c *Catalog) IDs() []schedule.ScreenID {
	return append([]schedule.ScreenID(nil), c.order...)
}

// FeedsFor returns the union of feed names consumed by the given screens.
func (c *Catalog) FeedsFor(ids map[schedule.ScreenID]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for id := range ids {
		spec, ok := c.specs[id]
		if !ok {
			continue
		}
		for _, f := range spec.Feeds {
			out[f] = struct{}{}
		}
	}
	return out
}

// BuildRegistry produces a fresh per-tick Registry snapshot.
func (c *Catalog) BuildRegistry(ctx Context) Registry {
	reg := make(Registry, len(c.specs))
	for id, spec := range c.specs {
		reg[id] = spec.Build(ctx)
	}
	return reg
}
