package screens

import (
	"image/color"

	"github.com/mrjrask/desk-display/internal/schedule"
)

// The date and time screens are the only renderers that live in the runtime
// core: they need no feed data, are always available, and double as the
// fallback content when nothing else can render. They are also the screens
// a manual skip avoids, since skipping TO a clock is never what the button
// press meant.

const (
	ScreenDate schedule.ScreenID = "date"
	ScreenTime schedule.ScreenID = "time"
)

// SkipAvoidIDs lists screens a manual skip should not land on.
func SkipAvoidIDs() map[schedule.ScreenID]struct{} {
	return map[schedule.ScreenID]struct{}{
		ScreenDate: {},
		ScreenTime: {},
	}
}

func dateSpec() Spec {
	return Spec{
		ID: ScreenDate,
		Build: func(ctx Context) Definition {
			return Definition{
				ID:        ScreenDate,
				Available: true,
				Render: func() (*RenderResult, error) {
					img := NewFrame(ctx.Width, ctx.Height)
					DrawTextCentered(img, ctx.Now.Format("Monday"), -14, color.White)
					DrawTextCentered(img, ctx.Now.Format("Jan 2, 2006"), 6, color.White)
					return &RenderResult{Image: img}, nil
				},
			}
		},
	}
}

func timeSpec() Spec {
	return Spec{
		ID: ScreenTime,
		Build: func(ctx Context) Definition {
			return Definition{
				ID:        ScreenTime,
				Available: true,
				Render: func() (*RenderResult, error) {
					img := NewFrame(ctx.Width, ctx.Height)
					DrawTextCentered(img, ctx.Now.Format("3:04"), -6, color.White)
					DrawTextCentered(img, ctx.Now.Format("PM"), 12, color.RGBA{R: 180, G: 180, B: 180, A: 255})
					return &RenderResult{Image: img}, nil
				},
			}
		},
	}
}

// RegisterBuiltins adds the core date/time/sysinfo screens to the catalog.
func RegisterBuiltins(c *Catalog) {
	c.Register(dateSpec(), timeSpec(), sysinfoSpec())
}
