// Package buttons turns the Display HAT Mini's four momentary buttons into
// debounced intents: X skips to the next screen, Y restarts the service,
// A and B step the backlight brightness.
package buttons

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mrjrask/desk-display/pkg/logx"
)

// Actions receives debounced button intents. Nil fields are ignored.
type Actions struct {
	// Restart is invoked on Y. It should trigger a clean service restart.
	Restart func()
	// Brightness is invoked on A (+step) and B (-step) with the signed delta.
	Brightness func(delta float64)
}

type Config struct {
	PollInterval   time.Duration
	BrightnessStep float64
}

func (c *Config) fillDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.BrightnessStep <= 0 {
		c.BrightnessStep = 0.1
	}
}

type Controller struct {
	cfg     Config
	log     logx.Logger
	src     LineSource
	actions Actions

	pressed [buttonCount]bool
	skip    atomic.Bool
}

func New(cfg Config, log logx.Logger, src LineSource, actions Actions) *Controller {
	cfg.fillDefaults()
	return &Controller{cfg: cfg, log: log, src: src, actions: actions}
}

// ConsumeSkip reports and clears a pending skip request. At most one skip
// is pending no matter how often X was pressed.
func (c *Controller) ConsumeSkip() bool {
	return c.skip.Swap(false)
}

// Run polls the lines until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.poll()
		}
	}
}

// poll performs one debounce pass. Multiple new press edges in the same
// pass are electrical noise (a real hand cannot hit two buttons within one
// poll window) and the whole batch is dropped without touching state.
func (c *Controller) poll() {
	states, err := c.src.Read()
	if err != nil {
		c.log.Debug("button read failed", logx.Err(err))
		return
	}

	var downs []Button
	for i := range states {
		if states[i] && !c.pressed[i] {
			downs = append(downs, Button(i))
		}
	}
	if len(downs) > 1 {
		c.log.Debug("simultaneous button edges discarded",
			logx.Int("count", len(downs)))
		return
	}

	for i := range states {
		if !states[i] && c.pressed[i] {
			c.log.Debug("button released", logx.String("button", Button(i).String()))
		}
		c.pressed[i] = states[i]
	}
	if len(downs) == 1 {
		c.handleDown(downs[0])
	}
}

func (c *Controller) handleDown(b Button) {
	c.log.Info("button pressed", logx.String("button", b.String()))
	switch b {
	case BtnX:
		c.skip.Store(true)
	case BtnY:
		if c.actions.Restart != nil {
			c.actions.Restart()
		}
	case BtnA:
		if c.actions.Brightness != nil {
			c.actions.Brightness(c.cfg.BrightnessStep)
		}
	case BtnB:
		if c.actions.Brightness != nil {
			c.actions.Brightness(-c.cfg.BrightnessStep)
		}
	}
}
