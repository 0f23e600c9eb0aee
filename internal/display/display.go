// Package display abstracts the physical panel so the orchestrator can run
// identically against real hardware (ST7789 over SPI) and headless.
package display

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"
)

// Panel is the orchestrator's view of the output device. Only the
// orchestrator goroutine calls Push/Blank; SetBacklight and SetLED may be
// called from the button controller, so implementations serialize access.
type Panel interface {
	Size() (w, h int)
	Push(img *image.RGBA) error
	// Blank clears the panel to black and turns the backlight off. It must
	// be safe to call repeatedly and on partially failed hardware.
	Blank() error
	SetBacklight(level float64) error
	SetLED(r, g, b float64) error
	Close() error
}

// clamp01 keeps backlight/LED levels inside [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Fade pushes img in a few progressively brighter blends from black,
// approximating the panel's fade-in without PWM backlight control.
func Fade(p Panel, img *image.RGBA, steps int, delay time.Duration) error {
	if steps < 2 {
		return p.Push(img)
	}
	b := img.Bounds()
	buf := image.NewRGBA(b)
	for i := 1; i <= steps; i++ {
		alpha := uint8(255 * i / steps)
		draw.Draw(buf, b, image.NewUniform(color.Black), image.Point{}, draw.Src)
		draw.DrawMask(buf, b, img, b.Min, image.NewUniform(color.Alpha{A: alpha}), image.Point{}, draw.Over)
		if err := p.Push(buf); err != nil {
			return err
		}
		if i < steps {
			time.Sleep(delay)
		}
	}
	return nil
}

// Headless is the no-hardware panel: it remembers the last frame (for
// screenshots and tests) and tracks blank/backlight state.
type Headless struct {
	w, h int

	mu        sync.Mutex
	last      *image.RGBA
	blanked   bool
	backlight float64
	ledR      float64
	ledG      float64
	ledB      float64
}

func NewHeadless(w, h int) *Headless {
	return &Headless{w: w, h: h, backlight: 1}
}

func (d *Headless) Size() (int, int) { return d.w, d.h }

func (d *Headless) Push(img *image.RGBA) error {
	d.mu.Lock()
	d.last = img
	d.blanked = false
	d.mu.Unlock()
	return nil
}

func (d *Headless) Blank() error {
	d.mu.Lock()
	d.last = nil
	d.blanked = true
	d.backlight = 0
	d.mu.Unlock()
	return nil
}

func (d *Headless) SetBacklight(level float64) error {
	d.mu.Lock()
	d.backlight = clamp01(level)
	d.mu.Unlock()
	return nil
}

func (d *Headless) SetLED(r, g, b float64) error {
	d.mu.Lock()
	d.ledR, d.ledG, d.ledB = clamp01(r), clamp01(g), clamp01(b)
	d.mu.Unlock()
	return nil
}

func (d *Headless) Close() error { return d.Blank() }

// Blanked reports whether the panel is currently cleared.
func (d *Headless) Blanked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blanked
}

// Backlight returns the current backlight level.
func (d *Headless) Backlight() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backlight
}

// LastFrame returns the most recently pushed frame, or nil after Blank.
func (d *Headless) LastFrame() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}
