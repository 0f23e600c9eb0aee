package display

import (
	"fmt"
	"image"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// ST7789 drives the Display HAT Mini's 320x240 IPS panel over SPI.
//
// The controller wants 16-bit RGB565 pixels; Push converts the frame and
// streams it in chunks below periph's SPI transfer limit.
type ST7789 struct {
	w, h     int
	rotation int

	port spi.PortCloser
	conn spi.Conn
	dc   gpio.PinOut
	rst  gpio.PinOut
	bl   gpio.PinOut
	ledR gpio.PinOut
	ledG gpio.PinOut
	ledB gpio.PinOut

	mu  sync.Mutex
	buf []byte
}

// Pins for the Pimoroni Display HAT Mini (BCM numbering).
const (
	defaultSPIPort      = "SPI0.1"
	defaultDCPin        = "GPIO9"
	defaultBacklightPin = "GPIO13"
	defaultLEDRPin      = "GPIO17"
	defaultLEDGPin      = "GPIO27"
	defaultLEDBPin      = "GPIO22"
)

type HardwareConfig struct {
	Width, Height int
	Rotation      int
	SPIPort       string
	DCPin         string
	ResetPin      string
	BacklightPin  string
	LEDRPin       string
	LEDGPin       string
	LEDBPin       string
}

func (c *HardwareConfig) fillDefaults() {
	if c.Width <= 0 {
		c.Width = 320
	}
	if c.Height <= 0 {
		c.Height = 240
	}
	if c.SPIPort == "" {
		c.SPIPort = defaultSPIPort
	}
	if c.DCPin == "" {
		c.DCPin = defaultDCPin
	}
	if c.BacklightPin == "" {
		c.BacklightPin = defaultBacklightPin
	}
	if c.LEDRPin == "" {
		c.LEDRPin = defaultLEDRPin
	}
	if c.LEDGPin == "" {
		c.LEDGPin = defaultLEDGPin
	}
	if c.LEDBPin == "" {
		c.LEDBPin = defaultLEDBPin
	}
}

// OpenST7789 initializes periph, claims the SPI port and control pins and
// runs the panel init sequence.
func OpenST7789(cfg HardwareConfig) (*ST7789, error) {
	cfg.fillDefaults()

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", cfg.SPIPort, err)
	}
	conn, err := port.Connect(60*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("spi connect: %w", err)
	}

	pin := func(name string) gpio.PinOut {
		if name == "" {
			return nil
		}
		return gpioreg.ByName(name)
	}

	d := &ST7789{
		w:        cfg.Width,
		h:        cfg.Height,
		rotation: cfg.Rotation,
		port:     port,
		conn:     conn,
		dc:       pin(cfg.DCPin),
		rst:      pin(cfg.ResetPin),
		bl:       pin(cfg.BacklightPin),
		ledR:     pin(cfg.LEDRPin),
		ledG:     pin(cfg.LEDGPin),
		ledB:     pin(cfg.LEDBPin),
		buf:      make([]byte, cfg.Width*cfg.Height*2),
	}
	if d.dc == nil {
		_ = port.Close()
		return nil, fmt.Errorf("dc pin %q not found", cfg.DCPin)
	}

	if err := d.init(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return d, nil
}

const (
	cmdSWRESET = 0x01
	cmdSLPOUT  = 0x11
	cmdNORON   = 0x13
	cmdINVON   = 0x21
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A
)

func (d *ST7789) init() error {
	if d.rst != nil {
		_ = d.rst.Out(gpio.Low)
		time.Sleep(10 * time.Millisecond)
		_ = d.rst.Out(gpio.High)
		time.Sleep(120 * time.Millisecond)
	}

	steps := []struct {
		cmd  byte
		data []byte
		wait time.Duration
	}{
		{cmd: cmdSWRESET, wait: 150 * time.Millisecond},
		{cmd: cmdSLPOUT, wait: 120 * time.Millisecond},
		{cmd: cmdCOLMOD, data: []byte{0x55}}, // 16-bit RGB565
		{cmd: cmdMADCTL, data: []byte{d.madctl()}},
		{cmd: cmdINVON},
		{cmd: cmdNORON},
		{cmd: cmdDISPON, wait: 100 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.command(s.cmd, s.data...); err != nil {
			return fmt.Errorf("panel init cmd 0x%02x: %w", s.cmd, err)
		}
		if s.wait > 0 {
			time.Sleep(s.wait)
		}
	}
	if d.bl != nil {
		_ = d.bl.Out(gpio.High)
	}
	return nil
}

func (d *ST7789) madctl() byte {
	switch ((d.rotation % 360) + 360) % 360 {
	case 90:
		return 0x60
	case 180:
		return 0xC0
	case 270:
		return 0xA0
	default:
		return 0x00
	}
}

func (d *ST7789) command(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.conn.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	return d.conn.Tx(data, nil)
}

func (d *ST7789) Size() (int, int) { return d.w, d.h }

func (d *ST7789) Push(img *image.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := img.Bounds()
	if b.Dx() != d.w || b.Dy() != d.h {
		return fmt.Errorf("frame size %dx%d does not match panel %dx%d", b.Dx(), b.Dy(), d.w, d.h)
	}

	// RGBA -> RGB565, row major.
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride : (y-b.Min.Y)*img.Stride+d.w*4]
		for x := 0; x < d.w; x++ {
			r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
			px := uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(bl)>>3
			d.buf[i] = byte(px >> 8)
			d.buf[i+1] = byte(px)
			i += 2
		}
	}

	if err := d.setWindow(); err != nil {
		return err
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	// periph SPI transfers are capped (typically 4096 bytes on the Pi).
	const chunk = 4096
	for off := 0; off < len(d.buf); off += chunk {
		end := off + chunk
		if end > len(d.buf) {
			end = len(d.buf)
		}
		if err := d.conn.Tx(d.buf[off:end], nil); err != nil {
			return fmt.Errorf("panel write: %w", err)
		}
	}
	return nil
}

func (d *ST7789) setWindow() error {
	x1 := d.w - 1
	y1 := d.h - 1
	if err := d.command(cmdCASET, 0, 0, byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	if err := d.command(cmdRASET, 0, 0, byte(y1>>8), byte(y1)); err != nil {
		return err
	}
	return d.command(cmdRAMWR)
}

func (d *ST7789) Blank() error {
	img := image.NewRGBA(image.Rect(0, 0, d.w, d.h))
	err := d.Push(img)
	if d.bl != nil {
		if blErr := d.bl.Out(gpio.Low); err == nil {
			err = blErr
		}
	}
	return err
}

// SetBacklight treats any level above zero as "on": the HAT's backlight
// line is a plain GPIO here, not PWM.
func (d *ST7789) SetBacklight(level float64) error {
	if d.bl == nil {
		return nil
	}
	if clamp01(level) > 0 {
		return d.bl.Out(gpio.High)
	}
	return d.bl.Out(gpio.Low)
}

func (d *ST7789) SetLED(r, g, b float64) error {
	// The LED is wired active-low.
	set := func(p gpio.PinOut, v float64) error {
		if p == nil {
			return nil
		}
		if clamp01(v) > 0 {
			return p.Out(gpio.Low)
		}
		return p.Out(gpio.High)
	}
	if err := set(d.ledR, r); err != nil {
		return err
	}
	if err := set(d.ledG, g); err != nil {
		return err
	}
	return set(d.ledB, b)
}

func (d *ST7789) Close() error {
	_ = d.Blank()
	_ = d.SetLED(0, 0, 0)
	return d.port.Close()
}
