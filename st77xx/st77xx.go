// Package st77xx controls ST7735 and ST7789 TFT LCD controllers over SPI.
//
// A Dev only talks to the bus. Selecting which panel listens, when several
// share one bus, is the caller's job; the Dev assumes it is selected for
// the duration of each call.
//
// See the lcdbank package for driving a bank of panels.
package st77xx

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/zpin/lcdbank/hal"
	"github.com/zpin/lcdbank/rgb565"
)

// Command bytes shared by both controllers.
const (
	swReset byte = 0x01
	slpOut  byte = 0x11
	invOff  byte = 0x20
	invOn   byte = 0x21
	dispOff byte = 0x28
	dispOn  byte = 0x29
	caSet   byte = 0x2A
	raSet   byte = 0x2B
	ramWr   byte = 0x2C
	madCtl  byte = 0x36
	colMod  byte = 0x3A
)

// Variant is the controller type.
type Variant uint8

// Supported controllers.
const (
	ST7735 Variant = iota
	ST7789
)

func (v Variant) String() string {
	switch v {
	case ST7735:
		return "ST7735"
	case ST7789:
		return "ST7789"
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// State is the initialization state of a Dev.
type State uint8

// Dev states.
const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Opts is the configuration for a panel.
type Opts struct {
	Variant Variant

	// Native panel dimensions in pixels.
	W int
	H int

	// Offset of the visible glass inside controller RAM.
	XOffset int
	YOffset int

	ScanDir ScanDir
	BGR     bool // BGR color filter order

	// ByteOrder of pixel words on the wire (default: big endian).
	ByteOrder rgb565.ByteOrder

	// Optional per-panel reset line. Panels on a shared reset line leave it
	// nil and are reset by the bank.
	RST hal.Line

	// InitFill is written to panel RAM at the end of ST7735 init unless
	// SkipInitFill is set.
	InitFill     rgb565.Color
	SkipInitFill bool

	Delay  hal.Delayer     // default hal.SleepDelayer
	Logger *zerolog.Logger // default no logging
}

var _ display.Drawer = (*Dev)(nil)

// Dev is the handle for one panel.
type Dev struct {
	c     conn.Conn
	dc    hal.Line
	rst   hal.Line
	delay hal.Delayer
	log   zerolog.Logger

	variant    Variant
	rect       image.Rectangle
	xOff, yOff int
	scan       ScanDir
	bgr        bool
	order      rgb565.ByteOrder
	initFill   rgb565.Color
	skipFill   bool

	state    State
	on       bool
	inverted bool

	row []byte
}

// NewSPI connects to p and returns a Dev using it. Use New when several
// panels share one connection.
func NewSPI(p spi.Port, dc hal.Line, opts *Opts) (*Dev, error) {
	c, err := p.Connect(40*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("st77xx: failed to connect SPI: %w", err)
	}
	return New(c, dc, opts)
}

// New returns a Dev writing to c with dc as the data/command line. The
// panel is not touched until Init.
func New(c conn.Conn, dc hal.Line, opts *Opts) (*Dev, error) {
	if opts == nil {
		return nil, errors.New("st77xx: options are required")
	}
	if c == nil || dc == nil {
		return nil, errors.New("st77xx: connection and DC line are required")
	}
	if opts.W <= 0 || opts.H <= 0 || opts.W+opts.XOffset > 0xFFFF || opts.H+opts.YOffset > 0xFFFF {
		return nil, fmt.Errorf("st77xx: invalid size %dx%d", opts.W, opts.H)
	}
	if opts.Variant > ST7789 {
		return nil, fmt.Errorf("st77xx: unknown variant %d", opts.Variant)
	}
	if opts.ScanDir > D2U_R2L {
		return nil, fmt.Errorf("st77xx: invalid scan direction %d", opts.ScanDir)
	}

	d := &Dev{
		c:        c,
		dc:       dc,
		rst:      opts.RST,
		delay:    opts.Delay,
		log:      zerolog.Nop(),
		variant:  opts.Variant,
		rect:     image.Rect(0, 0, opts.W, opts.H),
		xOff:     opts.XOffset,
		yOff:     opts.YOffset,
		scan:     opts.ScanDir,
		bgr:      opts.BGR,
		order:    opts.ByteOrder,
		initFill: opts.InitFill,
		skipFill: opts.SkipInitFill,
		row:      make([]byte, 2*opts.W),
	}
	if d.delay == nil {
		d.delay = hal.SleepDelayer{}
	}
	if opts.Logger != nil {
		d.log = *opts.Logger
	}
	return d, nil
}

// step is one entry of an init table.
type step struct {
	cmd   byte
	args  []byte
	delay time.Duration
}

var st7735Power = []step{
	{cmd: 0xB1, args: []byte{0x05, 0x3A, 0x3A}}, // frame rate, normal mode
	{cmd: 0xB2, args: []byte{0x05, 0x3A, 0x3A}}, // frame rate, idle mode
	{cmd: 0xB3, args: []byte{0x05, 0x3A, 0x3A, 0x05, 0x3A, 0x3A}},
	{cmd: 0xB4, args: []byte{0x03}}, // inversion control
	{cmd: 0xC0, args: []byte{0x62, 0x02, 0x04}},
	{cmd: 0xC1, args: []byte{0xC0}},
	{cmd: 0xC2, args: []byte{0x0D, 0x00}},
	{cmd: 0xC3, args: []byte{0x8D, 0x6A}},
	{cmd: 0xC4, args: []byte{0x8D, 0xEE}},
	{cmd: 0xC5, args: []byte{0x0E}}, // VCOM
	{cmd: 0xE0, args: []byte{0x10, 0x0E, 0x02, 0x03, 0x0E, 0x07, 0x02, 0x07, 0x0A, 0x12, 0x27, 0x37, 0x00, 0x0D, 0x0E, 0x10}},
	{cmd: 0xE1, args: []byte{0x10, 0x0E, 0x03, 0x03, 0x0F, 0x06, 0x02, 0x08, 0x0A, 0x13, 0x26, 0x36, 0x00, 0x0D, 0x0E, 0x10}},
	{cmd: colMod, args: []byte{0x05}}, // 16 bits per pixel
}

var st7789Power = []step{
	{cmd: caSet, args: []byte{0x00, 0x00, 0x01, 0x3F}},
	{cmd: raSet, args: []byte{0x00, 0x00, 0x00, 0xEF}},
	{cmd: 0xB2, args: []byte{0x0C, 0x0C, 0x00, 0x33, 0x33}}, // porch
	{cmd: 0xB7, args: []byte{0x35}},                         // gate
	{cmd: 0xBB, args: []byte{0x1F}},                         // VCOM
	{cmd: 0xC0, args: []byte{0x2C}},
	{cmd: 0xC2, args: []byte{0x01}},
	{cmd: 0xC3, args: []byte{0x12}},
	{cmd: 0xC4, args: []byte{0x20}},
	{cmd: 0xC6, args: []byte{0x0F}}, // frame rate
	{cmd: 0xD0, args: []byte{0xA4, 0xA1}},
	{cmd: 0xE0, args: []byte{0xD0, 0x08, 0x11, 0x08, 0x0C, 0x15, 0x39, 0x33, 0x50, 0x36, 0x13, 0x14, 0x29, 0x2D}},
	{cmd: 0xE1, args: []byte{0xD0, 0x08, 0x10, 0x08, 0x06, 0x06, 0x39, 0x44, 0x51, 0x0B, 0x16, 0x14, 0x2F, 0x31}},
}

// Init resets and programs the panel. It leaves the panel on and not
// inverted.
func (d *Dev) Init() error {
	d.state = Initializing
	var err error
	switch d.variant {
	case ST7789:
		err = d.init7789()
	default:
		err = d.init7735()
	}
	if err != nil {
		d.state = Uninitialized
		return err
	}
	d.state = Ready
	d.log.Debug().Stringer("variant", d.variant).Stringer("scan", d.scan).Msg("panel initialized")
	return nil
}

func (d *Dev) init7735() error {
	if err := d.reset(0, 200*time.Millisecond); err != nil {
		return err
	}
	steps := []step{
		{cmd: swReset, delay: 150 * time.Millisecond},
		{cmd: slpOut, delay: 120 * time.Millisecond},
	}
	if err := d.run(steps); err != nil {
		return err
	}
	if err := d.Invert(false); err != nil {
		return err
	}
	if err := d.run(st7735Power); err != nil {
		return err
	}
	if err := d.run([]step{{cmd: madCtl, args: []byte{d.madctl()}}, {cmd: dispOn}}); err != nil {
		return err
	}
	d.on = true
	if d.skipFill {
		return nil
	}
	return d.Fill(d.initFill)
}

func (d *Dev) init7789() error {
	if err := d.reset(100*time.Millisecond, 100*time.Millisecond); err != nil {
		return err
	}
	steps := []step{
		{cmd: swReset, delay: 150 * time.Millisecond},
		{cmd: madCtl, args: []byte{d.madctl()}},
		{cmd: colMod, args: []byte{0x05}},
		{cmd: invOn},
	}
	steps = append(steps, st7789Power...)
	if err := d.run(steps); err != nil {
		return err
	}
	if err := d.Invert(false); err != nil {
		return err
	}
	if err := d.run([]step{{cmd: slpOut}, {cmd: dispOn}}); err != nil {
		return err
	}
	d.on = true
	return nil
}

// reset pulses the panel's own reset line, if any.
func (d *Dev) reset(before, hold time.Duration) error {
	if d.rst == nil {
		return nil
	}
	d.delay.Delay(before)
	if err := d.rst.Out(gpio.Low); err != nil {
		return fmt.Errorf("st77xx: failed to pull RST low: %w", err)
	}
	d.delay.Delay(hold)
	if err := d.rst.Out(gpio.High); err != nil {
		return fmt.Errorf("st77xx: failed to pull RST high: %w", err)
	}
	d.delay.Delay(hold)
	return nil
}

func (d *Dev) run(steps []step) error {
	for _, s := range steps {
		if err := d.sendCommand(s.cmd); err != nil {
			return err
		}
		if len(s.args) > 0 {
			if err := d.sendData(s.args); err != nil {
				return err
			}
		}
		d.delay.Delay(s.delay)
	}
	return nil
}

func (d *Dev) madctl() byte {
	b := d.scan.madctl()
	if d.bgr {
		b |= madBGR
	}
	return b
}

// sendCommand sends a single command byte with DC low.
func (d *Dev) sendCommand(cmd byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("st77xx: failed to pull DC low: %w", err)
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("st77xx: failed to send command 0x%02X: %w", cmd, err)
	}
	return nil
}

// sendData sends data bytes with DC high.
func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("st77xx: failed to pull DC high: %w", err)
	}
	if err := d.c.Tx(data, nil); err != nil {
		return fmt.Errorf("st77xx: failed to send data: %w", err)
	}
	return nil
}

// SetWindow selects the RAM rectangle [x0, x1] x [y0, y1] in native
// coordinates and starts a RAM write. A panel that is off is powered on
// first.
func (d *Dev) SetWindow(x0, y0, x1, y1 int) error {
	if !d.on {
		if err := d.Power(true); err != nil {
			return err
		}
	}
	x0, x1 = x0+d.xOff, x1+d.xOff
	y0, y1 = y0+d.yOff, y1+d.yOff
	return d.run([]step{
		{cmd: caSet, args: []byte{byte(x0 >> 8), byte(x0), byte(x1 >> 8), byte(x1)}},
		{cmd: raSet, args: []byte{byte(y0 >> 8), byte(y0), byte(y1 >> 8), byte(y1)}},
		{cmd: ramWr},
	})
}

// Update streams the whole of fb, which must match the panel size, one row
// per transfer.
func (d *Dev) Update(fb *rgb565.Image) error {
	if fb.Bounds().Size() != d.rect.Size() {
		return fmt.Errorf("st77xx: frame is %v, panel is %v", fb.Bounds().Size(), d.rect.Size())
	}
	return d.Draw(d.rect, fb, fb.Rect.Min)
}

// Draw implements display.Drawer. It streams the part of src starting at sp
// into the native rectangle r, clipped to the panel.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	clipped := r.Intersect(d.rect)
	if clipped.Empty() {
		return nil
	}
	sp = sp.Add(clipped.Min.Sub(r.Min))
	r = clipped

	if err := d.SetWindow(r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1); err != nil {
		return err
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("st77xx: failed to pull DC high: %w", err)
	}
	row := d.row[:2*r.Dx()]
	fb, fast := src.(*rgb565.Image)
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			var c rgb565.Color
			if fast {
				c = fb.ColorAt(sp.X+x, sp.Y+y)
			} else {
				c = rgb565.Model.Convert(src.At(sp.X+x, sp.Y+y)).(rgb565.Color)
			}
			d.order.Put(row[2*x:], c)
		}
		if err := d.c.Tx(row, nil); err != nil {
			return fmt.Errorf("st77xx: failed to send row %d: %w", r.Min.Y+y, err)
		}
	}
	return nil
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model { return rgb565.Model }

// Halt implements conn.Resource. It turns the display output off.
func (d *Dev) Halt() error { return d.Power(false) }

// Fill writes c to the whole panel RAM.
func (d *Dev) Fill(c rgb565.Color) error {
	for x := 0; x < d.rect.Dx(); x++ {
		d.order.Put(d.row[2*x:], c)
	}
	if err := d.SetWindow(0, 0, d.rect.Dx()-1, d.rect.Dy()-1); err != nil {
		return err
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("st77xx: failed to pull DC high: %w", err)
	}
	for y := 0; y < d.rect.Dy(); y++ {
		if err := d.c.Tx(d.row, nil); err != nil {
			return fmt.Errorf("st77xx: failed to send row %d: %w", y, err)
		}
	}
	return nil
}

// Power turns the display output on or off. Panel RAM is kept.
func (d *Dev) Power(on bool) error {
	cmd := dispOff
	if on {
		cmd = dispOn
	}
	if err := d.sendCommand(cmd); err != nil {
		return err
	}
	d.on = on
	return nil
}

// Invert inverts the display colors. The ST7789 maps on to INVOFF and off
// to INVON, so after Init, which ends with Invert(false), INVON is the
// last inversion command an ST7789 has received.
func (d *Dev) Invert(on bool) error {
	cmd := invOff
	if on != (d.variant == ST7789) {
		cmd = invOn
	}
	if err := d.sendCommand(cmd); err != nil {
		return err
	}
	d.inverted = on
	return nil
}

// MarkPowered records a power state changed by a command broadcast to
// several panels at once.
func (d *Dev) MarkPowered(on bool) { d.on = on }

// State returns the initialization state.
func (d *Dev) State() State { return d.state }

// On reports whether the display output is on.
func (d *Dev) On() bool { return d.on }

// Inverted reports whether colors are inverted.
func (d *Dev) Inverted() bool { return d.inverted }

// Variant returns the controller type.
func (d *Dev) Variant() Variant { return d.variant }

// Bounds returns the native panel rectangle.
func (d *Dev) Bounds() image.Rectangle { return d.rect }

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("st77xx.Dev{%s %dx%d}", d.variant, d.rect.Dx(), d.rect.Dy())
}
