package lcdbank

import (
	"fmt"

	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/rgb565"
)

// Panel is a panel controller. *st77xx.Dev implements it.
type Panel interface {
	Init() error
	Update(fb *rgb565.Image) error
	Power(on bool) error
	Invert(on bool) error
	SetWindow(x0, y0, x1, y1 int) error

	// MarkPowered records a power change made by a broadcast command.
	MarkPowered(on bool)
	On() bool
	Inverted() bool
}

// Display is one panel on the bus with its frame buffer.
//
// Drawing methods, promoted from the embedded Canvas, only touch memory and
// may run without the bus lock. Init, Update, Power and Invert select the
// panel and hold the bus lock.
type Display struct {
	*canvas.Canvas

	Index int
	Name  string
	Panel Panel

	m *Manager
}

// Init selects and initializes the panel.
func (d *Display) Init() error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return d.init()
}

func (d *Display) init() error {
	if err := d.m.selectDisplay(d.Index); err != nil {
		return err
	}
	if err := d.Panel.Init(); err != nil {
		return fmt.Errorf("lcdbank: display %d: %w", d.Index, err)
	}
	return nil
}

// Update selects the panel and sends the frame buffer.
func (d *Display) Update() error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	return d.update()
}

func (d *Display) update() error {
	if err := d.m.selectDisplay(d.Index); err != nil {
		return err
	}
	if err := d.Panel.Update(d.Buffer()); err != nil {
		return fmt.Errorf("lcdbank: display %d: %w", d.Index, err)
	}
	return nil
}

// Power selects the panel and turns its output on or off.
func (d *Display) Power(on bool) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()

	if err := d.m.selectDisplay(d.Index); err != nil {
		return err
	}
	return d.Panel.Power(on)
}

// Invert selects the panel and sets color inversion.
func (d *Display) Invert(on bool) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()

	if err := d.m.selectDisplay(d.Index); err != nil {
		return err
	}
	return d.Panel.Invert(on)
}

func (d *Display) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%d(%s)", d.Index, d.Name)
	}
	return fmt.Sprint(d.Index)
}
