package lcdbank

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"

	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/hal"
	"github.com/zpin/lcdbank/rgb565"
	"github.com/zpin/lcdbank/st77xx"
)

var (
	// ErrNoDisplay is returned for a slot without a display.
	ErrNoDisplay = errors.New("lcdbank: no display in slot")
	// ErrSlot is returned for an index outside the chain.
	ErrSlot = errors.New("lcdbank: slot out of range")
)

// Opts is the configuration for a Manager.
type Opts struct {
	// Slots is the number of chain positions.
	Slots int

	// ShiftDelay is held after every chip-select clock edge (default: none).
	ShiftDelay time.Duration
	// SelectAllSettle is held after SelectAll (default: 100ms).
	SelectAllSettle time.Duration
	// ResetHold is held on each side of the shared reset pulse (default: 200ms).
	ResetHold time.Duration

	Logger *zerolog.Logger
}

// Manager owns the displays sharing one SPI bus and routes the bus to them
// through the chip-select shift register chain.
//
// Every method that touches the bus holds the Manager's lock, so calls from
// several goroutines are serialized.
type Manager struct {
	mu       sync.Mutex
	b        *hal.Board
	displays []*Display

	shiftDelay time.Duration
	settle     time.Duration
	resetHold  time.Duration
	log        zerolog.Logger
}

// NewManager returns a Manager with opts.Slots empty slots on b.
func NewManager(b *hal.Board, opts *Opts) (*Manager, error) {
	if b == nil || b.CSClock == nil || b.CSData == nil || b.Reset == nil || b.Delay == nil {
		return nil, errors.New("lcdbank: board needs chip-select, reset and delay lines")
	}
	if opts == nil || opts.Slots <= 0 {
		return nil, errors.New("lcdbank: at least one slot is required")
	}
	m := &Manager{
		b:          b,
		displays:   make([]*Display, opts.Slots),
		shiftDelay: opts.ShiftDelay,
		settle:     opts.SelectAllSettle,
		resetHold:  opts.ResetHold,
		log:        zerolog.Nop(),
	}
	if m.settle == 0 {
		m.settle = 100 * time.Millisecond
	}
	if m.resetHold == 0 {
		m.resetHold = 200 * time.Millisecond
	}
	if opts.Logger != nil {
		m.log = *opts.Logger
	}
	return m, nil
}

// Slots returns the number of chain positions.
func (m *Manager) Slots() int { return len(m.displays) }

// Attach places a display built from panel and c in slot i.
func (m *Manager) Attach(i int, name string, panel Panel, c *canvas.Canvas) (*Display, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i < 0 || i >= len(m.displays) {
		return nil, fmt.Errorf("%w: %d", ErrSlot, i)
	}
	if m.displays[i] != nil {
		return nil, fmt.Errorf("lcdbank: slot %d is already used by %s", i, m.displays[i])
	}
	d := &Display{Canvas: c, Index: i, Name: name, Panel: panel, m: m}
	m.displays[i] = d
	m.log.Debug().Int("slot", i).Str("name", name).Int("width", c.Width()).Int("height", c.Height()).Msg("display attached")
	return d, nil
}

// AddDisplay creates an st77xx panel on the manager's bus and attaches it to
// slot i. The canvas size follows the panel's native size.
func (m *Manager) AddDisplay(i int, name string, opts st77xx.Opts, o canvas.Orientation) (*Display, error) {
	if opts.Delay == nil {
		opts.Delay = m.b.Delay
	}
	if opts.Logger == nil {
		l := m.log.With().Int("slot", i).Logger()
		opts.Logger = &l
	}
	p, err := st77xx.New(m.b.Conn, m.b.DC, &opts)
	if err != nil {
		return nil, err
	}
	c, err := canvas.New(opts.W, opts.H, &canvas.Opts{Orientation: o, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	return m.Attach(i, name, p, c)
}

// Display returns the display in slot i.
func (m *Manager) Display(i int) (*Display, error) {
	if i < 0 || i >= len(m.displays) {
		return nil, fmt.Errorf("%w: %d", ErrSlot, i)
	}
	d := m.displays[i]
	if d == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoDisplay, i)
	}
	return d, nil
}

// Displays returns the present displays in slot order.
func (m *Manager) Displays() []*Display {
	var out []*Display
	for _, d := range m.displays {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (m *Manager) wait() {
	if m.shiftDelay > 0 {
		m.b.Delay.Delay(m.shiftDelay)
	}
}

func (m *Manager) pulse() error {
	if err := m.b.CSClock.Out(gpio.High); err != nil {
		return fmt.Errorf("lcdbank: failed to raise CS clock: %w", err)
	}
	m.wait()
	if err := m.b.CSClock.Out(gpio.Low); err != nil {
		return fmt.Errorf("lcdbank: failed to lower CS clock: %w", err)
	}
	m.wait()
	return nil
}

// shift walks chain positions N down to 0 with selected(pos) deciding each
// bit, then clocks one inactive latch bit. Position N is the spare stage.
// Selection is active low. The clock is left low.
func (m *Manager) shift(selected func(pos int) bool) error {
	if err := m.b.CSClock.Out(gpio.Low); err != nil {
		return fmt.Errorf("lcdbank: failed to lower CS clock: %w", err)
	}
	m.wait()
	n := len(m.displays)
	for pos := n; pos >= 0; pos-- {
		level := gpio.High
		if pos < n && selected(pos) {
			level = gpio.Low
		}
		if err := m.b.CSData.Out(level); err != nil {
			return fmt.Errorf("lcdbank: failed to drive CS data: %w", err)
		}
		if err := m.pulse(); err != nil {
			return err
		}
	}
	if err := m.b.CSData.Out(gpio.High); err != nil {
		return fmt.Errorf("lcdbank: failed to drive CS data: %w", err)
	}
	return m.pulse()
}

func (m *Manager) selectDisplay(i int) error {
	if i < 0 || i >= len(m.displays) {
		return fmt.Errorf("%w: %d", ErrSlot, i)
	}
	return m.shift(func(pos int) bool { return pos == i })
}

// SelectDisplay routes the bus to slot i only.
func (m *Manager) SelectDisplay(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectDisplay(i)
}

func (m *Manager) selectDisplays(mask []bool) error {
	if len(mask) > len(m.displays) {
		return fmt.Errorf("%w: mask has %d entries", ErrSlot, len(mask))
	}
	return m.shift(func(pos int) bool { return pos < len(mask) && mask[pos] })
}

// SelectDisplays routes the bus to every slot set in mask. Slots past the
// end of mask are deselected.
func (m *Manager) SelectDisplays(mask []bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectDisplays(mask)
}

func (m *Manager) selectAll() error {
	if err := m.b.CSClock.Out(gpio.Low); err != nil {
		return fmt.Errorf("lcdbank: failed to lower CS clock: %w", err)
	}
	m.wait()
	if err := m.b.CSData.Out(gpio.Low); err != nil {
		return fmt.Errorf("lcdbank: failed to drive CS data: %w", err)
	}
	m.wait()
	for i := 0; i < len(m.displays)+2; i++ {
		if err := m.pulse(); err != nil {
			return err
		}
	}
	m.b.Delay.Delay(m.settle)
	return nil
}

// SelectAll routes the bus to every slot at once.
func (m *Manager) SelectAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectAll()
}

// InitAll pulses the shared reset line, then selects every slot in order and
// initializes the displays present. A failing display does not stop the
// others; all failures are returned together.
func (m *Manager) InitAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.b.Reset.Out(gpio.Low); err != nil {
		return fmt.Errorf("lcdbank: failed to pull reset low: %w", err)
	}
	m.b.Delay.Delay(m.resetHold)
	if err := m.b.Reset.Out(gpio.High); err != nil {
		return fmt.Errorf("lcdbank: failed to pull reset high: %w", err)
	}
	m.b.Delay.Delay(m.resetHold)

	var errs []error
	for i, d := range m.displays {
		if err := m.selectDisplay(i); err != nil {
			return err
		}
		if d == nil {
			m.log.Debug().Int("slot", i).Msg("slot empty, skipped")
			continue
		}
		if err := d.Panel.Init(); err != nil {
			m.log.Error().Err(err).Stringer("display", d).Msg("init failed")
			errs = append(errs, fmt.Errorf("lcdbank: display %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// UpdateAll sends every present display's frame buffer, one at a time.
func (m *Manager) UpdateAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, d := range m.displays {
		if d == nil {
			continue
		}
		if err := d.update(); err != nil {
			m.log.Error().Err(err).Stringer("display", d).Msg("update failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) flip(d *Display) error {
	if err := d.update(); err != nil {
		return err
	}
	d.Clear(rgb565.Black)
	return nil
}

// UpdateDisplay sends slot i's frame buffer, then clears the buffer to
// black for the next frame.
func (m *Manager) UpdateDisplay(i int) error {
	d, err := m.Display(i)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flip(d)
}

// UpdateDisplays runs UpdateDisplay for every present slot set in mask, in
// ascending order.
func (m *Manager) UpdateDisplays(mask []bool) error {
	if len(mask) > len(m.displays) {
		return fmt.Errorf("%w: mask has %d entries", ErrSlot, len(mask))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i, set := range mask {
		d := m.displays[i]
		if !set || d == nil {
			continue
		}
		if err := m.flip(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// broadcastPower sends one on/off command to every selected panel and
// records the new state on each of them.
func (m *Manager) broadcastPower(targets []*Display, on bool) error {
	if len(targets) == 0 {
		return nil
	}
	if err := targets[0].Panel.Power(on); err != nil {
		return err
	}
	for _, d := range targets[1:] {
		d.Panel.MarkPowered(on)
	}
	return nil
}

// PowerAll turns every display on or off with a single broadcast command.
func (m *Manager) PowerAll(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectAll(); err != nil {
		return err
	}
	return m.broadcastPower(m.Displays(), on)
}

// PowerDisplays turns the displays set in mask on or off with a single
// broadcast command.
func (m *Manager) PowerDisplays(mask []bool, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.selectDisplays(mask); err != nil {
		return err
	}
	var targets []*Display
	for i, set := range mask {
		if set && m.displays[i] != nil {
			targets = append(targets, m.displays[i])
		}
	}
	return m.broadcastPower(targets, on)
}

// ClearAll fills every present frame buffer with c and updates all
// displays.
func (m *Manager) ClearAll(c rgb565.Color) error {
	for _, d := range m.Displays() {
		d.Clear(c)
	}
	return m.UpdateAll()
}
