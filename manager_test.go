package lcdbank

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/hal/haltest"
	"github.com/zpin/lcdbank/rgb565"
	"github.com/zpin/lcdbank/st77xx"
)

// fakePanel records calls together with the chain selection at call time.
type fakePanel struct {
	rec      *haltest.Recorder
	calls    []string
	selected [][]int
	frames   []rgb565.Color
	on       bool
	inverted bool
	initErr  error
}

func (p *fakePanel) note(call string) {
	p.calls = append(p.calls, call)
	p.selected = append(p.selected, p.rec.Chain.Selected())
}

func (p *fakePanel) Init() error {
	p.note("init")
	if p.initErr != nil {
		return p.initErr
	}
	p.on = true
	return nil
}

func (p *fakePanel) Update(fb *rgb565.Image) error {
	p.note("update")
	p.frames = append(p.frames, fb.Pix[0])
	return nil
}

func (p *fakePanel) Power(on bool) error {
	p.note("power")
	p.on = on
	return nil
}

func (p *fakePanel) Invert(on bool) error {
	p.note("invert")
	p.inverted = on
	return nil
}

func (p *fakePanel) SetWindow(x0, y0, x1, y1 int) error {
	p.note("window")
	return nil
}

func (p *fakePanel) MarkPowered(on bool) { p.on = on }
func (p *fakePanel) On() bool            { return p.on }
func (p *fakePanel) Inverted() bool      { return p.inverted }

func newManager(t *testing.T, slots int, present ...int) (*Manager, *haltest.Recorder, map[int]*fakePanel) {
	t.Helper()
	rec := haltest.New(slots)
	m, err := NewManager(rec.Board(), &Opts{Slots: slots})
	require.NoError(t, err)

	panels := map[int]*fakePanel{}
	for _, i := range present {
		p := &fakePanel{rec: rec}
		c, err := canvas.New(4, 4, nil)
		require.NoError(t, err)
		_, err = m.Attach(i, "", p, c)
		require.NoError(t, err)
		panels[i] = p
	}
	return m, rec, panels
}

func TestNewManagerValidation(t *testing.T) {
	rec := haltest.New(2)

	_, err := NewManager(rec.Board(), &Opts{})
	assert.Error(t, err)

	_, err = NewManager(rec.Board(), nil)
	assert.Error(t, err)

	b := rec.Board()
	b.CSData = nil
	_, err = NewManager(b, &Opts{Slots: 2})
	assert.Error(t, err)

	m, err := NewManager(rec.Board(), &Opts{Slots: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Slots())
	assert.Empty(t, m.Displays())
}

func TestSelectDisplay(t *testing.T) {
	const slots = 8
	for i := 0; i < slots; i++ {
		m, rec, _ := newManager(t, slots)
		require.NoError(t, m.SelectDisplay(i))

		assert.Equal(t, []int{i}, rec.Chain.Selected(), "slot %d", i)
		assert.Equal(t, slots+2, rec.Chain.Pulses())
		assert.Equal(t, gpio.Low, rec.Level(haltest.CSClock))
		assert.Equal(t, gpio.High, rec.Chain.Stage(0))
		assert.Equal(t, gpio.High, rec.Chain.Stage(slots+1))
	}
}

func TestSelectDisplayReplacesSelection(t *testing.T) {
	m, rec, _ := newManager(t, 4)
	require.NoError(t, m.SelectDisplay(3))
	require.NoError(t, m.SelectDisplay(0))
	assert.Equal(t, []int{0}, rec.Chain.Selected())
}

func TestSelectDisplayOutOfRange(t *testing.T) {
	m, rec, _ := newManager(t, 4)
	assert.ErrorIs(t, m.SelectDisplay(4), ErrSlot)
	assert.ErrorIs(t, m.SelectDisplay(-1), ErrSlot)
	assert.Zero(t, rec.Chain.Pulses())
}

func TestSelectDisplays(t *testing.T) {
	m, rec, _ := newManager(t, 6)
	require.NoError(t, m.SelectDisplays([]bool{true, false, true, false, false, true}))
	assert.Equal(t, []int{0, 2, 5}, rec.Chain.Selected())

	// A short mask deselects the remaining slots.
	require.NoError(t, m.SelectDisplays([]bool{false, true}))
	assert.Equal(t, []int{1}, rec.Chain.Selected())

	assert.ErrorIs(t, m.SelectDisplays(make([]bool, 7)), ErrSlot)
}

func TestSelectAll(t *testing.T) {
	m, rec, _ := newManager(t, 5)
	require.NoError(t, m.SelectAll())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, rec.Chain.Selected())
	assert.Equal(t, 7, rec.Chain.Pulses())
	assert.Equal(t, 100*time.Millisecond, rec.Slept())
}

func TestShiftDelay(t *testing.T) {
	rec := haltest.New(2)
	m, err := NewManager(rec.Board(), &Opts{Slots: 2, ShiftDelay: time.Microsecond})
	require.NoError(t, err)
	require.NoError(t, m.SelectDisplay(1))

	// One delay after the initial clock low, then two per pulse.
	assert.Equal(t, time.Duration(1+2*4)*time.Microsecond, rec.Slept())
}

func TestInitAll(t *testing.T) {
	m, rec, panels := newManager(t, 8, 0, 1, 4, 5, 6, 7)

	require.NoError(t, m.InitAll())

	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High}, rec.Writes(haltest.Reset))
	// Every slot is selected in turn, empty ones included.
	assert.Equal(t, 8*10, rec.Chain.Pulses())
	assert.Len(t, panels, 6)
	for i, p := range panels {
		assert.Equal(t, []string{"init"}, p.calls, "slot %d", i)
		assert.Equal(t, [][]int{{i}}, p.selected, "slot %d", i)
		assert.True(t, p.On())
	}
	assert.Equal(t, 400*time.Millisecond, rec.Slept())
}

func TestInitAllContinuesAfterFailure(t *testing.T) {
	m, _, panels := newManager(t, 3, 0, 1, 2)
	boom := errors.New("boom")
	panels[1].initErr = boom

	err := m.InitAll()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"init"}, panels[2].calls)
	assert.True(t, panels[2].On())
	assert.False(t, panels[1].On())
}

func TestUpdateAll(t *testing.T) {
	m, rec, panels := newManager(t, 4, 1, 3)
	d, err := m.Display(3)
	require.NoError(t, err)
	d.Clear(rgb565.Green)

	require.NoError(t, m.UpdateAll())
	assert.Equal(t, [][]int{{1}}, panels[1].selected)
	assert.Equal(t, [][]int{{3}}, panels[3].selected)
	assert.Equal(t, []rgb565.Color{rgb565.Green}, panels[3].frames)
	// Only the two present slots are selected.
	assert.Equal(t, 2*6, rec.Chain.Pulses())

	// UpdateAll leaves the frame buffer alone.
	c, err := d.Pixel(0, 0)
	require.NoError(t, err)
	assert.Equal(t, rgb565.Green, c)
}

func TestUpdateDisplayClearsBuffer(t *testing.T) {
	m, _, panels := newManager(t, 2, 0)
	d, err := m.Display(0)
	require.NoError(t, err)
	d.Clear(rgb565.Red)

	require.NoError(t, m.UpdateDisplay(0))
	assert.Equal(t, []rgb565.Color{rgb565.Red}, panels[0].frames)

	c, err := d.Pixel(3, 3)
	require.NoError(t, err)
	assert.Equal(t, rgb565.Black, c)

	assert.ErrorIs(t, m.UpdateDisplay(1), ErrNoDisplay)
	assert.ErrorIs(t, m.UpdateDisplay(2), ErrSlot)
}

func TestUpdateDisplays(t *testing.T) {
	m, _, panels := newManager(t, 4, 0, 2, 3)
	require.NoError(t, m.UpdateDisplays([]bool{true, true, false, true}))

	assert.Equal(t, []string{"update"}, panels[0].calls)
	assert.Empty(t, panels[2].calls)
	assert.Equal(t, []string{"update"}, panels[3].calls)
	assert.ErrorIs(t, m.UpdateDisplays(make([]bool, 5)), ErrSlot)
}

func TestPowerAll(t *testing.T) {
	m, _, panels := newManager(t, 3, 0, 2)
	require.NoError(t, m.PowerAll(true))

	// One command reaches every panel through the shared selection.
	assert.Equal(t, []string{"power"}, panels[0].calls)
	assert.Equal(t, [][]int{{0, 1, 2}}, panels[0].selected)
	assert.Empty(t, panels[2].calls)
	assert.True(t, panels[0].On())
	assert.True(t, panels[2].On())

	require.NoError(t, m.PowerAll(false))
	assert.False(t, panels[2].On())
}

func TestPowerDisplays(t *testing.T) {
	m, _, panels := newManager(t, 4, 0, 1, 3)
	require.NoError(t, m.PowerDisplays([]bool{false, true, false, true}, true))

	assert.Empty(t, panels[0].calls)
	assert.Equal(t, [][]int{{1, 3}}, panels[1].selected)
	assert.False(t, panels[0].On())
	assert.True(t, panels[1].On())
	assert.True(t, panels[3].On())
}

func TestDisplayMethodsSelect(t *testing.T) {
	m, _, panels := newManager(t, 3, 2)
	d, err := m.Display(2)
	require.NoError(t, err)

	require.NoError(t, d.Init())
	require.NoError(t, d.Invert(true))
	require.NoError(t, d.Power(false))
	require.NoError(t, d.Update())

	p := panels[2]
	assert.Equal(t, []string{"init", "invert", "power", "update"}, p.calls)
	for _, s := range p.selected {
		assert.Equal(t, []int{2}, s)
	}
	assert.True(t, p.Inverted())
	assert.False(t, p.On())
}

func TestAttachErrors(t *testing.T) {
	m, rec, _ := newManager(t, 2, 0)
	c, err := canvas.New(4, 4, nil)
	require.NoError(t, err)

	_, err = m.Attach(0, "", &fakePanel{rec: rec}, c)
	assert.Error(t, err)
	_, err = m.Attach(2, "", &fakePanel{rec: rec}, c)
	assert.ErrorIs(t, err, ErrSlot)

	_, err = m.Display(1)
	assert.ErrorIs(t, err, ErrNoDisplay)
}

func TestClearAll(t *testing.T) {
	m, _, panels := newManager(t, 3, 0, 2)
	require.NoError(t, m.ClearAll(rgb565.Blue))
	assert.Equal(t, []rgb565.Color{rgb565.Blue}, panels[0].frames)
	assert.Equal(t, []rgb565.Color{rgb565.Blue}, panels[2].frames)
}

func TestAddDisplayST7789(t *testing.T) {
	rec := haltest.New(2)
	m, err := NewManager(rec.Board(), &Opts{Slots: 2})
	require.NoError(t, err)

	opts, err := st77xx.Preset("st7789-320", canvas.Rotate90)
	require.NoError(t, err)
	d, err := m.AddDisplay(1, "wide", opts, canvas.Orientation{Rotation: canvas.Rotate90})
	require.NoError(t, err)
	assert.Equal(t, 240, d.Width())
	assert.Equal(t, 320, d.Height())
	assert.Equal(t, "1(wide)", d.String())

	rec.Clear()
	require.NoError(t, d.Init())
	txs := rec.Txs()
	require.NotEmpty(t, txs)
	for _, tx := range txs {
		assert.Equal(t, []int{1}, tx.Selected)
	}
	assert.Equal(t, []byte{0x01}, txs[0].Data)
	assert.Equal(t, gpio.Low, txs[0].DCLevel)
}
