package lcdbank

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/hal/haltest"
	"github.com/zpin/lcdbank/rgb565"
)

func newBank(t *testing.T, slots int, dir string, present ...int) (*Bank, *haltest.Recorder, map[int]*fakePanel) {
	t.Helper()
	rec := haltest.New(slots)
	b, err := NewBank(rec.Board(), &BankOpts{Slots: slots, MediaDir: dir})
	require.NoError(t, err)

	panels := map[int]*fakePanel{}
	for _, i := range present {
		p := &fakePanel{rec: rec}
		c, err := canvas.New(16, 8, nil)
		require.NoError(t, err)
		_, err = b.Attach(i, "", p, c)
		require.NoError(t, err)
		panels[i] = p
	}
	return b, rec, panels
}

func TestCheckPower(t *testing.T) {
	b, rec, panels := newBank(t, 2, "", 0, 1)
	rec.Power.L = gpio.Low

	require.NoError(t, b.CheckPower())
	assert.False(t, b.Powered())
	assert.Empty(t, panels[0].calls)

	rec.Power.L = gpio.High
	require.NoError(t, b.CheckPower())
	assert.True(t, b.Powered())
	assert.Equal(t, []string{"init"}, panels[0].calls)
	assert.Equal(t, []string{"init"}, panels[1].calls)
	// Settle, then the shared reset pulse.
	assert.Equal(t, 2*time.Second+400*time.Millisecond, rec.Slept())

	// Steady power does not re-initialize.
	require.NoError(t, b.CheckPower())
	assert.Len(t, panels[0].calls, 1)

	rec.Power.L = gpio.Low
	require.NoError(t, b.CheckPower())
	assert.False(t, b.Powered())
	assert.Len(t, panels[0].calls, 1)

	rec.Power.L = gpio.High
	require.NoError(t, b.CheckPower())
	assert.Len(t, panels[0].calls, 2)
}

func TestCheckPowerWithoutSense(t *testing.T) {
	b, _, panels := newBank(t, 1, "", 0)
	b.Board.Power = nil
	require.NoError(t, b.CheckPower())
	assert.Empty(t, panels[0].calls)
}

func TestMediaImage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "16"), 0o755))
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 0xFF, A: 0xFF})
	require.NoError(t, imaging.Save(img, filepath.Join(dir, "16", "logo.png")))

	b, _, _ := newBank(t, 2, dir, 0)

	got, err := b.MediaImage(0, "logo")
	require.NoError(t, err)
	assert.Equal(t, rgb565.Red, got.ColorAt(0, 0))
	assert.Equal(t, rgb565.White, got.ColorAt(1, 1))

	again, err := b.Image(filepath.Join(dir, "16", "logo.png"))
	require.NoError(t, err)
	assert.Same(t, got, again)

	_, err = b.MediaImage(0, "missing")
	assert.Error(t, err)
	_, err = b.MediaImage(1, "logo")
	assert.ErrorIs(t, err, ErrNoDisplay)
}

func TestBankDrawText(t *testing.T) {
	b, _, _ := newBank(t, 1, "", 0)
	d, err := b.Display(0)
	require.NoError(t, err)
	d.Clear(rgb565.Black)

	_, err = b.DrawText(0, "H", 2, 0, 8, canvas.Top, canvas.DefaultThreshold)
	require.NoError(t, err)

	lit := 0
	for y := 0; y < d.Height(); y++ {
		for x := 0; x < d.Width(); x++ {
			if c, _ := d.Pixel(x, y); c != rgb565.Black {
				lit++
			}
		}
	}
	assert.NotZero(t, lit)

	_, err = b.DrawText(3, "l", 0, 0, 8, canvas.Top, 0)
	assert.ErrorIs(t, err, ErrSlot)
}
