package glyph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func TestMetrics(t *testing.T) {
	f := Default()
	defer f.Close()

	require.Greater(t, f.Ascent(), 0)
	require.Greater(t, f.Descent(), 0)
	assert.InDelta(t, 1.0, f.ScaleForPixelHeight(float64(f.Ascent()+f.Descent())), 1e-9)

	adv, lsb := f.HMetrics('H')
	assert.Greater(t, adv, 0)
	assert.Greater(t, lsb, 0)
	assert.Less(t, lsb, adv)

	wide, _ := f.HMetrics('W')
	narrow, _ := f.HMetrics('i')
	assert.Greater(t, wide, narrow)

	assert.NotPanics(t, func() { f.KernAdvance('A', 'V') })
	assert.Zero(t, f.KernAdvance('A', '\U0010FFFD'))
}

func TestBitmapSubpixel(t *testing.T) {
	f := Default()
	defer f.Close()

	scale := f.ScaleForPixelHeight(32)
	bm := f.BitmapSubpixel(scale, 0, 'H')
	require.NotZero(t, bm.Width)
	require.NotZero(t, bm.Height)
	require.Len(t, bm.Coverage, bm.Width*bm.Height)
	assert.Less(t, bm.YOff, 0, "glyph must sit above the baseline")
	assert.LessOrEqual(t, bm.Height, 32)

	var max uint8
	for _, c := range bm.Coverage {
		if c > max {
			max = c
		}
	}
	assert.Greater(t, max, uint8(200))

	// A shifted glyph covers the same rows.
	shifted := f.BitmapSubpixel(scale, 0.5, 'H')
	assert.Equal(t, bm.YOff, shifted.YOff)
	assert.Equal(t, bm.Height, shifted.Height)

	space := f.BitmapSubpixel(scale, 0, ' ')
	for _, c := range space.Coverage {
		assert.Zero(t, c)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "font.ttf")
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Ascent(), f.Ascent())

	_, err = Load(filepath.Join(t.TempDir(), "missing.ttf"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.ttf")
	require.NoError(t, os.WriteFile(bad, []byte("not a font"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
