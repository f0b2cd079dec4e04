// Package glyph rasterizes TrueType and OpenType glyphs into coverage
// bitmaps for text compositing.
//
// Metrics are reported in font units; callers convert them to pixels with
// the factor returned by ScaleForPixelHeight. Bitmaps are rendered at a
// given scale with a fractional horizontal pen offset so text keeps its
// sub-pixel spacing.
package glyph

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Bitmap is an 8-bit coverage mask for one glyph. XOff and YOff locate its
// top-left corner relative to the pen position on the baseline; YOff is
// negative above the baseline.
type Bitmap struct {
	Coverage []uint8
	Width    int
	Height   int
	XOff     int
	YOff     int
}

// At returns the coverage at (x, y) inside the bitmap.
func (b Bitmap) At(x, y int) uint8 {
	return b.Coverage[y*b.Width+x]
}

// Font is a parsed font with a per-scale face cache. It is safe for
// concurrent use.
type Font struct {
	mu    sync.Mutex
	f     *sfnt.Font
	buf   sfnt.Buffer
	upem  fixed.Int26_6
	faces map[float64]font.Face

	ascent, descent int
}

// Load reads and parses the font file at path.
func Load(path string) (*Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("glyph: failed to read font: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("glyph: %s: %w", path, err)
	}
	return f, nil
}

// Default returns the Go Regular font.
func Default() *Font {
	f, err := Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
	return f
}

// Parse parses TrueType or OpenType font data.
func Parse(data []byte) (*Font, error) {
	sf, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("glyph: failed to parse font: %w", err)
	}
	f := &Font{
		f:     sf,
		upem:  fixed.I(int(sf.UnitsPerEm())),
		faces: map[float64]font.Face{},
	}
	// At ppem == units per em, scaled metrics equal font units.
	m, err := sf.Metrics(&f.buf, f.upem, font.HintingNone)
	if err != nil {
		return nil, fmt.Errorf("glyph: failed to read metrics: %w", err)
	}
	f.ascent = m.Ascent.Round()
	f.descent = m.Descent.Round()
	if f.ascent+f.descent <= 0 {
		return nil, errors.New("glyph: font has no vertical extent")
	}
	return f, nil
}

// ScaleForPixelHeight returns the factor converting font units to pixels so
// that ascent to descent spans size pixels.
func (f *Font) ScaleForPixelHeight(size float64) float64 {
	return size / float64(f.ascent+f.descent)
}

// Ascent returns the distance from the baseline to the top of the tallest
// glyphs, in font units.
func (f *Font) Ascent() int { return f.ascent }

// Descent returns the distance from the baseline down to the lowest glyphs,
// in font units, as a positive number.
func (f *Font) Descent() int { return f.descent }

func (f *Font) index(r rune) (sfnt.GlyphIndex, bool) {
	x, err := f.f.GlyphIndex(&f.buf, r)
	if err != nil || x == 0 {
		return 0, false
	}
	return x, true
}

// HMetrics returns the advance width and left side bearing of r in font
// units. Runes missing from the font use the .notdef glyph.
func (f *Font) HMetrics(r rune) (advance, leftSideBearing int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	x, _ := f.index(r)
	bounds, adv, err := f.f.GlyphBounds(&f.buf, x, f.upem, font.HintingNone)
	if err != nil {
		return 0, 0
	}
	return adv.Round(), bounds.Min.X.Round()
}

// KernAdvance returns the kerning adjustment between a and b in font units.
// Fonts without kerning data report 0.
func (f *Font) KernAdvance(a, b rune) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	x0, ok0 := f.index(a)
	x1, ok1 := f.index(b)
	if !ok0 || !ok1 {
		return 0
	}
	k, err := f.f.Kern(&f.buf, x0, x1, f.upem, font.HintingNone)
	if err != nil {
		return 0
	}
	return k.Round()
}

func (f *Font) face(scale float64) (font.Face, error) {
	if face, ok := f.faces[scale]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(f.f, &opentype.FaceOptions{
		Size:    scale * float64(f.upem.Round()),
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, err
	}
	f.faces[scale] = face
	return face, nil
}

// BitmapSubpixel renders r at scale with the pen shifted right by xShift
// pixels, 0 <= xShift < 1. Blank glyphs return an empty Bitmap.
func (f *Font) BitmapSubpixel(scale, xShift float64, r rune) Bitmap {
	f.mu.Lock()
	defer f.mu.Unlock()

	face, err := f.face(scale)
	if err != nil {
		return Bitmap{}
	}
	dot := fixed.Point26_6{X: fixed.Int26_6(xShift * 64)}
	dr, mask, mp, _, ok := face.Glyph(dot, r)
	if !ok || dr.Empty() {
		return Bitmap{}
	}

	bm := Bitmap{
		Coverage: make([]uint8, dr.Dx()*dr.Dy()),
		Width:    dr.Dx(),
		Height:   dr.Dy(),
		XOff:     dr.Min.X,
		YOff:     dr.Min.Y,
	}
	// The face reuses its mask between calls, so copy it out.
	alpha, isAlpha := mask.(*image.Alpha)
	for y := 0; y < bm.Height; y++ {
		for x := 0; x < bm.Width; x++ {
			var a uint8
			if isAlpha {
				a = alpha.AlphaAt(mp.X+x, mp.Y+y).A
			} else {
				a = color.AlphaModel.Convert(mask.At(mp.X+x, mp.Y+y)).(color.Alpha).A
			}
			bm.Coverage[y*bm.Width+x] = a
		}
	}
	return bm
}

// Close releases the cached faces.
func (f *Font) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for k, face := range f.faces {
		errs = append(errs, face.Close())
		delete(f.faces, k)
	}
	return errors.Join(errs...)
}
