package canvas

import (
	"fmt"
	"math"
	"strings"

	"github.com/zpin/lcdbank/glyph"
	"github.com/zpin/lcdbank/rgb565"
)

// DefaultThreshold is the coverage above which a text pixel replaces the
// background.
const DefaultThreshold = 64

// VAlign selects which part of a line of text sits at the requested y.
type VAlign uint8

// Vertical alignments.
const (
	Top VAlign = iota
	CenterAll
	CenterAscent
	Baseline
	Bottom
)

var vAlignNames = [...]string{
	Top:          "top",
	CenterAll:    "center-all",
	CenterAscent: "center",
	Baseline:     "baseline",
	Bottom:       "bottom",
}

func (v VAlign) String() string {
	if int(v) < len(vAlignNames) {
		return vAlignNames[v]
	}
	return fmt.Sprintf("VAlign(%d)", uint8(v))
}

// ParseVAlign accepts top, center, center-ascent, center-all, baseline or
// bottom. "center" centers the ascent.
func ParseVAlign(s string) (VAlign, error) {
	switch strings.ToLower(s) {
	case "top":
		return Top, nil
	case "center", "center-ascent":
		return CenterAscent, nil
	case "center-all":
		return CenterAll, nil
	case "baseline":
		return Baseline, nil
	case "bottom":
		return Bottom, nil
	}
	return Top, fmt.Errorf("canvas: invalid vertical alignment %q", s)
}

// Rasterizer supplies glyph metrics in font units and coverage bitmaps.
// *glyph.Font implements it.
type Rasterizer interface {
	ScaleForPixelHeight(size float64) float64
	Ascent() int
	HMetrics(r rune) (advance, leftSideBearing int)
	KernAdvance(a, b rune) int
	BitmapSubpixel(scale, xShift float64, r rune) glyph.Bitmap
}

// composite replaces each background channel with the coverage value when
// coverage exceeds thresh. There is no blending.
func composite(bg rgb565.Color, coverage, thresh uint8) rgb565.Color {
	r, g, b := bg.R(), bg.G(), bg.B()
	if coverage > thresh {
		r, g, b = coverage, coverage, coverage
	}
	return rgb565.MakeRGB(r, g, b)
}

// DrawText renders text with its pen starting at logical (sx, sy), size
// pixels tall, using f. v chooses what sy refers to. Pixels whose coverage
// is at most thresh keep the background.
func (c *Canvas) DrawText(f Rasterizer, text string, sx, sy, size int, v VAlign, thresh uint8) int {
	scale := f.ScaleForPixelHeight(float64(size))
	baseline := int(float64(f.Ascent()) * scale)

	switch v {
	case Top:
		sy += baseline
	case CenterAscent:
		sy += baseline - size/2
	case Bottom:
		sy += baseline - size
	case CenterAll:
		sy += baseline / 2
	case Baseline:
	}

	runes := []rune(text)
	xpos := float64(sx)
	dropped := 0
	for i, r := range runes {
		x0 := math.Floor(xpos)
		shift := xpos - x0
		advance, _ := f.HMetrics(r)
		bm := f.BitmapSubpixel(scale, shift, r)

		for y := 0; y < bm.Height; y++ {
			for x := 0; x < bm.Width; x++ {
				cov := bm.At(x, y)
				if cov <= thresh {
					continue
				}
				px, py := int(x0)+bm.XOff+x, sy+bm.YOff+y
				bg, err := c.Pixel(px, py)
				if err != nil {
					dropped++
					continue
				}
				_ = c.SetPixel(px, py, composite(bg, cov, thresh))
			}
		}

		xpos += float64(advance) * scale
		if i+1 < len(runes) {
			xpos += scale * float64(f.KernAdvance(r, runes[i+1]))
		}
	}
	c.dropped += dropped
	c.logDropped("text", dropped)
	return dropped
}
