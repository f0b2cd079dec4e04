// Package media decodes image files into rgb565 images for blitting.
//
// Raster formats (PNG, JPEG, GIF, BMP, TIFF) are decoded with imaging.
// SVG files are rasterized with oksvg at a requested size. Transparent
// pixels become rgb565.Magenta so DrawImage skips them.
package media

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/zpin/lcdbank/rgb565"
)

// ErrUnsupported is returned for images the displays cannot show, such as
// grayscale files.
var ErrUnsupported = errors.New("media: unsupported image")

// Load decodes the raster image at path.
func Load(path string) (*rgb565.Image, error) {
	if isSVG(path) {
		return LoadSVG(path, 0, 0)
	}
	src, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("media: unable to load image %s: %w", path, err)
	}
	switch src.(type) {
	case *image.Gray, *image.Gray16:
		return nil, fmt.Errorf("%w: %s is grayscale", ErrUnsupported, path)
	}
	return convert(src), nil
}

// LoadSVG rasterizes the SVG at path into a width x height image. A zero
// width or height uses the document's view box.
func LoadSVG(path string, width, height int) (*rgb565.Image, error) {
	icon, err := oksvg.ReadIcon(path, oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("media: unable to load svg %s: %w", path, err)
	}
	if width <= 0 || height <= 0 {
		width, height = int(icon.ViewBox.W), int(icon.ViewBox.H)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %s has no size", ErrUnsupported, path)
	}

	icon.SetTarget(0, 0, float64(width), float64(height))
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)
	return convert(rgba), nil
}

func isSVG(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".svg")
}

// convert packs src into 5-6-5. Pixels less than half opaque become the
// chroma key.
func convert(src image.Image) *rgb565.Image {
	b := src.Bounds()
	dst := rgb565.New(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			n := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			c := rgb565.Magenta
			if n.A >= 0x80 {
				c = rgb565.MakeRGB(n.R, n.G, n.B)
			}
			dst.Pix[dst.PixOffset(x, y)] = c
		}
	}
	return dst
}
