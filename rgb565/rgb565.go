package rgb565

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
)

// Color is a 16-bit 5-6-5 color.
type Color uint16

// Named colors.
const (
	White   Color = 0xFFFF
	Black   Color = 0x0000
	Blue    Color = 0x001F
	BRed    Color = 0xF81F
	GRed    Color = 0xFFE0
	GBlue   Color = 0x07FF
	Red     Color = 0xF800
	Magenta Color = 0xF81F
	Green   Color = 0x07E0
	Cyan    Color = 0x7FFF
	Yellow  Color = 0xFFE0
	Brown   Color = 0xBC40
	BRRed   Color = 0xFC07
	Gray    Color = 0x8430
)

// MakeRGB packs 8-bit channels, truncating each to its 5-6-5 width.
func MakeRGB(r, g, b uint8) Color {
	return Color(uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b>>3))
}

// R returns the red channel as an 8-bit value with the low 3 bits zero.
func (c Color) R() uint8 { return uint8((c & 0xF800) >> 8) }

// G returns the green channel as an 8-bit value with the low 2 bits zero.
func (c Color) G() uint8 { return uint8((c & 0x07E0) >> 3) }

// B returns the blue channel as an 8-bit value with the low 3 bits zero.
func (c Color) B() uint8 { return uint8((c & 0x001F) << 3) }

// RGBA implements color.Color. Colors are always opaque.
func (c Color) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R()) * 0x101
	g = uint32(c.G()) * 0x101
	b = uint32(c.B()) * 0x101
	return r, g, b, 0xFFFF
}

// NRGBA returns the unpacked channels as an opaque color.NRGBA.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R(), G: c.G(), B: c.B(), A: 0xFF}
}

func (c Color) String() string {
	return fmt.Sprintf("rgb565.Color(0x%04X)", uint16(c))
}

// ParseHex parses a "rrggbb" hex triple, with or without a leading '#'.
func ParseHex(s string) (Color, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, fmt.Errorf("rgb565: invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("rgb565: invalid color %q: %w", s, err)
	}
	return MakeRGB(uint8(v>>16), uint8(v>>8), uint8(v)), nil
}

func toColor(c color.Color) color.Color {
	if v, ok := c.(Color); ok {
		return v
	}
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return MakeRGB(n.R, n.G, n.B)
}

// Model converts colors to Color.
var Model = color.ModelFunc(toColor)

// ByteOrder selects how a Color is laid out as two bytes on the wire.
type ByteOrder uint8

const (
	// BigEndian sends the high byte (red and upper green bits) first.
	BigEndian ByteOrder = iota
	// LittleEndian sends the low byte (lower green bits and blue) first.
	LittleEndian
)

// Put writes c into b[0:2].
func (o ByteOrder) Put(b []byte, c Color) {
	if o == LittleEndian {
		binary.LittleEndian.PutUint16(b, uint16(c))
		return
	}
	binary.BigEndian.PutUint16(b, uint16(c))
}

// Get reads a Color from b[0:2].
func (o ByteOrder) Get(b []byte) Color {
	if o == LittleEndian {
		return Color(binary.LittleEndian.Uint16(b))
	}
	return Color(binary.BigEndian.Uint16(b))
}

func (o ByteOrder) String() string {
	if o == LittleEndian {
		return "little"
	}
	return "big"
}

// ParseByteOrder accepts "big", "little" or an empty string (big).
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(s) {
	case "", "big", "be":
		return BigEndian, nil
	case "little", "le":
		return LittleEndian, nil
	}
	return BigEndian, errors.New("rgb565: byte order must be big or little")
}

// Image is a row-major buffer of Colors.
type Image struct {
	Pix    []Color         // Pixel data, one Color per pixel
	Stride int             // Colors per row
	Rect   image.Rectangle // Image bounds
}

// New creates a new Image with the specified bounds.
func New(r image.Rectangle) *Image {
	w, h := r.Dx(), r.Dy()
	if w < 0 || h < 0 {
		return &Image{Rect: r}
	}
	return &Image{
		Pix:    make([]Color, w*h),
		Stride: w,
		Rect:   r,
	}
}

// FromImage converts any image to an Image with the same bounds.
func FromImage(src image.Image) *Image {
	if img, ok := src.(*Image); ok {
		return img
	}
	b := src.Bounds()
	dst := New(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Pix[dst.PixOffset(x, y)] = Model.Convert(src.At(x, y)).(Color)
		}
	}
	return dst
}

// ColorModel returns the color model of the image.
func (p *Image) ColorModel() color.Model { return Model }

// Bounds returns the image bounds.
func (p *Image) Bounds() image.Rectangle { return p.Rect }

// At implements image.Image.
func (p *Image) At(x, y int) color.Color { return p.ColorAt(x, y) }

// ColorAt returns the Color at (x, y), or Black outside the bounds.
func (p *Image) ColorAt(x, y int) Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return Black
	}
	return p.Pix[p.PixOffset(x, y)]
}

// Set implements draw.Image.
func (p *Image) Set(x, y int, c color.Color) {
	p.SetColor(x, y, Model.Convert(c).(Color))
}

// SetColor sets the Color at (x, y). Points outside the bounds are ignored.
func (p *Image) SetColor(x, y int, c Color) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	p.Pix[p.PixOffset(x, y)] = c
}

// Fill sets every pixel to c.
func (p *Image) Fill(c Color) {
	for i := range p.Pix {
		p.Pix[i] = c
	}
}

// Row returns the Colors of row y.
func (p *Image) Row(y int) []Color {
	i := p.PixOffset(p.Rect.Min.X, y)
	return p.Pix[i : i+p.Rect.Dx()]
}

// PixOffset returns the index of the pixel at (x, y) in Pix.
func (p *Image) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}
