package canvas

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/zpin/lcdbank/rgb565"
)

// ErrOutOfBounds is wrapped by every BoundsError.
var ErrOutOfBounds = errors.New("canvas: out of bounds")

// BoundsError reports a logical coordinate that did not map onto the native
// grid.
type BoundsError struct {
	X, Y int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("canvas: point (%d, %d) out of bounds", e.X, e.Y)
}

func (e *BoundsError) Unwrap() error { return ErrOutOfBounds }

// Opts holds the configuration options for a Canvas.
type Opts struct {
	Orientation Orientation
	// Logger receives a debug entry for every drawing call that drops pixels.
	Logger *zerolog.Logger
}

// Canvas is a native-order pixel store addressed in logical coordinates.
//
// Drawing never fails the caller: points that fall outside the grid are
// counted and dropped. Methods return the number of dropped points where
// more than one point is drawn.
type Canvas struct {
	fb            *rgb565.Image
	o             Orientation
	width, height int
	dropped       int
	log           zerolog.Logger
}

// New returns a Canvas for a pixWidth x pixHeight native grid, filled with
// rgb565.Magenta.
func New(pixWidth, pixHeight int, opts *Opts) (*Canvas, error) {
	if pixWidth <= 0 || pixHeight <= 0 {
		return nil, fmt.Errorf("canvas: invalid size %dx%d", pixWidth, pixHeight)
	}
	if opts == nil {
		opts = &Opts{}
	}
	if err := opts.Orientation.Validate(); err != nil {
		return nil, err
	}
	c := &Canvas{
		fb:  rgb565.New(image.Rect(0, 0, pixWidth, pixHeight)),
		o:   opts.Orientation,
		log: zerolog.Nop(),
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	}
	c.width, c.height = c.o.Logical(pixWidth, pixHeight)
	c.fb.Fill(rgb565.Magenta)
	return c, nil
}

// Width returns the logical width.
func (c *Canvas) Width() int { return c.width }

// Height returns the logical height.
func (c *Canvas) Height() int { return c.height }

// PixWidth returns the native width.
func (c *Canvas) PixWidth() int { return c.fb.Rect.Dx() }

// PixHeight returns the native height.
func (c *Canvas) PixHeight() int { return c.fb.Rect.Dy() }

// Orientation returns the logical to native mapping.
func (c *Canvas) Orientation() Orientation { return c.o }

// Buffer returns the native grid. Rows are pixWidth Colors long.
func (c *Canvas) Buffer() *rgb565.Image { return c.fb }

// Dropped returns the total number of points dropped since creation.
func (c *Canvas) Dropped() int { return c.dropped }

// Clear fills the whole native grid with col, ignoring the orientation.
func (c *Canvas) Clear(col rgb565.Color) {
	c.fb.Fill(col)
}

func (c *Canvas) native(x, y int) (int, int, error) {
	nx, ny, ok := ToNative(c.o, c.PixWidth(), c.PixHeight(), x, y)
	if !ok {
		return 0, 0, &BoundsError{X: x, Y: y}
	}
	return nx, ny, nil
}

// SetPixel writes col at logical (x, y). Points outside the grid are
// dropped and reported as a *BoundsError.
func (c *Canvas) SetPixel(x, y int, col rgb565.Color) error {
	nx, ny, err := c.native(x, y)
	if err != nil {
		c.dropped++
		return err
	}
	c.fb.Pix[c.fb.PixOffset(nx, ny)] = col
	return nil
}

// Pixel reads logical (x, y). Points outside the grid return Black and a
// *BoundsError.
func (c *Canvas) Pixel(x, y int) (rgb565.Color, error) {
	nx, ny, err := c.native(x, y)
	if err != nil {
		return rgb565.Black, err
	}
	return c.fb.Pix[c.fb.PixOffset(nx, ny)], nil
}

// DrawRect fills x in [x1, x2] and y in [y1, y2). The right edge is
// inclusive and the bottom edge is not. Only the part inside the grid is
// walked; the rest is counted as dropped.
func (c *Canvas) DrawRect(x1, y1, x2, y2 int, col rgb565.Color) int {
	cx1, cx2 := max(x1, 0), min(x2, c.width-1)
	cy1, cy2 := max(y1, 0), min(y2, c.height)
	inside := 0
	for x := cx1; x <= cx2; x++ {
		for y := cy1; y < cy2; y++ {
			if c.SetPixel(x, y, col) == nil {
				inside++
			}
		}
	}
	dropped := area(x1, y1, x2, y2) - inside
	if c.dropped > math.MaxInt-dropped {
		c.dropped = math.MaxInt
	} else {
		c.dropped += dropped
	}
	c.logDropped("rect", dropped)
	return dropped
}

// area is the point count of [x1, x2] x [y1, y2), saturating at
// math.MaxInt.
func area(x1, y1, x2, y2 int) int {
	if x2 < x1 || y2 <= y1 {
		return 0
	}
	w := uint64(x2) - uint64(x1)
	if w < math.MaxUint64 {
		w++
	}
	h := uint64(y2) - uint64(y1)
	if h > math.MaxInt/w {
		return math.MaxInt
	}
	return int(w * h)
}

// IsChromaKey reports whether col falls in the near-magenta band treated
// as transparent by DrawImage.
func IsChromaKey(col rgb565.Color) bool {
	return col.R() >= 224 && col.G() <= 16 && col.B() >= 224
}

// DrawImage copies img with its top-left corner at logical (x0, y0).
// Chroma-keyed pixels and pixels landing outside the grid are skipped.
func (c *Canvas) DrawImage(img *rgb565.Image, x0, y0 int) int {
	b := img.Bounds()
	dropped := 0
	for j := 0; j < b.Dy(); j++ {
		for i := 0; i < b.Dx(); i++ {
			x, y := x0+i, y0+j
			if x < 0 || y < 0 || x >= c.width || y >= c.height {
				continue
			}
			col := img.ColorAt(b.Min.X+i, b.Min.Y+j)
			if IsChromaKey(col) {
				continue
			}
			if c.SetPixel(x, y, col) != nil {
				dropped++
			}
		}
	}
	c.logDropped("image", dropped)
	return dropped
}

// SavePNG writes the native grid to path. The format follows the file
// extension.
func (c *Canvas) SavePNG(path string) error {
	b := c.fb.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetNRGBA(x, y, c.fb.ColorAt(x, y).NRGBA())
		}
	}
	if err := imaging.Save(out, path); err != nil {
		return fmt.Errorf("canvas: failed to save %s: %w", path, err)
	}
	return nil
}

func (c *Canvas) logDropped(op string, n int) {
	if n == 0 {
		return
	}
	c.log.Debug().Str("op", op).Int("dropped", n).Msg("points outside canvas")
}
