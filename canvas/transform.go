package canvas

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Rotation is a clockwise rotation in degrees.
type Rotation int

// Supported rotations.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// ParseRotation accepts "0", "90", "180" or "270".
func ParseRotation(s string) (Rotation, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("canvas: invalid rotation %q", s)
	}
	r := Rotation(n)
	if !r.valid() {
		return 0, fmt.Errorf("canvas: invalid rotation %d", n)
	}
	return r, nil
}

func (r Rotation) valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

func (r Rotation) String() string { return strconv.Itoa(int(r)) }

// Swapped reports whether the rotation exchanges width and height.
func (r Rotation) Swapped() bool {
	return r == Rotate90 || r == Rotate270
}

// Mirror flips the rotated image along one or both native axes.
type Mirror uint8

// Supported mirror modes.
const (
	MirrorNone       Mirror = 0x00
	MirrorHorizontal Mirror = 0x01
	MirrorVertical   Mirror = 0x02
	MirrorOrigin     Mirror = 0x03
)

var mirrorNames = map[Mirror]string{
	MirrorNone:       "none",
	MirrorHorizontal: "horizontal",
	MirrorVertical:   "vertical",
	MirrorOrigin:     "origin",
}

func (m Mirror) String() string {
	if s, ok := mirrorNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mirror(%d)", uint8(m))
}

// ParseMirror accepts none, horizontal, vertical or origin (or h, v, hv).
func ParseMirror(s string) (Mirror, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return MirrorNone, nil
	case "horizontal", "h":
		return MirrorHorizontal, nil
	case "vertical", "v":
		return MirrorVertical, nil
	case "origin", "both", "hv":
		return MirrorOrigin, nil
	}
	return MirrorNone, fmt.Errorf("canvas: invalid mirror %q", s)
}

// Orientation maps logical coordinates onto the native panel grid.
type Orientation struct {
	Rotation Rotation
	Mirror   Mirror
}

// Validate checks that both fields hold supported values.
func (o Orientation) Validate() error {
	if !o.Rotation.valid() {
		return fmt.Errorf("canvas: invalid rotation %d", o.Rotation)
	}
	if o.Mirror > MirrorOrigin {
		return errors.New("canvas: invalid mirror")
	}
	return nil
}

// Logical returns the caller-facing dimensions for a native grid.
func (o Orientation) Logical(pixWidth, pixHeight int) (width, height int) {
	if o.Rotation.Swapped() {
		return pixHeight, pixWidth
	}
	return pixWidth, pixHeight
}

// ToNative maps logical (x, y) to native (X, Y). It reports false when the
// logical point lies outside the logical grid or the result lies outside the
// native grid. Both checks use >= against the dimension.
func ToNative(o Orientation, pixWidth, pixHeight, x, y int) (nx, ny int, ok bool) {
	width, height := o.Logical(pixWidth, pixHeight)
	if x < 0 || y < 0 || x >= width || y >= height {
		return 0, 0, false
	}

	switch o.Rotation {
	case Rotate0:
		nx, ny = x, y
	case Rotate90:
		nx, ny = pixWidth-y-1, x
	case Rotate180:
		nx, ny = pixWidth-x-1, pixHeight-y-1
	case Rotate270:
		nx, ny = y, pixHeight-x-1
	default:
		return 0, 0, false
	}

	switch o.Mirror {
	case MirrorNone:
	case MirrorHorizontal:
		nx = pixWidth - nx - 1
	case MirrorVertical:
		ny = pixHeight - ny - 1
	case MirrorOrigin:
		nx = pixWidth - nx - 1
		ny = pixHeight - ny - 1
	default:
		return 0, 0, false
	}

	if nx < 0 || ny < 0 || nx >= pixWidth || ny >= pixHeight {
		return 0, 0, false
	}
	return nx, ny, true
}
