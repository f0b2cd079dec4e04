package st77xx

import (
	"fmt"
	"strings"

	"github.com/zpin/lcdbank/canvas"
	"github.com/zpin/lcdbank/rgb565"
)

// MADCTL bits.
const (
	madMY  byte = 0x80 // row address order
	madMX  byte = 0x40 // column address order
	madMV  byte = 0x20 // row/column exchange
	madBGR byte = 0x08
)

// ScanDir is the order in which the controller walks its RAM.
type ScanDir uint8

// Scan directions, named horizontal order first.
const (
	L2R_U2D ScanDir = iota
	L2R_D2U
	R2L_U2D
	R2L_D2U
	U2D_L2R
	U2D_R2L
	D2U_L2R
	D2U_R2L
)

var scanNames = [...]string{
	L2R_U2D: "L2R_U2D",
	L2R_D2U: "L2R_D2U",
	R2L_U2D: "R2L_U2D",
	R2L_D2U: "R2L_D2U",
	U2D_L2R: "U2D_L2R",
	U2D_R2L: "U2D_R2L",
	D2U_L2R: "D2U_L2R",
	D2U_R2L: "D2U_R2L",
}

var scanBits = [...]byte{
	L2R_U2D: 0,
	L2R_D2U: madMY,
	R2L_U2D: madMX,
	R2L_D2U: madMX | madMY,
	U2D_L2R: madMV,
	U2D_R2L: madMX | madMV,
	D2U_L2R: madMY | madMV,
	D2U_R2L: madMX | madMY | madMV,
}

func (s ScanDir) madctl() byte {
	if int(s) < len(scanBits) {
		return scanBits[s]
	}
	return 0
}

func (s ScanDir) String() string {
	if int(s) < len(scanNames) {
		return scanNames[s]
	}
	return fmt.Sprintf("ScanDir(%d)", uint8(s))
}

// ParseScanDir accepts the constant names, case insensitive.
func ParseScanDir(s string) (ScanDir, error) {
	for i, n := range scanNames {
		if strings.EqualFold(n, s) {
			return ScanDir(i), nil
		}
	}
	return 0, fmt.Errorf("st77xx: unknown scan direction %q", s)
}

// Preset returns the options for a known panel mounted with the given
// rotation. The result has no reset line, logger or delayer set.
//
//	st7735-128  128x128 ST7735, glass offset (2, 1)
//	st7735-160  128x160 ST7735, RAM scanned backwards for 180 and 270
//	st7789-320  320x240 ST7789
func Preset(name string, rot canvas.Rotation) (Opts, error) {
	switch strings.ToLower(name) {
	case "st7735-128":
		return Opts{
			Variant:  ST7735,
			W:        128,
			H:        128,
			XOffset:  2,
			YOffset:  1,
			ScanDir:  L2R_U2D,
			InitFill: rgb565.Blue,
		}, nil
	case "st7735-160":
		scan := L2R_U2D
		if rot == canvas.Rotate180 || rot == canvas.Rotate270 {
			scan = R2L_D2U
		}
		return Opts{
			Variant:  ST7735,
			W:        128,
			H:        160,
			ScanDir:  scan,
			InitFill: rgb565.Blue,
		}, nil
	case "st7789-320":
		return Opts{
			Variant: ST7789,
			W:       320,
			H:       240,
		}, nil
	}
	return Opts{}, fmt.Errorf("st77xx: unknown panel %q", name)
}
