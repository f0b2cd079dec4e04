// Package rgb565 provides the 16-bit 5-6-5 color format used by ST7735 and
// ST7789 LCD controllers.
//
// A Color packs 5 bits of red, 6 bits of green and 5 bits of blue into a
// uint16, red in the most significant bits:
//
//	bit:   15 14 13 12 11 | 10 9 8 7 6 5 | 4 3 2 1 0
//	       R7 R6 R5 R4 R3 | G7 G6 G5 G4 G3 G2 | B7 B6 B5 B4 B3
//
// Unpacking zero-fills the dropped low bits, so MakeRGB(c.R(), c.G(), c.B())
// returns c for every Color.
//
// On the wire each Color is two bytes. The byte pair order is a property of
// the target hardware, chosen once through ByteOrder; the controllers in this
// project expect BigEndian (high byte first).
//
// This package provides:
//
// - Color: a packed 5-6-5 value implementing color.Color
// - Model: a color model converting standard Go colors to Color
// - Image: a row-major Color buffer implementing image.Image and draw.Image
//
// Example usage:
//
//	img := rgb565.New(image.Rect(0, 0, 128, 160))
//	img.SetColor(10, 20, rgb565.MakeRGB(255, 128, 0))
//	c := img.ColorAt(10, 20)
//	println(c.R(), c.G(), c.B()) // Output: 248 128 0
package rgb565
