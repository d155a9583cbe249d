// Package frame implements the panel-native framebuffer encoding for the
// 7.3" six-color e-paper panel.
//
// Pixels are 4-bit palette codes stored two per byte in horizontal nibble
// packing: high nibble = even-indexed (left) pixel, low nibble = odd-indexed
// (right) pixel, row-major with no padding between rows. A full frame is
// exactly Width*Height/2 bytes.
package frame

import (
	"fmt"
	"io"
)

// Panel geometry.
const (
	Width  = 800
	Height = 480

	// FrameBytes is the exact size of one packed frame (2 pixels per byte).
	FrameBytes = Width * Height / 2
)

// Color is a 4-bit palette code understood by the panel controller.
// Only the six named colors are displayable; Clean is reserved by the
// controller and never part of a rendered frame.
type Color byte

const (
	Black  Color = 0x0
	White  Color = 0x1
	Yellow Color = 0x2
	Red    Color = 0x3
	Blue   Color = 0x5
	Green  Color = 0x6
	Clean  Color = 0x7
)

// WhitePair is a full byte of white pixels, used to pad short transfers.
const WhitePair = byte(White)<<4 | byte(White)

// Palette lists the six displayable colors in panel code order.
var Palette = [6]Color{Black, White, Yellow, Red, Blue, Green}

var colorNames = map[string]Color{
	"black":  Black,
	"white":  White,
	"yellow": Yellow,
	"red":    Red,
	"blue":   Blue,
	"green":  Green,
}

// ParseColor resolves a color name to its panel code. Unknown names are
// rejected; the reserved "clean" code is not addressable by name.
func ParseColor(name string) (Color, error) {
	c, ok := colorNames[name]
	if !ok {
		return 0, fmt.Errorf("frame: unknown color %q", name)
	}
	return c, nil
}

func (c Color) String() string {
	for n, v := range colorNames {
		if v == c {
			return n
		}
	}
	return fmt.Sprintf("Color(%#x)", byte(c))
}

// Pack combines two horizontally adjacent pixels into one byte.
// a is the even-indexed (left) pixel, b the odd-indexed (right) pixel.
func Pack(a, b Color) byte {
	return byte(a)<<4 | byte(b)&0x0F
}

// Unpack is the inverse of Pack.
func Unpack(b byte) (Color, Color) {
	return Color(b >> 4), Color(b & 0x0F)
}

// fillReader repeats a single packed pair byte forever. Callers bound it
// with io.LimitReader or by copying a fixed count.
type fillReader struct {
	pair byte
}

// NewFill returns an unbounded stream of the packed pair (c, c).
func NewFill(c Color) io.Reader {
	return &fillReader{pair: Pack(c, c)}
}

func (f *fillReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = f.pair
	}
	return len(p), nil
}
