package frame

import "io"

// Text layout: glyphs are drawn at 2x scale, so one character cell is
// 12px wide (10px glyph + 2px gap) and 14px tall. Up to four lines are
// centered horizontally at fixed vertical offsets.
const (
	cellWidth  = glyphCols*2 + 2
	cellHeight = glyphRows * 2
)

// lineTops lists the top pixel row of each of the four text lines.
var lineTops = [4]int{160, 200, 240, 280}

// textReader lazily produces one full packed frame of rendered text.
// It is single-use; call RenderText again to restart.
type textReader struct {
	lines [4]string
	pos   int
}

// RenderText returns a reader producing the packed frame for up to four
// lines of status text on a white background. The stream is exactly
// FrameBytes long, row-major.
func RenderText(lines [4]string) io.Reader {
	return &textReader{lines: lines}
}

func (t *textReader) Read(p []byte) (int, error) {
	if t.pos >= FrameBytes {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && t.pos < FrameBytes {
		y := t.pos / (Width / 2)
		x := (t.pos % (Width / 2)) * 2
		p[n] = Pack(t.pixel(x, y), t.pixel(x+1, y))
		n++
		t.pos++
	}
	return n, nil
}

// pixel returns the color at (x, y): black where a glyph bit is lit,
// white everywhere else.
func (t *textReader) pixel(x, y int) Color {
	for i, top := range lineTops {
		if y < top || y >= top+cellHeight {
			continue
		}
		line := t.lines[i]
		if line == "" {
			return White
		}
		left := (Width - len(line)*cellWidth) / 2
		if x < left || x >= left+len(line)*cellWidth {
			return White
		}
		cx := (x - left) % cellWidth
		if cx >= glyphCols*2 {
			// Inter-character gap.
			return White
		}
		glyph := &font5x7[glyphIndex(line[(x-left)/cellWidth])]
		row := glyph[(y-top)/2]
		if row&(1<<uint(glyphCols-1-cx/2)) != 0 {
			return Black
		}
		return White
	}
	return White
}
