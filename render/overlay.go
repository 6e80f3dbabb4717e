package render

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"slidenode/deck"
)

// datetimeToken in overlay text is replaced with the current local time on
// every frame.
const datetimeToken = "{datetime}"

const datetimeLayout = "Mon Jan 2 15:04:05"

// scrollPauseSeconds is how long a scrolling overlay rests after the text
// has fully left the screen before the next pass starts.
const scrollPauseSeconds = 2.0

const glyphW = 7 // basicfont.Face7x13 advance
const glyphH = 13

const bandPad = 8 // vertical padding inside the overlay band, px

// parseHex reads "#RRGGBB" or "#RRGGBBAA". Malformed values fall back to
// def rather than erroring a frame.
func parseHex(s string, def color.RGBA) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return def
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return def
	}
	c := color.RGBA{A: 0xFF}
	if len(s) == 8 {
		c.A = uint8(v)
		v >>= 8
	}
	c.B = uint8(v)
	c.G = uint8(v >> 8)
	c.R = uint8(v >> 16)
	return c
}

// sizeScale maps the overlay size name to the integer factor applied to the
// base bitmap font.
func sizeScale(size string) int {
	switch strings.ToLower(size) {
	case "small":
		return 2
	case "large":
		return 4
	default: // medium and anything unrecognized
		return 3
	}
}

// expandText substitutes dynamic tokens into overlay text.
func expandText(text string, now time.Time) string {
	if !strings.Contains(text, datetimeToken) {
		return text
	}
	return strings.ReplaceAll(text, datetimeToken, now.Format(datetimeLayout))
}

// textWidth is the rendered pixel width of text at the given scale.
func textWidth(text string, scale int) int {
	return len([]rune(text)) * glyphW * scale
}

// scrollState tracks one slide's horizontal text scroll. The text enters
// from the right, moves left at a fixed rate, and after leaving the screen
// entirely pauses before wrapping around.
type scrollState struct {
	active bool
	offset float64 // x of the text's left edge, px from view left
	pause  float64 // seconds left in the post-wrap pause
	textW  int
	viewW  int
	pps    float64
}

// newScrollState activates scrolling only when requested and the text
// actually overflows the view.
func newScrollState(textW, viewW int, pps float64, enabled bool) *scrollState {
	return &scrollState{
		active: enabled && textW > viewW,
		offset: float64(viewW),
		textW:  textW,
		viewW:  viewW,
		pps:    pps,
	}
}

func (s *scrollState) step(dt float64) {
	if !s.active {
		return
	}
	if s.pause > 0 {
		s.pause -= dt
		if s.pause < 0 {
			s.pause = 0
		}
		return
	}
	s.offset -= s.pps * dt
	if s.offset <= -float64(s.textW) {
		s.pause = scrollPauseSeconds
		s.offset = float64(s.viewW)
	}
}

// wrapped reports whether the scroll is in its post-wrap rest.
func (s *scrollState) wrapped() bool {
	return s.active && s.pause > 0
}

// renderText rasterizes text with the bitmap font at an integer scale.
func renderText(text string, fg color.RGBA, scale int) *image.RGBA {
	base := image.NewRGBA(image.Rect(0, 0, len([]rune(text))*glyphW, glyphH))
	d := font.Drawer{
		Dst:  base,
		Src:  image.NewUniform(fg),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(0, basicfont.Face7x13.Ascent),
	}
	d.DrawString(text)

	if scale <= 1 {
		return base
	}
	out := image.NewRGBA(image.Rect(0, 0, base.Rect.Dx()*scale, base.Rect.Dy()*scale))
	xdraw.NearestNeighbor.Scale(out, out.Rect, base, base.Rect, xdraw.Src, nil)
	return out
}

// drawOverlay composites ov onto dst in place. The band spans the full
// width at the configured vertical position; sc positions the text when
// scrolling, otherwise the horizontal alignment does.
func drawOverlay(dst *image.RGBA, ov *deck.Overlay, sc *scrollState, now time.Time) {
	if ov == nil || ov.Text == "" {
		return
	}
	text := expandText(ov.Text, now)
	scale := sizeScale(ov.Size)
	fg := parseHex(ov.Color, color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF})
	bg := parseHex(ov.Background, color.RGBA{})

	strip := renderText(text, fg, scale)
	bandH := strip.Rect.Dy() + 2*bandPad
	width := dst.Rect.Dx()
	height := dst.Rect.Dy()

	var bandY int
	switch vAlign(ov.Position) {
	case "top":
		bandY = 0
	case "middle":
		bandY = (height - bandH) / 2
	default: // bottom
		bandY = height - bandH
	}

	band := image.Rect(0, bandY, width, bandY+bandH)
	if bg.A > 0 {
		draw.Draw(dst, band, image.NewUniform(bg), image.Point{}, draw.Over)
	}

	var x int
	if sc != nil && sc.active {
		x = int(sc.offset)
	} else {
		switch hAlign(ov.Position) {
		case "left":
			x = bandPad
		case "right":
			x = width - strip.Rect.Dx() - bandPad
		default: // center
			x = (width - strip.Rect.Dx()) / 2
		}
	}

	target := image.Rect(x, bandY+bandPad, x+strip.Rect.Dx(), bandY+bandPad+strip.Rect.Dy())
	draw.Draw(dst, target, strip, image.Point{}, draw.Over)
}

func vAlign(position string) string {
	parts := strings.SplitN(strings.ToLower(position), "-", 2)
	switch parts[0] {
	case "top", "middle", "bottom":
		return parts[0]
	}
	return "bottom"
}

func hAlign(position string) string {
	parts := strings.SplitN(strings.ToLower(position), "-", 2)
	if len(parts) == 2 {
		switch parts[1] {
		case "left", "center", "right":
			return parts[1]
		}
	}
	return "center"
}

// dim scales a frame's color channels toward black. alpha 1 returns the
// frame untouched; the loop uses this for fade transitions.
func dim(frame *image.RGBA, alpha float64) *image.RGBA {
	if alpha >= 1 {
		return frame
	}
	if alpha < 0 {
		alpha = 0
	}
	out := image.NewRGBA(frame.Rect)
	mul := uint32(alpha * 256)
	for i := 0; i < len(frame.Pix); i += 4 {
		out.Pix[i] = uint8(uint32(frame.Pix[i]) * mul >> 8)
		out.Pix[i+1] = uint8(uint32(frame.Pix[i+1]) * mul >> 8)
		out.Pix[i+2] = uint8(uint32(frame.Pix[i+2]) * mul >> 8)
		out.Pix[i+3] = frame.Pix[i+3]
	}
	return out
}
