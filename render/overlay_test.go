package render

import (
	"image"
	"image/color"
	"testing"
	"time"

	"slidenode/deck"
)

func TestParseHex(t *testing.T) {
	def := color.RGBA{R: 1, G: 2, B: 3, A: 4}
	cases := []struct {
		in   string
		want color.RGBA
	}{
		{"#FFFFFF", color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}},
		{"#ff8000", color.RGBA{R: 0xFF, G: 0x80, B: 0x00, A: 0xFF}},
		{"#00000080", color.RGBA{R: 0, G: 0, B: 0, A: 0x80}},
		{" #102030 ", color.RGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xFF}},
		{"", def},
		{"#fff", def},
		{"#zzzzzz", def},
	}
	for _, tc := range cases {
		if got := parseHex(tc.in, def); got != tc.want {
			t.Errorf("parseHex(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSizeScale(t *testing.T) {
	cases := map[string]int{
		"small":  2,
		"medium": 3,
		"large":  4,
		"LARGE":  4,
		"":       3,
		"huge":   3,
	}
	for in, want := range cases {
		if got := sizeScale(in); got != want {
			t.Errorf("sizeScale(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestExpandText_Datetime(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	got := expandText("now: {datetime}", now)
	want := "now: " + now.Format(datetimeLayout)
	if got != want {
		t.Errorf("expandText = %q, want %q", got, want)
	}
	if got := expandText("static", now); got != "static" {
		t.Errorf("static text changed: %q", got)
	}
}

func TestScrollState_Inactive(t *testing.T) {
	// Text narrower than the view never scrolls even when asked to.
	s := newScrollState(50, 100, 50, true)
	if s.active {
		t.Fatal("short text should not scroll")
	}
	s = newScrollState(200, 100, 50, false)
	if s.active {
		t.Fatal("scroll flag off should not scroll")
	}
}

func TestScrollState_WrapAndPause(t *testing.T) {
	// 150px text, 100px view, 50 px/s: full exit takes (100+150)/50 = 5s.
	s := newScrollState(150, 100, 50, true)
	if !s.active {
		t.Fatal("overflowing text should scroll")
	}
	if s.offset != 100 {
		t.Fatalf("text should enter from the right edge, offset = %v", s.offset)
	}

	s.step(1)
	if s.offset != 50 {
		t.Errorf("after 1s offset = %v, want 50", s.offset)
	}

	for i := 0; i < 4; i++ {
		s.step(1)
	}
	if !s.wrapped() {
		t.Fatal("fully offscreen text should enter the pause")
	}
	if s.offset != 100 {
		t.Errorf("wrap should reset to the right edge, offset = %v", s.offset)
	}

	// During the pause the offset does not move.
	s.step(1)
	if s.offset != 100 {
		t.Errorf("offset moved during pause: %v", s.offset)
	}
	s.step(1)
	if s.wrapped() {
		t.Error("pause should be over after 2s")
	}
	s.step(1)
	if s.offset >= 100 {
		t.Errorf("scroll should resume after the pause, offset = %v", s.offset)
	}
}

func TestDrawOverlay_BottomBand(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 200, 100))
	ov := &deck.Overlay{
		Text:       "hi",
		Color:      "#FF0000",
		Background: "#0000FFFF",
		Size:       "small",
		Position:   "bottom-center",
	}
	drawOverlay(frame, ov, nil, time.Now())

	// Band background at the bottom edge.
	if _, _, b, _ := frame.At(5, 99).RGBA(); b == 0 {
		t.Error("bottom band should carry the background color")
	}
	// Top of the frame untouched.
	if r, g, b, a := frame.At(5, 5).RGBA(); r != 0 || g != 0 || b != 0 || a != 0 {
		t.Error("area outside the band should be untouched")
	}
	// Some red text pixel exists inside the band.
	found := false
	for y := 70; y < 100 && !found; y++ {
		for x := 0; x < 200 && !found; x++ {
			r, g, b, _ := frame.At(x, y).RGBA()
			if r > 0xC000 && g == 0 && b == 0 {
				found = true
			}
		}
	}
	if !found {
		t.Error("no text pixels found in the band")
	}
}

func TestDrawOverlay_NilAndEmpty(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
	drawOverlay(frame, nil, nil, time.Now())
	drawOverlay(frame, &deck.Overlay{}, nil, time.Now())
	for i, p := range frame.Pix {
		if p != 0 {
			t.Fatalf("frame modified at byte %d", i)
		}
	}
}

func TestAlign(t *testing.T) {
	cases := []struct {
		pos  string
		v, h string
	}{
		{"bottom-center", "bottom", "center"},
		{"top-left", "top", "left"},
		{"middle-right", "middle", "right"},
		{"middle", "middle", "center"},
		{"", "bottom", "center"},
		{"nonsense-whatever", "bottom", "center"},
	}
	for _, tc := range cases {
		if got := vAlign(tc.pos); got != tc.v {
			t.Errorf("vAlign(%q) = %q, want %q", tc.pos, got, tc.v)
		}
		if got := hAlign(tc.pos); got != tc.h {
			t.Errorf("hAlign(%q) = %q, want %q", tc.pos, got, tc.h)
		}
	}
}

func TestDim(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 2, 1))
	frame.SetRGBA(0, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	half := dim(frame, 0.5)
	r := half.RGBAAt(0, 0)
	if r.R != 100 || r.G != 50 || r.B != 25 || r.A != 255 {
		t.Errorf("half dim = %v", r)
	}

	if got := dim(frame, 1.0); got != frame {
		t.Error("full alpha should return the frame untouched")
	}

	black := dim(frame, 0).RGBAAt(0, 0)
	if black.R != 0 || black.G != 0 || black.B != 0 {
		t.Errorf("zero alpha = %v, want black", black)
	}
}
