package deck

import (
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"image", KindImage, true},
		{"Picture", KindImage, true},
		{"VIDEO", KindVideo, true},
		{"website", KindWebsite, true},
		{"pdf", KindImage, false},
		{"", KindImage, false},
	}
	for _, c := range cases {
		got, ok := ParseKind(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ParseKind(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestParseDocument(t *testing.T) {
	data := []byte(`{
		"_id": "6f1c81bc-3f9a-4f5e-9f10-1df1e9a3b001",
		"_rev": "4-abc",
		"slides": [
			{"name": "x.jpg", "type": "image", "duration": 5},
			{"name": "promo", "type": "video", "filename": "y.mp4", "duration": 8, "transition_time": 1},
			{"name": "home", "type": "website", "url": "https://example.com", "duration": 12,
			 "text": "Welcome", "text_color": "#FF0000", "scroll_text": true},
			{"name": "skipme", "type": "powerpoint"},
			{"name": "nourl", "type": "website"}
		]
	}`)

	d, err := ParseDocument(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Revision != "4-abc" {
		t.Errorf("revision = %q, want 4-abc", d.Revision)
	}
	if len(d.Slides) != 3 {
		t.Fatalf("got %d slides, want 3 (unknown type and url-less website dropped)", len(d.Slides))
	}
	if d.Slides[0].Duration != 5*time.Second {
		t.Errorf("slide 0 duration = %v", d.Slides[0].Duration)
	}
	if got := d.Slides[1].AttachmentKey(); got != "y.mp4" {
		t.Errorf("slide 1 attachment key = %q, want y.mp4 (filename preferred)", got)
	}
	if d.Slides[1].Fade != time.Second {
		t.Errorf("slide 1 fade = %v, want 1s", d.Slides[1].Fade)
	}
	ov := d.Slides[2].Overlay
	if ov == nil || ov.Text != "Welcome" || !ov.Scroll {
		t.Errorf("slide 2 overlay = %+v", ov)
	}
}

func TestParseDocument_EmptyIsError(t *testing.T) {
	if _, err := ParseDocument([]byte(`{"_id": "n", "_rev": "1-a", "slides": []}`)); err == nil {
		t.Error("expected error for deck with no usable slides")
	}
	if _, err := ParseDocument([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed document")
	}
}

func TestReferencedNames(t *testing.T) {
	d := &Deck{Slides: []Slide{
		{Name: "a.jpg", Kind: KindImage},
		{Name: "clip", Filename: "b.mp4", Kind: KindVideo},
		{Name: "home", Kind: KindWebsite, URL: "https://example.com"},
	}}
	names := d.ReferencedNames()
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2", len(names))
	}
	for _, want := range []string{"a.jpg", "b.mp4"} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing %q", want)
		}
	}
	if _, ok := names["home"]; ok {
		t.Error("website slide must not be counted as an attachment")
	}
}

func TestRevisionNewer(t *testing.T) {
	cases := []struct {
		current, candidate string
		want               bool
	}{
		{"", "1-a", true},
		{"1-a", "2-b", true},
		{"2-b", "1-a", false},
		{"2-b", "2-b", false},
		{"10-a", "9-z", false},
		{"9-z", "10-a", true},
		{"1-a", "", false},
	}
	for _, c := range cases {
		if got := RevisionNewer(c.current, c.candidate); got != c.want {
			t.Errorf("RevisionNewer(%q, %q) = %v, want %v", c.current, c.candidate, got, c.want)
		}
	}
}

func TestNewFallback(t *testing.T) {
	d := NewFallback("node-1", "http://manager")
	if !d.Fallback {
		t.Error("fallback flag not set")
	}
	if len(d.Slides) != 1 || d.Slides[0].Name != FallbackSlideName {
		t.Fatalf("fallback deck = %+v", d.Slides)
	}
	if len(d.ReferencedNames()) != 0 {
		t.Errorf("fallback deck must reference no attachments, got %v", d.ReferencedNames())
	}
}
