package deck

import (
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the playable slide variants.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
	KindWebsite
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindWebsite:
		return "website"
	}
	return "unknown"
}

// ParseKind maps a document "type" string to a Kind. "picture" is a legacy
// alias for image. Unknown strings report ok=false.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "image", "picture":
		return KindImage, true
	case "video":
		return KindVideo, true
	case "website":
		return KindWebsite, true
	}
	return KindImage, false
}

// Overlay is the optional text drawn over a slide.
type Overlay struct {
	Text       string
	Color      string // hex, e.g. "#FFFFFF"
	Background string // hex with optional alpha, e.g. "#00000080"
	Size       string // "small" | "medium" | "large"
	Position   string // e.g. "bottom-center"
	Scroll     bool
}

// Slide is one playable unit of a deck.
type Slide struct {
	Name     string
	Filename string // attachment key override; empty means Name
	Kind     Kind
	URL      string // website slides only
	Duration time.Duration
	Fade     time.Duration // transition in/out; clamped at render time
	Overlay  *Overlay
}

// AttachmentKey returns the key used against the store's attachment endpoint
// and the local media cache. A non-empty Filename wins over Name.
func (s *Slide) AttachmentKey() string {
	if s.Filename != "" {
		return s.Filename
	}
	return s.Name
}

// HasAttachment reports whether the slide references stored binary media.
// Website slides capture on demand and have no attachment.
func (s *Slide) HasAttachment() bool {
	return s.Kind == KindImage || s.Kind == KindVideo
}

// Deck is the immutable slide configuration for one node. It is replaced
// wholesale on every revision change, never mutated in place.
type Deck struct {
	ID       string // node UUID / document id
	Revision string // CouchDB-style "N-hash" token
	Slides   []Slide
	Fallback bool // true for the synthetic default deck
}

// ReferencedNames returns the attachment keys of every image/video slide.
// The fallback deck references nothing: its slide renders without media.
func (d *Deck) ReferencedNames() map[string]struct{} {
	names := make(map[string]struct{})
	if d.Fallback {
		return names
	}
	for i := range d.Slides {
		if d.Slides[i].HasAttachment() {
			names[d.Slides[i].AttachmentKey()] = struct{}{}
		}
	}
	return names
}

// RevisionSeq extracts the numeric generation from an "N-hash" revision
// token. Tokens without the prefix compare as zero.
func RevisionSeq(rev string) int {
	idx := strings.IndexByte(rev, '-')
	if idx <= 0 {
		return 0
	}
	n, err := strconv.Atoi(rev[:idx])
	if err != nil {
		return 0
	}
	return n
}

// RevisionNewer reports whether candidate is strictly newer than current.
// An empty current always loses; a fallback deck's empty revision always
// yields to a real one.
func RevisionNewer(current, candidate string) bool {
	if candidate == "" {
		return false
	}
	if current == "" {
		return true
	}
	if candidate == current {
		return false
	}
	return RevisionSeq(candidate) > RevisionSeq(current)
}

// FallbackText is the message carried by the synthetic default deck.
const FallbackText = "This display is not configured yet. Add it in the slideshow manager."

// FallbackSlideName is the reserved name of the synthetic default slide.
const FallbackSlideName = "default"

// NewFallback builds the synthetic single-slide deck shown when no real
// content is reachable. It has no media dependency and cannot fail to render.
func NewFallback(nodeID, managerURL string) *Deck {
	text := FallbackText
	if managerURL != "" {
		text = FallbackText + " (" + managerURL + ")"
	}
	return &Deck{
		ID:       nodeID,
		Fallback: true,
		Slides: []Slide{{
			Name:     FallbackSlideName,
			Kind:     KindImage,
			Duration: 10 * time.Second,
			Overlay: &Overlay{
				Text:     text,
				Color:    "#FFFFFF",
				Size:     "medium",
				Position: "middle-center",
			},
		}},
	}
}
