package deck

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document mirrors the slide-deck document as stored in CouchDB.
type Document struct {
	ID          string                    `json:"_id"`
	Rev         string                    `json:"_rev"`
	Slides      []DocumentSlide           `json:"slides"`
	Attachments map[string]AttachmentStub `json:"_attachments,omitempty"`
}

// DocumentSlide is the wire form of one slide entry.
type DocumentSlide struct {
	Name                string   `json:"name"`
	Type                string   `json:"type"`
	Duration            *float64 `json:"duration,omitempty"`
	Text                string   `json:"text,omitempty"`
	TextColor           string   `json:"text_color,omitempty"`
	TextSize            string   `json:"text_size,omitempty"`
	TextPosition        string   `json:"text_position,omitempty"`
	TextBackgroundColor string   `json:"text_background_color,omitempty"`
	TransitionTime      *float64 `json:"transition_time,omitempty"`
	ScrollText          bool     `json:"scroll_text,omitempty"`
	URL                 string   `json:"url,omitempty"`
	Filename            string   `json:"filename,omitempty"`
}

// AttachmentStub is the per-attachment metadata CouchDB includes on the
// document. Only the key set matters for cleanup.
type AttachmentStub struct {
	ContentType string `json:"content_type,omitempty"`
	Length      int64  `json:"length,omitempty"`
	Stub        bool   `json:"stub,omitempty"`
}

const defaultSlideDuration = 10 * time.Second

// ParseDocument decodes a store document and converts it into a Deck.
// Slides with an unknown type are dropped rather than failing the whole
// document; a document with no usable slides yields an error so the caller
// can substitute the fallback deck.
func ParseDocument(data []byte) (*Deck, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc.ToDeck()
}

// ToDeck converts the wire document into the in-memory Deck.
func (doc *Document) ToDeck() (*Deck, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("document has no _id")
	}
	d := &Deck{ID: doc.ID, Revision: doc.Rev}
	for _, ds := range doc.Slides {
		kind, ok := ParseKind(ds.Type)
		if !ok {
			continue
		}
		s := Slide{
			Name:     ds.Name,
			Filename: ds.Filename,
			Kind:     kind,
			URL:      ds.URL,
			Duration: secondsOrDefault(ds.Duration, defaultSlideDuration),
			Fade:     secondsOrDefault(ds.TransitionTime, 0),
		}
		if ds.Text != "" {
			s.Overlay = &Overlay{
				Text:       ds.Text,
				Color:      ds.TextColor,
				Background: ds.TextBackgroundColor,
				Size:       ds.TextSize,
				Position:   ds.TextPosition,
				Scroll:     ds.ScrollText,
			}
		}
		if kind == KindWebsite && s.URL == "" {
			continue
		}
		d.Slides = append(d.Slides, s)
	}
	if len(d.Slides) == 0 {
		return nil, fmt.Errorf("document %s has no usable slides", doc.ID)
	}
	return d, nil
}

// ReferencedAttachments returns the attachment keys referenced by the wire
// document's slides. Used for remote cleanup, where the document's own
// _attachments map is the ground truth of what exists.
func (doc *Document) ReferencedAttachments() map[string]struct{} {
	names := make(map[string]struct{})
	for _, ds := range doc.Slides {
		kind, ok := ParseKind(ds.Type)
		if !ok || kind == KindWebsite {
			continue
		}
		key := ds.Name
		if ds.Filename != "" {
			key = ds.Filename
		}
		names[key] = struct{}{}
	}
	return names
}

func secondsOrDefault(v *float64, def time.Duration) time.Duration {
	if v == nil || *v <= 0 {
		return def
	}
	return time.Duration(*v * float64(time.Second))
}
