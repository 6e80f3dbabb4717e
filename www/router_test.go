package www

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"slidenode/render"
)

type stubSource struct {
	status Status
}

func (s *stubSource) Status() Status { return s.status }

func TestHealthz(t *testing.T) {
	router := NewRouter(&stubSource{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusEndpoint(t *testing.T) {
	src := &stubSource{status: Status{
		NodeUUID:     "uuid-1",
		DeckRevision: "3-c",
		CurrentSlide: "x.jpg",
		CurrentIndex: 2,
		Phase:        "holding",
		SlideCount:   4,
		CachedMedia:  []string{"x.jpg", "y.mp4"},
		FeedHealthy:  true,
	}}
	router := NewRouter(src, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DeckRevision != "3-c" || got.CurrentSlide != "x.jpg" || len(got.CachedMedia) != 2 {
		t.Errorf("status = %+v", got)
	}
}

func TestFrameBeforeFirstPresent(t *testing.T) {
	router := NewRouter(&stubSource{}, &render.Latest{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frame.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 before first frame", rec.Code)
	}
}

func TestFrameServesPNG(t *testing.T) {
	screen := &render.Latest{}
	screen.Present(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	router := NewRouter(&stubSource{}, screen)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frame.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	// PNG signature.
	sig := rec.Body.Bytes()
	if len(sig) < 8 || sig[0] != 0x89 || sig[1] != 'P' || sig[2] != 'N' || sig[3] != 'G' {
		t.Error("response is not a PNG")
	}
}
