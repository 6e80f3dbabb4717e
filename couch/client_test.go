package couch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slideshows/node-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"_id":"node-1","_rev":"2-b","slides":[{"name":"x.jpg","type":"image"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "slideshows")
	doc, err := c.FetchDocument(context.Background(), "node-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Rev != "2-b" || len(doc.Slides) != 1 {
		t.Errorf("doc = %+v", doc)
	}
}

func TestFetchDocument_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "slideshows")
	_, err := c.FetchDocument(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slideshows/node-1/x.jpg" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpegbytes"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "slideshows")
	data, ctype, err := c.FetchAttachment(context.Background(), "node-1", "x.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "jpegbytes" || ctype != "image/jpeg" {
		t.Errorf("data = %q, ctype = %q", data, ctype)
	}
}

func TestPutStatus_ChainsExistingRev(t *testing.T) {
	var gotPut map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"_id":"status_node-1","_rev":"7-old"}`))
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&gotPut); err != nil {
				t.Errorf("decode put body: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ok":true,"rev":"8-new"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "slideshows")
	err := c.PutStatus(context.Background(), "node-1", StatusRecord{
		CurrentSlideID:       "x.jpg",
		CurrentSlideFilename: "x.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPut["_rev"] != "7-old" {
		t.Errorf("_rev = %v, want 7-old", gotPut["_rev"])
	}
	if gotPut["current_slide_filename"] != "x.jpg" {
		t.Errorf("filename = %v", gotPut["current_slide_filename"])
	}
	if gotPut["type"] != "tv_status" {
		t.Errorf("type = %v", gotPut["type"])
	}
	if gotPut["timestamp"] == "" {
		t.Error("timestamp not set")
	}
}

func TestPutStatus_CreatesWhenAbsent(t *testing.T) {
	var gotPut map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			http.NotFound(w, r)
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&gotPut)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ok":true,"rev":"1-new"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "slideshows")
	if err := c.PutStatus(context.Background(), "node-1", StatusRecord{CurrentSlideID: "default"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, has := gotPut["_rev"]; has {
		t.Errorf("fresh status doc must not carry _rev, got %v", gotPut["_rev"])
	}
}

func TestDeleteAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.URL.Query().Get("rev"); got != "4-d" {
			t.Errorf("rev = %q", got)
		}
		w.Write([]byte(`{"ok":true,"rev":"5-e"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "slideshows")
	rev, err := c.DeleteAttachment(context.Background(), "node-1", "old.jpg", "4-d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rev != "5-e" {
		t.Errorf("new rev = %q, want 5-e", rev)
	}
}
