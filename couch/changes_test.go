package couch

import (
	"io"
	"strings"
	"testing"
)

func TestChangesReader_BasicChange(t *testing.T) {
	input := `{"seq":"12-abc","id":"node-1","changes":[{"rev":"3-def"}]}` + "\n"
	cr := NewChangesReader(strings.NewReader(input))

	ch, err := cr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.ID != "node-1" {
		t.Errorf("id = %q, want node-1", ch.ID)
	}

	_, err = cr.Next()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestChangesReader_HeartbeatsSkipped(t *testing.T) {
	input := "\n\n" + `{"seq":1,"id":"node-1"}` + "\n\n" + `{"seq":2,"id":"node-1"}` + "\n"
	cr := NewChangesReader(strings.NewReader(input))

	for i := 0; i < 2; i++ {
		ch, err := cr.Next()
		if err != nil {
			t.Fatalf("change %d error: %v", i, err)
		}
		if ch.ID != "node-1" {
			t.Errorf("change %d id = %q", i, ch.ID)
		}
	}
}

func TestChangesReader_NonChangeLinesSkipped(t *testing.T) {
	input := `{"last_seq":"20-xyz","pending":0}` + "\n" +
		"garbage that is not json\n" +
		`{"seq":"21-a","id":"node-1"}` + "\n"
	cr := NewChangesReader(strings.NewReader(input))

	ch, err := cr.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.ID != "node-1" {
		t.Errorf("id = %q, want node-1", ch.ID)
	}
}

func TestChangesReader_EmptyStream(t *testing.T) {
	cr := NewChangesReader(strings.NewReader(""))
	if _, err := cr.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
