package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func stubCapturer(run func(ctx context.Context, url string) ([]byte, error)) *Capturer {
	c := New(1920, 1080, time.Second, 0, "")
	c.run = run
	return c
}

func TestCapture_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := stubCapturer(func(ctx context.Context, url string) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("target closed")
		}
		return []byte("png"), nil
	})

	data, err := c.Capture(context.Background(), "https://example.com", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "png" || calls != 3 {
		t.Errorf("data = %q, calls = %d", data, calls)
	}
}

func TestCapture_FailsAfterThreeAttempts(t *testing.T) {
	calls := 0
	c := stubCapturer(func(ctx context.Context, url string) ([]byte, error) {
		calls++
		return nil, fmt.Errorf("navigation timeout")
	})

	_, err := c.Capture(context.Background(), "https://example.com", 0)
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
	if calls != 3 {
		t.Errorf("attempts = %d, want 3", calls)
	}
}

func TestCapture_FreshnessWindowReuses(t *testing.T) {
	calls := 0
	c := stubCapturer(func(ctx context.Context, url string) ([]byte, error) {
		calls++
		return []byte(fmt.Sprintf("shot-%d", calls)), nil
	})

	a, _ := c.Capture(context.Background(), "https://example.com", time.Minute)
	b, _ := c.Capture(context.Background(), "https://example.com", time.Minute)
	if calls != 1 {
		t.Errorf("browser sessions = %d, want 1 (fresh capture reused)", calls)
	}
	if string(a) != string(b) {
		t.Errorf("reused capture differs: %q vs %q", a, b)
	}

	// Zero window always recaptures.
	c.Capture(context.Background(), "https://example.com", 0)
	if calls != 2 {
		t.Errorf("browser sessions = %d, want 2 after zero-window capture", calls)
	}
}

func TestCapture_FailureAfterSuccessRecoversNextCycle(t *testing.T) {
	failing := true
	c := stubCapturer(func(ctx context.Context, url string) ([]byte, error) {
		if failing {
			return nil, fmt.Errorf("timeout")
		}
		return []byte("ok"), nil
	})

	if _, err := c.Capture(context.Background(), "https://example.com", 0); err == nil {
		t.Fatal("expected failure")
	}
	failing = false
	data, err := c.Capture(context.Background(), "https://example.com", 0)
	if err != nil || string(data) != "ok" {
		t.Errorf("recovery capture = %q, %v", data, err)
	}
}

func TestForget(t *testing.T) {
	calls := 0
	c := stubCapturer(func(ctx context.Context, url string) ([]byte, error) {
		calls++
		return []byte("shot"), nil
	})

	c.Capture(context.Background(), "https://example.com", time.Minute)
	c.Forget("https://example.com")
	c.Capture(context.Background(), "https://example.com", time.Minute)
	if calls != 2 {
		t.Errorf("sessions = %d, want 2 after Forget", calls)
	}
}

func TestCapture_ContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	c := stubCapturer(func(ctx context.Context, url string) ([]byte, error) {
		calls++
		cancel()
		return nil, fmt.Errorf("killed")
	})

	_, err := c.Capture(ctx, "https://example.com", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("attempts = %d, want 1 (cancelled context must not retry)", calls)
	}
}
